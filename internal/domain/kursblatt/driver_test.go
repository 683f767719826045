package kursblatt

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenPagesDocument fails extraction for the listed pages.
type brokenPagesDocument struct {
	*MemoryDocument
	broken map[int]bool
}

func (d *brokenPagesDocument) PageTokens(ctx context.Context, n int) (iter.Seq[string], error) {
	if d.broken[n] {
		return nil, errors.New("content stream: unexpected EOF")
	}
	return d.MemoryDocument.PageTokens(ctx, n)
}

func newTestDriver(opts ...DriverOption) *Driver {
	base := []DriverOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return time.Date(2021, 3, 1, 18, 0, 0, 0, time.UTC) }),
	}
	return NewDriver(append(base, opts...)...)
}

func TestDriver_Parse(t *testing.T) {
	ctx := context.Background()

	t.Run("end to end", func(t *testing.T) {
		doc := NewMemoryDocument([]string{
			"Datum: 01.03.2021", "ACME (DE000ACME001)", "09:00:00", "100", "5,00", "+",
		})

		result, err := newTestDriver().Parse(ctx, "kursblatt.pdf", doc)

		require.NoError(t, err)
		assert.Equal(t, []string{"ACME (DE000ACME001)"}, result.Ledger.Shares())
		trades := result.Ledger.Trades("ACME (DE000ACME001)")
		require.Len(t, trades, 1)
		assert.Equal(t, time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC), trades[0].Timestamp)
		assert.Equal(t, int64(100), trades[0].Volume)
		assert.True(t, decimal.RequireFromString("5.00").Equal(trades[0].Price))
		assert.Equal(t, SideBuy, trades[0].Side)

		assert.Equal(t, 1, result.Stats.Pages)
		assert.Equal(t, 1, result.Stats.Trades)
		assert.Equal(t, LocaleCommaDecimal, result.Stats.Locale)
	})

	t.Run("no trade rows gives an empty ledger", func(t *testing.T) {
		doc := NewMemoryDocument(
			[]string{"Kursblatt", "Datum: 01.03.2021", "Uhrzeit", "Kauf", "Verkauf", "Volumen"},
			[]string{"ACME (DE000ACME001)", "Freiverkehr", "Seite 2"},
		)

		result, err := newTestDriver().Parse(ctx, "empty.pdf", doc)

		require.NoError(t, err)
		assert.Zero(t, result.Ledger.Len())
		assert.Zero(t, result.Stats.Trades)
		assert.Equal(t, LocaleUndetermined, result.Stats.Locale)
	})

	t.Run("document without pages", func(t *testing.T) {
		result, err := newTestDriver().Parse(ctx, "none.pdf", NewMemoryDocument())

		require.NoError(t, err)
		assert.Zero(t, result.Ledger.Len())
	})

	t.Run("share header carries over to the next page", func(t *testing.T) {
		doc := NewMemoryDocument(
			[]string{"Datum: 01.03.2021", "ACME (DE000ACME001)", "09:00:00", "100", "5,000", "-"},
			[]string{"Kursblatt", "09:30:00", "50", "-", "5,100"},
		)

		result, err := newTestDriver().Parse(ctx, "two-pages.pdf", doc)

		require.NoError(t, err)
		assert.Equal(t, []string{"ACME (DE000ACME001)"}, result.Ledger.Shares())
		trades := result.Ledger.Trades("ACME (DE000ACME001)")
		require.Len(t, trades, 2)
		assert.Equal(t, SideSell, trades[1].Side)
		assert.True(t, decimal.RequireFromString("5.1").Equal(trades[1].Price))
	})

	t.Run("date carries forward until the next marker", func(t *testing.T) {
		doc := NewMemoryDocument(
			[]string{"Datum: 01.03.2021", "ACME (DE000ACME001)", "09:00:00", "1", "5,000", "-"},
			[]string{"10:00:00", "2", "5,000", "-"},
			[]string{"Datum: 02.03.2021", "11:00:00", "3", "5,000", "-"},
		)

		result, err := newTestDriver().Parse(ctx, "dates.pdf", doc)

		require.NoError(t, err)
		trades := result.Ledger.Trades("ACME (DE000ACME001)")
		require.Len(t, trades, 3)
		assert.Equal(t, time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC), trades[0].Timestamp)
		assert.Equal(t, time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC), trades[1].Timestamp)
		assert.Equal(t, time.Date(2021, 3, 2, 11, 0, 0, 0, time.UTC), trades[2].Timestamp)
	})

	t.Run("processing date is the default base date", func(t *testing.T) {
		doc := NewMemoryDocument([]string{"ACME (DE000ACME001)", "09:00:00", "1", "5,000", "-"})

		result, err := newTestDriver().Parse(ctx, "undated.pdf", doc)

		require.NoError(t, err)
		trades := result.Ledger.Trades("ACME (DE000ACME001)")
		require.Len(t, trades, 1)
		assert.Equal(t, time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC), trades[0].Timestamp)
	})

	t.Run("rows before any header use an empty identity", func(t *testing.T) {
		doc := NewMemoryDocument([]string{"09:00:00", "1", "5,000", "-"})

		result, err := newTestDriver().Parse(ctx, "headless.pdf", doc)

		require.NoError(t, err)
		assert.Equal(t, []string{""}, result.Ledger.Shares())
	})

	t.Run("unreadable page is skipped", func(t *testing.T) {
		doc := &brokenPagesDocument{
			MemoryDocument: NewMemoryDocument(
				[]string{"Datum: 01.03.2021", "ACME (DE000ACME001)", "09:00:00", "1", "5,000", "-"},
				[]string{"BETA (DE000BETA0001)", "10:00:00", "2", "6,000", "-"},
				[]string{"11:00:00", "3", "7,000", "-"},
			),
			broken: map[int]bool{1: true},
		}

		result, err := newTestDriver().Parse(ctx, "broken.pdf", doc)

		require.NoError(t, err)
		assert.Equal(t, 1, result.Stats.SkippedPages)
		assert.Equal(t, []string{"ACME (DE000ACME001)"}, result.Ledger.Shares())
		assert.Len(t, result.Ledger.Trades("ACME (DE000ACME001)"), 2)
	})

	t.Run("malformed rows are counted", func(t *testing.T) {
		doc := NewMemoryDocument([]string{
			"ACME (DE000ACME001)",
			"14:05:00", "null", "5,5", "-",
			"14:06:00", "1", "5,000", "-",
		})

		result, err := newTestDriver().Parse(ctx, "null.pdf", doc)

		require.NoError(t, err)
		assert.Equal(t, 1, result.Stats.MalformedRows)
		assert.Equal(t, 1, result.Stats.Trades)
	})

	t.Run("progress is reported at the checkpoint", func(t *testing.T) {
		doc := NewMemoryDocument([]string{"a"}, []string{"b"}, []string{"c"}, []string{"d"})
		var reports []Progress

		_, err := newTestDriver(WithProgress(1, func(p Progress) { reports = append(reports, p) })).
			Parse(ctx, "progress.pdf", doc)

		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, "progress.pdf", reports[0].Document)
		assert.Equal(t, 2, reports[0].PagesDone)
		assert.Equal(t, 4, reports[0].PageCount)
	})

	t.Run("driver can be reused across documents", func(t *testing.T) {
		d := newTestDriver()
		first := NewMemoryDocument([]string{"ACME (DE000ACME001)", "09:00:00", "1", "5,000", "-"})
		second := NewMemoryDocument([]string{"09:00:00", "1", "5.000", "-"})

		r1, err := d.Parse(ctx, "first.pdf", first)
		require.NoError(t, err)
		r2, err := d.Parse(ctx, "second.pdf", second)
		require.NoError(t, err)

		assert.Equal(t, LocaleCommaDecimal, r1.Stats.Locale)
		assert.Equal(t, LocalePeriodDecimal, r2.Stats.Locale)
		assert.Equal(t, []string{""}, r2.Ledger.Shares())
	})
}

func TestDriver_ParseLocaleInversion(t *testing.T) {
	ctx := context.Background()
	row := []string{"ACME (DE000ACME001)", "14:05:00", "1.234", "10,50", "-"}

	t.Run("comma decimal", func(t *testing.T) {
		result, err := newTestDriver().Parse(ctx, "de.pdf", NewMemoryDocument(row))

		require.NoError(t, err)
		assert.Equal(t, LocaleCommaDecimal, result.Stats.Locale)
		trades := result.Ledger.Trades("ACME (DE000ACME001)")
		require.Len(t, trades, 1)
		assert.Equal(t, int64(1234), trades[0].Volume)
		assert.True(t, decimal.RequireFromString("10.50").Equal(trades[0].Price))
		// the sell column holds "-", so the price sits in the buy column
		assert.Equal(t, SideBuy, trades[0].Side)
	})

	t.Run("sell column filled", func(t *testing.T) {
		sell := []string{"ACME (DE000ACME001)", "14:05:00", "1.234", "-", "10,50"}
		result, err := newTestDriver().Parse(ctx, "de.pdf", NewMemoryDocument(sell))

		require.NoError(t, err)
		trades := result.Ledger.Trades("ACME (DE000ACME001)")
		require.Len(t, trades, 1)
		assert.Equal(t, SideSell, trades[0].Side)
		assert.Equal(t, int64(1234), trades[0].Volume)
		assert.True(t, decimal.RequireFromString("10.50").Equal(trades[0].Price))
	})

	t.Run("padded sell marker in the buy column", func(t *testing.T) {
		padded := []string{"ACME (DE000ACME001)", "14:05:00", "1.234", " -", "10,50"}
		result, err := newTestDriver().Parse(ctx, "de.pdf", NewMemoryDocument(padded))

		require.NoError(t, err)
		trades := result.Ledger.Trades("ACME (DE000ACME001)")
		require.Len(t, trades, 1)
		assert.Equal(t, SideSell, trades[0].Side)
		assert.True(t, decimal.RequireFromString("10.50").Equal(trades[0].Price))
	})

	t.Run("period decimal rejects the same row", func(t *testing.T) {
		result, err := newTestDriver(WithLocaleStrategy(LocaleStrategyFourthFromLast)).
			Parse(ctx, "us.pdf", NewMemoryDocument(row))

		require.Error(t, err)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrUnparsableToken)
	})
}

func TestDriver_ParseErrors(t *testing.T) {
	t.Run("fatal token error names document, page and token", func(t *testing.T) {
		doc := NewMemoryDocument(
			[]string{"ACME (DE000ACME001)", "09:00:00", "1", "5,000", "-"},
			[]string{"Kauf", "10:00:00", "x", "5,000", "-"},
		)

		result, err := newTestDriver().Parse(context.Background(), "bad.pdf", doc)

		require.Error(t, err)
		assert.Nil(t, result)
		var docErr *DocumentError
		require.ErrorAs(t, err, &docErr)
		assert.Equal(t, "bad.pdf", docErr.Document)
		assert.Equal(t, 1, docErr.Page)
		assert.Equal(t, 2, docErr.Token)
		assert.Equal(t, "x", docErr.Raw)
		assert.ErrorIs(t, err, ErrUnparsableToken)
		assert.Contains(t, err.Error(), "page 2")
	})

	t.Run("truncated row", func(t *testing.T) {
		doc := NewMemoryDocument([]string{"ACME (DE000ACME001)", "09:00:00", "1", "5,000"})

		_, err := newTestDriver().Parse(context.Background(), "short.pdf", doc)

		assert.ErrorIs(t, err, ErrTruncatedRow)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := newTestDriver().Parse(ctx, "cancelled.pdf", NewMemoryDocument([]string{"a"}))

		assert.ErrorIs(t, err, context.Canceled)
	})
}
