package kursblatt

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSameLedger(t *testing.T, want, got *ShareLedger) {
	t.Helper()
	require.Equal(t, want.Shares(), got.Shares())
	for _, share := range want.Shares() {
		w, g := want.Trades(share), got.Trades(share)
		require.Len(t, g, len(w), share)
		for i := range w {
			assert.True(t, w[i].Timestamp.Equal(g[i].Timestamp), "%s[%d] timestamp", share, i)
			assert.Equal(t, w[i].Volume, g[i].Volume, "%s[%d] volume", share, i)
			assert.True(t, w[i].Price.Equal(g[i].Price), "%s[%d] price %s != %s", share, i, w[i].Price, g[i].Price)
			assert.Equal(t, w[i].Side, g[i].Side, "%s[%d] side", share, i)
		}
	}
}

func TestShareLedger_MarshalJSON(t *testing.T) {
	ledger := NewShareLedger()
	ledger.Append("ZETA (DE000ZETA0001)", TradeRecord{
		Timestamp: time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC),
		Volume:    100,
		Price:     decimal.RequireFromString("5.00"),
		Side:      SideBuy,
	})
	ledger.Append("ACME (DE000ACME001)", TradeRecord{
		Timestamp: time.Date(2021, 3, 1, 9, 5, 30, 0, time.UTC),
		Volume:    1234,
		Price:     decimal.RequireFromString("10.5"),
		Side:      SideSell,
	})

	data, err := json.Marshal(ledger)

	require.NoError(t, err)
	assert.JSONEq(t, `{
		"ZETA (DE000ZETA0001)": [["2021-03-01T09:00:00", 100, 5, 1]],
		"ACME (DE000ACME001)": [["2021-03-01T09:05:30", 1234, 10.5, 0]]
	}`, string(data))
	// object keys keep first-seen order
	assert.Less(t, strings.Index(string(data), "ZETA"), strings.Index(string(data), "ACME"))
}

func TestShareLedger_RoundTrip(t *testing.T) {
	t.Run("generated ledger", func(t *testing.T) {
		gen := NewTestDataGeneratorWithSeed(42)
		ledger := gen.Ledger(time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), 25, 40)

		data, err := json.Marshal(ledger)
		require.NoError(t, err)

		decoded, err := DecodeLedger(bytes.NewReader(data), time.UTC)
		require.NoError(t, err)

		assertSameLedger(t, ledger, decoded)
	})

	t.Run("share without trades survives", func(t *testing.T) {
		decoded, err := DecodeLedger(strings.NewReader(`{"EMPTY (DE0000000001)": []}`), time.UTC)
		require.NoError(t, err)

		assert.Equal(t, []string{"EMPTY (DE0000000001)"}, decoded.Shares())
		data, err := json.Marshal(decoded)
		require.NoError(t, err)
		assert.JSONEq(t, `{"EMPTY (DE0000000001)": []}`, string(data))
	})

	t.Run("empty ledger", func(t *testing.T) {
		data, err := json.Marshal(NewShareLedger())
		require.NoError(t, err)
		assert.Equal(t, "{}", string(data))

		decoded, err := DecodeLedger(bytes.NewReader(data), time.UTC)
		require.NoError(t, err)
		assert.Zero(t, decoded.Len())
	})
}

func TestDecodeLedger_Location(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}

	ledger, err := DecodeLedger(strings.NewReader(`{"A (DE000AAAAAA1)": [["2021-03-01T09:00:00", 1, 2.5, 1]]}`), berlin)

	require.NoError(t, err)
	trades := ledger.Trades("A (DE000AAAAAA1)")
	require.Len(t, trades, 1)
	assert.Equal(t, time.Date(2021, 3, 1, 9, 0, 0, 0, berlin), trades[0].Timestamp)
}

func TestShareLedger_RoundTripInLocation(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	ledger := NewShareLedger()
	// the interchange form keeps the Berlin wall clock, not the UTC instant
	ledger.Append("A (DE000AAAAAA1)", TradeRecord{
		Timestamp: time.Date(2021, 3, 27, 1, 30, 0, 0, berlin),
		Volume:    1,
		Price:     decimal.RequireFromString("2.5"),
		Side:      SideBuy,
	})

	data, err := json.Marshal(ledger)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2021-03-27T01:30:00")

	decoded, err := DecodeLedger(bytes.NewReader(data), berlin)
	require.NoError(t, err)
	assertSameLedger(t, ledger, decoded)

	inUTC, err := DecodeLedger(bytes.NewReader(data), time.UTC)
	require.NoError(t, err)
	assert.False(t, inUTC.Trades("A (DE000AAAAAA1)")[0].Timestamp.Equal(ledger.Trades("A (DE000AAAAAA1)")[0].Timestamp))
}

func TestShareLedger_MarshalJSONIdentityEncoding(t *testing.T) {
	header := func(name string) []string {
		return []string{"Datum: 01.03.2021", "DE0008430026", name, "Freiverkehr", "09:00:00", "1", "5,00", "-"}
	}

	t.Run("decoded umlauts round trip", func(t *testing.T) {
		result, err := newTestDriver().Parse(context.Background(), "mr.pdf", NewMemoryDocument(header("MÜNCHENER RÜCK")))
		require.NoError(t, err)
		require.Equal(t, []string{"MÜNCHENER RÜCK (DE0008430026)"}, result.Ledger.Shares())

		data, err := json.Marshal(result.Ledger)
		require.NoError(t, err)
		decoded, err := DecodeLedger(bytes.NewReader(data), time.UTC)
		require.NoError(t, err)
		assertSameLedger(t, result.Ledger, decoded)
	})

	t.Run("raw Latin-1 bytes are rejected", func(t *testing.T) {
		result, err := newTestDriver().Parse(context.Background(), "mr.pdf", NewMemoryDocument(header("M\xdcNCHENER R\xdcCK")))
		require.NoError(t, err)

		_, err = result.Ledger.MarshalJSON()
		assert.ErrorIs(t, err, ErrInvalidIdentity)
		_, err = json.Marshal(result.Ledger)
		assert.Error(t, err)
	})
}

func TestDecodeLedger_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not an object", `[]`},
		{"truncated", `{"A": [["2021-03-01T09:00:00", 1, 2.5, 1]]`},
		{"wrong arity", `{"A": [["2021-03-01T09:00:00", 1, 2.5]]}`},
		{"bad timestamp", `{"A": [["01.03.2021 09:00", 1, 2.5, 1]]}`},
		{"fractional volume", `{"A": [["2021-03-01T09:00:00", 1.5, 2.5, 1]]}`},
		{"string price", `{"A": [["2021-03-01T09:00:00", 1, "x", 1]]}`},
		{"unknown side", `{"A": [["2021-03-01T09:00:00", 1, 2.5, 2]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeLedger(strings.NewReader(tt.input), nil)
			assert.Error(t, err)
		})
	}
}

func TestGeneratedReport_ParsesBack(t *testing.T) {
	gen := NewTestDataGeneratorWithSeed(7)
	day := time.Date(2022, 11, 4, 0, 0, 0, 0, time.UTC)
	ledger := gen.Ledger(day, 12, 30)

	pages := gen.Paginate(gen.ReportTokens(ledger, day), 50)
	require.Greater(t, len(pages), 1)

	result, err := newTestDriver().Parse(context.Background(), "generated.pdf", NewMemoryDocument(pages...))

	require.NoError(t, err)
	assert.Equal(t, LocaleCommaDecimal, result.Stats.Locale)
	assertSameLedger(t, ledger, result.Ledger)
}

func TestShareIdentity(t *testing.T) {
	assert.Equal(t, "ACME (DE000ACME001)", ShareIdentity(" ACME ", " DE000ACME001"))
	assert.Equal(t, "ACME", ShareIdentity("ACME", ""))

	name, isin := ParseShareIdentity("ACME CORP. (DE000ACME001) ")
	assert.Equal(t, "ACME CORP.", name)
	assert.Equal(t, "DE000ACME001", isin)

	name, isin = ParseShareIdentity("Beta AG")
	assert.Equal(t, "Beta AG", name)
	assert.Empty(t, isin)
}
