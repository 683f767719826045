package kursblatt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// DefaultProgressCheckpoint is the page index after which the remaining time is estimated.
const DefaultProgressCheckpoint = 10

// Progress is the remaining-time estimate reported once per document.
type Progress struct {
	Document  string
	PagesDone int
	PageCount int
	Elapsed   time.Duration
	Remaining time.Duration
}

// ProgressFunc receives progress estimates.
type ProgressFunc func(Progress)

// Stats describes one parsed document.
type Stats struct {
	Pages         int
	SkippedPages  int
	MalformedRows int
	Trades        int
	Locale        Locale
	Duration      time.Duration
}

// Result is the outcome of a successful parse. The caller owns the ledger.
type Result struct {
	Ledger *ShareLedger
	Stats  Stats
}

// Driver parses whole documents. A Driver holds no per-document state and can parse documents
// one after another; use one Driver per goroutine.
type Driver struct {
	matchers   *Matchers
	strategy   LocaleStrategy
	loc        *time.Location
	now        func() time.Time
	logger     *slog.Logger
	checkpoint int
	progress   ProgressFunc
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithMatchers shares compiled matchers with the driver.
func WithMatchers(m *Matchers) DriverOption {
	return func(d *Driver) { d.matchers = m }
}

// WithLocaleStrategy selects how the number locale is detected.
func WithLocaleStrategy(s LocaleStrategy) DriverOption {
	return func(d *Driver) { d.strategy = s }
}

// WithLocation sets the location of trade timestamps.
func WithLocation(loc *time.Location) DriverOption {
	return func(d *Driver) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// WithClock sets the clock that provides the default base date.
func WithClock(now func() time.Time) DriverOption {
	return func(d *Driver) { d.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithProgress sets the progress checkpoint page index and callback.
func WithProgress(checkpoint int, fn ProgressFunc) DriverOption {
	return func(d *Driver) {
		d.checkpoint = checkpoint
		d.progress = fn
	}
}

// NewDriver creates a driver.
func NewDriver(opts ...DriverOption) *Driver {
	d := &Driver{
		strategy:   DefaultLocaleStrategy,
		loc:        time.UTC,
		now:        time.Now,
		logger:     slog.Default(),
		checkpoint: DefaultProgressCheckpoint,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.matchers == nil {
		d.matchers = NewMatchers()
	}
	return d
}

// Parse reads all pages of doc in order and returns the ledger of the document.
//
// Pages that cannot be extracted are logged and skipped. Any other failure aborts the document
// and is returned as a *DocumentError; no partial ledger is returned in that case.
func (d *Driver) Parse(ctx context.Context, name string, doc Document) (*Result, error) {
	start := time.Now()
	pageCount := doc.PageCount()
	if pageCount < 0 {
		return nil, &DocumentError{Document: name, Page: -1, Token: -1, Err: ErrUnreadableDocument}
	}

	scanner := NewScanner(d.matchers, d.strategy, d.loc)
	state := NewParserState(d.now().In(d.loc))
	ledger := NewShareLedger()
	stats := Stats{Pages: pageCount}
	emit := func(share string, rec TradeRecord) {
		ledger.Append(share, rec)
	}

	log := d.logger.With(slog.String("document", name))
	log.Debug("document processing started", slog.Int("pages", pageCount))

	for page := 0; page < pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, &DocumentError{Document: name, Page: page, Token: -1, Err: err}
		}

		seq, err := doc.PageTokens(ctx, page)
		if err != nil {
			log.Warn("skipping unreadable page",
				slog.Int("page", page+1),
				slog.Any("error", err),
			)
			stats.SkippedPages++
			continue
		}
		tokens := slices.Collect(seq)

		ps, err := scanner.ScanPage(&state, tokens, emit)
		if err != nil {
			return nil, pageError(name, page, err)
		}
		stats.Trades += ps.Trades
		stats.MalformedRows += ps.MalformedRows
		if ps.MalformedRows > 0 {
			log.Debug("skipped malformed rows", slog.Int("page", page+1), slog.Int("rows", ps.MalformedRows))
		}
		if ps.LocaleDetected {
			log.Info("detected number locale", slog.String("locale", state.Locale.String()), slog.Int("page", page+1))
		}

		if page == d.checkpoint && pageCount > page+1 {
			d.reportProgress(log, name, page+1, pageCount, time.Since(start))
		}
	}

	stats.Locale = state.Locale
	stats.Duration = time.Since(start)
	log.Debug("document processing finished",
		slog.Int("trades", stats.Trades),
		slog.Int("shares", ledger.Len()),
		slog.Duration("duration", stats.Duration),
	)

	return &Result{Ledger: ledger, Stats: stats}, nil
}

func (d *Driver) reportProgress(log *slog.Logger, name string, done, total int, elapsed time.Duration) {
	perPage := elapsed / time.Duration(done)
	p := Progress{
		Document:  name,
		PagesDone: done,
		PageCount: total,
		Elapsed:   elapsed,
		Remaining: perPage * time.Duration(total-done),
	}
	log.Info("estimated remaining processing time",
		slog.Duration("remaining", p.Remaining),
		slog.Duration("overall", p.Elapsed+p.Remaining),
	)
	if d.progress != nil {
		d.progress(p)
	}
}

func pageError(name string, page int, err error) error {
	de := &DocumentError{Document: name, Page: page, Token: -1, Err: err}
	var te *tokenError
	if errors.As(err, &te) {
		de.Token = te.token
		de.Raw = te.raw
		de.Err = te.err
	}
	return de
}

// String renders the stats for logs.
func (s Stats) String() string {
	return fmt.Sprintf("pages=%d skipped=%d trades=%d malformed=%d locale=%s",
		s.Pages, s.SkippedPages, s.Trades, s.MalformedRows, s.Locale)
}
