// Package service converts stored Kursblatt reports into ledgers and loads them into the database.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/lsx-collector/internal/domain/ingest/artifact"
	"github.com/FACorreiaa/lsx-collector/internal/domain/ingest/repository"
	"github.com/FACorreiaa/lsx-collector/internal/domain/kursblatt"
	"github.com/FACorreiaa/lsx-collector/internal/domain/kursblatt/pdfdoc"
	"github.com/FACorreiaa/lsx-collector/pkg/metrics"
	"github.com/FACorreiaa/lsx-collector/pkg/storage"
)

const tracerName = "github.com/FACorreiaa/lsx-collector/internal/domain/ingest/service"

// DocumentOpener turns stored report content into a Document. The returned closer is called
// once parsing is done.
type DocumentOpener func(r io.ReaderAt, size int64) (kursblatt.Document, io.Closer, error)

// OpenPDF opens PDF content with the pdfdoc extractor.
func OpenPDF(r io.ReaderAt, size int64) (kursblatt.Document, io.Closer, error) {
	doc, err := pdfdoc.New(r, size)
	if err != nil {
		return nil, nil, err
	}
	return doc, doc, nil
}

// Config holds the ingestion settings.
type Config struct {
	Workers            int
	LocaleStrategy     kursblatt.LocaleStrategy
	Location           *time.Location
	ProgressCheckpoint int
	ExportXLSX         bool
}

// ConvertResult is the outcome of converting one report.
type ConvertResult struct {
	Name   string
	Output string
	Status string // metrics.StatusConverted, StatusSkipped or StatusFailed
	Stats  kursblatt.Stats
	Err    error
}

// LoadResult is the outcome of loading one ledger file.
type LoadResult struct {
	Name          string
	Shares        int
	SkippedShares int
	Rows          int64
	Err           error
}

// IngestService orchestrates report conversion and ledger loading.
type IngestService struct {
	store   storage.Storage
	repo    repository.ShareRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
	open    DocumentOpener
	tracer  trace.Tracer
}

// Option configures an IngestService.
type Option func(*IngestService)

// WithDocumentOpener replaces the PDF opener.
func WithDocumentOpener(open DocumentOpener) Option {
	return func(s *IngestService) { s.open = open }
}

// NewIngestService creates a new ingestion service. repo may be nil when only conversion is used.
func NewIngestService(store storage.Storage, repo repository.ShareRepository, m *metrics.Metrics, logger *slog.Logger, cfg Config, opts ...Option) *IngestService {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if m == nil {
		m = metrics.New()
	}

	s := &IngestService{
		store:   store,
		repo:    repo,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
		open:    OpenPDF,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConvertReports converts the named reports, or every stored PDF when names is empty, into
// ledger files. Reports whose ledger already exists are skipped. Results are in input order;
// a failed report does not stop the others.
func (s *IngestService) ConvertReports(ctx context.Context, names []string) ([]ConvertResult, error) {
	if len(names) == 0 {
		files, err := s.store.List(ctx, artifact.PDFExt)
		if err != nil {
			return nil, fmt.Errorf("failed to list reports: %w", err)
		}
		for _, f := range files {
			names = append(names, f.Name)
		}
	}

	results := make([]ConvertResult, len(names))
	jobs := make(chan int)
	workers := min(s.cfg.Workers, max(len(names), 1))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			driver := s.newDriver()
			for idx := range jobs {
				results[idx] = s.convertSafe(ctx, driver, names[idx])
			}
		}()
	}

	for idx := range names {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	s.logConvertSummary(results)
	return results, nil
}

func (s *IngestService) newDriver() *kursblatt.Driver {
	return kursblatt.NewDriver(
		kursblatt.WithLocaleStrategy(s.cfg.LocaleStrategy),
		kursblatt.WithLocation(s.cfg.Location),
		kursblatt.WithLogger(s.logger),
		kursblatt.WithProgress(s.cfg.ProgressCheckpoint, func(p kursblatt.Progress) {
			s.logger.Info("document progress",
				slog.String("document", p.Document),
				slog.Int("pages_done", p.PagesDone),
				slog.Int("pages", p.PageCount),
				slog.Duration("remaining", p.Remaining),
			)
		}),
	)
}

// convertSafe isolates a panicking document from the rest of the batch.
func (s *IngestService) convertSafe(ctx context.Context, driver *kursblatt.Driver, name string) (res ConvertResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while converting report",
				slog.String("document", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			s.metrics.Documents.WithLabelValues(metrics.StatusFailed).Inc()
			res = ConvertResult{Name: name, Status: metrics.StatusFailed, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return s.convert(ctx, driver, name)
}

func (s *IngestService) convert(ctx context.Context, driver *kursblatt.Driver, name string) ConvertResult {
	ctx, span := s.tracer.Start(ctx, "ingest.ConvertReport", trace.WithAttributes(attribute.String("document", name)))
	defer span.End()

	res := ConvertResult{Name: name, Output: artifact.JSONName(name)}
	fail := func(err error) ConvertResult {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.Documents.WithLabelValues(metrics.StatusFailed).Inc()
		s.logger.Error("failed to convert report", slog.String("document", name), slog.Any("error", err))
		res.Status = metrics.StatusFailed
		res.Err = err
		return res
	}

	exists, err := s.store.Exists(ctx, res.Output)
	if err != nil {
		return fail(err)
	}
	if exists {
		s.logger.Debug("ledger exists, skipping report", slog.String("document", name))
		s.metrics.Documents.WithLabelValues(metrics.StatusSkipped).Inc()
		res.Status = metrics.StatusSkipped
		return res
	}

	f, info, err := s.store.Open(ctx, name)
	if err != nil {
		return fail(fmt.Errorf("failed to open report: %w", err))
	}
	defer f.Close()

	doc, closer, err := s.open(f, info.Size)
	if err != nil {
		return fail(&kursblatt.DocumentError{Document: name, Page: -1, Token: -1, Err: err})
	}
	defer closer.Close()

	parsed, err := driver.Parse(ctx, name, doc)
	if err != nil {
		return fail(err)
	}
	res.Stats = parsed.Stats
	span.SetAttributes(
		attribute.Int("pages", parsed.Stats.Pages),
		attribute.Int("trades", parsed.Stats.Trades),
		attribute.String("locale", parsed.Stats.Locale.String()),
	)

	var buf bytes.Buffer
	if err := artifact.WriteJSON(&buf, parsed.Ledger); err != nil {
		return fail(err)
	}
	meta := storage.Meta{ContentType: "application/json", SourceURL: info.SourceURL}
	if _, err := s.store.Put(ctx, res.Output, &buf, meta); err != nil {
		return fail(fmt.Errorf("failed to store ledger: %w", err))
	}

	if s.cfg.ExportXLSX {
		buf.Reset()
		if err := artifact.WriteXLSX(&buf, parsed.Ledger); err != nil {
			return fail(err)
		}
		meta.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		if _, err := s.store.Put(ctx, artifact.XLSXName(name), &buf, meta); err != nil {
			return fail(fmt.Errorf("failed to store spreadsheet: %w", err))
		}
	}

	s.metrics.Documents.WithLabelValues(metrics.StatusConverted).Inc()
	s.metrics.PagesSkipped.Add(float64(parsed.Stats.SkippedPages))
	s.metrics.MalformedRows.Add(float64(parsed.Stats.MalformedRows))
	s.metrics.TradesParsed.Add(float64(parsed.Stats.Trades))
	s.metrics.ParseDuration.Observe(parsed.Stats.Duration.Seconds())

	s.logger.Info("report converted",
		slog.String("document", name),
		slog.String("output", res.Output),
		slog.String("stats", parsed.Stats.String()),
	)
	res.Status = metrics.StatusConverted
	return res
}

func (s *IngestService) logConvertSummary(results []ConvertResult) {
	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	s.logger.Info("report conversion finished",
		slog.Int("documents", len(results)),
		slog.Int("converted", counts[metrics.StatusConverted]),
		slog.Int("skipped", counts[metrics.StatusSkipped]),
		slog.Int("failed", counts[metrics.StatusFailed]),
	)
}

// Failed returns the errors of failed results joined, or nil.
func Failed(results []ConvertResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Err))
		}
	}
	return errors.Join(errs...)
}
