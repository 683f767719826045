package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/lsx-collector/internal/domain/ingest/artifact"
	"github.com/FACorreiaa/lsx-collector/internal/domain/ingest/repository"
	"github.com/FACorreiaa/lsx-collector/internal/domain/kursblatt"
	"github.com/FACorreiaa/lsx-collector/pkg/metrics"
)

// ErrNoRepository is returned by load operations on a service built without a repository.
var ErrNoRepository = errors.New("no share repository configured")

// LoadLedgers loads the named ledger files, or every stored ledger when names is empty, into
// the database. Files are loaded one after another; a failed file does not stop the others.
func (s *IngestService) LoadLedgers(ctx context.Context, names []string) ([]LoadResult, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}
	if len(names) == 0 {
		files, err := s.store.List(ctx, artifact.JSONExt)
		if err != nil {
			return nil, fmt.Errorf("failed to list ledgers: %w", err)
		}
		for _, f := range files {
			names = append(names, f.Name)
		}
	}

	results := make([]LoadResult, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := s.loadFile(ctx, name)
		if res.Err != nil {
			s.logger.Error("failed to load ledger", slog.String("ledger", name), slog.Any("error", res.Err))
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *IngestService) loadFile(ctx context.Context, name string) LoadResult {
	ctx, span := s.tracer.Start(ctx, "ingest.LoadLedger", trace.WithAttributes(attribute.String("ledger", name)))
	defer span.End()

	res := LoadResult{Name: name}

	f, _, err := s.store.Open(ctx, name)
	if err != nil {
		res.Err = fmt.Errorf("failed to open ledger: %w", err)
	} else {
		ledger, rerr := artifact.ReadJSON(f, s.cfg.Location)
		f.Close()
		if rerr != nil {
			res.Err = rerr
		} else {
			res = s.LoadLedger(ctx, name, ledger)
		}
	}

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		return res
	}
	span.SetAttributes(attribute.Int("shares", res.Shares), attribute.Int64("rows", res.Rows))
	return res
}

// LoadLedger writes one ledger. Every share is upserted by its identity and its trades get
// sequence numbers that count up from 0 within each timestamp, in ledger order. Trades filed
// under the empty identity have no share to belong to and are skipped.
func (s *IngestService) LoadLedger(ctx context.Context, name string, ledger *kursblatt.ShareLedger) LoadResult {
	res := LoadResult{Name: name}
	if s.repo == nil {
		res.Err = ErrNoRepository
		return res
	}

	txs := make([]repository.ShareTransaction, 0, ledger.TradeCount())
	for _, share := range ledger.Shares() {
		if share == "" {
			s.logger.Warn("skipping trades without share header",
				slog.String("ledger", name),
				slog.Int("trades", len(ledger.Trades(share))),
			)
			res.SkippedShares++
			continue
		}

		shareName, isin := kursblatt.ParseShareIdentity(share)
		id, err := s.repo.UpsertShare(ctx, share, shareName, isin)
		if err != nil {
			res.Err = err
			return res
		}
		res.Shares++
		txs = appendTransactions(txs, id, ledger.Trades(share))
	}

	n, err := s.repo.BulkUpsertTransactions(ctx, txs)
	res.Rows = n
	s.metrics.RowsUpserted.Add(float64(n))
	if err != nil {
		res.Err = err
		return res
	}

	s.metrics.Documents.WithLabelValues(metrics.StatusLoaded).Inc()
	s.logger.Info("ledger loaded",
		slog.String("ledger", name),
		slog.Int("shares", res.Shares),
		slog.Int64("rows", res.Rows),
	)
	return res
}

func appendTransactions(txs []repository.ShareTransaction, shareID int64, records []kursblatt.TradeRecord) []repository.ShareTransaction {
	seq := make(map[int64]int, len(records))
	for _, rec := range records {
		key := rec.Timestamp.Unix()
		txs = append(txs, repository.ShareTransaction{
			Timestamp: rec.Timestamp,
			ShareID:   shareID,
			Sequence:  seq[key],
			Volume:    rec.Volume,
			Price:     rec.Price,
			OrderType: rec.Side.Code(),
		})
		seq[key]++
	}
	return txs
}

// ConvertAndLoad converts every pending report and loads the ledgers it produced.
func (s *IngestService) ConvertAndLoad(ctx context.Context) ([]ConvertResult, []LoadResult, error) {
	converted, err := s.ConvertReports(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	var outputs []string
	for _, r := range converted {
		if r.Status == metrics.StatusConverted {
			outputs = append(outputs, r.Output)
		}
	}
	if len(outputs) == 0 || s.repo == nil {
		return converted, nil, nil
	}

	loaded, err := s.LoadLedgers(ctx, outputs)
	return converted, loaded, err
}
