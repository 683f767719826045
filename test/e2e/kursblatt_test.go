// Package e2etest provides end-to-end tests for the report conversion and loading flows.
package e2etest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/lsx-collector/internal/domain/ingest/artifact"
	"github.com/FACorreiaa/lsx-collector/internal/domain/ingest/repository"
	"github.com/FACorreiaa/lsx-collector/internal/domain/ingest/service"
	"github.com/FACorreiaa/lsx-collector/internal/domain/kursblatt"
	"github.com/FACorreiaa/lsx-collector/pkg/db"
	"github.com/FACorreiaa/lsx-collector/pkg/logger"
	"github.com/FACorreiaa/lsx-collector/pkg/metrics"
	"github.com/FACorreiaa/lsx-collector/pkg/storage"
)

const testDataDir = "../../internal/data/kursblatt"

// sampleReport returns the path of a real Kursblatt PDF, from LSX_SAMPLE_REPORT or the test data
// directory, and skips the test when there is none.
func sampleReport(t *testing.T) string {
	t.Helper()
	path := os.Getenv("LSX_SAMPLE_REPORT")
	if path == "" {
		path = filepath.Join(testDataDir, "kursblatt.pdf")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skipf("Test data file not found: %s (add a Kursblatt PDF to run this test)", path)
	}
	return path
}

func newStore(t *testing.T, report string) (storage.Storage, string) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f, err := os.Open(report)
	require.NoError(t, err)
	defer f.Close()

	name := filepath.Base(report)
	_, err = store.Put(context.Background(), name, f, storage.Meta{ContentType: "application/pdf"})
	require.NoError(t, err)
	return store, name
}

// TestKursblatt_PDFToLedger converts a real report and checks the ledger is well formed.
func TestKursblatt_PDFToLedger(t *testing.T) {
	report := sampleReport(t)
	store, name := newStore(t, report)
	ctx := context.Background()

	svc := service.NewIngestService(store, nil, metrics.New(), logger.Discard(), service.Config{
		Workers:    2,
		Location:   time.UTC,
		ExportXLSX: true,
	})

	results, err := svc.ConvertReports(ctx, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, metrics.StatusConverted, results[0].Status)
	t.Logf("%s: %s", name, results[0].Stats)

	f, _, err := store.Open(ctx, artifact.JSONName(name))
	require.NoError(t, err)
	defer f.Close()

	ledger, err := artifact.ReadJSON(f, time.UTC)
	require.NoError(t, err)
	require.Positive(t, ledger.TradeCount(), "Expected trades in the report")
	assert.Equal(t, results[0].Stats.Trades, ledger.TradeCount())

	for _, share := range ledger.Shares() {
		_, isin := kursblatt.ParseShareIdentity(share)
		assert.Len(t, isin, 12, "Expected an ISIN in %q", share)

		for _, rec := range ledger.Trades(share) {
			assert.True(t, rec.Price.IsPositive(), "Expected a positive price in %q", share)
			assert.Positive(t, rec.Volume, "Expected a positive volume in %q", share)
			assert.False(t, rec.Timestamp.IsZero())
		}
	}

	exists, err := store.Exists(ctx, artifact.XLSXName(name))
	require.NoError(t, err)
	assert.True(t, exists, "Expected the spreadsheet export")

	t.Run("second run skips", func(t *testing.T) {
		again, err := svc.ConvertReports(ctx, nil)
		require.NoError(t, err)
		require.Len(t, again, 1)
		assert.Equal(t, metrics.StatusSkipped, again[0].Status)
	})
}

// TestIntegration_ConvertAndLoad runs the full flow against PostgreSQL named by E2E_DATABASE_URL.
func TestIntegration_ConvertAndLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dsn := os.Getenv("E2E_DATABASE_URL")
	if dsn == "" {
		t.Skip("E2E_DATABASE_URL not set")
	}
	report := sampleReport(t)
	store, _ := newStore(t, report)
	ctx := context.Background()
	log := logger.Discard()

	database, err := db.New(db.Config{DSN: dsn, Schema: "lsx_e2e"}, log)
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, database.RunMigrations())

	repo := repository.NewPostgresShareRepository(database.Pool, repository.DefaultChunkSize)
	svc := service.NewIngestService(store, repo, metrics.New(), log, service.Config{Workers: 2, Location: time.UTC})

	converted, loaded, err := svc.ConvertAndLoad(ctx)
	require.NoError(t, err)
	require.NoError(t, service.Failed(converted))
	require.Len(t, loaded, 1)
	require.NoError(t, loaded[0].Err)
	assert.Positive(t, loaded[0].Rows)

	// reloading replaces rows in place
	again := svc.LoadLedger(ctx, converted[0].Output, mustLedger(t, store, converted[0].Output))
	require.NoError(t, again.Err)

	shares, err := repo.ListShares(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, shares)

	var total int64
	for _, s := range shares {
		n, err := repo.CountTransactions(ctx, s.ID)
		require.NoError(t, err)
		total += n
	}
	assert.GreaterOrEqual(t, total, loaded[0].Rows)
}

func mustLedger(t *testing.T, store storage.Storage, name string) *kursblatt.ShareLedger {
	t.Helper()
	f, _, err := store.Open(context.Background(), name)
	require.NoError(t, err)
	defer f.Close()
	ledger, err := artifact.ReadJSON(f, time.UTC)
	require.NoError(t, err)
	return ledger
}
