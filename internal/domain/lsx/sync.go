package lsx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/lsx-collector/internal/domain/ingest/service"
	"github.com/FACorreiaa/lsx-collector/pkg/metrics"
)

// SyncJobName identifies the sync job in the scheduler.
const SyncJobName = "lsx-sync"

// Ingester turns downloaded reports into stored trades.
type Ingester interface {
	ConvertAndLoad(ctx context.Context) ([]service.ConvertResult, []service.LoadResult, error)
}

// SyncJob downloads yesterday's trade feed and all published reports, then ingests them.
type SyncJob struct {
	client     *Client
	calendar   *Calendar
	crawler    *ReportCrawler
	downloader *Downloader
	ingester   Ingester
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewSyncJob wires the job. ingester may be nil to only download.
func NewSyncJob(client *Client, calendar *Calendar, crawler *ReportCrawler, downloader *Downloader,
	ingester Ingester, m *metrics.Metrics, logger *slog.Logger) *SyncJob {
	return &SyncJob{
		client:     client,
		calendar:   calendar,
		crawler:    crawler,
		downloader: downloader,
		ingester:   ingester,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Name implements cron.Job.
func (j *SyncJob) Name() string {
	return SyncJobName
}

// TradesFileName is the name yesterday's feed is stored under.
func TradesFileName(day time.Time) string {
	return "lsx_trades_" + day.Format("20060102") + ".csv"
}

// Run performs one sync. Individual download failures are logged and returned together after
// every step has run.
func (j *SyncJob) Run(ctx context.Context) error {
	var errs []error

	if err := j.DownloadYesterdayTrades(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := j.DownloadReports(ctx); err != nil {
		errs = append(errs, err)
	}

	if j.ingester != nil {
		converted, loaded, err := j.ingester.ConvertAndLoad(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to ingest reports: %w", err))
		}
		if err := service.Failed(converted); err != nil {
			errs = append(errs, err)
		}
		for _, r := range loaded {
			if r.Err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Err))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	j.metrics.LastSyncSuccess.SetToCurrentTime()
	return nil
}

// DownloadYesterdayTrades stores yesterday's trade feed when yesterday was a trading day.
func (j *SyncJob) DownloadYesterdayTrades(ctx context.Context) error {
	yesterday := PreviousNoon(j.now().In(j.calendar.Location()))
	if !j.calendar.InTradingHours(ctx, yesterday) {
		j.logger.Info("yesterday was not a trading day", slog.String("date", yesterday.Format(time.DateOnly)))
		return nil
	}

	_, err := j.downloader.Download(ctx, KindTrades, j.client.FeedURL(Yesterday), TradesFileName(yesterday))
	if err != nil {
		j.logger.Error("failed to download trade feed", slog.Any("error", err))
		return fmt.Errorf("failed to download trade feed: %w", err)
	}
	return nil
}

// DownloadReports stores every published report that is not stored yet.
func (j *SyncJob) DownloadReports(ctx context.Context) error {
	j.logger.Info("stock market report sync started")

	links, err := j.crawler.Links(ctx)
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	var errs []error
	downloaded := 0
	for _, link := range links {
		ok, err := j.downloader.Download(ctx, KindReport, link.URL, link.Name)
		if err != nil {
			j.logger.Error("failed to download report", slog.String("url", link.URL), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		if ok {
			downloaded++
		}
	}

	j.logger.Info("stock market report sync done",
		slog.Int("links", len(links)),
		slog.Int("downloaded", downloaded),
		slog.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}
