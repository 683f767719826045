package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/lsx-collector/internal/domain/ingest/service"
	"github.com/FACorreiaa/lsx-collector/internal/domain/lsx"
	"github.com/FACorreiaa/lsx-collector/pkg/cron"
)

func newPDF2JSONCmd() *cobra.Command {
	var load bool
	cmd := &cobra.Command{
		Use:   "pdf2json [report.pdf...]",
		Short: "Convert Kursblatt PDFs to share ledgers",
		Long:  `Convert the named stored Kursblatt PDFs, or every stored PDF without a ledger, into JSON share ledgers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := setup(cmd, load)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			results, err := deps.IngestService.ConvertReports(cmd.Context(), args)
			if err != nil {
				return err
			}
			printConvertResults(cmd.OutOrStdout(), results)
			if err := service.Failed(results); err != nil {
				return err
			}
			if !load {
				return nil
			}

			var outputs []string
			for _, r := range results {
				if r.Output != "" && r.Err == nil {
					outputs = append(outputs, r.Output)
				}
			}
			loaded, err := deps.IngestService.LoadLedgers(cmd.Context(), outputs)
			if err != nil {
				return err
			}
			return printLoadResults(cmd.OutOrStdout(), loaded)
		},
	}
	cmd.Flags().BoolVar(&load, "load", false, "also load the ledgers into the database")
	return cmd
}

func newJSON2DBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "json2db [ledger.json...]",
		Short: "Load share ledgers into the database",
		Long:  `Load the named stored ledgers, or every stored ledger, into PostgreSQL. Existing trades are updated in place.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := setup(cmd, true)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			results, err := deps.IngestService.LoadLedgers(cmd.Context(), args)
			if err != nil {
				return err
			}
			return printLoadResults(cmd.OutOrStdout(), results)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := setup(cmd, true)
			if err != nil {
				return err
			}
			deps.Cleanup()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := setup(cmd, false)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			database, err := deps.connect()
			if err != nil {
				return err
			}
			deps.DB = database
			return database.RollbackMigration(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := setup(cmd, false)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			database, err := deps.connect()
			if err != nil {
				return err
			}
			deps.DB = database

			status, err := database.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tSOURCE")
			for _, s := range status {
				applied := ""
				if !s.AppliedAt.IsZero() {
					applied = s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
			}
			return w.Flush()
		},
	})
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var ingest bool
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download yesterday's trade feed and new Kursblatt reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := setup(cmd, ingest)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			if ingest {
				return deps.SyncJob.Run(cmd.Context())
			}
			return errors.Join(
				deps.SyncJob.DownloadYesterdayTrades(cmd.Context()),
				deps.SyncJob.DownloadReports(cmd.Context()),
			)
		},
	}
	cmd.Flags().BoolVar(&ingest, "ingest", false, "convert and load the downloaded reports")
	return cmd
}

// liveRow is the CSV output shape of the live command.
type liveRow struct {
	ISIN        string `csv:"isin" json:"isin"`
	DisplayName string `csv:"displayName" json:"display_name"`
	Time        string `csv:"time" json:"time"`
	Price       string `csv:"price" json:"price"`
	Size        int64  `csv:"size" json:"size"`
}

func newLiveCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Print the recent trades from the live feed",
		Long:  `Print today's trades from the live feed, preceded by yesterday's when yesterday was a trading day.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("unknown format %q", format)
			}
			deps, err := setup(cmd, false)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			trades, err := deps.Client.RecentTrades(cmd.Context(), deps.Calendar, time.Now())
			if err != nil {
				return err
			}

			rows := make([]liveRow, 0, len(trades))
			for _, t := range trades {
				rows = append(rows, liveRow{
					ISIN:        t.ISIN,
					DisplayName: t.DisplayName,
					Time:        t.Timestamp.Format(time.RFC3339Nano),
					Price:       t.Price.String(),
					Size:        t.Volume,
				})
			}
			deps.Logger.Info("live trades fetched", slog.Int("trades", len(rows)))

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			return gocsv.Marshal(rows, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "output format: csv or json")
	return cmd
}

func newSharesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "shares [query]",
		Short: "List stored shares or search them by name or ISIN",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := setup(cmd, true)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tISIN\tNAME\tTRADES")

			if len(args) == 0 {
				shares, err := deps.ShareRepo.ListShares(cmd.Context())
				if err != nil {
					return err
				}
				for _, s := range shares {
					n, err := deps.ShareRepo.CountTransactions(cmd.Context(), s.ID)
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", s.ID, s.ISIN, s.FullName, n)
				}
				return w.Flush()
			}

			matches, err := deps.ShareRepo.SearchShares(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, m := range matches {
				n, err := deps.ShareRepo.CountTransactions(cmd.Context(), m.Share.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", m.Share.ID, m.Share.ISIN, m.Share.FullName, n)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of search results")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the sync job on its cron schedule",
		Long:  `Run the download, convert and load job on CRON_SYNC_SCHEDULE until interrupted, exposing metrics when enabled.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := setup(cmd, true)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			ctx := cmd.Context()
			cfg := deps.Config
			if !cfg.Schedule.Enabled {
				deps.Logger.Warn("scheduler disabled, nothing to do")
				return nil
			}

			scheduler := cron.NewScheduler(deps.Logger)
			if err := scheduler.Add(cfg.Schedule.SyncCron, deps.SyncJob); err != nil {
				return err
			}

			if cfg.Observability.MetricsEnabled {
				go func() {
					if err := deps.Metrics.Serve(ctx, cfg.Observability.MetricsPort, deps.Logger); err != nil {
						deps.Logger.Error("metrics server failed", slog.Any("error", err))
					}
				}()
			}

			scheduler.Start()
			if runNow {
				if err := scheduler.RunNow(lsx.SyncJobName); err != nil {
					return err
				}
			}

			<-ctx.Done()
			<-scheduler.Stop().Done()
			deps.Logger.Info("scheduler stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&runNow, "now", false, "run the sync job once at startup")
	return cmd
}

func printConvertResults(out io.Writer, results []service.ConvertResult) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPORT\tSTATUS\tOUTPUT\tDETAILS")
	for _, r := range results {
		details := r.Stats.String()
		if r.Err != nil {
			details = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Status, r.Output, details)
	}
	w.Flush()
}

func printLoadResults(out io.Writer, results []service.LoadResult) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LEDGER\tSHARES\tSKIPPED\tROWS\tERROR")

	var errs []error
	for _, r := range results {
		msg := ""
		if r.Err != nil {
			msg = r.Err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Err))
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", r.Name, r.Shares, r.SkippedShares, r.Rows, msg)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return errors.Join(errs...)
}
