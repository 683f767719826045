// Command collector downloads LS-X Kursblatt reports and trade feeds, converts the reports into
// share ledgers and loads them into PostgreSQL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/lsx-collector/pkg/config"
)

var version = "dev"

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "collector",
		Short:         "Collect LS-X trade reports",
		Long:          `Download LS-X Kursblatt reports and trade feeds, convert reports to share ledgers and load them into PostgreSQL.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides COLLECTOR_CONFIG)")

	root.AddCommand(
		newPDF2JSONCmd(),
		newJSON2DBCmd(),
		newMigrateCmd(),
		newDownloadCmd(),
		newLiveCmd(),
		newSharesCmd(),
		newScheduleCmd(),
	)
	return root
}

// setup loads the configuration and builds the dependencies for a command.
func setup(cmd *cobra.Command, withDB bool) (*Dependencies, error) {
	if configPath != "" {
		if err := os.Setenv("COLLECTOR_CONFIG", configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return InitDependencies(cmd.Context(), cfg, withDB)
}
