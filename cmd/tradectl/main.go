package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/camuig/paper-trader/internal/app"
	"github.com/camuig/paper-trader/internal/config"
	"github.com/camuig/paper-trader/internal/logger"
)

// rootConfig carries the persistent flags shared by every subcommand.
type rootConfig struct {
	configPath string
	logLevel   string
}

func (rc *rootConfig) load() (*config.Config, error) {
	cfg, err := config.Load(rc.configPath)
	if err != nil {
		return nil, err
	}
	if rc.logLevel != "" {
		cfg.Logging.Level = rc.logLevel
	}
	return cfg, nil
}

// open wires the application for a one-shot command. The caller closes it.
// The price stream is never started here, so quotes come from REST.
func (rc *rootConfig) open(ctx context.Context) (*app.App, error) {
	cfg, err := rc.load()
	if err != nil {
		return nil, err
	}
	cfg.Price.Stream.Enabled = false
	return app.New(ctx, cfg, logger.New(cfg.Logging.Level))
}

func newRootCmd() *cobra.Command {
	rc := &rootConfig{}
	cmd := &cobra.Command{
		Use:           "tradectl",
		Short:         "Operate the paper-trading ledger from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&rc.configPath, "config", "config.yaml", "path to config file")
	cmd.PersistentFlags().StringVar(&rc.logLevel, "log-level", "warn", "override logging.level")

	cmd.AddCommand(
		newSyncCmd(rc),
		newPriceCmd(rc),
		newStrategiesCmd(rc),
		newTradeCmd(rc),
		newRepairCmd(rc),
	)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
