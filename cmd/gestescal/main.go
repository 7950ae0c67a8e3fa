package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gestescal/internal/capture"
	"gestescal/internal/config"
	appLog "gestescal/internal/log"
	"gestescal/internal/portal"
	"gestescal/internal/refresh"
)

const version = "0.3.0"

var (
	flagConfigPath string
	flagDebug      bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gestescal",
		Short: "Publish the GESTES schedule as CSV and iCalendar feeds",
		Long: `gestescal logs into the GESTES portal, scrapes the embedded calendar,
and republishes it as a CSV table plus separate course and exam iCalendar
feeds, refreshed on a schedule.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "config.yaml", "Path to config file")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd(), newSyncCmd(), newHashPasswordCmd())
	return cmd
}

// loadConfig loads, validates and applies the log level.
func loadConfig() (*config.Config, error) {
	conf, err := config.Load(flagConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	level := appLog.ParseLevel(conf.LogLevel)
	if flagDebug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)
	return conf, nil
}

// newFetcher picks the fetch backend for the configured mode.
func newFetcher(conf *config.Config) refresh.Fetcher {
	if conf.Portal.Mode == config.ModeBrowser {
		return capture.NewBrowserFetcher(conf.Portal)
	}
	return portal.NewClient(conf.Portal)
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
