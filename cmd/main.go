package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Abraxas-365/remodel/pkg/config"
	"github.com/Abraxas-365/remodel/pkg/logx"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "remodel",
	Short:         "Remodel background jobs and session events",
	Long:          `Runs the renovation assistant's job workers, the producer and event-stream API, and operator tools for queues and dead letters.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(serveCmd(), workerCmd(), enqueueCmd(), dlqCmd(), tokenCmd(), watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and rebuilds the logger so LOG_*
// values from .env take effect. Logs go to stderr; stdout is command output.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	lc := logx.LoadFromEnv()
	lc.Output = os.Stderr
	if lc.Service == "" {
		lc.Service = cfg.Telemetry.ServiceName
	}
	logx.SetDefaultLogger(logx.NewLogger(lc))
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// withContainer builds the container for mode, runs fn and releases everything.
func withContainer(cmd *cobra.Command, mode containerMode, fn func(ctx context.Context, c *Container) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	c, err := NewContainer(ctx, cfg, mode)
	defer c.Cleanup()
	if err != nil {
		return err
	}
	return fn(ctx, c)
}
