// file: terminal/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/config"
	"github.com/balaji-balu/codeboard/internal/logger"
	"github.com/balaji-balu/codeboard/internal/metrics"
	"github.com/balaji-balu/codeboard/internal/telemetry"
	"github.com/balaji-balu/codeboard/internal/terminal"
)

var (
	cfgFile string
	verbose bool
	logDir  string
)

var rootCmd = &cobra.Command{
	Use:   "terminal",
	Short: "Code display terminal",
	Long: `Polls the message store, shows each new code full screen, narrates it
and advances through the queue. Operator controls are served over HTTP.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: built-in defaults + CODEBOARD_* env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "also write logs to this directory")
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	var opts []logger.Option
	if verbose {
		opts = append(opts, logger.WithDebug())
	}
	if logDir != "" {
		opts = append(opts, logger.WithFile(logDir, cfg.Service))
	}
	log, err := logger.New(cfg.Env, cfg.Service, opts...)
	if err != nil {
		return fmt.Errorf("can't initialize logger: %w", err)
	}
	defer log.Sync()

	shutdown, err := telemetry.InitTracer(ctx, cfg.Service, cfg.Telemetry.Exporter, cfg.Telemetry.Endpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			log.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	if cfg.Metrics.Enabled {
		metrics.Init("terminal")
	}

	term, err := terminal.New(cfg, log.Zap())
	if err != nil {
		return err
	}
	log.Info("terminal configured",
		zap.String("id", term.ID),
		zap.String("store", cfg.Store.URL),
		zap.String("api", cfg.API.Addr))

	if err := term.Run(ctx); err != nil {
		log.Error("terminal failed", err)
		return err
	}
	log.Info("clean exit")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
