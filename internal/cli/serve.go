package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parleybot/parley/internal/config"
	"github.com/parleybot/parley/internal/logger"
	"github.com/parleybot/parley/internal/observability"
	"github.com/parleybot/parley/pkg/gateway"
	"github.com/parleybot/parley/pkg/harness"
	"github.com/parleybot/parley/pkg/outbound"
	"github.com/parleybot/parley/pkg/pool"
	"github.com/parleybot/parley/pkg/schedule"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session pool daemon",
	Long: `Run the pool daemon in the foreground: websocket gateway, idle
sweeper, scheduler, and metrics endpoint. Stops cleanly on SIGINT/SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lg, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		Console:    cfg.Logging.Console,
		Pretty:     cfg.Logging.Pretty,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()
	log := lg.GetZerolog()

	loader.Watch(func(updated *config.Config) {
		lg.SetLevel(updated.Logging.Level)
		log.Info().Str("level", updated.Logging.Level).Msg("Log level updated")
	})

	apiKey := os.Getenv(cfg.Provider.APIKeyEnv)
	if apiKey == "" {
		return fmt.Errorf("API key environment variable %s is not set", cfg.Provider.APIKeyEnv)
	}
	provider, err := harness.NewProvider(cfg.Provider.Name, apiKey)
	if err != nil {
		return err
	}

	p, err := pool.New(pool.Options{
		Factory: func() harness.Harness {
			return harness.NewModelHarness(harness.ModelOptions{
				Provider:    provider,
				Model:       cfg.Provider.Model,
				System:      cfg.Provider.System,
				Temperature: cfg.Provider.Temperature,
				MaxTokens:   cfg.Provider.MaxTokens,
				GatedTools:  cfg.Provider.GatedTools,
				PlanMode:    cfg.Provider.PlanMode,
				Logger:      log,
			})
		},
		Logger:        log,
		IdleThreshold: cfg.Pool.IdleThreshold,
		SweepInterval: cfg.Pool.SweepInterval,
	})
	if err != nil {
		return err
	}
	p.StartSweeper()
	defer p.Close()

	router := outbound.NewRouter(log)
	if err := router.Register("log", outbound.NewLogChannel(log)); err != nil {
		return err
	}

	scheduler := schedule.NewService(p, log)
	for _, sc := range cfg.Schedules {
		if _, err := scheduler.Add(sc.Spec, sc.ThreadID, sc.Prompt); err != nil {
			return fmt.Errorf("failed to add schedule: %w", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	var gw *gateway.Server
	if cfg.Gateway.Enabled {
		gw, err = gateway.NewServer(gateway.Config{
			Addr:   cfg.Gateway.Addr,
			Pool:   p,
			Logger: log,
		})
		if err != nil {
			return err
		}
		if err := gw.Start(); err != nil {
			return err
		}
		defer func() {
			if err := gw.Stop(); err != nil {
				log.Warn().Err(err).Msg("Gateway stop failed")
			}
		}()
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics server error")
			}
		}()
		defer metricsSrv.Close()
	}

	log.Info().Msg("Daemon started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	return nil
}
