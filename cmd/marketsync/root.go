package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tinpulse/marketsync/internal/config"
	"github.com/tinpulse/marketsync/pkg/job"
	"github.com/tinpulse/marketsync/pkg/logging"
)

// runner is the common shape of the three sync jobs.
type runner interface {
	Run(ctx context.Context) (job.Report, error)
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath     string
		limit       int
		verbose     bool
		pretty      bool
		metricsAddr string
	)

	root := &cobra.Command{
		Use:           "marketsync",
		Short:         "Rate-limited CoinGecko to CSV sync",
		Long:          "marketsync keeps a local CSV dataset in step with the CoinGecko API\nunder the free-tier rate-limit contract. Runs are re-runnable: rows are\nnever dropped and failed coins are deferred, not hammered.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")
	root.PersistentFlags().IntVar(&limit, "limit", 0, "max entities per run (overrides config)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "per-entity progress logging")
	root.PersistentFlags().BoolVar(&pretty, "pretty", false, "human-readable log output")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address (overrides config)")

	loadConfig := func(cmd *cobra.Command) (*config.Config, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		if cmd.Flags().Changed("limit") {
			cfg.Run.Limit = limit
		}
		if verbose {
			cfg.Run.Verbose = true
		}
		if cmd.Flags().Changed("metrics-addr") {
			cfg.Metrics.Addr = metricsAddr
		}
		return cfg, nil
	}

	runJob := func(build func(*config.Config) runner) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			level := logging.LevelInfo
			if cfg.Run.Verbose {
				level = logging.LevelDebug
			}
			logging.Setup(logging.Config{Level: level, Pretty: pretty, Output: os.Stderr})

			if cfg.Metrics.Addr != "" {
				serveMetrics(cfg.Metrics.Addr)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			report, err := build(cfg).Run(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Run failed")
				return err
			}
			log.Info().Str("report", report.String()).Msg("Run finished")
			return nil
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "prices",
			Short: "Refresh live market columns from the full listing",
			RunE:  runJob(func(cfg *config.Config) runner { return job.NewPrices(cfg) }),
		},
		&cobra.Command{
			Use:   "meta",
			Short: "Refresh fundamentals and links for stale core-tier coins",
			RunE:  runJob(func(cfg *config.Config) runner { return job.NewMeta(cfg) }),
		},
		&cobra.Command{
			Use:   "exchanges",
			Short: "Backfill the exchanges column from per-coin tickers",
			RunE:  runJob(func(cfg *config.Config) runner { return job.NewExchanges(cfg) }),
		},
	)

	return root
}

// serveMetrics exposes the Prometheus registry in the background for the
// lifetime of the run.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warn().Err(err).Str("addr", addr).Msg("Metrics endpoint stopped")
		}
	}()
}
