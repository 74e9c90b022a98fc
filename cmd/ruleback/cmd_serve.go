package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantfold/ruleback/internal/condition"
	"github.com/quantfold/ruleback/internal/engine"
	"github.com/quantfold/ruleback/internal/httpapi"
	"github.com/quantfold/ruleback/internal/provider"
	"github.com/quantfold/ruleback/internal/rank"
	"github.com/quantfold/ruleback/internal/runs"
	"github.com/quantfold/ruleback/internal/series"
	"github.com/quantfold/ruleback/internal/store"
	"github.com/quantfold/ruleback/internal/strategy"
)

var (
	serveAddr        string
	serveDataDir     string
	serveStrategyDir string
	serveConfigPath  string
	servePostgresDSN string
	serveRedisAddr   string
	serveFactorURLs  []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve backtest runs over an HTTP API",
	Long: `Serve loads a directory of strategy definitions and a directory of
kline CSVs, then exposes run management over HTTP: POST /api/runs launches a
named strategy, GET endpoints report status and results, and /metrics exports
Prometheus counters. With --pg-dsn, completed runs are persisted to Postgres;
with --redis-addr, materialized indicator series are cached in redis; with
--factor-url, cross-sectional ranking factors are fetched from the named
factor services (tried in order) when a strategy uses them.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :8787)")
	serveCmd.Flags().StringVarP(&serveDataDir, "data", "d", "", "directory of per-instrument daily CSVs (required)")
	serveCmd.Flags().StringVar(&serveStrategyDir, "strategies", "", "directory of strategy YAML definitions (required)")
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "engine config YAML (defaults apply when omitted)")
	serveCmd.Flags().StringVar(&servePostgresDSN, "pg-dsn", "", "Postgres DSN for persisting completed runs")
	serveCmd.Flags().StringVar(&serveRedisAddr, "redis-addr", "", "redis address for the indicator series cache")
	serveCmd.Flags().StringSliceVar(&serveFactorURLs, "factor-url", nil, "cross-sectional factor service base URLs, tried in order")
	_ = serveCmd.MarkFlagRequired("data")
	_ = serveCmd.MarkFlagRequired("strategies")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	defs, err := strategy.LoadDir(serveStrategyDir)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return fmt.Errorf("no strategy definitions in %s", serveStrategyDir)
	}
	data, err := series.LoadDir(serveDataDir)
	if err != nil {
		return err
	}
	cfg := engine.DefaultConfig()
	if serveConfigPath != "" {
		if cfg, err = engine.LoadConfig(serveConfigPath); err != nil {
			return err
		}
	}
	log.Info().Int("strategies", len(defs)).Int("instruments", len(data)).Msg("inputs loaded")

	var cache redis.Cmdable
	if serveRedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: serveRedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping %s: %w", serveRedisAddr, err)
		}
		cache = client
		defer client.Close()
	}

	var factors provider.FactorProvider
	if len(serveFactorURLs) > 0 {
		factors = provider.NewRemote(serveFactorURLs, log.Logger)
	}

	eval := condition.NewEvaluator(nil)
	facade := provider.NewFacade(provider.DefaultConfig(), provider.NewCompute(), factors, cache, eval, log.Logger)

	eng := engine.New(cfg, eval, log.Logger)
	manager := runs.NewManager(eng, prometheus.DefaultRegisterer, log.Logger)

	if servePostgresDSN != "" {
		st, err := store.Open(ctx, servePostgresDSN)
		if err != nil {
			return err
		}
		defer st.Close()
		manager.OnComplete = func(run runs.Run) {
			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := st.SaveResult(saveCtx, run.ID, run.Started, run.Finished, run.Result); err != nil {
				log.Error().Str("run_id", run.ID).Err(err).Msg("persisting run failed")
				return
			}
			log.Info().Str("run_id", run.ID).Msg("run persisted")
		}
	}

	apiCfg := httpapi.DefaultConfig()
	if serveAddr != "" {
		apiCfg.Addr = serveAddr
	}
	srv := httpapi.NewServer(apiCfg, manager, prometheus.DefaultGatherer, log.Logger)
	srv.SetLauncher(func(name string) (string, error) {
		def, ok := defs[name]
		if !ok {
			return "", fmt.Errorf("unknown strategy %q", name)
		}
		materialized, err := facade.Materialize(ctx, def, data)
		if err != nil {
			return "", fmt.Errorf("materialize indicators: %w", err)
		}
		var cross map[int64]map[string]rank.CrossRow
		if usesCrossFactors(def) {
			if factors == nil {
				return "", fmt.Errorf("strategy %q ranks on cross-sectional factors but no --factor-url is configured", name)
			}
			if cross, err = facade.Factors(ctx, series.MergedDates(materialized)); err != nil {
				return "", fmt.Errorf("fetch factor tables: %w", err)
			}
		}
		return manager.Start(def, materialized, engine.RunOptions{Cross: cross}), nil
	})

	return srv.ListenAndServe()
}

// usesCrossFactors reports whether any ranking factor reads the day's
// cross-sectional table, which is the only consumer of the factor service.
func usesCrossFactors(def *strategy.Definition) bool {
	for _, f := range def.Ranking {
		if f.Source == rank.SourceCross {
			return true
		}
	}
	return false
}
