package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantfold/ruleback/internal/condition"
	"github.com/quantfold/ruleback/internal/engine"
	"github.com/quantfold/ruleback/internal/provider"
	"github.com/quantfold/ruleback/internal/series"
	"github.com/quantfold/ruleback/internal/strategy"
)

var (
	runStrategyPath string
	runDataDir      string
	runConfigPath   string
	runOutPath      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a strategy backtest over a directory of daily kline CSVs",
	Long: `Run simulates a strategy definition against every instrument CSV in the
data directory and prints the resulting metrics. CSV columns beyond OHLCV are
loaded as indicator columns and must follow the provider naming contract
(e.g. rsi_14).

Example:
  ruleback run --strategy strat.yaml --data ./klines --out result.json`,
	RunE: runBacktest,
}

func init() {
	runCmd.Flags().StringVarP(&runStrategyPath, "strategy", "s", "", "strategy definition YAML (required)")
	runCmd.Flags().StringVarP(&runDataDir, "data", "d", "", "directory of <symbol>.csv daily klines (required)")
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "engine config YAML (defaults apply when omitted)")
	runCmd.Flags().StringVarP(&runOutPath, "out", "o", "", "write full result JSON to this file")
	_ = runCmd.MarkFlagRequired("strategy")
	_ = runCmd.MarkFlagRequired("data")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	def, cfg, data, err := loadRunInputs()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Indicator columns the CSVs already carry win; the rest are computed
	// locally for the known families before the simulation starts.
	eval := condition.NewEvaluator(nil)
	facade := provider.NewFacade(provider.DefaultConfig(), provider.NewCompute(), nil, nil, eval, log.Logger)
	data, err = facade.Materialize(ctx, def, data)
	if err != nil {
		return err
	}

	eng := engine.New(cfg, eval, log.Logger)
	result, err := eng.Run(def, data, engine.RunOptions{Cancel: engine.ContextCancel(ctx)})
	if err != nil {
		return err
	}

	printSummary(result)

	if runOutPath != "" {
		raw, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		if err := os.WriteFile(runOutPath, raw, 0o644); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		log.Info().Str("path", runOutPath).Msg("result written")
	}
	return nil
}

func loadRunInputs() (*strategy.Definition, engine.Config, map[string]*series.Table, error) {
	def, err := strategy.Load(runStrategyPath)
	if err != nil {
		return nil, engine.Config{}, nil, err
	}
	cfg := engine.DefaultConfig()
	if runConfigPath != "" {
		cfg, err = engine.LoadConfig(runConfigPath)
		if err != nil {
			return nil, engine.Config{}, nil, err
		}
	}
	data, err := series.LoadDir(runDataDir)
	if err != nil {
		return nil, engine.Config{}, nil, err
	}
	return def, cfg, data, nil
}

func printSummary(result *engine.Result) {
	m := result.Metrics
	fmt.Printf("\nStrategy: %s\n\n", result.Strategy)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Trades\t%d\n", m.TotalTrades)
	fmt.Fprintf(w, "Win rate\t%.1f%%\n", m.WinRate*100)
	fmt.Fprintf(w, "Total return\t%.2f%%\n", m.TotalReturnPct)
	fmt.Fprintf(w, "Max drawdown\t%.2f%%\n", m.MaxDrawdownPct)
	fmt.Fprintf(w, "CAGR\t%.2f%%\n", m.CAGR*100)
	fmt.Fprintf(w, "Sharpe\t%.2f\n", m.Sharpe)
	fmt.Fprintf(w, "Calmar\t%.2f\n", m.Calmar)
	fmt.Fprintf(w, "P/L ratio\t%.2f\n", m.ProfitLossRatio)
	w.Flush()

	if len(m.SellReasons) > 0 {
		fmt.Println("\nExits:")
		reasons := make([]string, 0, len(m.SellReasons))
		for r := range m.SellReasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Printf("  %-18s %d\n", r, m.SellReasons[r])
		}
	}
}
