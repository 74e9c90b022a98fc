package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantfold/ruleback/internal/condition"
	"github.com/quantfold/ruleback/internal/strategy"
)

var checkStrategyPath string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a strategy definition without running it",
	Long: `Check loads a strategy definition, verifies its buy rules are
satisfiable, and prints the indicator columns the rules will read. A rule set
whose bounds contradict each other (e.g. rsi_14 < 30 together with
rsi_14 > 70) is rejected the same way a run would reject it.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkStrategyPath, "strategy", "s", "", "strategy definition YAML (required)")
	_ = checkCmd.MarkFlagRequired("strategy")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	def, err := strategy.Load(checkStrategyPath)
	if err != nil {
		return err
	}
	eval := condition.NewEvaluator(nil)

	sets := map[string][]condition.Condition{def.Name: def.Buy}
	if def.IsCombo() {
		sets = make(map[string][]condition.Condition, len(def.Members))
		for _, m := range def.Members {
			sets[m.Name] = m.Buy
		}
	}
	for name, conds := range sets {
		if err := eval.CheckReachable(conds); err != nil {
			var unreachable *condition.UnreachableError
			if errors.As(err, &unreachable) {
				return fmt.Errorf("strategy %s: %w", name, err)
			}
			return err
		}
	}

	fmt.Printf("%s: ok\n", def.Name)
	reqs := eval.CollectIndicators(def.AllConditions())
	if len(reqs) > 0 {
		fmt.Println("indicator columns required:")
		for _, req := range reqs {
			fmt.Printf("  %s\n", req.Column)
		}
	}
	return nil
}
