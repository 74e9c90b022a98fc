// Package strategy defines the rule-based strategy structures the engine
// consumes. Schema validation is an upstream concern; definitions arriving
// here are assumed well formed.
package strategy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/quantfold/ruleback/internal/combo"
	"github.com/quantfold/ruleback/internal/condition"
	"github.com/quantfold/ruleback/internal/rank"
)

// ExitConfig carries the risk exits layered over a strategy's own sell
// conditions. Zero values disable the corresponding exit; StopLossPct is
// negative (-8 means exit 8% below entry), TakeProfitPct positive.
type ExitConfig struct {
	StopLossPct   float64 `yaml:"stop_loss_pct,omitempty" json:"stop_loss_pct,omitempty"`
	TakeProfitPct float64 `yaml:"take_profit_pct,omitempty" json:"take_profit_pct,omitempty"`
	MaxHoldDays   int     `yaml:"max_hold_days,omitempty" json:"max_hold_days,omitempty"`
}

// Definition is a single strategy or, when Members is non-empty, a combo
// strategy whose buy/sell decisions come from member voting.
type Definition struct {
	Name    string                `yaml:"name" json:"name"`
	Buy     []condition.Condition `yaml:"buy,omitempty" json:"buy,omitempty"`
	Sell    []condition.Condition `yaml:"sell,omitempty" json:"sell,omitempty"`
	Exit    ExitConfig            `yaml:"exit,omitempty" json:"exit,omitempty"`
	Ranking []rank.Factor         `yaml:"ranking,omitempty" json:"ranking,omitempty"`

	// Combo fields.
	Members []Definition      `yaml:"members,omitempty" json:"members,omitempty"`
	Vote    *combo.VoteConfig `yaml:"vote,omitempty" json:"vote,omitempty"`
	// Weight is this definition's vote weight when it is a combo member.
	Weight float64 `yaml:"weight,omitempty" json:"weight,omitempty"`
}

// IsCombo reports whether the definition aggregates member strategies.
func (d *Definition) IsCombo() bool { return len(d.Members) > 0 }

// VoteMembers converts combo members to the voter's view.
func (d *Definition) VoteMembers() []combo.Member {
	members := make([]combo.Member, 0, len(d.Members))
	for _, m := range d.Members {
		members = append(members, combo.Member{
			Name:   m.Name,
			Buy:    m.Buy,
			Sell:   m.Sell,
			Weight: m.Weight,
		})
	}
	return members
}

// VoteConfig returns the configured voting policy, defaulting to equal-weight
// majority when the definition carries none.
func (d *Definition) VoteConfig() combo.VoteConfig {
	if d.Vote != nil {
		return *d.Vote
	}
	return combo.DefaultVoteConfig(len(d.Members))
}

// AllConditions returns every condition the definition references, including
// member conditions, for indicator collection and pre-checks.
func (d *Definition) AllConditions() []condition.Condition {
	var out []condition.Condition
	out = append(out, d.Buy...)
	out = append(out, d.Sell...)
	for _, m := range d.Members {
		out = append(out, m.AllConditions()...)
	}
	return out
}

// Load reads a definition from a YAML file.
func Load(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy: %w", err)
	}
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse strategy %s: %w", path, err)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("strategy %s: missing name", path)
	}
	return &def, nil
}

// LoadDir reads every *.yaml and *.yml definition under dir, keyed by
// strategy name. Duplicate names are an error.
func LoadDir(dir string) (map[string]*Definition, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	yml, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, err
	}
	matches = append(matches, yml...)

	out := make(map[string]*Definition, len(matches))
	for _, path := range matches {
		def, err := Load(path)
		if err != nil {
			return nil, err
		}
		if _, dup := out[def.Name]; dup {
			return nil, fmt.Errorf("duplicate strategy name %q in %s", def.Name, dir)
		}
		out[def.Name] = def
	}
	return out, nil
}
