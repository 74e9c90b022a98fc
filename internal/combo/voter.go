// Package combo aggregates the buy/sell decisions of a combo strategy's
// member strategies through vote counting or weighted scoring.
package combo

import (
	"github.com/quantfold/ruleback/internal/condition"
	"github.com/quantfold/ruleback/internal/series"
)

// Mode selects how member buy votes aggregate.
type Mode string

const (
	// ModeCount admits when at least BuyThreshold members vote.
	ModeCount Mode = "count"
	// ModeScore admits when the weight-sum of voting members reaches
	// BuyThreshold.
	ModeScore Mode = "score"
)

// SellMode selects how member sell votes aggregate.
type SellMode string

const (
	// SellAny exits on the first member sell vote.
	SellAny SellMode = "any"
	// SellMajority exits once more than half the members vote.
	SellMajority SellMode = "majority"
)

// VoteConfig is the voting policy carried by a combo strategy definition.
type VoteConfig struct {
	Mode         Mode     `yaml:"mode" json:"mode"`
	BuyThreshold float64  `yaml:"buy_threshold" json:"buy_threshold"`
	Sell         SellMode `yaml:"sell" json:"sell"`
}

// DefaultVoteConfig is majority-style equal-weight voting.
func DefaultVoteConfig(members int) VoteConfig {
	return VoteConfig{
		Mode:         ModeCount,
		BuyThreshold: float64(members)/2 + 0.5,
		Sell:         SellAny,
	}
}

// Member is the voter's view of one member strategy.
type Member struct {
	Name   string
	Buy    []condition.Condition
	Sell   []condition.Condition
	Weight float64
}

// Voter evaluates member strategies against a snapshot and aggregates their
// votes. Vote loops stop as soon as the decision is settled; because votes
// and scores only ever accumulate, breaking early can never flip the final
// boolean, only skip redundant member evaluations.
type Voter struct {
	eval    *condition.Evaluator
	cfg     VoteConfig
	members []Member
}

// NewVoter builds a voter. A zero-valued config falls back to equal-weight
// majority voting.
func NewVoter(eval *condition.Evaluator, cfg VoteConfig, members []Member) *Voter {
	if cfg.Mode == "" {
		cfg = DefaultVoteConfig(len(members))
	}
	if cfg.Sell == "" {
		cfg.Sell = SellAny
	}
	return &Voter{eval: eval, cfg: cfg, members: members}
}

// Members returns the member list.
func (v *Voter) Members() []Member { return v.members }

// VoteBuy aggregates member AND-buy gates for row i of tbl.
func (v *Voter) VoteBuy(tbl *series.Table, i int) bool {
	votes := 0
	score := 0.0
	for _, m := range v.members {
		if !v.eval.EvalAll(m.Buy, tbl, i) {
			continue
		}
		votes++
		weight := m.Weight
		if weight == 0 {
			weight = 1
		}
		score += weight

		if v.buyDecided(votes, score) {
			return true
		}
	}
	return v.buyDecided(votes, score)
}

func (v *Voter) buyDecided(votes int, score float64) bool {
	if v.cfg.Mode == ModeScore {
		return score >= v.cfg.BuyThreshold
	}
	return float64(votes) >= v.cfg.BuyThreshold
}

// VoteSell aggregates member OR-sell gates. The returned labels union the
// triggered sell reasons of every member evaluated before the vote settled.
func (v *Voter) VoteSell(tbl *series.Table, i int) (bool, []string) {
	votes := 0
	var labels []string
	for _, m := range v.members {
		hit, memberLabels := v.eval.EvalAny(m.Sell, tbl, i)
		if !hit {
			continue
		}
		votes++
		labels = append(labels, memberLabels...)

		if v.sellDecided(votes) {
			return true, labels
		}
	}
	return v.sellDecided(votes), labels
}

func (v *Voter) sellDecided(votes int) bool {
	if v.cfg.Sell == SellMajority {
		return votes > len(v.members)/2
	}
	return votes >= 1
}
