package combo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/ruleback/internal/condition"
	"github.com/quantfold/ruleback/internal/series"
)

// closeAbove builds a member whose buy fires when close > v and whose sell
// fires when close < v.
func closeAbove(name string, v float64) Member {
	return Member{
		Name: name,
		Buy: []condition.Condition{{
			Field:   condition.FieldRef{Name: "close"},
			Op:      condition.OpGT,
			Compare: condition.Compare{Kind: condition.CompareValue, Value: v},
		}},
		Sell: []condition.Condition{{
			Field:   condition.FieldRef{Name: "close"},
			Op:      condition.OpLT,
			Compare: condition.Compare{Kind: condition.CompareValue, Value: v},
			Label:   name + "_exit",
		}},
	}
}

func voteTable(t *testing.T, closes ...float64) *series.Table {
	t.Helper()
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]series.Bar, len(closes))
	for i, c := range closes {
		bars[i] = series.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	tbl, err := series.New("TEST", bars)
	require.NoError(t, err)
	return tbl
}

func TestVoteBuy_CountThreshold(t *testing.T) {
	eval := condition.NewEvaluator(nil)
	members := []Member{closeAbove("a", 10), closeAbove("b", 20), closeAbove("c", 30)}
	v := NewVoter(eval, VoteConfig{Mode: ModeCount, BuyThreshold: 2}, members)

	tbl := voteTable(t, 15, 25, 35)
	assert.False(t, v.VoteBuy(tbl, 0), "only member a fires at 15")
	assert.True(t, v.VoteBuy(tbl, 1), "a and b fire at 25")
	assert.True(t, v.VoteBuy(tbl, 2))
}

func TestVoteBuy_ScoreMode(t *testing.T) {
	eval := condition.NewEvaluator(nil)
	heavy := closeAbove("heavy", 10)
	heavy.Weight = 3
	light := closeAbove("light", 20)
	light.Weight = 0.5
	v := NewVoter(eval, VoteConfig{Mode: ModeScore, BuyThreshold: 3}, []Member{light, heavy})

	tbl := voteTable(t, 15, 25)
	assert.True(t, v.VoteBuy(tbl, 0), "heavy alone reaches the score threshold")

	strict := NewVoter(eval, VoteConfig{Mode: ModeScore, BuyThreshold: 3.4}, []Member{light, heavy})
	assert.False(t, strict.VoteBuy(tbl, 0))
	assert.True(t, strict.VoteBuy(tbl, 1), "0.5 + 3 = 3.5 >= 3.4")
}

func TestVoteBuy_ZeroWeightCountsAsOne(t *testing.T) {
	eval := condition.NewEvaluator(nil)
	members := []Member{closeAbove("a", 10), closeAbove("b", 10)}
	v := NewVoter(eval, VoteConfig{Mode: ModeScore, BuyThreshold: 2}, members)
	assert.True(t, v.VoteBuy(voteTable(t, 15), 0))
}

func TestVoteBuy_DefaultIsMajority(t *testing.T) {
	eval := condition.NewEvaluator(nil)
	members := []Member{closeAbove("a", 10), closeAbove("b", 20), closeAbove("c", 30)}
	v := NewVoter(eval, VoteConfig{}, members)

	// Majority of 3 means at least 2 members.
	assert.False(t, v.VoteBuy(voteTable(t, 15), 0))
	assert.True(t, v.VoteBuy(voteTable(t, 25), 0))
}

func TestVoteBuy_ShortCircuitNeverFlipsResult(t *testing.T) {
	eval := condition.NewEvaluator(nil)
	members := []Member{
		closeAbove("a", 10), closeAbove("b", 10), closeAbove("c", 10),
		closeAbove("d", 10), closeAbove("e", 10),
	}
	tbl := voteTable(t, 15)
	for threshold := 1.0; threshold <= 5; threshold++ {
		early := NewVoter(eval, VoteConfig{Mode: ModeCount, BuyThreshold: threshold}, members)
		assert.True(t, early.VoteBuy(tbl, 0), "all five fire, any threshold passes")
	}
	never := NewVoter(eval, VoteConfig{Mode: ModeCount, BuyThreshold: 6}, members)
	assert.False(t, never.VoteBuy(tbl, 0))
}

func TestVoteSell_AnyMode(t *testing.T) {
	eval := condition.NewEvaluator(nil)
	members := []Member{closeAbove("a", 10), closeAbove("b", 20)}
	v := NewVoter(eval, VoteConfig{Mode: ModeCount, BuyThreshold: 2, Sell: SellAny}, members)

	hit, labels := v.VoteSell(voteTable(t, 15), 0)
	require.True(t, hit, "close 15 is below member b's level")
	assert.Equal(t, []string{"b_exit"}, labels)

	hit, labels = v.VoteSell(voteTable(t, 25), 0)
	assert.False(t, hit)
	assert.Empty(t, labels)
}

func TestVoteSell_MajorityMode(t *testing.T) {
	eval := condition.NewEvaluator(nil)
	members := []Member{closeAbove("a", 10), closeAbove("b", 20), closeAbove("c", 30)}
	v := NewVoter(eval, VoteConfig{Mode: ModeCount, BuyThreshold: 2, Sell: SellMajority}, members)

	hit, _ := v.VoteSell(voteTable(t, 25), 0)
	assert.False(t, hit, "a single sell vote is not a majority of three")

	hit, labels := v.VoteSell(voteTable(t, 15), 0)
	require.True(t, hit, "b and c both vote at 15")
	assert.ElementsMatch(t, []string{"b_exit", "c_exit"}, labels)
}
