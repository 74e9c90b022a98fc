package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/ruleback/internal/combo"
	"github.com/quantfold/ruleback/internal/condition"
)

const singleYAML = `
name: breakout
buy:
  - field: {name: close}
    op: ">"
    compare: {kind: lookback_max, n: 20}
  - field: {name: rsi, params: {period: 14}}
    op: "<"
    compare: {kind: value, value: 70}
sell:
  - field: {name: close}
    op: "<"
    compare: {kind: field, field: {name: ma, params: {period: 10}}}
    label: ma_break
exit:
  stop_loss_pct: -8
  take_profit_pct: 20
  max_hold_days: 30
ranking:
  - {source: kline, field: volume, desc: true, weight: 1}
`

const comboYAML = `
name: trio
vote:
  mode: count
  buy_threshold: 2
  sell: majority
members:
  - name: momentum
    weight: 2
    buy:
      - field: {name: close}
        op: ">"
        compare: {kind: value, value: 10}
  - name: oversold
    buy:
      - field: {name: rsi}
        op: "<"
        compare: {kind: value, value: 30}
    sell:
      - field: {name: rsi}
        op: ">"
        compare: {kind: value, value: 70}
`

func writeYAML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_SingleStrategy(t *testing.T) {
	path := writeYAML(t, t.TempDir(), "breakout.yaml", singleYAML)
	def, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "breakout", def.Name)
	assert.False(t, def.IsCombo())
	require.Len(t, def.Buy, 2)
	assert.Equal(t, condition.CompareLookbackMax, def.Buy[0].Compare.Kind)
	assert.Equal(t, 20, def.Buy[0].Compare.N)
	assert.Equal(t, 14.0, def.Buy[1].Field.Params["period"])

	require.Len(t, def.Sell, 1)
	assert.Equal(t, "ma_break", def.Sell[0].Label)
	require.NotNil(t, def.Sell[0].Compare.Field)
	assert.Equal(t, "ma", def.Sell[0].Compare.Field.Name)

	assert.Equal(t, -8.0, def.Exit.StopLossPct)
	assert.Equal(t, 30, def.Exit.MaxHoldDays)
	require.Len(t, def.Ranking, 1)
	assert.True(t, def.Ranking[0].Desc)
}

func TestLoad_Combo(t *testing.T) {
	path := writeYAML(t, t.TempDir(), "trio.yaml", comboYAML)
	def, err := Load(path)
	require.NoError(t, err)

	assert.True(t, def.IsCombo())
	cfg := def.VoteConfig()
	assert.Equal(t, combo.ModeCount, cfg.Mode)
	assert.Equal(t, 2.0, cfg.BuyThreshold)
	assert.Equal(t, combo.SellMajority, cfg.Sell)

	members := def.VoteMembers()
	require.Len(t, members, 2)
	assert.Equal(t, "momentum", members[0].Name)
	assert.Equal(t, 2.0, members[0].Weight)

	// Buy of both members and the sell of the second.
	assert.Len(t, def.AllConditions(), 3)
}

func TestVoteConfig_DefaultsToMajority(t *testing.T) {
	def := &Definition{
		Name:    "pair",
		Members: []Definition{{Name: "a"}, {Name: "b"}, {Name: "c"}},
	}
	cfg := def.VoteConfig()
	assert.Equal(t, combo.ModeCount, cfg.Mode)
	assert.Equal(t, 2.0, cfg.BuyThreshold, "majority of three")
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)

	bad := writeYAML(t, dir, "bad.yaml", "name: [broken")
	_, err = Load(bad)
	assert.Error(t, err)

	unnamed := writeYAML(t, dir, "unnamed.yaml", "buy: []")
	_, err = Load(unnamed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing name")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "a.yaml", singleYAML)
	writeYAML(t, dir, "b.yml", comboYAML)

	defs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Contains(t, defs, "breakout")
	assert.Contains(t, defs, "trio")

	writeYAML(t, dir, "dup.yaml", singleYAML)
	_, err = LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}
