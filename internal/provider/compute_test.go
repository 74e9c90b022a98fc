package provider

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/ruleback/internal/condition"
	"github.com/quantfold/ruleback/internal/series"
)

func priceTable(t *testing.T, closes ...float64) *series.Table {
	t.Helper()
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]series.Bar, len(closes))
	for i, c := range closes {
		bars[i] = series.Bar{
			Date: start.AddDate(0, 0, i),
			Open: c, High: c + 1, Low: c - 1, Close: c,
			Volume: float64(100 * (i + 1)),
		}
	}
	tbl, err := series.New("TEST", bars)
	require.NoError(t, err)
	return tbl
}

func request(family string, params map[string]float64, column string) condition.IndicatorRequest {
	return condition.IndicatorRequest{Family: family, Params: params, Column: column}
}

func TestCompute_MovingAverage(t *testing.T) {
	c := NewCompute()
	tbl := priceTable(t, 10, 20, 30, 40)

	out, err := c.Augment(context.Background(), tbl, []condition.IndicatorRequest{
		request("ma", map[string]float64{"period": 3}, "ma_3"),
	})
	require.NoError(t, err)

	_, ok := out.Value("ma_3", 1)
	assert.False(t, ok, "warmup rows are NaN")
	v, ok := out.Value("ma_3", 2)
	require.True(t, ok)
	assert.InDelta(t, 20.0, v, 1e-9)
	v, ok = out.Value("ma_3", 3)
	require.True(t, ok)
	assert.InDelta(t, 30.0, v, 1e-9)
}

func TestCompute_VolMA(t *testing.T) {
	c := NewCompute()
	tbl := priceTable(t, 10, 10, 10) // volumes 100, 200, 300

	out, err := c.Augment(context.Background(), tbl, []condition.IndicatorRequest{
		request("vol_ma", map[string]float64{"period": 2}, "vol_ma_2"),
	})
	require.NoError(t, err)
	v, ok := out.Value("vol_ma_2", 2)
	require.True(t, ok)
	assert.InDelta(t, 250.0, v, 1e-9)
}

func TestCompute_RSIBounds(t *testing.T) {
	c := NewCompute()
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	tbl := priceTable(t, rising...)

	out, err := c.Augment(context.Background(), tbl, []condition.IndicatorRequest{
		request("rsi", map[string]float64{"period": 14}, "rsi_14"),
	})
	require.NoError(t, err)

	_, ok := out.Value("rsi_14", 13)
	assert.False(t, ok, "needs period+1 rows")
	v, ok := out.Value("rsi_14", 29)
	require.True(t, ok)
	assert.Equal(t, 100.0, v, "straight-up series saturates RSI")
}

func TestCompute_EMASeedsWithSMA(t *testing.T) {
	c := NewCompute()
	tbl := priceTable(t, 10, 20, 30, 40)

	out, err := c.Augment(context.Background(), tbl, []condition.IndicatorRequest{
		request("ema", map[string]float64{"period": 3}, "ema_3"),
	})
	require.NoError(t, err)
	v, ok := out.Value("ema_3", 2)
	require.True(t, ok)
	assert.InDelta(t, 20.0, v, 1e-9, "the seed is the simple average")
	v, ok = out.Value("ema_3", 3)
	require.True(t, ok)
	assert.InDelta(t, 30.0, v, 1e-9, "0.5*40 + 0.5*20")
}

func TestCompute_KDJBoundsAndMACDWarmup(t *testing.T) {
	c := NewCompute()
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/5)
	}
	tbl := priceTable(t, closes...)

	out, err := c.Augment(context.Background(), tbl, []condition.IndicatorRequest{
		request("kdj_k", map[string]float64{"n": 9, "k": 3, "d": 3}, "kdj_k_9_3_3"),
		request("macd", map[string]float64{"fast": 12, "slow": 26, "signal": 9}, "macd_12_26_9"),
		request("atr", map[string]float64{"period": 14}, "atr_14"),
		request("bias", map[string]float64{"period": 6}, "bias_6"),
	})
	require.NoError(t, err)

	for i := 10; i < 60; i++ {
		k, ok := out.Value("kdj_k_9_3_3", i)
		require.True(t, ok)
		assert.GreaterOrEqual(t, k, 0.0)
		assert.LessOrEqual(t, k, 100.0)
	}
	_, ok := out.Value("macd_12_26_9", 20)
	assert.False(t, ok, "macd needs the slow EMA plus signal warmup")
	_, ok = out.Value("macd_12_26_9", 59)
	assert.True(t, ok)
	v, ok := out.Value("atr_14", 59)
	require.True(t, ok)
	assert.Greater(t, v, 0.0)
	_, ok = out.Value("bias_6", 59)
	assert.True(t, ok)
}

func TestCompute_KeepsExistingColumns(t *testing.T) {
	c := NewCompute()
	tbl := priceTable(t, 10, 20, 30)
	require.NoError(t, tbl.SetColumn("rsi_14", []float64{1, 2, 3}))

	out, err := c.Augment(context.Background(), tbl, []condition.IndicatorRequest{
		request("rsi", map[string]float64{"period": 14}, "rsi_14"),
	})
	require.NoError(t, err)
	v, ok := out.Value("rsi_14", 0)
	require.True(t, ok)
	assert.Equal(t, 1.0, v, "a column supplied with the data wins over recomputation")

	// The input table is never mutated.
	assert.False(t, tbl.HasColumn("ma_20"))
}

func TestCompute_UnknownFamily(t *testing.T) {
	c := NewCompute()
	tbl := priceTable(t, 10, 20)
	_, err := c.Augment(context.Background(), tbl, []condition.IndicatorRequest{
		request("vwap", nil, "vwap_20"),
	})
	assert.Error(t, err)
}
