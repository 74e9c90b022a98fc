package series

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBars(n int) []Bar {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = Bar{
			Date: start.AddDate(0, 0, i),
			Open: c - 0.5, High: c + 1, Low: c - 1, Close: c,
			Volume: float64(1000 * (i + 1)),
		}
	}
	return bars
}

func TestNew_SortsAndRejectsDuplicates(t *testing.T) {
	bars := testBars(3)
	bars[0], bars[2] = bars[2], bars[0]

	tbl, err := New("ACME", bars)
	require.NoError(t, err)
	assert.Equal(t, 100.0, tbl.Bar(0).Close, "rows come back date-ordered")
	assert.Equal(t, 102.0, tbl.Bar(2).Close)

	dup := testBars(2)
	dup[1].Date = dup[0].Date.Add(3 * time.Hour) // same calendar day
	_, err = New("ACME", dup)
	assert.Error(t, err)
}

func TestDayKey_TruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	a := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	b := time.Date(2024, 3, 1, 23, 0, 0, 0, loc) // 15:00 UTC same day
	assert.Equal(t, DayKey(a), DayKey(b))
}

func TestMergedDates(t *testing.T) {
	assert.Empty(t, MergedDates(nil))

	a, err := New("AAA", testBars(3))
	require.NoError(t, err)
	// BBB overlaps AAA's last day and trades one extra day, at an intraday
	// timestamp that must truncate to the same calendar dates.
	bbBars := testBars(2)
	bbBars[0].Date = bbBars[0].Date.AddDate(0, 0, 2).Add(10 * time.Hour)
	bbBars[1].Date = bbBars[0].Date.AddDate(0, 0, 1)
	b, err := New("BBB", bbBars)
	require.NoError(t, err)

	dates := MergedDates(map[string]*Table{"AAA": a, "BBB": b})
	require.Len(t, dates, 4)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), dates[0])
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), dates[3])
	for _, d := range dates {
		assert.Equal(t, 0, d.Hour(), "dates are truncated to UTC days")
	}
}

func TestValue_BaseAndIndicatorColumns(t *testing.T) {
	tbl, err := New("ACME", testBars(3))
	require.NoError(t, err)
	require.NoError(t, tbl.SetColumn("rsi_14", []float64{math.NaN(), 40, 60}))

	v, ok := tbl.Value("close", 1)
	require.True(t, ok)
	assert.Equal(t, 101.0, v)

	_, ok = tbl.Value("rsi_14", 0)
	assert.False(t, ok, "NaN warmup row reads as missing")
	v, ok = tbl.Value("rsi_14", 2)
	require.True(t, ok)
	assert.Equal(t, 60.0, v)

	_, ok = tbl.Value("nonexistent", 1)
	assert.False(t, ok)
	_, ok = tbl.Value("close", 99)
	assert.False(t, ok)
	_, ok = tbl.Value("close", -1)
	assert.False(t, ok)
}

func TestSetColumn_RejectsMisalignedLengths(t *testing.T) {
	tbl, err := New("ACME", testBars(3))
	require.NoError(t, err)
	assert.Error(t, tbl.SetColumn("rsi_14", []float64{1, 2}))
}

func TestIndex(t *testing.T) {
	tbl, err := New("ACME", testBars(3))
	require.NoError(t, err)

	i, ok := tbl.Index(time.Date(2024, 3, 2, 18, 0, 0, 0, time.UTC))
	require.True(t, ok, "any time on the trading day resolves")
	assert.Equal(t, 1, i)

	_, ok = tbl.Index(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestDataRoundTrip(t *testing.T) {
	tbl, err := New("ACME", testBars(3))
	require.NoError(t, err)
	require.NoError(t, tbl.SetColumn("ma_5", []float64{1, 2, 3}))

	rebuilt, err := FromData(tbl.Data())
	require.NoError(t, err)
	assert.Equal(t, tbl.Symbol(), rebuilt.Symbol())
	assert.Equal(t, tbl.Len(), rebuilt.Len())
	v, ok := rebuilt.Value("ma_5", 2)
	require.True(t, ok)
	assert.Equal(t, 3.0, v)
}
