package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe(" 1D ")
	require.NoError(t, err)
	assert.Equal(t, "1d", tf.Key)
	assert.Equal(t, 24*time.Hour, tf.Duration)

	month, err := ParseTimeframe("1M")
	require.NoError(t, err)
	assert.True(t, month.Calendar)

	minute, err := ParseTimeframe("1m")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, minute.Duration)

	_, err = ParseTimeframe("7m")
	assert.ErrorContains(t, err, "supported: 1s 1m 3m")
}

func TestSupportedTimeframesSorted(t *testing.T) {
	keys := SupportedTimeframes()
	require.Len(t, keys, 16)
	assert.Equal(t, "1s", keys[0])
	assert.Equal(t, "1M", keys[len(keys)-1])
}

func TestTimeframeStepAndMaxGap(t *testing.T) {
	day, _ := ParseTimeframe("1d")
	assert.Equal(t, int64(86_400_000), day.Step(UnitMilliseconds))
	assert.Equal(t, int64(86_400), day.Step(UnitSeconds))
	assert.Equal(t, day.Step(UnitSeconds), day.MaxGap(UnitSeconds))

	month, _ := ParseTimeframe("1M")
	assert.Equal(t, int64(31*86_400), month.MaxGap(UnitSeconds))
}

func TestTimestampUnit(t *testing.T) {
	assert.Equal(t, int64(1640991600000), UnitMilliseconds.Scale(1640991600))
	assert.Equal(t, int64(1640991600), UnitSeconds.Scale(1640991600))
	assert.Equal(t, UnitSeconds.Time(1640995200), UnitMilliseconds.Time(1640995200000))
	assert.Equal(t, "ms", UnitMilliseconds.String())
}

func candles(ts ...int64) []Candle {
	out := make([]Candle, len(ts))
	for i, v := range ts {
		out[i] = Candle{Timestamp: v, Close: decimal.NewFromInt(v)}
	}
	return out
}

func TestCheckContiguity(t *testing.T) {
	_, ok := CheckContiguity(candles(10, 20, 30), 10)
	assert.True(t, ok)

	v, ok := CheckContiguity(candles(10, 20, 20), 10)
	assert.False(t, ok)
	assert.Equal(t, "duplicate timestamp", v.Reason)
	assert.Equal(t, 2, v.Index)

	v, ok = CheckContiguity(candles(10, 30, 20), 0)
	assert.False(t, ok)
	assert.Equal(t, "timestamp out of order", v.Reason)

	v, ok = CheckContiguity(candles(10, 20, 40), 10)
	assert.False(t, ok)
	assert.Equal(t, "gap larger than one interval", v.Reason)
	assert.Contains(t, v.String(), "prev=20 next=40")

	_, ok = CheckContiguity(nil, 10)
	assert.True(t, ok)
}

func TestSeriesEqualAndValidate(t *testing.T) {
	a := Series{Market: "BTC/USDT", Timeframe: "1d", Candles: candles(1, 2, 3)}
	b := Series{Market: "BTC/USDT", Timeframe: "1d", Candles: candles(1, 2, 3)}
	b.Candles[1].Close = decimal.RequireFromString("2.000")
	assert.True(t, a.Equal(b), "decimal comparison is by value")

	b.Candles[2].Volume = decimal.NewFromInt(1)
	assert.False(t, a.Equal(b))

	_, ok := a.Validate(1)
	assert.True(t, ok)
	first, _ := a.First()
	last, _ := a.Last()
	assert.Equal(t, int64(1), first.Timestamp)
	assert.Equal(t, int64(3), last.Timestamp)
}
