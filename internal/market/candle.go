package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle 为单根 OHLCV K 线，时间戳沿用交易所原生单位（秒或毫秒）。
type Candle struct {
	Timestamp int64           `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Equal 逐字段比较（decimal 按数值比较）。
func (c Candle) Equal(o Candle) bool {
	return c.Timestamp == o.Timestamp &&
		c.Open.Equal(o.Open) &&
		c.High.Equal(o.High) &&
		c.Low.Equal(o.Low) &&
		c.Close.Equal(o.Close) &&
		c.Volume.Equal(o.Volume)
}

// Window 是一次请求的 (since, limit) 参数。
type Window struct {
	Since int64 `json:"since"`
	Count int   `json:"count"`
	Index int   `json:"index"`
}

// Batch 是某个 Window 的原始返回。
type Batch struct {
	Index   int      `json:"index"`
	Candles []Candle `json:"candles"`
}

func (b Batch) Empty() bool { return len(b.Candles) == 0 }

func (b Batch) First() (Candle, bool) {
	if len(b.Candles) == 0 {
		return Candle{}, false
	}
	return b.Candles[0], true
}

func (b Batch) Last() (Candle, bool) {
	if len(b.Candles) == 0 {
		return Candle{}, false
	}
	return b.Candles[len(b.Candles)-1], true
}

// TimestampUnit 表示交易所时间戳精度。
type TimestampUnit int

const (
	UnitSeconds TimestampUnit = iota
	UnitMilliseconds
)

func (u TimestampUnit) String() string {
	if u == UnitMilliseconds {
		return "ms"
	}
	return "s"
}

// Scale 把秒级时间戳换算到当前单位。
func (u TimestampUnit) Scale(seconds int64) int64 {
	if u == UnitMilliseconds {
		return seconds * 1000
	}
	return seconds
}

// Time 把当前单位的时间戳转换为 time.Time（UTC）。
func (u TimestampUnit) Time(ts int64) time.Time {
	if u == UnitMilliseconds {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}

// Span 把一个周期长度换算为当前单位下的步长。
func (u TimestampUnit) Span(d time.Duration) int64 {
	if u == UnitMilliseconds {
		return d.Milliseconds()
	}
	return int64(d / time.Second)
}
