package market

import (
	"fmt"
)

// Series 是合并后的有序 K 线序列：时间戳严格递增、无重复、无超过一个周期的缺口。
type Series struct {
	Market    string   `json:"market"`
	Timeframe string   `json:"timeframe"`
	Candles   []Candle `json:"candles"`
}

func (s Series) Len() int { return len(s.Candles) }

func (s Series) First() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[0], true
}

func (s Series) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// Equal 判断两个序列逐根相等。
func (s Series) Equal(o Series) bool {
	if s.Market != o.Market || s.Timeframe != o.Timeframe || len(s.Candles) != len(o.Candles) {
		return false
	}
	for i := range s.Candles {
		if !s.Candles[i].Equal(o.Candles[i]) {
			return false
		}
	}
	return true
}

// Validate 校验序列连续性，返回首个违反处。
func (s Series) Validate(maxGap int64) (Violation, bool) {
	return CheckContiguity(s.Candles, maxGap)
}

// Violation 描述一处连续性破坏。
type Violation struct {
	Index  int
	Prev   int64
	Next   int64
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("#%d %s (prev=%d next=%d)", v.Index, v.Reason, v.Prev, v.Next)
}

// CheckContiguity 返回首个违反连续性的位置；maxGap<=0 时只校验严格递增。
func CheckContiguity(candles []Candle, maxGap int64) (Violation, bool) {
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Timestamp
		next := candles[i].Timestamp
		switch {
		case next == prev:
			return Violation{Index: i, Prev: prev, Next: next, Reason: "duplicate timestamp"}, false
		case next < prev:
			return Violation{Index: i, Prev: prev, Next: next, Reason: "timestamp out of order"}, false
		case maxGap > 0 && next-prev > maxGap:
			return Violation{Index: i, Prev: prev, Next: next, Reason: "gap larger than one interval"}, false
		}
	}
	return Violation{}, true
}
