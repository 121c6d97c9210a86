package download

import (
	"sort"

	"candlesync/internal/logger"
	"candlesync/internal/market"
)

// Merge 以探测批次为起点，依窗口顺序拼接后续批次：每次先去掉已累积序列的最后一根
// （与下一批首根重叠），再整体追加。空批次表示历史已到末尾，合并就此停止。
func Merge(initial market.Batch, subsequent []market.Batch) []market.Candle {
	size := len(initial.Candles)
	for _, b := range subsequent {
		size += len(b.Candles)
	}
	out := make([]market.Candle, 0, size)
	out = append(out, initial.Candles...)

	ordered := append([]market.Batch(nil), subsequent...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	for _, b := range ordered {
		if b.Empty() {
			logger.Warnf("[download] 窗口 #%d 返回为空，停止合并", b.Index)
			break
		}
		if len(out) > 0 {
			out = out[:len(out)-1]
		}
		out = append(out, b.Candles...)
	}
	return out
}

// MergeSeries 合并并校验连续性；违反约束时返回 SeriesIntegrityError，不做修复。
func MergeSeries(mkt string, tf market.Timeframe, unit market.TimestampUnit, initial market.Batch, subsequent []market.Batch) (market.Series, error) {
	series := market.Series{Market: mkt, Timeframe: tf.Key, Candles: Merge(initial, subsequent)}
	if v, ok := series.Validate(tf.MaxGap(unit)); !ok {
		return market.Series{}, &SeriesIntegrityError{Market: mkt, Timeframe: tf.Key, Violation: v}
	}
	return series, nil
}
