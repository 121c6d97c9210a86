package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timeframe 描述 K 线周期（交易所 interval + 名义时长）。
type Timeframe struct {
	Key      string
	Duration time.Duration
	// Calendar 表示按自然月切分，相邻 K 线间隔不固定。
	Calendar bool
}

const month = 30 * 24 * time.Hour

var supportedTimeframes = map[string]Timeframe{
	"1s":  {Key: "1s", Duration: time.Second},
	"1m":  {Key: "1m", Duration: time.Minute},
	"3m":  {Key: "3m", Duration: 3 * time.Minute},
	"5m":  {Key: "5m", Duration: 5 * time.Minute},
	"15m": {Key: "15m", Duration: 15 * time.Minute},
	"30m": {Key: "30m", Duration: 30 * time.Minute},
	"1h":  {Key: "1h", Duration: time.Hour},
	"2h":  {Key: "2h", Duration: 2 * time.Hour},
	"4h":  {Key: "4h", Duration: 4 * time.Hour},
	"6h":  {Key: "6h", Duration: 6 * time.Hour},
	"8h":  {Key: "8h", Duration: 8 * time.Hour},
	"12h": {Key: "12h", Duration: 12 * time.Hour},
	"1d":  {Key: "1d", Duration: 24 * time.Hour},
	"3d":  {Key: "3d", Duration: 72 * time.Hour},
	"1w":  {Key: "1w", Duration: 7 * 24 * time.Hour},
	"1M":  {Key: "1M", Duration: month, Calendar: true},
}

// ParseTimeframe 返回标准化周期定义；"1M"（月）区分大小写，其余不区分。
func ParseTimeframe(input string) (Timeframe, error) {
	key := strings.TrimSpace(input)
	if key != "1M" {
		key = strings.ToLower(key)
	}
	tf, ok := supportedTimeframes[key]
	if !ok {
		return Timeframe{}, fmt.Errorf("unsupported timeframe: %q (supported: %s)", input, strings.Join(SupportedTimeframes(), " "))
	}
	return tf, nil
}

// SupportedTimeframes 返回所有支持的 key（按时长排序）。
func SupportedTimeframes() []string {
	list := make([]Timeframe, 0, len(supportedTimeframes))
	for _, tf := range supportedTimeframes {
		list = append(list, tf)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Duration < list[j].Duration })
	keys := make([]string, 0, len(list))
	for _, tf := range list {
		keys = append(keys, tf.Key)
	}
	return keys
}

// Step 返回给定单位下一个周期的长度。
func (tf Timeframe) Step(unit TimestampUnit) int64 {
	return unit.Span(tf.Duration)
}

// MaxGap 返回相邻 K 线允许的最大时间差；月线取 31 天。
func (tf Timeframe) MaxGap(unit TimestampUnit) int64 {
	if tf.Calendar {
		return unit.Span(31 * 24 * time.Hour)
	}
	return tf.Step(unit)
}
