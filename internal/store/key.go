package store

import (
	"fmt"
	"strings"
	"time"

	"candlesync/internal/pkg/symbol"
)

// Key 标识一次下载的参数组合；任一字段变化都会导致全量重新下载。
type Key struct {
	Market    string
	Timeframe string
	// Since 为配置中的秒级时间戳（未做单位换算）。
	Since int64
	Limit int
}

// FileName 形如 BTCUSDT_[31-12-21-23-00-00]_2500_candles_1d.csv（UTC）。
func (k Key) FileName() string {
	since := time.Unix(k.Since, 0).UTC().Format("[02-01-06-15-04-05]")
	return fmt.Sprintf("%s_%s_%d_candles_%s.csv", symbol.Compact(k.Market), since, k.Limit, k.Timeframe)
}

// String 用于缓存 key 与日志，例如 BTCUSDT:1d:1640991600:2500。
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d:%d", symbol.Compact(k.Market), strings.TrimSpace(k.Timeframe), k.Since, k.Limit)
}

func (k Key) Validate() error {
	if symbol.Compact(k.Market) == "" || strings.TrimSpace(k.Timeframe) == "" {
		return fmt.Errorf("market/timeframe 不能为空")
	}
	if k.Limit <= 0 {
		return fmt.Errorf("limit 必须大于 0")
	}
	return nil
}
