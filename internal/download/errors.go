package download

import (
	"fmt"

	"candlesync/internal/market"
)

// ConfigKind 标识哪一项启动参数未通过校验。
type ConfigKind string

const (
	WrongExchange  ConfigKind = "exchange"
	WrongMarket    ConfigKind = "market"
	WrongTimeframe ConfigKind = "timeframe"
	WrongLimit     ConfigKind = "limit"
	WrongSince     ConfigKind = "since"
)

// ConfigurationError 在启动阶段发现参数无效时返回，不可重试。
type ConfigurationError struct {
	Kind  ConfigKind
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("invalid %s %q", e.Kind, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configError(kind ConfigKind, value any, err error) *ConfigurationError {
	return &ConfigurationError{Kind: kind, Value: fmt.Sprint(value), Err: err}
}

// EmptyRangeError 表示起始时间之后没有任何 K 线。
type EmptyRangeError struct {
	Market    string
	Timeframe string
	Since     int64
}

func (e *EmptyRangeError) Error() string {
	return fmt.Sprintf("no candles for %s %s since %d", e.Market, e.Timeframe, e.Since)
}

// FetchFailedError 表示某个窗口请求失败，整个下载随之中止。
type FetchFailedError struct {
	Window market.Window
	Err    error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch window #%d (since=%d count=%d) failed: %v", e.Window.Index, e.Window.Since, e.Window.Count, e.Err)
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

// SeriesIntegrityError 表示合并后的序列违反连续性约束，属于调度或交易所缺陷。
type SeriesIntegrityError struct {
	Market    string
	Timeframe string
	Violation market.Violation
}

func (e *SeriesIntegrityError) Error() string {
	return fmt.Sprintf("series %s %s integrity violated at %s", e.Market, e.Timeframe, e.Violation)
}
