package download

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"candlesync/internal/logger"
	"candlesync/internal/market"
	"candlesync/internal/pkg/symbol"
)

// Prober 是启动期校验所需的交易所能力。
type Prober interface {
	market.Fetcher
	Ping(ctx context.Context) error
	MarketExists(ctx context.Context, market string) error
}

// Params 是一次下载的启动参数（Since 为秒）。
type Params struct {
	Market        string
	Timeframe     string
	Since         int64
	Limit         int
	Concurrency   int
	PerRequestMax int
}

// CheckParams 做不需要网络的本地校验。
func CheckParams(p Params) error {
	if !symbol.IsValid(p.Market) {
		return configError(WrongMarket, p.Market, fmt.Errorf("expected BASE/QUOTE"))
	}
	if _, err := market.ParseTimeframe(p.Timeframe); err != nil {
		return configError(WrongTimeframe, p.Timeframe, err)
	}
	if p.Since < 0 {
		return configError(WrongSince, p.Since, fmt.Errorf("since must be >= 0"))
	}
	if p.Limit < 1 {
		return configError(WrongLimit, p.Limit, fmt.Errorf("limit must be >= 1"))
	}
	if p.PerRequestMax < 2 {
		return configError(WrongLimit, p.PerRequestMax, fmt.Errorf("per-request max must be >= 2"))
	}
	if p.Concurrency < 1 {
		return configError(WrongLimit, p.Concurrency, fmt.Errorf("concurrency must be >= 1"))
	}
	return nil
}

// Validate 在任何下载之前执行一次：交易所可达 → 交易对存在 → 周期可用 → 数量可用。
func Validate(ctx context.Context, pr Prober, p Params) error {
	if err := CheckParams(p); err != nil {
		return err
	}
	if err := pr.Ping(ctx); err != nil {
		return configError(WrongExchange, "binance", err)
	}
	if err := pr.MarketExists(ctx, p.Market); err != nil {
		return configError(WrongMarket, p.Market, err)
	}
	if _, err := pr.FetchCandles(ctx, market.FetchRequest{Symbol: p.Market, Timeframe: p.Timeframe, Limit: 1}); err != nil {
		return configError(WrongTimeframe, p.Timeframe, err)
	}
	trial := min(p.Limit, p.PerRequestMax)
	if _, err := pr.FetchCandles(ctx, market.FetchRequest{Symbol: p.Market, Timeframe: p.Timeframe, Limit: trial}); err != nil {
		return configError(WrongLimit, p.Limit, err)
	}
	logger.Infof("[download] 参数校验通过 %s %s since=%d limit=%d", p.Market, p.Timeframe, p.Since, p.Limit)
	return nil
}

// DetectUnit 以毫秒形式请求一次，并与当前秒级时间戳的位数比较，判断交易所时间戳单位。
func DetectUnit(ctx context.Context, f market.Fetcher, mkt, timeframe string, sinceSeconds int64, now func() time.Time) (market.TimestampUnit, error) {
	if now == nil {
		now = time.Now
	}
	candles, err := f.FetchCandles(ctx, market.FetchRequest{
		Symbol:    mkt,
		Timeframe: timeframe,
		Since:     sinceSeconds * 1000,
		Limit:     10,
	})
	if err != nil {
		return market.UnitSeconds, fmt.Errorf("detect timestamp unit: %w", err)
	}
	if len(candles) == 0 {
		return market.UnitSeconds, &EmptyRangeError{Market: mkt, Timeframe: timeframe, Since: sinceSeconds}
	}
	got := len(strconv.FormatInt(candles[0].Timestamp, 10))
	want := len(strconv.FormatInt(now().Unix(), 10))
	if got != want {
		return market.UnitMilliseconds, nil
	}
	return market.UnitSeconds, nil
}
