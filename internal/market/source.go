package market

import "context"

// FetchRequest 描述一次远端 K 线请求；Since 使用交易所原生单位，<=0 表示不限定起点。
type FetchRequest struct {
	Symbol    string
	Timeframe string
	Since     int64
	Limit     int
}

// Fetcher 是交易所 K 线拉取能力，需支持并发调用。
type Fetcher interface {
	FetchCandles(ctx context.Context, req FetchRequest) ([]Candle, error)
}

// WeightReporter 暴露最近一次响应携带的已用权重。
type WeightReporter interface {
	UsedWeight() int
}

// FetcherFunc 让普通函数满足 Fetcher。
type FetcherFunc func(ctx context.Context, req FetchRequest) ([]Candle, error)

func (f FetcherFunc) FetchCandles(ctx context.Context, req FetchRequest) ([]Candle, error) {
	return f(ctx, req)
}
