package download

import (
	"context"
	"time"

	"candlesync/internal/market"
)

type fetchResult struct {
	candles []market.Candle
	err     error
}

// fetchWithTimeout 在独立 goroutine 中执行 fn；超时或 ctx 取消时立即返回 ctx 错误，
// 不等待忽略 ctx 的调用结束。timeout<=0 时只受 ctx 约束。
func fetchWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) ([]market.Candle, error)) ([]market.Candle, error) {
	reqCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan fetchResult, 1)
	go func() {
		candles, err := fn(reqCtx)
		done <- fetchResult{candles: candles, err: err}
	}()
	select {
	case res := <-done:
		return res.candles, res.err
	case <-reqCtx.Done():
		return nil, reqCtx.Err()
	}
}
