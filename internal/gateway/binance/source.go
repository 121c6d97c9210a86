package binance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"candlesync/internal/logger"
	"candlesync/internal/market"
	"candlesync/internal/pkg/circuit"
	"candlesync/internal/pkg/convert"
	symbolpkg "candlesync/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

// Exchange 是下载器对交易所的全部需求：拉取、权重、启动校验。
type Exchange interface {
	market.Fetcher
	market.WeightReporter
	Ping(ctx context.Context) error
	MarketExists(ctx context.Context, market string) error
}

// Source 基于 go-binance SDK 的现货 K 线数据源。
type Source struct {
	cfg     Config
	client  *binance.Client
	weights *weightTransport
	breaker *circuit.CircuitBreaker
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	httpClient, weights, err := newHTTPClient(final)
	if err != nil {
		return nil, err
	}
	client := binance.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = httpClient
	return &Source{
		cfg:     final,
		client:  client,
		weights: weights,
		breaker: circuit.NewCircuitBreaker("binance", final.BreakerThreshold, final.BreakerTimeout),
	}, nil
}

func (s *Source) FetchCandles(ctx context.Context, req market.FetchRequest) ([]market.Candle, error) {
	sym, interval, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}
	svc := s.client.NewKlinesService().Symbol(sym).Interval(interval)
	if req.Since > 0 {
		svc = svc.StartTime(req.Since)
	}
	if req.Limit > 0 {
		svc = svc.Limit(req.Limit)
	}
	var kls []*binance.Kline
	err = s.breaker.Do(func() error {
		var callErr error
		kls, callErr = svc.Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, describeError("klines", err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		c, err := toCandle(kl.OpenTime, kl.Open, kl.High, kl.Low, kl.Close, kl.Volume)
		if err != nil {
			return nil, fmt.Errorf("binance kline %d: %w", kl.OpenTime, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Source) UsedWeight() int { return s.weights.UsedWeight() }

func (s *Source) Ping(ctx context.Context) error {
	err := s.breaker.Do(func() error {
		return s.client.NewPingService().Do(ctx)
	})
	if err != nil {
		return describeError("ping", err)
	}
	return nil
}

func (s *Source) MarketExists(ctx context.Context, mkt string) error {
	sym := symbolpkg.Binance.ToExchange(mkt)
	if sym == "" {
		return fmt.Errorf("invalid market %q", mkt)
	}
	var info *binance.ExchangeInfo
	err := s.breaker.Do(func() error {
		var callErr error
		info, callErr = s.client.NewExchangeInfoService().Symbol(sym).Do(ctx)
		return callErr
	})
	if err != nil {
		return describeError("exchangeInfo", err)
	}
	for _, item := range info.Symbols {
		if strings.EqualFold(item.Symbol, sym) {
			if item.Status != "" && item.Status != "TRADING" {
				logger.Warnf("[binance] %s 状态为 %s", sym, item.Status)
			}
			return nil
		}
	}
	return fmt.Errorf("market %s not listed", sym)
}

func normalizeRequest(req market.FetchRequest) (string, string, error) {
	sym := symbolpkg.Binance.ToExchange(req.Symbol)
	if sym == "" {
		return "", "", fmt.Errorf("symbol is required")
	}
	tf, err := market.ParseTimeframe(req.Timeframe)
	if err != nil {
		return "", "", err
	}
	return sym, tf.Key, nil
}

func toCandle(openTime int64, open, high, low, closePrice, volume any) (market.Candle, error) {
	c := market.Candle{Timestamp: openTime}
	var err error
	if c.Open, err = convert.ToDecimal(open); err != nil {
		return c, fmt.Errorf("open: %w", err)
	}
	if c.High, err = convert.ToDecimal(high); err != nil {
		return c, fmt.Errorf("high: %w", err)
	}
	if c.Low, err = convert.ToDecimal(low); err != nil {
		return c, fmt.Errorf("low: %w", err)
	}
	if c.Close, err = convert.ToDecimal(closePrice); err != nil {
		return c, fmt.Errorf("close: %w", err)
	}
	if c.Volume, err = convert.ToDecimal(volume); err != nil {
		return c, fmt.Errorf("volume: %w", err)
	}
	return c, nil
}

// describeError 保留交易所错误码，便于区分参数错误与网络错误。
func describeError(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("binance %s: code=%d msg=%s: %w", op, apiErr.Code, apiErr.Message, err)
	}
	return fmt.Errorf("binance %s: %w", op, err)
}
