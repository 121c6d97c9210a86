package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"candlesync/internal/config"
	"candlesync/internal/download"
	"candlesync/internal/market"
	"candlesync/internal/store"
	"candlesync/internal/store/csvfile"
	"candlesync/internal/store/rediscache"
	"candlesync/internal/store/sqlite"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dayMs     int64 = 24 * 60 * 60 * 1000
	jan2022Ms int64 = 1640995200000
)

// dailyExchange 模拟从 2022-01-01 开始的日线，时间戳为毫秒。
type dailyExchange struct {
	mu        sync.Mutex
	available int
	calls     int
	pingErr   error
}

func (e *dailyExchange) FetchCandles(_ context.Context, req market.FetchRequest) ([]market.Candle, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if req.Timeframe != "1d" {
		return nil, errors.New("invalid interval")
	}
	idx := 0
	if req.Since > jan2022Ms {
		idx = int((req.Since - jan2022Ms + dayMs - 1) / dayMs)
	}
	out := make([]market.Candle, 0, req.Limit)
	for i := idx; i < e.available && len(out) < req.Limit; i++ {
		p := decimal.NewFromInt(int64(100 + i))
		out = append(out, market.Candle{
			Timestamp: jan2022Ms + int64(i)*dayMs,
			Open:      p, High: p, Low: p, Close: p,
			Volume: decimal.NewFromInt(1),
		})
	}
	return out, nil
}

func (e *dailyExchange) UsedWeight() int { return 0 }

func (e *dailyExchange) Ping(context.Context) error {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.pingErr
}

func (e *dailyExchange) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *dailyExchange) MarketExists(_ context.Context, mkt string) error {
	if mkt != "BTC/USDT" {
		return fmt.Errorf("unknown market %s", mkt)
	}
	return nil
}

func loadConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body = fmt.Sprintf("store:\n  path: %s\n", filepath.Join(dir, "data")) + body
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestRunDownloadsConfiguredJob(t *testing.T) {
	cfg := loadConfig(t, "download:\n  limit: 1200\n  download_size: 4\n")
	ex := &dailyExchange{available: 5000}
	app, err := NewAppBuilder(cfg, WithExchange(ex)).Build(context.Background())
	require.NoError(t, err)
	require.NotNil(t, app.Summary)

	require.NoError(t, app.Run(context.Background()))
	unit, known := app.Downloader().Unit()
	assert.True(t, known)
	assert.Equal(t, market.UnitMilliseconds, unit)

	files, err := csvfile.New(cfg.Store.Path)
	require.NoError(t, err)
	key := store.Key{Market: "BTC/USDT", Timeframe: "1d", Since: 1640991600, Limit: 1200}
	series, err := files.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 1200, series.Len())
	first, _ := series.First()
	assert.Equal(t, jan2022Ms, first.Timestamp)
	_, ok := series.Validate(dayMs)
	assert.True(t, ok)
}

func TestRunSecondTimeHitsStore(t *testing.T) {
	cfg := loadConfig(t, "download:\n  limit: 10\n")
	ex := &dailyExchange{available: 100}
	mem := store.NewMemoryStore()

	app, err := NewAppBuilder(cfg, WithExchange(ex), WithStore(mem)).Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, app.Run(context.Background()))
	callsAfterFirst := ex.callCount()
	assert.Positive(t, callsAfterFirst)

	app, err = NewAppBuilder(cfg, WithExchange(ex), WithStore(mem)).Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, app.Run(context.Background()))
	assert.Equal(t, callsAfterFirst, ex.callCount(), "cached job must not touch the exchange")
}

func TestCachedJobRunsOffline(t *testing.T) {
	cfg := loadConfig(t, "download:\n  limit: 10\n")
	mem := store.NewMemoryStore()
	key := store.Key{Market: "BTC/USDT", Timeframe: "1d", Since: 1640991600, Limit: 10}
	candles := make([]market.Candle, 10)
	for i := range candles {
		candles[i] = market.Candle{Timestamp: jan2022Ms + int64(i)*dayMs, Close: decimal.NewFromInt(int64(i))}
	}
	require.NoError(t, mem.Save(context.Background(), key, market.Series{Market: "BTC/USDT", Timeframe: "1d", Candles: candles}))
	offline := &dailyExchange{pingErr: errors.New("dial tcp: network unreachable")}

	app, err := NewAppBuilder(cfg, WithExchange(offline), WithStore(mem)).Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, app.Run(context.Background()))
	assert.Zero(t, offline.callCount())
	_, known := app.Downloader().Unit()
	assert.False(t, known)
}

func TestBuildValidatesJobsThatMiss(t *testing.T) {
	cfg := loadConfig(t, "download:\n  limit: 10\n")
	offline := &dailyExchange{pingErr: errors.New("dial tcp: network unreachable")}
	_, err := NewAppBuilder(cfg, WithExchange(offline), WithStore(store.NewMemoryStore())).Build(context.Background())
	var cfgErr *download.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, download.WrongExchange, cfgErr.Kind)
}

func TestBuildRejectsUnknownMarket(t *testing.T) {
	cfg := loadConfig(t, "download:\n  market: ETH/USDT\n")
	_, err := NewAppBuilder(cfg, WithExchange(&dailyExchange{available: 10})).Build(context.Background())
	var cfgErr *download.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, download.WrongMarket, cfgErr.Kind)
}

func TestBuildIncludesJobsFile(t *testing.T) {
	dir := t.TempDir()
	jobs := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(jobs, []byte(`downloads:
  - market: BTCUSDT
    timeframe: 1d
    since: 1640991600
    limit: 5
`), 0o644))
	cfg := loadConfig(t, fmt.Sprintf("download:\n  limit: 3\n  jobs_path: %s\n", jobs))
	app, err := NewAppBuilder(cfg, WithExchange(&dailyExchange{available: 10}), WithStore(store.NewMemoryStore())).
		Build(context.Background())
	require.NoError(t, err)
	require.Len(t, app.jobs, 2)
	assert.Equal(t, "BTC/USDT", app.jobs[1].Market)
	assert.Equal(t, 5, app.jobs[1].Limit)
	require.NoError(t, app.Run(context.Background()))
}

func TestBuildStoreBackends(t *testing.T) {
	dir := t.TempDir()

	st, closers, err := buildStore(config.StoreConfig{Backend: "none"})
	require.NoError(t, err)
	assert.IsType(t, store.Nop{}, st)
	assert.Empty(t, closers)

	st, closers, err = buildStore(config.StoreConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, st)
	assert.Empty(t, closers)

	st, _, err = buildStore(config.StoreConfig{Backend: "csv", Path: dir})
	require.NoError(t, err)
	assert.IsType(t, &csvfile.Store{}, st)

	st, closers, err = buildStore(config.StoreConfig{Backend: "sqlite", Path: dir})
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, st)
	require.Len(t, closers, 1)
	assert.NoError(t, closers[0].Close())

	st, closers, err = buildStore(config.StoreConfig{Backend: "csv", Path: dir, RedisAddr: "127.0.0.1:6399"})
	require.NoError(t, err)
	assert.IsType(t, &rediscache.Cache{}, st)
	require.Len(t, closers, 1)
	assert.NoError(t, closers[0].Close())
}
