package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"candlesync/internal/market"
	"candlesync/internal/store"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = store.Key{Market: "BTC/USDT", Timeframe: "1d", Since: 1640991600, Limit: 2}

const cacheKey = "candles:BTCUSDT:1d:1640991600:2"

func sample() market.Series {
	return market.Series{Market: "BTC/USDT", Timeframe: "1d", Candles: []market.Candle{
		{Timestamp: 1640995200000, Open: decimal.RequireFromString("1.5"), High: decimal.NewFromInt(2), Low: decimal.NewFromInt(1), Close: decimal.RequireFromString("1.75"), Volume: decimal.NewFromInt(10)},
		{Timestamp: 1641081600000, Open: decimal.RequireFromString("1.75"), High: decimal.NewFromInt(3), Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(2), Volume: decimal.NewFromInt(11)},
	}}
}

func TestNewDefaults(t *testing.T) {
	c := New(nil, -time.Second, nil, "")
	assert.Equal(t, defaultNamespace, c.namespace)
	assert.Zero(t, c.ttl)
	assert.IsType(t, store.Nop{}, c.inner)
}

func TestLoadHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()
	raw, err := json.Marshal(sample())
	require.NoError(t, err)
	mock.ExpectGet(cacheKey).SetVal(string(raw))

	c := New(rdb, time.Hour, nil, "candles")
	got, err := c.Load(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, sample().Equal(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadMissFallsThroughAndBackfills(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()
	inner := store.NewMemoryStore()
	require.NoError(t, inner.Save(context.Background(), key, sample()))
	raw, err := json.Marshal(sample())
	require.NoError(t, err)

	mock.ExpectGet(cacheKey).RedisNil()
	mock.ExpectSet(cacheKey, raw, time.Hour).SetVal("OK")

	c := New(rdb, time.Hour, inner, "candles")
	got, err := c.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadMissWithoutInnerIsCacheMiss(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()
	mock.ExpectGet(cacheKey).RedisNil()

	c := New(rdb, 0, nil, "candles")
	_, err := c.Load(context.Background(), key)
	assert.ErrorIs(t, err, store.ErrCacheMiss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadRedisErrorWithoutInnerIsReturned(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()
	mock.ExpectGet(cacheKey).SetErr(errors.New("connection refused"))

	c := New(rdb, 0, nil, "candles")
	_, err := c.Load(context.Background(), key)
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrCacheMiss)
	assert.ErrorContains(t, err, "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadRedisErrorFallsBackToInner(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()
	inner := store.NewMemoryStore()
	require.NoError(t, inner.Save(context.Background(), key, sample()))
	raw, err := json.Marshal(sample())
	require.NoError(t, err)
	mock.ExpectGet(cacheKey).SetErr(errors.New("connection refused"))
	mock.ExpectSet(cacheKey, raw, 0).SetVal("OK")

	c := New(rdb, 0, inner, "candles")
	got, err := c.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCorruptEntryIsDeleted(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()
	mock.ExpectGet(cacheKey).SetVal("{not json")
	mock.ExpectDel(cacheKey).SetVal(1)

	c := New(rdb, 0, nil, "candles")
	_, err := c.Load(context.Background(), key)
	assert.ErrorIs(t, err, store.ErrCacheMiss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveWritesThrough(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()
	raw, err := json.Marshal(sample())
	require.NoError(t, err)
	mock.ExpectSet(cacheKey, raw, 0).SetVal("OK")

	inner := store.NewMemoryStore()
	c := New(rdb, 0, inner, "candles")
	require.NoError(t, c.Save(context.Background(), key, sample()))
	_, err = inner.Load(context.Background(), key)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveFailureOnlyFatalWithoutInner(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()
	raw, err := json.Marshal(sample())
	require.NoError(t, err)
	mock.ExpectSet(cacheKey, raw, 0).SetErr(errors.New("READONLY"))

	err = New(rdb, 0, nil, "candles").Save(context.Background(), key, sample())
	assert.ErrorContains(t, err, "READONLY")
}
