// Package rediscache 以 Redis 作为序列的读穿缓存，可叠加在其他 SeriesStore 之上。
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"candlesync/internal/logger"
	"candlesync/internal/market"
	"candlesync/internal/store"

	"github.com/redis/go-redis/v9"
)

const defaultNamespace = "candlesync"

type Cache struct {
	inner     store.SeriesStore
	rdb       redis.Cmdable
	ttl       time.Duration
	namespace string
}

// New 包装 inner；inner 为 nil 时 Redis 是唯一存储。ttl<=0 表示不过期。
func New(rdb redis.Cmdable, ttl time.Duration, inner store.SeriesStore, namespace string) *Cache {
	if inner == nil {
		inner = store.Nop{}
	}
	if namespace == "" {
		namespace = defaultNamespace
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{inner: inner, rdb: rdb, ttl: ttl, namespace: namespace}
}

func (c *Cache) Load(ctx context.Context, key store.Key) (market.Series, error) {
	if c.rdb == nil {
		return c.inner.Load(ctx, key)
	}
	k := c.cacheKey(key)
	b, err := c.rdb.Get(ctx, k).Bytes()
	switch {
	case err == nil && len(b) > 0:
		var out market.Series
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		logger.Warnf("[store] redis %s 数据损坏，已删除", k)
		_ = c.rdb.Del(ctx, k).Err()
	case err != nil && !errors.Is(err, redis.Nil):
		if _, ok := c.inner.(store.Nop); ok {
			return market.Series{}, fmt.Errorf("redis get: %w", err)
		}
		logger.Warnf("[store] redis 读取 %s 失败: %v", k, err)
	}

	out, err := c.inner.Load(ctx, key)
	if err != nil {
		return market.Series{}, err
	}
	c.put(ctx, k, out)
	return out, nil
}

func (c *Cache) Save(ctx context.Context, key store.Key, series market.Series) error {
	if err := c.inner.Save(ctx, key, series); err != nil {
		return err
	}
	if c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("marshal series: %w", err)
	}
	if err := c.rdb.Set(ctx, c.cacheKey(key), b, c.ttl).Err(); err != nil {
		if _, ok := c.inner.(store.Nop); ok {
			return fmt.Errorf("redis set: %w", err)
		}
		logger.Warnf("[store] redis 写入失败，仅保留底层存储: %v", err)
	}
	return nil
}

// put 为尽力而为的回填。
func (c *Cache) put(ctx context.Context, k string, series market.Series) {
	b, err := json.Marshal(series)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, k, b, c.ttl).Err()
}

func (c *Cache) cacheKey(key store.Key) string {
	return c.namespace + ":" + strings.ReplaceAll(key.String(), " ", "_")
}
