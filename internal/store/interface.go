package store

import (
	"context"
	"errors"

	"candlesync/internal/market"
)

// ErrCacheMiss 表示存储中没有该 key 对应的序列。
var ErrCacheMiss = errors.New("series cache miss")

// SeriesStore 是下载结果的记忆化层：同一 Key 命中时跳过规划、调度与合并。
type SeriesStore interface {
	// Load 返回已保存的序列；未命中时返回 ErrCacheMiss。
	Load(ctx context.Context, key Key) (market.Series, error)
	// Save 覆盖写入整段序列。
	Save(ctx context.Context, key Key, series market.Series) error
}

// Nop 不做任何持久化，每次都视为未命中。
type Nop struct{}

func (Nop) Load(context.Context, Key) (market.Series, error) { return market.Series{}, ErrCacheMiss }

func (Nop) Save(context.Context, Key, market.Series) error { return nil }
