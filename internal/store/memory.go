package store

import (
	"context"
	"sync"

	"candlesync/internal/market"
)

// MemoryStore 为进程内分片存储（store.backend=memory），进程退出即丢失。
type MemoryStore struct {
	shards []seriesShard
}

type seriesShard struct {
	mu   sync.RWMutex
	data map[string]market.Series
}

const defaultShardCount = 32

func NewMemoryStore() *MemoryStore {
	return newMemoryStore(defaultShardCount)
}

func newMemoryStore(shards int) *MemoryStore {
	if shards <= 0 {
		shards = 1
	}
	out := &MemoryStore{shards: make([]seriesShard, shards)}
	for i := range out.shards {
		out.shards[i] = seriesShard{data: make(map[string]market.Series)}
	}
	return out
}

func (s *MemoryStore) shardFor(k string) *seriesShard {
	idx := hashKey(k) % uint32(len(s.shards))
	return &s.shards[idx]
}

func (s *MemoryStore) Load(_ context.Context, key Key) (market.Series, error) {
	k := key.String()
	sh := s.shardFor(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	cur, ok := sh.data[k]
	if !ok {
		return market.Series{}, ErrCacheMiss
	}
	return cloneSeries(cur), nil
}

func (s *MemoryStore) Save(_ context.Context, key Key, series market.Series) error {
	if err := key.Validate(); err != nil {
		return err
	}
	k := key.String()
	sh := s.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.data[k] = cloneSeries(series)
	return nil
}

func cloneSeries(src market.Series) market.Series {
	dst := src
	dst.Candles = make([]market.Candle, len(src.Candles))
	copy(dst.Candles, src.Candles)
	return dst
}

func hashKey(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	var h uint32 = offset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
