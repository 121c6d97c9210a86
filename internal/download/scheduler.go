package download

import (
	"context"
	"time"

	"candlesync/internal/logger"
	"candlesync/internal/market"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// WindowFetcher 拉取单个窗口的 K 线。
type WindowFetcher func(ctx context.Context, w market.Window) ([]market.Candle, error)

type SchedulerConfig struct {
	// Concurrency 为每个波次的窗口数。
	Concurrency int
	// Sequential 时逐个请求，限频检查同样按请求进行。
	Sequential bool
	Budget     *RateBudget
	Weights    market.WeightReporter
	// Pacer 可选，在每个请求前平滑发送速率。
	Pacer          *rate.Limiter
	RequestTimeout time.Duration
	Progress       ProgressSink
}

// Scheduler 按波次并发执行窗口：一个波次全部返回后，才读取权重并决定是否冷却，再发下一波。
type Scheduler struct {
	concurrency int
	sequential  bool
	budget      *RateBudget
	weights     market.WeightReporter
	pacer       *rate.Limiter
	timeout     time.Duration
	progress    ProgressSink
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		concurrency: cfg.Concurrency,
		sequential:  cfg.Sequential,
		budget:      cfg.Budget,
		weights:     cfg.Weights,
		pacer:       cfg.Pacer,
		timeout:     cfg.RequestTimeout,
		progress:    cfg.Progress,
	}
	if s.concurrency <= 0 {
		s.concurrency = 1
	}
	if s.progress == nil {
		s.progress = nopProgress{}
	}
	return s
}

// WaveSize 返回每个波次实际派发的窗口数。
func (s *Scheduler) WaveSize() int {
	if s.sequential {
		return 1
	}
	return s.concurrency
}

// Execute 返回与 windows 一一对应的批次；任一请求失败即中止，不返回部分结果。
func (s *Scheduler) Execute(ctx context.Context, windows []market.Window, fetch WindowFetcher) ([]market.Batch, error) {
	total := len(windows)
	if total == 0 {
		return nil, nil
	}
	results := make([]market.Batch, total)
	size := s.WaveSize()
	for start := 0; start < total; start += size {
		end := min(start+size, total)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.throttle(ctx, end-start); err != nil {
			return nil, err
		}
		if err := s.runWave(ctx, windows[start:end], results[start:end], fetch); err != nil {
			logger.Errorf("[download] 波次 [%d,%d) 失败: %v", start, end, err)
			return nil, err
		}
		s.progress.OnProgress(end, total)
	}
	return results, nil
}

// runWave 并发执行一个波次；每个 worker 只写自己的槽位，失败时其余请求照常返回后丢弃。
func (s *Scheduler) runWave(ctx context.Context, wave []market.Window, slots []market.Batch, fetch WindowFetcher) error {
	var g errgroup.Group
	for i := range wave {
		w := wave[i]
		slot := &slots[i]
		g.Go(func() error {
			return s.fetchInto(ctx, w, slot, fetch)
		})
	}
	return g.Wait()
}

func (s *Scheduler) fetchInto(ctx context.Context, w market.Window, slot *market.Batch, fetch WindowFetcher) error {
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx); err != nil {
			return &FetchFailedError{Window: w, Err: err}
		}
	}
	candles, err := fetchWithTimeout(ctx, s.timeout, func(ctx context.Context) ([]market.Candle, error) {
		return fetch(ctx, w)
	})
	if err != nil {
		return &FetchFailedError{Window: w, Err: err}
	}
	*slot = market.Batch{Index: w.Index, Candles: candles}
	return nil
}

// FetchOne 按与波次相同的规则执行单个窗口：限频检查、平滑限速、单请求超时。
func (s *Scheduler) FetchOne(ctx context.Context, w market.Window, fetch WindowFetcher) ([]market.Candle, error) {
	if err := s.throttle(ctx, 1); err != nil {
		return nil, &FetchFailedError{Window: w, Err: err}
	}
	var slot market.Batch
	if err := s.fetchInto(ctx, w, &slot, fetch); err != nil {
		return nil, err
	}
	return slot.Candles, nil
}

func (s *Scheduler) throttle(ctx context.Context, requests int) error {
	if s.budget == nil || s.weights == nil {
		return nil
	}
	state := s.budget.Check(s.weights.UsedWeight(), requests)
	if !state.Throttled() {
		return nil
	}
	logger.Warnf("[download] 已用权重 %d + 预计 %d >= 上限 %d", state.UsedWeight, state.WaveCost, state.Ceiling)
	return s.budget.Wait(ctx)
}
