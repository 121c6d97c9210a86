package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"candlesync/internal/logger"
	"candlesync/internal/market"
	"candlesync/internal/store"

	"github.com/google/uuid"
)

const defaultPerRequestMax = 1000

// Request 是一次下载的业务参数；Since 为秒级时间戳。
type Request struct {
	Market    string `json:"market"`
	Timeframe string `json:"timeframe"`
	Since     int64  `json:"since"`
	Limit     int    `json:"limit"`
}

func (r Request) Key() store.Key {
	return store.Key{Market: r.Market, Timeframe: r.Timeframe, Since: r.Since, Limit: r.Limit}
}

// Result 是下载结果。
type Result struct {
	JobID    string
	Series   market.Series
	CacheHit bool
	Windows  int
	Elapsed  time.Duration
}

// Job status values recorded in the journal.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Outcome 在任务结束时交给 Recorder。
type Outcome struct {
	Status   string
	CacheHit bool
	Windows  int
	Candles  int
	Elapsed  time.Duration
	Err      error
}

// UnitDetector 在首个未命中缓存的任务上判定交易所时间戳单位。
type UnitDetector func(ctx context.Context, req Request) (market.TimestampUnit, error)

// Recorder 记录下载任务（例如写入 journal）。
type Recorder interface {
	Begin(ctx context.Context, id string, req Request) error
	Complete(ctx context.Context, id string, out Outcome) error
}

type Config struct {
	Fetcher       market.Fetcher
	Store         store.SeriesStore
	Scheduler     *Scheduler
	Recorder      Recorder
	// Unit 为已知单位；设置 DetectUnit 时忽略，改为首次下载前检测。
	Unit          market.TimestampUnit
	DetectUnit    UnitDetector
	PerRequestMax int
}

// Downloader 串联 存储命中 → 规划 → 波次调度 → 合并校验 → 保存。
type Downloader struct {
	fetcher       market.Fetcher
	store         store.SeriesStore
	planner       *Planner
	scheduler     *Scheduler
	recorder      Recorder
	perRequestMax int

	unitMu     sync.Mutex
	unit       market.TimestampUnit
	unitKnown  bool
	detectUnit UnitDetector

	// 任务串行执行，保证权重信号只反映当前任务。
	sem     chan struct{}
	mu      sync.Mutex
	baseCtx context.Context
}

func New(cfg Config) (*Downloader, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher 不能为空")
	}
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("scheduler 不能为空")
	}
	st := cfg.Store
	if st == nil {
		st = store.Nop{}
	}
	perRequestMax := cfg.PerRequestMax
	if perRequestMax <= 0 {
		perRequestMax = defaultPerRequestMax
	}
	return &Downloader{
		fetcher:       cfg.Fetcher,
		store:         st,
		planner:       NewPlanner(cfg.Fetcher).WithRunner(cfg.Scheduler.FetchOne),
		scheduler:     cfg.Scheduler,
		recorder:      cfg.Recorder,
		unit:          cfg.Unit,
		unitKnown:     cfg.DetectUnit == nil,
		detectUnit:    cfg.DetectUnit,
		perRequestMax: perRequestMax,
		sem:           make(chan struct{}, 1),
		baseCtx:       context.Background(),
	}, nil
}

// SetContext 注入宿主 ctx，用于异步任务取消。
func (d *Downloader) SetContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	d.mu.Lock()
	d.baseCtx = ctx
	d.mu.Unlock()
}

func (d *Downloader) ctx() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baseCtx
}

// Unit 返回时间戳单位；尚未检测时 ok 为 false。
func (d *Downloader) Unit() (market.TimestampUnit, bool) {
	d.unitMu.Lock()
	defer d.unitMu.Unlock()
	return d.unit, d.unitKnown
}

func (d *Downloader) timestampUnit(ctx context.Context, req Request) (market.TimestampUnit, error) {
	d.unitMu.Lock()
	defer d.unitMu.Unlock()
	if d.unitKnown {
		return d.unit, nil
	}
	unit, err := d.detectUnit(ctx, req)
	if err != nil {
		return unit, err
	}
	d.unit, d.unitKnown = unit, true
	logger.Infof("[download] 交易所时间戳单位: %s", unit)
	return unit, nil
}

// Store 暴露底层存储（HTTP 查询使用）。
func (d *Downloader) Store() store.SeriesStore { return d.store }

// Download 同步执行一次下载。
func (d *Downloader) Download(ctx context.Context, req Request) (Result, error) {
	id := uuid.NewString()
	if err := d.begin(ctx, id, req); err != nil {
		return Result{}, err
	}
	return d.run(ctx, id, req)
}

// Submit 登记任务后异步执行，返回任务 ID。
func (d *Downloader) Submit(req Request) (string, error) {
	if _, err := market.ParseTimeframe(req.Timeframe); err != nil {
		return "", configError(WrongTimeframe, req.Timeframe, err)
	}
	if err := req.Key().Validate(); err != nil {
		return "", configError(WrongLimit, req.Limit, err)
	}
	ctx := d.ctx()
	id := uuid.NewString()
	if err := d.begin(ctx, id, req); err != nil {
		return "", err
	}
	go func() {
		if _, err := d.run(ctx, id, req); err != nil {
			logger.Errorf("[download] 任务 %s 失败: %v", id, err)
		}
	}()
	return id, nil
}

func (d *Downloader) begin(ctx context.Context, id string, req Request) error {
	if d.recorder == nil {
		return nil
	}
	if err := d.recorder.Begin(ctx, id, req); err != nil {
		return fmt.Errorf("record job %s: %w", id, err)
	}
	return nil
}

func (d *Downloader) run(ctx context.Context, id string, req Request) (Result, error) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		d.complete(id, Outcome{Status: StatusFailed, Err: ctx.Err()})
		return Result{}, ctx.Err()
	}
	defer func() { <-d.sem }()

	started := time.Now()
	res, err := d.download(ctx, req)
	res.JobID = id
	res.Elapsed = time.Since(started)
	out := Outcome{
		Status:   StatusDone,
		CacheHit: res.CacheHit,
		Windows:  res.Windows,
		Candles:  res.Series.Len(),
		Elapsed:  res.Elapsed,
	}
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
	}
	d.complete(id, out)
	if err != nil {
		return Result{}, err
	}
	first, _ := res.Series.First()
	last, _ := res.Series.Last()
	logger.Infof("[download] 任务 %s 完成 %s 命中缓存=%v 窗口=%d K线=%d 范围=[%d,%d] 耗时=%s",
		id, req.Key(), res.CacheHit, res.Windows, res.Series.Len(), first.Timestamp, last.Timestamp, res.Elapsed.Round(time.Millisecond))
	return res, nil
}

func (d *Downloader) complete(id string, out Outcome) {
	if d.recorder == nil {
		return
	}
	// 任务可能因 ctx 取消而结束，journal 写入不应随之失败。
	if err := d.recorder.Complete(context.WithoutCancel(d.ctx()), id, out); err != nil {
		logger.Warnf("[download] 任务 %s 状态写入失败: %v", id, err)
	}
}

func (d *Downloader) download(ctx context.Context, req Request) (Result, error) {
	tf, err := market.ParseTimeframe(req.Timeframe)
	if err != nil {
		return Result{}, configError(WrongTimeframe, req.Timeframe, err)
	}
	key := req.Key()
	cached, err := d.store.Load(ctx, key)
	switch {
	case err == nil:
		logger.Infof("[download] %s 命中本地数据，跳过下载", key)
		return Result{Series: cached, CacheHit: true}, nil
	case !errors.Is(err, store.ErrCacheMiss):
		logger.Warnf("[download] %s 读取缓存失败，重新下载: %v", key, err)
	}

	unit, err := d.timestampUnit(ctx, req)
	if err != nil {
		return Result{}, err
	}
	plan, err := d.planner.Plan(ctx, PlanRequest{
		Market:        req.Market,
		Timeframe:     tf.Key,
		Since:         unit.Scale(req.Since),
		Total:         req.Limit,
		PerRequestMax: d.perRequestMax,
	})
	if err != nil {
		return Result{}, err
	}
	subsequent := plan.Subsequent()
	logger.Infof("[download] %s 共 %d 个窗口，待调度 %d 个", key, len(plan.Windows), len(subsequent))

	batches, err := d.scheduler.Execute(ctx, subsequent, func(ctx context.Context, w market.Window) ([]market.Candle, error) {
		return d.fetcher.FetchCandles(ctx, market.FetchRequest{
			Symbol:    req.Market,
			Timeframe: tf.Key,
			Since:     w.Since,
			Limit:     w.Count,
		})
	})
	if err != nil {
		return Result{}, err
	}
	series, err := MergeSeries(req.Market, tf, unit, plan.Lead, batches)
	if err != nil {
		return Result{}, err
	}
	if err := d.store.Save(ctx, key, series); err != nil {
		return Result{}, fmt.Errorf("save series %s: %w", key, err)
	}
	return Result{Series: series, Windows: len(plan.Windows)}, nil
}
