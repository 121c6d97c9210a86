package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"candlesync/internal/config"
	"candlesync/internal/download"
	"candlesync/internal/gateway/binance"
	"candlesync/internal/jobfile"
	"candlesync/internal/logger"
	"candlesync/internal/market"
	"candlesync/internal/store"
	"candlesync/internal/store/csvfile"
	"candlesync/internal/store/gormstore"
	"candlesync/internal/store/rediscache"
	"candlesync/internal/store/sqlite"
	downloadhttp "candlesync/internal/transport/http/download"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const sqliteFileName = "candles.db"

// AppBuilder 按配置装配交易所、存储、调度器与下载器。
type AppBuilder struct {
	cfg *config.Config

	exchangeFn func(config.ExchangeConfig) (binance.Exchange, error)
	storeFn    func(config.StoreConfig) (store.SeriesStore, []io.Closer, error)
	journalFn  func(config.JournalConfig) (*gormstore.Journal, error)
	now        func() time.Time
}

type AppBuilderOption func(*AppBuilder)

// WithExchange 替换交易所实现（测试或回放使用）。
func WithExchange(ex binance.Exchange) AppBuilderOption {
	return func(b *AppBuilder) {
		b.exchangeFn = func(config.ExchangeConfig) (binance.Exchange, error) { return ex, nil }
	}
}

// WithStore 替换序列存储。
func WithStore(st store.SeriesStore) AppBuilderOption {
	return func(b *AppBuilder) {
		b.storeFn = func(config.StoreConfig) (store.SeriesStore, []io.Closer, error) { return st, nil, nil }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		exchangeFn: buildExchange,
		storeFn:    buildStore,
		journalFn:  buildJournal,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	jobs, err := b.collectJobs()
	if err != nil {
		return nil, err
	}

	st, closers, err := b.storeFn(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}
	app := &App{cfg: cfg, jobs: jobs, closers: closers}

	ex, err := b.exchangeFn(cfg.Exchange)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("初始化交易所失败: %w", err)
	}
	if err := b.validateJobs(ctx, ex, st, jobs); err != nil {
		app.Close()
		return nil, err
	}

	journal, err := b.journalFn(cfg.Journal)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("初始化任务记录失败: %w", err)
	}
	var recorder download.Recorder
	if journal != nil {
		recorder = journal
		app.closers = append(app.closers, journal)
	}

	detectUnit := func(ctx context.Context, req download.Request) (market.TimestampUnit, error) {
		return download.DetectUnit(ctx, ex, req.Market, req.Timeframe, req.Since, b.now)
	}
	dl, err := download.New(download.Config{
		Fetcher:       ex,
		Store:         st,
		Scheduler:     buildScheduler(cfg.Download, ex, jobs[0].Key().String()),
		Recorder:      recorder,
		DetectUnit:    detectUnit,
		PerRequestMax: cfg.Download.PerRequestMax,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.downloader = dl

	if cfg.App.Serve {
		srvCfg := downloadhttp.Config{Addr: cfg.App.HTTPAddr, Jobs: dl, Series: st}
		if journal != nil {
			srvCfg.Journal = journal
		}
		srv, err := downloadhttp.NewServer(srvCfg)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.http = srv
	}

	app.Summary = newStartupSummary(cfg, jobs)
	return app, nil
}

// validateJobs 只对本地未命中的任务访问交易所；已缓存的任务仅做本地参数检查，可离线读取。
func (b *AppBuilder) validateJobs(ctx context.Context, ex binance.Exchange, st store.SeriesStore, jobs []download.Request) error {
	for _, job := range jobs {
		params := b.params(job)
		if err := download.CheckParams(params); err != nil {
			return err
		}
		if _, err := st.Load(ctx, job.Key()); err == nil {
			logger.Infof("✓ %s 已在本地存储，跳过交易所校验", job.Key())
			continue
		}
		if err := download.Validate(ctx, ex, params); err != nil {
			return err
		}
	}
	return nil
}

// collectJobs 合并配置中的默认任务与任务文件中的任务，默认任务在前。
func (b *AppBuilder) collectJobs() ([]download.Request, error) {
	dc := b.cfg.Download
	jobs := []download.Request{{
		Market:    dc.Market,
		Timeframe: dc.Timeframe,
		Since:     dc.Since,
		Limit:     dc.Limit,
	}}
	if dc.JobsPath == "" {
		return jobs, nil
	}
	list, err := jobfile.Read(dc.JobsPath)
	if err != nil {
		return nil, err
	}
	for _, job := range list {
		jobs = append(jobs, job.Request())
	}
	logger.Infof("✓ 已从 %s 读取 %d 个下载任务", dc.JobsPath, len(list))
	return jobs, nil
}

func (b *AppBuilder) params(req download.Request) download.Params {
	dc := b.cfg.Download
	return download.Params{
		Market:        req.Market,
		Timeframe:     req.Timeframe,
		Since:         req.Since,
		Limit:         req.Limit,
		Concurrency:   dc.DownloadSize,
		PerRequestMax: dc.PerRequestMax,
	}
}

func buildExchange(cfg config.ExchangeConfig) (binance.Exchange, error) {
	gw := binance.Config{
		RESTBaseURL:      cfg.RESTBaseURL,
		HTTPTimeout:      cfg.HTTPTimeout(),
		ProxyEnabled:     cfg.ProxyEnabled,
		RESTProxyURL:     cfg.RESTProxyURL,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerTimeout:   cfg.BreakerTimeout(),
	}
	switch cfg.Client {
	case "rest":
		return binance.NewREST(gw)
	default:
		return binance.New(gw)
	}
}

func buildScheduler(cfg config.DownloadConfig, weights binance.Exchange, label string) *download.Scheduler {
	var pacer *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		pacer = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return download.NewScheduler(download.SchedulerConfig{
		Concurrency: cfg.DownloadSize,
		Sequential:  !cfg.Multithreading,
		Budget: download.NewRateBudget(download.RateBudgetConfig{
			Ceiling:       cfg.WeightCeiling,
			RequestWeight: cfg.RequestWeight,
			Cooldown:      cfg.Cooldown(),
			AlignToWindow: cfg.AlignCooldown,
		}),
		Weights:        weights,
		Pacer:          pacer,
		RequestTimeout: cfg.RequestTimeout(),
		Progress:       download.LogProgress{Label: label},
	})
}

// buildStore 返回主存储；配置了 redis_addr 时在文件/sqlite 之前加一层 redis 缓存。
func buildStore(cfg config.StoreConfig) (store.SeriesStore, []io.Closer, error) {
	var (
		base    store.SeriesStore
		closers []io.Closer
	)
	switch cfg.BackendName() {
	case "none":
		return store.Nop{}, nil, nil
	case "redis":
		base = store.Nop{}
	case "memory":
		base = store.NewMemoryStore()
	case "sqlite":
		db, err := sqlite.New(filepath.Join(cfg.Path, sqliteFileName))
		if err != nil {
			return nil, nil, err
		}
		base = db
		closers = append(closers, db)
	default:
		files, err := csvfile.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		base = files
	}
	if cfg.RedisAddr == "" {
		return base, closers, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	closers = append(closers, rdb)
	return rediscache.New(rdb, cfg.RedisTTL(), base, cfg.Namespace), closers, nil
}

func buildJournal(cfg config.JournalConfig) (*gormstore.Journal, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return gormstore.NewJournal(cfg.Path)
}
