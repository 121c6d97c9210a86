package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"candlesync/internal/config"
	"candlesync/internal/download"
	"candlesync/internal/jobfile"
	"candlesync/internal/logger"
	downloadhttp "candlesync/internal/transport/http/download"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：执行配置中的下载任务，按需启动 HTTP 服务并监听任务文件。
type App struct {
	cfg        *config.Config
	downloader *download.Downloader
	http       *downloadhttp.Server
	jobs       []download.Request
	closers    []io.Closer
	Summary    *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return buildAppWithWire(context.Background(), cfg)
}

// Run 依次执行启动任务；serve 模式下继续提供 HTTP 接口直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.downloader == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()
	if a.Summary != nil {
		a.Summary.Print()
	}
	a.downloader.SetContext(ctx)

	failed := a.runJobs(ctx, a.jobs)
	if a.http == nil {
		return failed
	}
	if failed != nil {
		logger.Errorf("[app] 启动任务失败，继续提供 HTTP 服务: %v", failed)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("[app] HTTP 服务监听 %s", a.cfg.App.HTTPAddr)
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("download http server error: %w", err)
		}
		return nil
	})
	if path := a.cfg.Download.JobsPath; path != "" {
		group.Go(func() error {
			return jobfile.Watch(ctx, path, a.resubmit)
		})
	}
	return group.Wait()
}

// runJobs 串行执行任务，返回所有失败任务合并后的错误。
func (a *App) runJobs(ctx context.Context, jobs []download.Request) error {
	var errs []error
	for _, job := range jobs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := a.downloader.Download(ctx, job)
		if err != nil {
			logger.Errorf("[app] %s 下载失败: %v", job.Key(), err)
			errs = append(errs, fmt.Errorf("%s: %w", job.Key(), err))
			continue
		}
		logger.Infof("[app] %s 共 %d 根 K 线", job.Key(), res.Series.Len())
	}
	return errors.Join(errs...)
}

// resubmit 在任务文件变更后把全部任务重新提交；已缓存的任务会直接命中存储。
func (a *App) resubmit(jobs []jobfile.Job) {
	for _, job := range jobs {
		id, err := a.downloader.Submit(job.Request())
		if err != nil {
			logger.Warnf("[app] 任务文件中的 %s %s 提交失败: %v", job.Market, job.Timeframe, err)
			continue
		}
		logger.Infof("[app] 任务文件变更，已提交 %s %s (%s)", job.Market, job.Timeframe, id)
	}
}

// Close 释放存储与 journal 连接。
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logger.Warnf("[app] 关闭资源失败: %v", err)
		}
	}
	a.closers = nil
}

// Downloader 暴露底层下载器（测试使用）。
func (a *App) Downloader() *download.Downloader {
	if a == nil {
		return nil
	}
	return a.downloader
}
