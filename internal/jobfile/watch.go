package jobfile

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"candlesync/internal/logger"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 300 * time.Millisecond

// ChangeListener 在任务文件重新加载成功后触发。
type ChangeListener func([]Job)

// Watch 监听任务文件所在目录，文件写入或替换后重新解析并回调；ctx 结束时退出。
func Watch(ctx context.Context, path string, fn ChangeListener) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher failed: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s failed: %w", filepath.Dir(abs), err)
	}
	go func() {
		defer w.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case evt, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != abs || !evt.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(reloadDebounce)
				fire = timer.C
			case <-fire:
				fire = nil
				jobs, err := Read(abs)
				if err != nil {
					logger.Errorf("[jobs] 任务文件重载失败: %v", err)
					continue
				}
				logger.Infof("[jobs] 任务文件重载，共 %d 个任务", len(jobs))
				notify(fn, jobs)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warnf("[jobs] watcher error: %v", err)
			}
		}
	}()
	return nil
}

func notify(fn ChangeListener, jobs []Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[jobs] listener panic: %v", r)
		}
	}()
	fn(jobs)
}
