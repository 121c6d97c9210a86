package download

import "candlesync/internal/logger"

// ProgressSink 接收 (已完成, 总数) 通知，仅用于观察，不影响调度。
type ProgressSink interface {
	OnProgress(completed, total int)
}

type nopProgress struct{}

func (nopProgress) OnProgress(int, int) {}

// LogProgress 将进度写入日志。
type LogProgress struct {
	Label string
}

func (p LogProgress) OnProgress(completed, total int) {
	logger.Infof("[download] %s 请求进度 %d/%d (%d%%)", p.Label, completed, total, Percent(completed, total))
}

// Percent 返回向下取整的百分比。
func Percent(completed, total int) int {
	if total <= 0 {
		return 100
	}
	return completed * 100 / total
}
