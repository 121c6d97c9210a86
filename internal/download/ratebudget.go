package download

import (
	"context"
	"time"

	"candlesync/internal/logger"
)

const (
	defaultWeightCeiling = 1200
	defaultRequestWeight = 1
	defaultCooldown      = 60 * time.Second
	cooldownLogStep      = 5 * time.Second
)

// RateState 是一次波次前对交易所权重的快照。
type RateState struct {
	UsedWeight int
	Ceiling    int
	WaveCost   int
}

func (s RateState) Throttled() bool {
	return ShouldThrottle(s.UsedWeight, s.WaveCost, s.Ceiling)
}

// ShouldThrottle 在已用权重加上预计消耗达到上限时返回 true。
func ShouldThrottle(used, projected, ceiling int) bool {
	return used+projected >= ceiling
}

type RateBudgetConfig struct {
	Ceiling       int
	RequestWeight int
	Cooldown      time.Duration
	// AlignToWindow 时冷却到交易所滚动窗口的下一个边界为止。
	AlignToWindow bool
	Window        time.Duration
}

// RateBudget 采用固定退避：触发后等待一个冷却周期，期间不再检查。
type RateBudget struct {
	ceiling       int
	requestWeight int
	cooldown      time.Duration
	align         bool
	window        time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRateBudget(cfg RateBudgetConfig) *RateBudget {
	b := &RateBudget{
		ceiling:       cfg.Ceiling,
		requestWeight: cfg.RequestWeight,
		cooldown:      cfg.Cooldown,
		align:         cfg.AlignToWindow,
		window:        cfg.Window,
		now:           time.Now,
		sleep:         sleepContext,
	}
	if b.ceiling <= 0 {
		b.ceiling = defaultWeightCeiling
	}
	if b.requestWeight <= 0 {
		b.requestWeight = defaultRequestWeight
	}
	if b.cooldown <= 0 {
		b.cooldown = defaultCooldown
	}
	if b.window <= 0 {
		b.window = time.Minute
	}
	return b
}

// Check 估算 requests 个请求的消耗并给出快照。
func (b *RateBudget) Check(used, requests int) RateState {
	return RateState{
		UsedWeight: used,
		Ceiling:    b.ceiling,
		WaveCost:   requests * b.requestWeight,
	}
}

func (b *RateBudget) Cooldown() time.Duration {
	if !b.align {
		return b.cooldown
	}
	now := b.now()
	next := now.Truncate(b.window).Add(b.window)
	return next.Sub(now) + time.Second
}

// Wait 阻塞一个冷却周期，每 5 秒输出一次剩余时间。
func (b *RateBudget) Wait(ctx context.Context) error {
	remaining := b.Cooldown()
	for remaining > 0 {
		logger.Warnf("[download] 触发限频，%s 后恢复", remaining.Round(time.Second))
		step := min(remaining, cooldownLogStep)
		if err := b.sleep(ctx, step); err != nil {
			return err
		}
		remaining -= step
	}
	logger.Infof("[download] 冷却结束，继续下载")
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
