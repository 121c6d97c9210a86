package download

import (
	"context"
	"fmt"

	"candlesync/internal/logger"
	"candlesync/internal/market"
)

// PlanRequest 描述一次下载的范围，Since 已换算为交易所单位。
type PlanRequest struct {
	Market        string
	Timeframe     string
	Since         int64
	Total         int
	PerRequestMax int
}

// Plan 是规划结果：Windows[0] 为探测窗口，其结果保存在 Lead 中。
type Plan struct {
	Windows []market.Window
	Lead    market.Batch
	// Exhausted 表示探测批次不足请求数量，交易所已无更多历史。
	Exhausted bool
}

// Subsequent 返回探测之后仍需调度的窗口。
func (p Plan) Subsequent() []market.Window {
	if len(p.Windows) <= 1 {
		return nil
	}
	return p.Windows[1:]
}

// LeadRunner 执行探测窗口；为空时直接调用 fetcher。
type LeadRunner func(ctx context.Context, w market.Window, fetch WindowFetcher) ([]market.Candle, error)

// Planner 通过一次探测请求确定真实的 K 线间距，再生成后续窗口。
type Planner struct {
	fetcher market.Fetcher
	run     LeadRunner
}

func NewPlanner(fetcher market.Fetcher) *Planner {
	return &Planner{fetcher: fetcher}
}

// WithRunner 让探测请求走与后续窗口相同的调度约束（通常为 Scheduler.FetchOne）。
func (p *Planner) WithRunner(run LeadRunner) *Planner {
	p.run = run
	return p
}

func (p *Planner) fetchLead(ctx context.Context, req PlanRequest, w market.Window) ([]market.Candle, error) {
	fetch := func(ctx context.Context, w market.Window) ([]market.Candle, error) {
		return p.fetcher.FetchCandles(ctx, market.FetchRequest{
			Symbol:    req.Market,
			Timeframe: req.Timeframe,
			Since:     w.Since,
			Limit:     w.Count,
		})
	}
	if p.run == nil {
		candles, err := fetch(ctx, w)
		if err != nil {
			return nil, &FetchFailedError{Window: w, Err: err}
		}
		return candles, nil
	}
	return p.run(ctx, w, fetch)
}

func (p *Planner) Plan(ctx context.Context, req PlanRequest) (Plan, error) {
	if req.Total < 1 {
		return Plan{}, configError(WrongLimit, req.Total, fmt.Errorf("limit must be >= 1"))
	}
	if req.PerRequestMax < 1 {
		return Plan{}, configError(WrongLimit, req.PerRequestMax, fmt.Errorf("per-request max must be >= 1"))
	}
	if req.Total > req.PerRequestMax && req.PerRequestMax < 2 {
		return Plan{}, configError(WrongLimit, req.PerRequestMax, fmt.Errorf("per-request max must be >= 2 to overlap windows"))
	}
	lead := market.Window{Since: req.Since, Count: min(req.Total, req.PerRequestMax), Index: 0}
	candles, err := p.fetchLead(ctx, req, lead)
	if err != nil {
		return Plan{}, err
	}
	if len(candles) == 0 {
		return Plan{}, &EmptyRangeError{Market: req.Market, Timeframe: req.Timeframe, Since: req.Since}
	}
	plan := Plan{
		Windows: []market.Window{lead},
		Lead:    market.Batch{Index: lead.Index, Candles: candles},
	}
	if req.Total <= req.PerRequestMax {
		return plan, nil
	}
	if len(candles) < lead.Count {
		logger.Warnf("[download] %s %s 探测仅返回 %d/%d 根，历史已到末尾", req.Market, req.Timeframe, len(candles), lead.Count)
		plan.Exhausted = true
		return plan, nil
	}
	first, _ := plan.Lead.First()
	last, _ := plan.Lead.Last()
	offset := last.Timestamp - first.Timestamp
	plan.Windows = append(plan.Windows, GenerateWindows(first.Timestamp, offset, req.Total, req.PerRequestMax)...)
	logger.Debugf("[download] %s %s 规划完成 offset=%d windows=%d", req.Market, req.Timeframe, offset, len(plan.Windows))
	return plan, nil
}

// GenerateWindows 从探测批次首根时间戳开始，每次前进 offset，相邻窗口共享一根重叠 K 线。
func GenerateWindows(firstTS, offset int64, total, perRequestMax int) []market.Window {
	remaining := total - perRequestMax
	if remaining <= 0 || perRequestMax < 2 {
		return nil
	}
	out := make([]market.Window, 0, remaining/(perRequestMax-1)+1)
	current := firstTS
	for idx := 1; remaining > 0; idx++ {
		current += offset
		out = append(out, market.Window{
			Since: current,
			Count: min(remaining+1, perRequestMax),
			Index: idx,
		})
		remaining -= perRequestMax - 1
	}
	return out
}
