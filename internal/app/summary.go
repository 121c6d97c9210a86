package app

import (
	"fmt"
	"strings"

	"candlesync/internal/config"
	"candlesync/internal/download"
)

type StartupSummary struct {
	Exchange ExchangeSummary
	Schedule ScheduleSummary
	Store    StoreSummary
	Jobs     []download.Request
}

type ExchangeSummary struct {
	Name    string
	Client  string
	BaseURL string
}

type ScheduleSummary struct {
	Multithreading bool
	WaveSize       int
	PerRequestMax  int
	WeightCeiling  int
	RequestWeight  int
	Cooldown       string
	Pacing         int
}

type StoreSummary struct {
	Backend string
	Path    string
	Redis   string
	Journal string
}

func newStartupSummary(cfg *config.Config, jobs []download.Request) *StartupSummary {
	s := &StartupSummary{
		Exchange: ExchangeSummary{
			Name:    cfg.Exchange.Name,
			Client:  cfg.Exchange.Client,
			BaseURL: cfg.Exchange.RESTBaseURL,
		},
		Schedule: ScheduleSummary{
			Multithreading: cfg.Download.Multithreading,
			WaveSize:       cfg.Download.DownloadSize,
			PerRequestMax:  cfg.Download.PerRequestMax,
			WeightCeiling:  cfg.Download.WeightCeiling,
			RequestWeight:  cfg.Download.RequestWeight,
			Cooldown:       cfg.Download.Cooldown().String(),
			Pacing:         cfg.Download.RequestsPerMinute,
		},
		Store: StoreSummary{
			Backend: cfg.Store.BackendName(),
			Path:    cfg.Store.Path,
			Redis:   cfg.Store.RedisAddr,
		},
		Jobs: jobs,
	}
	if cfg.Download.AlignCooldown {
		s.Schedule.Cooldown += " (对齐分钟边界)"
	}
	if cfg.Journal.Enabled {
		s.Store.Journal = cfg.Journal.Path
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[交易所 (EXCHANGE)]")
	fmt.Printf("  名称: %s (%s)\n", s.Exchange.Name, s.Exchange.Client)
	fmt.Printf("  地址: %s\n", orDash(s.Exchange.BaseURL))
	fmt.Println("  时间戳单位: 首个未命中本地存储的任务下载前检测")
	fmt.Println()

	fmt.Println("[调度 (SCHEDULING)]")
	if s.Schedule.Multithreading {
		fmt.Printf("  模式: 并发波次，每波 %d 个请求\n", s.Schedule.WaveSize)
	} else {
		fmt.Println("  模式: 顺序请求")
	}
	fmt.Printf("  单次上限: %d\n", s.Schedule.PerRequestMax)
	fmt.Printf("  权重: 每请求 %d / 上限 %d\n", s.Schedule.RequestWeight, s.Schedule.WeightCeiling)
	fmt.Printf("  冷却: %s\n", s.Schedule.Cooldown)
	if s.Schedule.Pacing > 0 {
		fmt.Printf("  平滑限速: %d 次/分钟\n", s.Schedule.Pacing)
	}
	fmt.Println()

	fmt.Println("[存储 (STORE)]")
	fmt.Printf("  后端: %s\n", s.Store.Backend)
	fmt.Printf("  路径: %s\n", orDash(s.Store.Path))
	fmt.Printf("  Redis: %s\n", orDash(s.Store.Redis))
	fmt.Printf("  任务记录: %s\n", orDash(s.Store.Journal))
	fmt.Println()

	fmt.Println("[下载任务 (JOBS)]")
	for i, job := range s.Jobs {
		fmt.Printf("  %d. %s\n", i+1, formatJob(job))
	}
	fmt.Println(strings.Repeat("=", 80))
}

func formatJob(job download.Request) string {
	return fmt.Sprintf("%s %s since=%d limit=%d", job.Market, job.Timeframe, job.Since, job.Limit)
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
