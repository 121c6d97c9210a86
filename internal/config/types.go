package config

import (
	"strings"
	"time"
)

// Config 是 candlesync 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Exchange ExchangeConfig `toml:"exchange"`
	Download DownloadConfig `toml:"download"`
	Store    StoreConfig    `toml:"store"`
	Journal  JournalConfig  `toml:"journal"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	// LogFormat 为 text 或 json。
	LogFormat string `toml:"log_format"`
	LogPath   string `toml:"log_path"`
	HTTPAddr  string `toml:"http_addr"`
	// Serve 为 true 时下载完成后继续提供 HTTP 接口。
	Serve bool `toml:"serve"`
}

// ExchangeConfig 描述交易所连接方式。
type ExchangeConfig struct {
	Name                  string `toml:"name"`
	Client                string `toml:"client"`
	RESTBaseURL           string `toml:"rest_base_url"`
	HTTPTimeoutSeconds    int    `toml:"http_timeout_seconds"`
	ProxyEnabled          bool   `toml:"proxy_enabled"`
	RESTProxyURL          string `toml:"rest_proxy_url"`
	BreakerThreshold      int    `toml:"breaker_threshold"`
	BreakerTimeoutSeconds int    `toml:"breaker_timeout_seconds"`
}

func (e ExchangeConfig) HTTPTimeout() time.Duration {
	return time.Duration(e.HTTPTimeoutSeconds) * time.Second
}

func (e ExchangeConfig) BreakerTimeout() time.Duration {
	return time.Duration(e.BreakerTimeoutSeconds) * time.Second
}

// DownloadConfig 为默认下载任务及调度参数。
type DownloadConfig struct {
	Market    string `toml:"market"`
	Timeframe string `toml:"timeframe"`
	// Since 为秒级时间戳。
	Since int64 `toml:"since"`
	Limit int   `toml:"limit"`

	Multithreading bool `toml:"multithreading"`
	// DownloadSize 为每个波次的并发请求数。
	DownloadSize  int `toml:"download_size"`
	PerRequestMax int `toml:"per_request_max"`

	RequestWeight         int  `toml:"request_weight"`
	WeightCeiling         int  `toml:"weight_ceiling"`
	CooldownSeconds       int  `toml:"cooldown_seconds"`
	AlignCooldown         bool `toml:"align_cooldown"`
	RequestTimeoutSeconds int  `toml:"request_timeout_seconds"`
	// RequestsPerMinute>0 时启用平滑限速。
	RequestsPerMinute int `toml:"requests_per_minute"`

	// JobsPath 指向批量任务文件；为空时只执行上面的单个任务。
	JobsPath string `toml:"jobs_path"`
}

func (d DownloadConfig) Cooldown() time.Duration {
	return time.Duration(d.CooldownSeconds) * time.Second
}

func (d DownloadConfig) RequestTimeout() time.Duration {
	return time.Duration(d.RequestTimeoutSeconds) * time.Second
}

// StoreConfig 选择序列存储后端。
type StoreConfig struct {
	Backend         string `toml:"backend"`
	Path            string `toml:"path"`
	RedisAddr       string `toml:"redis_addr"`
	RedisPassword   string `toml:"redis_password"`
	RedisDB         int    `toml:"redis_db"`
	RedisTTLSeconds int    `toml:"redis_ttl_seconds"`
	Namespace       string `toml:"namespace"`
}

func (s StoreConfig) RedisTTL() time.Duration {
	return time.Duration(s.RedisTTLSeconds) * time.Second
}

// BackendName 返回小写的后端名。
func (s StoreConfig) BackendName() string {
	return strings.ToLower(strings.TrimSpace(s.Backend))
}

type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
