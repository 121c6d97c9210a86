package config

import (
	"fmt"
	"net/url"
	"strings"

	"candlesync/internal/market"
	"candlesync/internal/pkg/symbol"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Download.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Journal.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(a.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text or json, got %q", a.LogFormat)
	}
	if a.Serve && strings.TrimSpace(a.HTTPAddr) == "" {
		return fmt.Errorf("app.http_addr is required when app.serve is true")
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	if e.Name != "binance" {
		return fmt.Errorf("exchange.name %q is not supported (only binance)", e.Name)
	}
	switch e.Client {
	case "sdk", "rest":
	default:
		return fmt.Errorf("exchange.client must be sdk or rest, got %q", e.Client)
	}
	if _, err := url.ParseRequestURI(e.RESTBaseURL); err != nil {
		return fmt.Errorf("exchange.rest_base_url is invalid: %w", err)
	}
	if e.ProxyEnabled && strings.TrimSpace(e.RESTProxyURL) == "" {
		return fmt.Errorf("exchange.rest_proxy_url is required when proxy_enabled is true")
	}
	if e.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("exchange.http_timeout_seconds must be > 0")
	}
	return nil
}

func (d *DownloadConfig) validate() error {
	if !symbol.IsValid(d.Market) {
		return fmt.Errorf("download.market %q is not a BASE/QUOTE pair", d.Market)
	}
	if _, err := market.ParseTimeframe(d.Timeframe); err != nil {
		return fmt.Errorf("download.timeframe: %w", err)
	}
	if d.Since < 0 {
		return fmt.Errorf("download.since must be >= 0")
	}
	if d.Limit < 1 {
		return fmt.Errorf("download.limit must be >= 1")
	}
	if d.DownloadSize < 1 {
		return fmt.Errorf("download.download_size must be >= 1")
	}
	if d.PerRequestMax < 2 {
		return fmt.Errorf("download.per_request_max must be >= 2")
	}
	if d.RequestWeight < 1 || d.WeightCeiling < 1 {
		return fmt.Errorf("download.request_weight and download.weight_ceiling must be >= 1")
	}
	if d.RequestWeight >= d.WeightCeiling {
		return fmt.Errorf("download.request_weight must be below download.weight_ceiling")
	}
	if wave := d.waveCost(); wave >= d.WeightCeiling {
		return fmt.Errorf("download.download_size * download.request_weight (%d) must be below download.weight_ceiling (%d)", wave, d.WeightCeiling)
	}
	if d.CooldownSeconds < 1 {
		return fmt.Errorf("download.cooldown_seconds must be >= 1")
	}
	if d.RequestTimeoutSeconds < 0 || d.RequestsPerMinute < 0 {
		return fmt.Errorf("download.request_timeout_seconds and download.requests_per_minute must be >= 0")
	}
	return nil
}

func (s *StoreConfig) validate() error {
	switch s.Backend {
	case "csv", "sqlite", "memory", "none":
	case "redis":
		if strings.TrimSpace(s.RedisAddr) == "" {
			return fmt.Errorf("store.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend must be csv, sqlite, memory, redis or none, got %q", s.Backend)
	}
	if s.RedisTTLSeconds < 0 {
		return fmt.Errorf("store.redis_ttl_seconds must be >= 0")
	}
	return nil
}

func (j *JournalConfig) validate() error {
	if j.Enabled && strings.TrimSpace(j.Path) == "" {
		return fmt.Errorf("journal.path is required when journal is enabled")
	}
	return nil
}

// waveCost 为单个波次的预计权重；顺序模式下每次只发一个请求。
func (d *DownloadConfig) waveCost() int {
	if !d.Multithreading {
		return d.RequestWeight
	}
	return d.DownloadSize * d.RequestWeight
}
