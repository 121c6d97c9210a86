package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogFormat    = "text"
	defaultAppHTTPAddr     = ":9992"
	defaultExchangeName    = "binance"
	defaultExchangeClient  = "sdk"
	defaultExchangeREST    = "https://api.binance.com"
	defaultHTTPTimeout     = 15
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30
	defaultMarket          = "BTC/USDT"
	defaultTimeframe       = "1d"
	defaultSince           = 1640991600
	defaultLimit           = 1000
	defaultDownloadSize    = 100
	defaultPerRequestMax   = 1000
	defaultRequestWeight   = 2
	defaultWeightCeiling   = 1200
	defaultCooldownSeconds = 60
	defaultRequestTimeout  = 15
	defaultStoreBackend    = "csv"
	defaultStorePath       = "data"
	defaultStoreNamespace  = "candlesync"
	defaultJournalPath     = "data/journal.db"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Download.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Journal.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.name", &e.Name, defaultExchangeName),
		stringFieldDefault("exchange.client", &e.Client, defaultExchangeClient),
		stringFieldDefault("exchange.rest_base_url", &e.RESTBaseURL, defaultExchangeREST),
		intFieldDefault("exchange.http_timeout_seconds", &e.HTTPTimeoutSeconds, defaultHTTPTimeout),
		intFieldDefault("exchange.breaker_threshold", &e.BreakerThreshold, defaultBreakerFailures),
		intFieldDefault("exchange.breaker_timeout_seconds", &e.BreakerTimeoutSeconds, defaultBreakerTimeout),
	)
	e.Name = strings.ToLower(strings.TrimSpace(e.Name))
	e.Client = strings.ToLower(strings.TrimSpace(e.Client))
}

func (d *DownloadConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("download.market", &d.Market, defaultMarket),
		stringFieldDefault("download.timeframe", &d.Timeframe, defaultTimeframe),
		fieldDefault{
			key:   "download.since",
			need:  func() bool { return d.Since == 0 },
			apply: func() { d.Since = defaultSince },
		},
		intFieldDefault("download.limit", &d.Limit, defaultLimit),
		boolFieldDefault("download.multithreading", &d.Multithreading, true),
		intFieldDefault("download.download_size", &d.DownloadSize, defaultDownloadSize),
		intFieldDefault("download.per_request_max", &d.PerRequestMax, defaultPerRequestMax),
		intFieldDefault("download.request_weight", &d.RequestWeight, defaultRequestWeight),
		intFieldDefault("download.weight_ceiling", &d.WeightCeiling, defaultWeightCeiling),
		intFieldDefault("download.cooldown_seconds", &d.CooldownSeconds, defaultCooldownSeconds),
		intFieldDefault("download.request_timeout_seconds", &d.RequestTimeoutSeconds, defaultRequestTimeout),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.backend", &s.Backend, defaultStoreBackend),
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
		stringFieldDefault("store.namespace", &s.Namespace, defaultStoreNamespace),
	)
	s.Backend = s.BackendName()
}

func (j *JournalConfig) applyDefaults(keys keySet) {
	if j == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("journal.path", &j.Path, defaultJournalPath),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
