package binance

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
)

// usedWeightHeader 为现货接口返回的 1 分钟滚动窗口已用权重。
const usedWeightHeader = "X-Mbx-Used-Weight-1m"

// weightTransport 记录两次读取之间响应头中出现的最大已用权重。
// 并发响应可能乱序到达，只保留最大值以免较早的小值覆盖较新的大值。
type weightTransport struct {
	base http.RoundTripper
	// peak 存储 最大值+1，0 表示上次读取后没有新的响应头。
	peak atomic.Int64
	last atomic.Int64
}

func (t *weightTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if raw := strings.TrimSpace(resp.Header.Get(usedWeightHeader)); raw != "" {
		if v, perr := strconv.ParseInt(raw, 10, 64); perr == nil && v >= 0 {
			t.observe(v)
		}
	}
	return resp, nil
}

func (t *weightTransport) observe(v int64) {
	for {
		cur := t.peak.Load()
		if v+1 <= cur || t.peak.CompareAndSwap(cur, v+1) {
			return
		}
	}
}

// UsedWeight 返回上次读取以来的最大值；期间没有新响应时沿用上次结果。
func (t *weightTransport) UsedWeight() int {
	if p := t.peak.Swap(0); p > 0 {
		t.last.Store(p - 1)
		return int(p - 1)
	}
	return int(t.last.Load())
}

func newHTTPClient(cfg Config) (*http.Client, *weightTransport, error) {
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok || baseTransport == nil {
		return nil, nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
	}
	transport := baseTransport.Clone()
	if cfg.ProxyEnabled && cfg.RESTProxyURL != "" {
		proxyURL, err := url.Parse(cfg.RESTProxyURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	weights := &weightTransport{base: transport}
	return &http.Client{Timeout: cfg.HTTPTimeout, Transport: weights}, weights, nil
}
