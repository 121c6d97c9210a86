package binance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"candlesync/internal/market"
	"candlesync/internal/pkg/circuit"
	"candlesync/internal/pkg/convert"
	symbolpkg "candlesync/internal/pkg/symbol"

	"github.com/tidwall/gjson"
)

// RESTSource 直接调用现货 REST 接口，用 gjson 解析响应，不依赖 SDK。
type RESTSource struct {
	cfg        Config
	baseURL    *url.URL
	httpClient *http.Client
	weights    *weightTransport
	breaker    *circuit.CircuitBreaker
}

func NewREST(cfg Config) (*RESTSource, error) {
	final := cfg.withDefaults()
	parsed, err := url.Parse(final.RESTBaseURL)
	if err != nil {
		return nil, fmt.Errorf("解析 rest_base_url 失败: %w", err)
	}
	httpClient, weights, err := newHTTPClient(final)
	if err != nil {
		return nil, err
	}
	return &RESTSource{
		cfg:        final,
		baseURL:    parsed,
		httpClient: httpClient,
		weights:    weights,
		breaker:    circuit.NewCircuitBreaker("binance-rest", final.BreakerThreshold, final.BreakerTimeout),
	}, nil
}

func (s *RESTSource) FetchCandles(ctx context.Context, req market.FetchRequest) ([]market.Candle, error) {
	sym, interval, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("symbol", sym)
	q.Set("interval", interval)
	if req.Since > 0 {
		q.Set("startTime", strconv.FormatInt(req.Since, 10))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	body, err := s.get(ctx, "/api/v3/klines", q)
	if err != nil {
		return nil, err
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("binance klines: unexpected payload %s", truncate(body))
	}
	rows := parsed.Array()
	out := make([]market.Candle, 0, len(rows))
	for i, row := range rows {
		cols := row.Array()
		if len(cols) < 6 {
			return nil, fmt.Errorf("binance klines: row %d has %d columns", i, len(cols))
		}
		openTime := convert.ToInt64(cols[0].Value())
		c, err := toCandle(openTime, cols[1].String(), cols[2].String(), cols[3].String(), cols[4].String(), cols[5].String())
		if err != nil {
			return nil, fmt.Errorf("binance kline %d: %w", openTime, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *RESTSource) UsedWeight() int { return s.weights.UsedWeight() }

func (s *RESTSource) Ping(ctx context.Context) error {
	_, err := s.get(ctx, "/api/v3/ping", nil)
	return err
}

func (s *RESTSource) MarketExists(ctx context.Context, mkt string) error {
	sym := symbolpkg.Binance.ToExchange(mkt)
	if sym == "" {
		return fmt.Errorf("invalid market %q", mkt)
	}
	body, err := s.get(ctx, "/api/v3/exchangeInfo", url.Values{"symbol": []string{sym}})
	if err != nil {
		return err
	}
	found := false
	gjson.GetBytes(body, "symbols").ForEach(func(_, item gjson.Result) bool {
		if strings.EqualFold(item.Get("symbol").String(), sym) {
			found = true
			return false
		}
		return true
	})
	if !found {
		return fmt.Errorf("market %s not listed", sym)
	}
	return nil
}

func (s *RESTSource) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := *s.baseURL
	endpoint.Path = strings.TrimSuffix(endpoint.Path, "/") + path
	endpoint.RawQuery = query.Encode()

	var body []byte
	err := s.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			return fmt.Errorf("构造请求失败: %w", err)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("读取响应失败: %w", err)
		}
		if resp.StatusCode >= 300 {
			return decodeAPIError(resp.Status, data)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("binance %s: %w", path, err)
	}
	return body, nil
}

// decodeAPIError 解析 {"code":-1121,"msg":"Invalid symbol."} 形式的错误体。
func decodeAPIError(status string, data []byte) error {
	if gjson.ValidBytes(data) {
		code := gjson.GetBytes(data, "code")
		msg := gjson.GetBytes(data, "msg")
		if code.Exists() || msg.Exists() {
			return fmt.Errorf("%s: code=%d msg=%s", status, code.Int(), msg.String())
		}
	}
	if len(data) == 0 {
		return fmt.Errorf("binance 返回错误: %s", status)
	}
	return fmt.Errorf("binance 返回错误(%s): %s", status, truncate(data))
}

func truncate(data []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
