package download

import (
	"context"
	"sync"
	"time"

	"candlesync/internal/market"
	"candlesync/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

const (
	dayMs       = int64(24 * time.Hour / time.Millisecond)
	jan2022Ms   = int64(1640995200000)
	sinceConfig = int64(1640991600)
)

// fakeExchange 生成确定性的日线历史，行为与交易所一致：从 >= since 的首根开始，最多返回 maxPerRequest 根。
type fakeExchange struct {
	start         int64
	step          int64
	available     int
	maxPerRequest int

	mu     sync.Mutex
	calls  []market.FetchRequest
	weight int
	fail   func(req market.FetchRequest) error
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{start: jan2022Ms, step: dayMs, maxPerRequest: 1000}
}

func (f *fakeExchange) FetchCandles(ctx context.Context, req market.FetchRequest) ([]market.Candle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.weight += 2
	fail := f.fail
	f.mu.Unlock()
	if fail != nil {
		if err := fail(req); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	first := int64(0)
	if req.Since > f.start {
		first = (req.Since - f.start + f.step - 1) / f.step
	}
	limit := min(req.Limit, f.maxPerRequest)
	out := make([]market.Candle, 0, limit)
	for i := int64(0); i < int64(limit); i++ {
		idx := first + i
		if f.available > 0 && idx >= int64(f.available) {
			break
		}
		out = append(out, candleAt(f.start+idx*f.step, idx))
	}
	return out, nil
}

func (f *fakeExchange) UsedWeight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.weight
}

func (f *fakeExchange) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func candleAt(ts, idx int64) market.Candle {
	base := decimal.NewFromInt(40000 + idx%997)
	return market.Candle{
		Timestamp: ts,
		Open:      base,
		High:      base.Add(decimal.RequireFromString("12.5")),
		Low:       base.Sub(decimal.RequireFromString("7.25")),
		Close:     base.Add(decimal.NewFromInt(idx % 13)),
		Volume:    decimal.NewFromInt(1000 + idx).Div(decimal.NewFromInt(8)),
	}
}

func dailyCandles(startMs int64, n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = candleAt(startMs+int64(i)*dayMs, int64(i))
	}
	return out
}

// fixedWeights 返回固定权重。
type fixedWeights int

func (w fixedWeights) UsedWeight() int { return int(w) }

// recordingSleeper 记录冷却期间的 sleep 调用。
type recordingSleeper struct {
	mu    sync.Mutex
	steps []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.steps = append(r.steps, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum time.Duration
	for _, s := range r.steps {
		sum += s
	}
	return sum
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Load(ctx context.Context, key store.Key) (market.Series, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(market.Series), args.Error(1)
}

func (m *MockStore) Save(ctx context.Context, key store.Key, series market.Series) error {
	args := m.Called(ctx, key, series)
	return args.Error(0)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Begin(ctx context.Context, id string, req Request) error {
	args := m.Called(ctx, id, req)
	return args.Error(0)
}

func (m *MockRecorder) Complete(ctx context.Context, id string, out Outcome) error {
	args := m.Called(ctx, id, out)
	return args.Error(0)
}
