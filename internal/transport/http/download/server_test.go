package downloadhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"candlesync/internal/download"
	"candlesync/internal/market"
	"candlesync/internal/store"
	"candlesync/internal/store/gormstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(req download.Request) (string, error) {
	args := m.Called(req)
	return args.String(0), args.Error(1)
}

type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) List(ctx context.Context, limit int) ([]gormstore.DownloadRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]gormstore.DownloadRecord), args.Error(1)
}

func (m *MockJournal) Get(ctx context.Context, id string) (gormstore.DownloadRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(gormstore.DownloadRecord), args.Error(1)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSubmitDownload(t *testing.T) {
	jobs := new(MockSubmitter)
	req := download.Request{Market: "BTC/USDT", Timeframe: "1d", Since: 1640991600, Limit: 2500}
	jobs.On("Submit", req).Return("7f1c7a8e-0000-4000-8000-000000000001", nil).Once()
	jobs.On("Submit", mock.MatchedBy(func(r download.Request) bool { return r.Timeframe == "9x" })).
		Return("", errors.New(`invalid timeframe "9x"`)).Once()
	s, err := NewServer(Config{Jobs: jobs})
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/api/downloads", `{"market":"BTC/USDT","timeframe":"1d","since":1640991600,"limit":2500}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"job":"7f1c7a8e-0000-4000-8000-000000000001"}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/downloads", `{"market":"BTC/USDT","timeframe":"9x","limit":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/downloads", `{"market":"BTC/USDT"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	jobs.AssertExpectations(t)
}

func TestJournalEndpoints(t *testing.T) {
	journal := new(MockJournal)
	journal.On("List", mock.Anything, 5).Return([]gormstore.DownloadRecord{{ID: "a", Status: download.StatusDone}}, nil)
	journal.On("Get", mock.Anything, "a").Return(gormstore.DownloadRecord{ID: "a", Status: download.StatusDone, Candles: 2500}, nil)
	journal.On("Get", mock.Anything, "missing").Return(gormstore.DownloadRecord{}, gormstore.ErrNotFound)
	s, err := NewServer(Config{Jobs: new(MockSubmitter), Journal: journal})
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/api/downloads?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Jobs []gormstore.DownloadRecord `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Jobs, 1)

	rec = do(t, s, http.MethodGet, "/api/downloads/a", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"candles":2500`)

	rec = do(t, s, http.MethodGet, "/api/downloads/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJournalDisabled(t *testing.T) {
	s, err := NewServer(Config{Jobs: new(MockSubmitter)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/downloads", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)
}

func TestSeriesEndpoint(t *testing.T) {
	st := store.NewMemoryStore()
	key := store.Key{Market: "BTC/USDT", Timeframe: "1d", Since: 1640991600, Limit: 1}
	require.NoError(t, st.Save(context.Background(), key, market.Series{
		Market: "BTC/USDT", Timeframe: "1d",
		Candles: []market.Candle{{Timestamp: 1640995200000, Open: decimal.RequireFromString("46216.93")}},
	}))
	s, err := NewServer(Config{Jobs: new(MockSubmitter), Series: st})
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/api/series?market=BTC/USDT&timeframe=1d&since=1640991600&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Contains(t, rec.Body.String(), `"open":"46216.93"`)

	rec = do(t, s, http.MethodGet, "/api/series?market=BTC/USDT&timeframe=1d&since=1640991600&limit=2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/series?market=BTC/USDT&timeframe=1d&since=x&limit=2", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/series?market=BTC/USDT&timeframe=2y&since=0&limit=2", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewServerRequiresSubmitter(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}
