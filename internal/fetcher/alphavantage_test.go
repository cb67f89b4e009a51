package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestClient(t *testing.T, handler http.Handler) (*AlphaVantage, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cache := NewCache(12 * time.Hour)
	pacer := NewPacer(time.Millisecond)
	client := NewAlphaVantage(AlphaVantageOptions{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		SMAPeriod: 200,
		Timeout:   time.Second,
		UserAgent: "test",
	}, cache, pacer, noopLogger())
	return client, srv
}

func dailyPayload() map[string]any {
	return map[string]any{
		"Time Series (Daily)": map[string]any{
			"2024-06-04": map[string]string{
				"1. open": "101.0", "2. high": "103.0", "3. low": "100.0", "4. close": "102.5", "5. volume": "1200",
			},
			"2024-06-03": map[string]string{
				"1. open": "99.0", "2. high": "101.0", "3. low": "98.0", "4. close": "100.0", "5. volume": "1000",
			},
		},
	}
}

func smaPayload() map[string]any {
	return map[string]any{
		"Technical Analysis: SMA": map[string]any{
			"2024-06-04": map[string]string{"SMA": "101.2000"},
			"2024-06-03": map[string]string{"SMA": "100.9000"},
		},
	}
}

func TestFetchDailySuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("function"); got != "TIME_SERIES_DAILY" {
			t.Fatalf("function 参数应为 TIME_SERIES_DAILY, 实际 %s", got)
		}
		if got := r.URL.Query().Get("apikey"); got != "test-key" {
			t.Fatalf("apikey missing, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(dailyPayload())
	}))

	bars, err := client.FetchDaily(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars", len(bars))
	}
	if bars[0].Date != "2024-06-03" || bars[1].Date != "2024-06-04" {
		t.Fatalf("bars must be ascending by date: %s, %s", bars[0].Date, bars[1].Date)
	}
	if !bars[1].Close.Equal(decimal.RequireFromString("102.5")) {
		t.Fatalf("close parse mismatch: %s", bars[1].Close)
	}
	if bars[1].Volume != 1200 {
		t.Fatalf("volume parse mismatch: %d", bars[1].Volume)
	}
}

func TestFetchDailyCachesResponse(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(dailyPayload())
	}))

	for i := 0; i < 3; i++ {
		if _, err := client.FetchDaily(context.Background(), "AAPL"); err != nil {
			t.Fatalf("FetchDaily %d: %v", i, err)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("cached fetches must not hit the network, got %d calls", got)
	}
}

func TestFetchSMASuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("function") != "SMA" || q.Get("time_period") != "200" || q.Get("series_type") != "close" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(smaPayload())
	}))

	points, err := client.FetchSMA(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("FetchSMA: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points", len(points))
	}
	if points[0].Date != "2024-06-03" {
		t.Fatalf("points must be ascending, got %s first", points[0].Date)
	}
}

func TestFetchMergedJoinsSeries(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("function") == "SMA" {
			_ = json.NewEncoder(w).Encode(smaPayload())
			return
		}
		_ = json.NewEncoder(w).Encode(dailyPayload())
	}))

	records, err := client.FetchMerged(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("FetchMerged: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if records[1].SMA == nil || !records[1].SMA.Equal(decimal.RequireFromString("101.2")) {
		t.Fatalf("merged SMA mismatch: %v", records[1].SMA)
	}
}

func TestFetchDailyQuotaError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute",
		})
	}))

	_, err := client.FetchDaily(context.Background(), "AAPL")
	var quotaErr *QuotaError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("配额错误应为 QuotaError, 实际 %v", err)
	}
}

func TestFetchDailyAPIError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"Error Message": "Invalid API call"})
	}))

	_, err := client.FetchDaily(context.Background(), "AAPL")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want APIError, got %v", err)
	}
}

func TestFetchDailyNoData(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))

	_, err := client.FetchDaily(context.Background(), "ZZZZZZ")
	var noData *NoDataError
	if !errors.As(err, &noData) {
		t.Fatalf("want NoDataError, got %v", err)
	}
	if noData.Symbol != "ZZZZZZ" {
		t.Fatalf("NoDataError should carry the symbol, got %q", noData.Symbol)
	}
}

func TestFetchDailyTransportError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.FetchDaily(context.Background(), "AAPL")
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("want TransportError, got %v", err)
	}
	if transportErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("status mismatch: %d", transportErr.Status)
	}
}

func TestFetchDailyMissingAPIKey(t *testing.T) {
	cache := NewCache(time.Hour)
	pacer := NewPacer(time.Millisecond)
	client := NewAlphaVantage(AlphaVantageOptions{BaseURL: "http://localhost"}, cache, pacer, noopLogger())

	if _, err := client.FetchDaily(context.Background(), "AAPL"); err == nil {
		t.Fatal("未配置 api key 时应报错")
	}
}
