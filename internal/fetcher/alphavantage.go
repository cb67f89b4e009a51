package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"equitywatch/internal/series"
)

const (
	defaultBaseURL = "https://www.alphavantage.co/query"

	dailyCachePrefix = "daily:"
	smaCachePrefix   = "sma:"
)

// AlphaVantageOptions parameterise the market data client.
type AlphaVantageOptions struct {
	BaseURL   string
	APIKey    string
	SMAPeriod int
	Timeout   time.Duration
	UserAgent string
}

// AlphaVantage fetches daily OHLCV history and precomputed SMA series from
// the Alpha Vantage HTTP API. Responses are cached for the cache TTL and
// all cache misses funnel through a shared pacer to respect the provider
// call quota.
type AlphaVantage struct {
	opts    AlphaVantageOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	cache   *Cache
	pacer   *Pacer
}

// NewAlphaVantage constructs a market data client.
func NewAlphaVantage(opts AlphaVantageOptions, cache *Cache, pacer *Pacer, logger zerolog.Logger) *AlphaVantage {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	if opts.SMAPeriod <= 0 {
		opts.SMAPeriod = 200
	}

	return &AlphaVantage{
		opts:    opts,
		logger:  logger.With().Str("component", "market_data").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		cache:   cache,
		pacer:   pacer,
	}
}

// FetchDaily retrieves daily price history for symbol, ordered ascending
// by date.
func (a *AlphaVantage) FetchDaily(ctx context.Context, symbol string) ([]series.DailyBar, error) {
	cacheKey := dailyCachePrefix + symbol
	if cached, ok := a.cache.Get(cacheKey); ok {
		a.logger.Debug().Str("symbol", symbol).Msg("cache hit for daily prices")
		return cached.([]series.DailyBar), nil
	}

	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("apikey", a.opts.APIKey)

	payload, err := a.request(ctx, params)
	if err != nil {
		return nil, err
	}

	var res dailyResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode daily response: %w", err)
	}
	if err := res.errorEnvelope.typed(); err != nil {
		return nil, err
	}
	if len(res.TimeSeries) == 0 {
		return nil, &NoDataError{Symbol: symbol, Series: "daily"}
	}

	bars := make([]series.DailyBar, 0, len(res.TimeSeries))
	for date, raw := range res.TimeSeries {
		bar, err := raw.toBar(date)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })

	a.logger.Info().Str("symbol", symbol).Int("days", len(bars)).
		Str("from", bars[0].Date).Str("to", bars[len(bars)-1].Date).
		Msg("fetched daily prices")

	a.cache.Set(cacheKey, bars)
	return bars, nil
}

// FetchSMA retrieves the precomputed long-window SMA series for symbol,
// ordered ascending by date.
func (a *AlphaVantage) FetchSMA(ctx context.Context, symbol string) ([]series.SMAPoint, error) {
	cacheKey := fmt.Sprintf("%s%d:%s", smaCachePrefix, a.opts.SMAPeriod, symbol)
	if cached, ok := a.cache.Get(cacheKey); ok {
		a.logger.Debug().Str("symbol", symbol).Msg("cache hit for SMA series")
		return cached.([]series.SMAPoint), nil
	}

	params := url.Values{}
	params.Set("function", "SMA")
	params.Set("symbol", symbol)
	params.Set("interval", "daily")
	params.Set("time_period", strconv.Itoa(a.opts.SMAPeriod))
	params.Set("series_type", "close")
	params.Set("apikey", a.opts.APIKey)

	payload, err := a.request(ctx, params)
	if err != nil {
		return nil, err
	}

	var res smaResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode sma response: %w", err)
	}
	if err := res.errorEnvelope.typed(); err != nil {
		return nil, err
	}
	if len(res.Analysis) == 0 {
		return nil, &NoDataError{Symbol: symbol, Series: "sma"}
	}

	points := make([]series.SMAPoint, 0, len(res.Analysis))
	for date, raw := range res.Analysis {
		value, err := decimal.NewFromString(raw.SMA)
		if err != nil {
			return nil, fmt.Errorf("parse sma value for %s: %w", date, err)
		}
		points = append(points, series.SMAPoint{Date: date, Value: value})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })

	a.logger.Info().Str("symbol", symbol).Int("points", len(points)).Msg("fetched SMA series")

	a.cache.Set(cacheKey, points)
	return points, nil
}

// FetchMerged retrieves both series and joins them by date.
func (a *AlphaVantage) FetchMerged(ctx context.Context, symbol string) ([]series.MergedRecord, error) {
	bars, err := a.FetchDaily(ctx, symbol)
	if err != nil {
		return nil, err
	}
	points, err := a.FetchSMA(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return series.Merge(bars, points), nil
}

func (a *AlphaVantage) request(ctx context.Context, params url.Values) ([]byte, error) {
	if a.opts.APIKey == "" {
		return nil, errors.New("alpha vantage api key not configured")
	}

	if err := a.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := a.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(a.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Status: resp.StatusCode}
	}

	return payload, nil
}

type dailyResponse struct {
	errorEnvelope
	TimeSeries map[string]rawDailyBar `json:"Time Series (Daily)"`
}

type rawDailyBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

func (r rawDailyBar) toBar(date string) (series.DailyBar, error) {
	bar := series.DailyBar{Date: date}

	var err error
	if bar.Open, err = decimal.NewFromString(r.Open); err != nil {
		return series.DailyBar{}, fmt.Errorf("parse open for %s: %w", date, err)
	}
	if bar.High, err = decimal.NewFromString(r.High); err != nil {
		return series.DailyBar{}, fmt.Errorf("parse high for %s: %w", date, err)
	}
	if bar.Low, err = decimal.NewFromString(r.Low); err != nil {
		return series.DailyBar{}, fmt.Errorf("parse low for %s: %w", date, err)
	}
	if bar.Close, err = decimal.NewFromString(r.Close); err != nil {
		return series.DailyBar{}, fmt.Errorf("parse close for %s: %w", date, err)
	}
	// 个别股票的成交量字段偶尔为空，按 0 处理。
	if r.Volume != "" {
		if bar.Volume, err = strconv.ParseInt(r.Volume, 10, 64); err != nil {
			bar.Volume = 0
		}
	}
	return bar, nil
}

type smaResponse struct {
	errorEnvelope
	Analysis map[string]rawSMAPoint `json:"Technical Analysis: SMA"`
}

type rawSMAPoint struct {
	SMA string `json:"SMA"`
}

// errorEnvelope captures the provider-level error fields Alpha Vantage
// returns in place of data.
type errorEnvelope struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (e errorEnvelope) typed() error {
	if e.Note != "" {
		return &QuotaError{Message: e.Note}
	}
	if e.Information != "" {
		return &QuotaError{Message: e.Information}
	}
	if e.ErrorMessage != "" {
		return &APIError{Message: e.ErrorMessage}
	}
	return nil
}

var _ MarketDataFetcher = (*AlphaVantage)(nil)
