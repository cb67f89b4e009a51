package fetcher

import (
	"context"

	"equitywatch/internal/series"
)

// MarketDataFetcher retrieves daily price history and the precomputed
// long-window moving-average series for a symbol.
type MarketDataFetcher interface {
	FetchDaily(ctx context.Context, symbol string) ([]series.DailyBar, error)
	FetchSMA(ctx context.Context, symbol string) ([]series.SMAPoint, error)
	FetchMerged(ctx context.Context, symbol string) ([]series.MergedRecord, error)
}
