package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"equitywatch/internal/series"
)

// DebugStock fetches a symbol's merged history and prints series totals,
// the latest values, and every detected historical crossover.
func (a *App) DebugStock(ctx context.Context, symbol string) error {
	upper := strings.ToUpper(strings.TrimSpace(symbol))

	market := a.newMarketClient()
	records, err := market.FetchMerged(ctx, upper)
	if err != nil {
		return err
	}

	withSMA := 0
	for _, rec := range records {
		if rec.SMA != nil {
			withSMA++
		}
	}

	crossovers := series.DetectCrossovers(records)

	fmt.Fprintf(os.Stdout, "symbol:        %s\n", upper)
	fmt.Fprintf(os.Stdout, "total days:    %d\n", len(records))
	fmt.Fprintf(os.Stdout, "days with SMA: %d\n", withSMA)

	if latest := series.Latest(records); latest != nil {
		fmt.Fprintf(os.Stdout, "latest close:  %s (%s)\n", latest.Close.StringFixed(2), latest.Date)
		if latest.SMA != nil {
			fmt.Fprintf(os.Stdout, "latest SMA200: %s\n", latest.SMA.StringFixed(2))
			fmt.Fprintf(os.Stdout, "above SMA:     %t\n", latest.Close.GreaterThan(*latest.SMA))
		} else {
			fmt.Fprintln(os.Stdout, "latest SMA200: n/a")
		}
	}

	fmt.Fprintf(os.Stdout, "crossovers:    %d\n", len(crossovers))
	for _, ev := range crossovers {
		fmt.Fprintf(os.Stdout, "  %s  %-5s  close=%s\n", ev.Date, ev.Kind, ev.Price.StringFixed(2))
	}

	return nil
}
