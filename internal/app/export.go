package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"equitywatch/internal/series"
)

// Export renders a symbol's merged price/SMA history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Symbol == "" {
		return errors.New("--symbol is required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)
	symbol := strings.ToUpper(strings.TrimSpace(opts.Symbol))

	market := a.newMarketClient()
	records, err := market.FetchMerged(ctx, symbol)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Str("symbol", symbol).Msg("no history to export")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting merged history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, symbol, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRecords(records []series.MergedRecord, max int) []series.MergedRecord {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]series.MergedRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeHistoryCSV(path string, records []series.MergedRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "open", "high", "low", "close", "volume", "sma200"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		sma := ""
		if rec.SMA != nil {
			sma = rec.SMA.String()
		}
		row := []string{
			rec.Date,
			rec.Open.String(),
			rec.High.String(),
			rec.Low.String(),
			rec.Close.String(),
			strconv.FormatInt(rec.Volume, 10),
			sma,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeHistoryPNG(path, symbol string, records []series.MergedRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	var (
		closeX []time.Time
		closeY []float64
		smaX   []time.Time
		smaY   []float64
	)

	for _, rec := range records {
		date, err := time.Parse("2006-01-02", rec.Date)
		if err != nil {
			continue
		}
		closeX = append(closeX, date)
		closeY = append(closeY, rec.Close.InexactFloat64())
		if rec.SMA != nil {
			smaX = append(smaX, date)
			smaY = append(smaY, rec.SMA.InexactFloat64())
		}
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  symbol + " close vs 200-day SMA",
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Close",
				XValues: closeX,
				YValues: closeY,
			},
			chart.TimeSeries{
				Name:    "SMA200",
				XValues: smaX,
				YValues: smaY,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
