package series

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DailyBar is one day of OHLCV history. Dates are calendar-day keys in
// YYYY-MM-DD form, unique within a series.
type DailyBar struct {
	Date   string
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// SMAPoint pairs a date with a moving-average value. The series is sparse
// relative to the price history: the first window-1 days carry no value.
type SMAPoint struct {
	Date  string
	Value decimal.Decimal
}

// MergedRecord is a price bar joined with its moving-average value for the
// same date. SMA stays nil wherever the average series lacks that date;
// consumers must treat nil as undefined, never as zero.
type MergedRecord struct {
	Date   string
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
	SMA    *decimal.Decimal
}

// Merge outer-joins bars and average points on date. The result is ordered
// ascending by date with one record per date present in bars.
func Merge(bars []DailyBar, avg []SMAPoint) []MergedRecord {
	values := make(map[string]decimal.Decimal, len(avg))
	for _, p := range avg {
		values[p.Date] = p.Value
	}

	records := make([]MergedRecord, 0, len(bars))
	for _, bar := range bars {
		rec := MergedRecord{
			Date:   bar.Date,
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		}
		if v, ok := values[bar.Date]; ok {
			value := v
			rec.SMA = &value
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Date < records[j].Date })
	return records
}

// Latest returns the most recent merged record, or nil for an empty series.
func Latest(records []MergedRecord) *MergedRecord {
	if len(records) == 0 {
		return nil
	}
	return &records[len(records)-1]
}
