package series

import "github.com/shopspring/decimal"

// CrossKind distinguishes the direction of a moving-average crossing.
type CrossKind string

const (
	// CrossAbove marks a close moving from at-or-below the average to
	// strictly above it.
	CrossAbove CrossKind = "above"
	// CrossBelow marks a close moving from strictly above the average to
	// at-or-below it.
	CrossBelow CrossKind = "below"
)

// CrossoverEvent is a detected sign change between price and average.
type CrossoverEvent struct {
	Kind  CrossKind
	Index int
	Date  string
	Price decimal.Decimal
}

// DetectCrossovers scans a merged sequence once, comparing each record to
// its immediate predecessor. Boundaries where either side lacks an average
// value are skipped. Equality classifies as not-above on both sides: an
// event fires only when the position actually flips, so touching the
// average from below and falling back fires nothing.
func DetectCrossovers(records []MergedRecord) []CrossoverEvent {
	var events []CrossoverEvent
	for i := 1; i < len(records); i++ {
		prev := records[i-1]
		curr := records[i]
		if prev.SMA == nil || curr.SMA == nil {
			continue
		}
		switch {
		case prev.Close.LessThanOrEqual(*prev.SMA) && curr.Close.GreaterThan(*curr.SMA):
			events = append(events, CrossoverEvent{Kind: CrossAbove, Index: i, Date: curr.Date, Price: curr.Close})
		case prev.Close.GreaterThan(*prev.SMA) && curr.Close.LessThanOrEqual(*curr.SMA):
			events = append(events, CrossoverEvent{Kind: CrossBelow, Index: i, Date: curr.Date, Price: curr.Close})
		}
	}
	return events
}
