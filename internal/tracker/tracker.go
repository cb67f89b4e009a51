package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"equitywatch/internal/storage"
)

// ErrInsufficientData indicates a pair cannot be evaluated this cycle
// because the latest average (or price) is unavailable. Callers skip the
// symbol without touching stored state.
var ErrInsufficientData = errors.New("tracker: insufficient data to evaluate position")

// Evaluation is the outcome of comparing the latest price against the
// latest moving-average value for one (user, symbol) pair.
type Evaluation struct {
	Current      storage.Position
	Previous     storage.Position
	Transitioned bool
}

// Kind maps the transition to its alert direction: a move to above is
// bullish, a move to below is bearish.
func (e Evaluation) Kind() storage.CrossType {
	if e.Current == storage.PositionAbove {
		return storage.CrossBullish
	}
	return storage.CrossBearish
}

// Tracker persists and compares per-pair positions across runs.
type Tracker struct {
	positions storage.PositionStore
	logger    zerolog.Logger
}

// NewTracker constructs a position tracker over the given store.
func NewTracker(positions storage.PositionStore, logger zerolog.Logger) *Tracker {
	return &Tracker{
		positions: positions,
		logger:    logger.With().Str("component", "position_tracker").Logger(),
	}
}

// Evaluate classifies the latest price against the latest average,
// persists the new position unconditionally, and reports whether the pair
// transitioned since the last check. The very first observation for a pair
// is never a transition. Equality classifies as below.
func (t *Tracker) Evaluate(ctx context.Context, userID int64, symbol string, price decimal.Decimal, avg *decimal.Decimal) (Evaluation, error) {
	if avg == nil {
		return Evaluation{}, ErrInsufficientData
	}

	current := storage.PositionBelow
	if price.GreaterThan(*avg) {
		current = storage.PositionAbove
	}

	state, err := t.positions.GetPosition(ctx, userID, symbol)
	if err != nil {
		return Evaluation{}, fmt.Errorf("load position state: %w", err)
	}

	if err := t.positions.UpsertPosition(ctx, userID, symbol, current); err != nil {
		return Evaluation{}, fmt.Errorf("persist position state: %w", err)
	}

	eval := Evaluation{Current: current}
	if state != nil && state.LastPosition != "" {
		eval.Previous = state.LastPosition
		eval.Transitioned = state.LastPosition != current
	}

	t.logger.Debug().
		Int64("user_id", userID).
		Str("symbol", symbol).
		Str("position", string(current)).
		Bool("transitioned", eval.Transitioned).
		Msg("position evaluated")

	return eval, nil
}
