package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"equitywatch/internal/storage"
)

// Deduplicator suppresses repeat alerts of the same directional kind for a
// pair within a lookback window. An attempted-but-failed delivery still
// counts as already alerted.
type Deduplicator struct {
	alerts storage.AlertStore
	window time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewDeduplicator constructs a deduplicator with the given lookback window.
func NewDeduplicator(alerts storage.AlertStore, window time.Duration, logger zerolog.Logger) *Deduplicator {
	return &Deduplicator{
		alerts: alerts,
		window: window,
		now:    time.Now,
		logger: logger.With().Str("component", "alert_dedup").Logger(),
	}
}

// ShouldSuppress reports whether an alert of the given kind was already
// recorded for (user, symbol) within the lookback window.
func (d *Deduplicator) ShouldSuppress(ctx context.Context, userID int64, symbol string, kind storage.CrossType) (bool, error) {
	since := d.now().Add(-d.window)
	recent, err := d.alerts.LatestAlertSince(ctx, userID, symbol, kind, since)
	if err != nil {
		return false, fmt.Errorf("look up recent alerts: %w", err)
	}
	if recent == nil {
		return false, nil
	}

	d.logger.Info().
		Int64("user_id", userID).
		Str("symbol", symbol).
		Str("kind", string(kind)).
		Time("last_sent", recent.SentAt).
		Msg("suppressing duplicate alert")
	return true, nil
}
