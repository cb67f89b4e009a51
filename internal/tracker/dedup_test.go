package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"equitywatch/internal/storage"
)

type fakeAlertStore struct {
	alerts []storage.AlertRecord
}

func (f *fakeAlertStore) InsertAlert(_ context.Context, alert storage.AlertRecord) (storage.AlertRecord, error) {
	alert.ID = int64(len(f.alerts) + 1)
	f.alerts = append(f.alerts, alert)
	return alert, nil
}

func (f *fakeAlertStore) LatestAlertSince(_ context.Context, userID int64, symbol string, kind storage.CrossType, since time.Time) (*storage.AlertRecord, error) {
	for i := len(f.alerts) - 1; i >= 0; i-- {
		a := f.alerts[i]
		if a.UserID == userID && a.Symbol == symbol && a.CrossType == kind && a.SentAt.After(since) {
			rec := a
			return &rec, nil
		}
	}
	return nil, nil
}

func (f *fakeAlertStore) ListRecentAlerts(_ context.Context, userID int64, limit int) ([]storage.AlertRecord, error) {
	out := make([]storage.AlertRecord, 0, limit)
	for i := len(f.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if f.alerts[i].UserID == userID {
			out = append(out, f.alerts[i])
		}
	}
	return out, nil
}

func newTestDedup(alerts *fakeAlertStore, now time.Time) *Deduplicator {
	d := NewDeduplicator(alerts, 7*24*time.Hour, zerolog.Nop())
	d.now = func() time.Time { return now }
	return d
}

func TestShouldSuppressWithinWindow(t *testing.T) {
	now := time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)
	alerts := &fakeAlertStore{alerts: []storage.AlertRecord{{
		UserID:          1,
		Symbol:          "AAPL",
		CrossType:       storage.CrossBearish,
		SentAt:          now.Add(-3 * 24 * time.Hour),
		TelegramSuccess: true,
	}}}

	d := newTestDedup(alerts, now)
	suppress, err := d.ShouldSuppress(context.Background(), 1, "AAPL", storage.CrossBearish)
	if err != nil {
		t.Fatalf("ShouldSuppress: %v", err)
	}
	if !suppress {
		t.Fatal("second bearish alert within 7 days must be suppressed")
	}
}

func TestShouldSuppressIgnoresDeliveryOutcome(t *testing.T) {
	// 即使上一次推送失败，也按“已告警”处理，不重试。
	now := time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)
	alerts := &fakeAlertStore{alerts: []storage.AlertRecord{{
		UserID:          1,
		Symbol:          "AAPL",
		CrossType:       storage.CrossBearish,
		SentAt:          now.Add(-24 * time.Hour),
		TelegramSuccess: false,
	}}}

	d := newTestDedup(alerts, now)
	suppress, err := d.ShouldSuppress(context.Background(), 1, "AAPL", storage.CrossBearish)
	if err != nil {
		t.Fatalf("ShouldSuppress: %v", err)
	}
	if !suppress {
		t.Fatal("a failed delivery still counts as already alerted")
	}
}

func TestShouldNotSuppressAfterWindow(t *testing.T) {
	now := time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)
	alerts := &fakeAlertStore{alerts: []storage.AlertRecord{{
		UserID:    1,
		Symbol:    "AAPL",
		CrossType: storage.CrossBearish,
		SentAt:    now.Add(-8 * 24 * time.Hour),
	}}}

	d := newTestDedup(alerts, now)
	suppress, err := d.ShouldSuppress(context.Background(), 1, "AAPL", storage.CrossBearish)
	if err != nil {
		t.Fatalf("ShouldSuppress: %v", err)
	}
	if suppress {
		t.Fatal("alerts older than the window must not suppress")
	}
}

func TestShouldNotSuppressDifferentKind(t *testing.T) {
	now := time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)
	alerts := &fakeAlertStore{alerts: []storage.AlertRecord{{
		UserID:    1,
		Symbol:    "AAPL",
		CrossType: storage.CrossBullish,
		SentAt:    now.Add(-24 * time.Hour),
	}}}

	d := newTestDedup(alerts, now)
	suppress, err := d.ShouldSuppress(context.Background(), 1, "AAPL", storage.CrossBearish)
	if err != nil {
		t.Fatalf("ShouldSuppress: %v", err)
	}
	if suppress {
		t.Fatal("dedup is keyed by directional kind")
	}
}
