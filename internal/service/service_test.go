package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"equitywatch/internal/alerting"
	"equitywatch/internal/config"
	"equitywatch/internal/series"
	"equitywatch/internal/storage"
	"equitywatch/internal/tracker"
)

type pairKey struct {
	userID int64
	symbol string
}

// memStore backs every repository interface the service consumes.
type memStore struct {
	watchlist map[int64][]storage.WatchItem
	configs   map[int64]*storage.NotifyConfig
	positions map[pairKey]storage.Position
	alerts    []storage.AlertRecord
}

func newMemStore() *memStore {
	return &memStore{
		watchlist: make(map[int64][]storage.WatchItem),
		configs:   make(map[int64]*storage.NotifyConfig),
		positions: make(map[pairKey]storage.Position),
	}
}

func (m *memStore) ListWatchlist(_ context.Context, userID int64) ([]storage.WatchItem, error) {
	return m.watchlist[userID], nil
}

func (m *memStore) AddWatchItem(_ context.Context, userID int64, symbol string) (storage.WatchItem, error) {
	item := storage.WatchItem{UserID: userID, Symbol: symbol}
	m.watchlist[userID] = append(m.watchlist[userID], item)
	return item, nil
}

func (m *memStore) RemoveWatchItem(_ context.Context, userID int64, symbol string) error {
	return nil
}

func (m *memStore) ListEnabledUserIDs(_ context.Context) ([]int64, error) {
	var ids []int64
	for id, cfg := range m.configs {
		if cfg.Enabled {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) GetConfig(_ context.Context, userID int64) (*storage.NotifyConfig, error) {
	return m.configs[userID], nil
}

func (m *memStore) UpsertConfig(_ context.Context, cfg storage.NotifyConfig) error {
	m.configs[cfg.UserID] = &cfg
	return nil
}

func (m *memStore) GetPosition(_ context.Context, userID int64, symbol string) (*storage.PositionState, error) {
	pos, ok := m.positions[pairKey{userID, symbol}]
	if !ok {
		return nil, nil
	}
	return &storage.PositionState{UserID: userID, Symbol: symbol, LastPosition: pos}, nil
}

func (m *memStore) UpsertPosition(_ context.Context, userID int64, symbol string, position storage.Position) error {
	m.positions[pairKey{userID, symbol}] = position
	return nil
}

func (m *memStore) InsertAlert(_ context.Context, alert storage.AlertRecord) (storage.AlertRecord, error) {
	alert.ID = int64(len(m.alerts) + 1)
	if alert.SentAt.IsZero() {
		alert.SentAt = time.Now()
	}
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

func (m *memStore) LatestAlertSince(_ context.Context, userID int64, symbol string, kind storage.CrossType, since time.Time) (*storage.AlertRecord, error) {
	for i := len(m.alerts) - 1; i >= 0; i-- {
		a := m.alerts[i]
		if a.UserID == userID && a.Symbol == symbol && a.CrossType == kind && a.SentAt.After(since) {
			rec := a
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListRecentAlerts(_ context.Context, userID int64, limit int) ([]storage.AlertRecord, error) {
	return nil, nil
}

type fakeMarket struct {
	records map[string][]series.MergedRecord
	errs    map[string]error
	fetches []string
}

func (f *fakeMarket) FetchDaily(_ context.Context, symbol string) ([]series.DailyBar, error) {
	return nil, nil
}

func (f *fakeMarket) FetchSMA(_ context.Context, symbol string) ([]series.SMAPoint, error) {
	return nil, nil
}

func (f *fakeMarket) FetchMerged(_ context.Context, symbol string) ([]series.MergedRecord, error) {
	f.fetches = append(f.fetches, symbol)
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	return f.records[symbol], nil
}

type sentNote struct {
	botToken string
	chatID   string
	note     alerting.Notification
}

type fakeNotifier struct {
	sent []sentNote
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, botToken, chatID string, note alerting.Notification) error {
	f.sent = append(f.sent, sentNote{botToken, chatID, note})
	return f.err
}

func (f *fakeNotifier) SendText(_ context.Context, botToken, chatID, text string) error {
	return f.err
}

func mergedPair(close, sma float64) []series.MergedRecord {
	avg := decimal.NewFromFloat(sma)
	return []series.MergedRecord{{
		Date:  "2024-06-10",
		Close: decimal.NewFromFloat(close),
		SMA:   &avg,
	}}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Alerting.Enabled = true
	cfg.Alerting.DedupWindow = 7 * 24 * time.Hour
	return cfg
}

func newTestService(store *memStore, market *fakeMarket, notifier *fakeNotifier) *Service {
	cfg := testConfig()
	trk := tracker.NewTracker(store, zerolog.Nop())
	dedup := tracker.NewDeduplicator(store, cfg.Alerting.DedupWindow, zerolog.Nop())
	svc := New(cfg, market, store, store, store, trk, dedup, notifier, zerolog.Nop())
	svc.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return svc
}

func seedUser(store *memStore, userID int64, symbols ...string) {
	store.configs[userID] = &storage.NotifyConfig{
		UserID:   userID,
		BotToken: "token",
		ChatID:   "chat",
		Enabled:  true,
	}
	for _, sym := range symbols {
		store.watchlist[userID] = append(store.watchlist[userID], storage.WatchItem{UserID: userID, Symbol: sym})
	}
}

func TestRunCycleDispatchesBearishTransition(t *testing.T) {
	store := newMemStore()
	seedUser(store, 1, "AAPL")
	store.positions[pairKey{1, "AAPL"}] = storage.PositionAbove

	market := &fakeMarket{records: map[string][]series.MergedRecord{"AAPL": mergedPair(98, 100)}}
	notifier := &fakeNotifier{}
	svc := newTestService(store, market, notifier)

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("bearish transition must dispatch exactly once, got %d", len(notifier.sent))
	}
	sent := notifier.sent[0]
	if sent.botToken != "token" || sent.chatID != "chat" {
		t.Fatalf("告警路由不匹配: %+v", sent)
	}
	if sent.note.Kind != storage.CrossBearish || sent.note.Symbol != "AAPL" {
		t.Fatalf("unexpected notification: %+v", sent.note)
	}

	if len(store.alerts) != 1 {
		t.Fatalf("alert history must record the attempt, got %d rows", len(store.alerts))
	}
	if !store.alerts[0].TelegramSuccess {
		t.Fatal("successful delivery must be recorded as such")
	}
	if store.positions[pairKey{1, "AAPL"}] != storage.PositionBelow {
		t.Fatal("position must be persisted after the check")
	}
}

func TestRunCycleSkipsBullishTransition(t *testing.T) {
	store := newMemStore()
	seedUser(store, 1, "AAPL")
	store.positions[pairKey{1, "AAPL"}] = storage.PositionBelow

	market := &fakeMarket{records: map[string][]series.MergedRecord{"AAPL": mergedPair(104, 100)}}
	notifier := &fakeNotifier{}
	svc := newTestService(store, market, notifier)

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(notifier.sent) != 0 {
		t.Fatal("bullish transitions must not dispatch")
	}
	if len(store.alerts) != 0 {
		t.Fatal("no alert row for a bullish transition")
	}
	if store.positions[pairKey{1, "AAPL"}] != storage.PositionAbove {
		t.Fatal("position must still be persisted")
	}
}

func TestRunCycleFirstObservationNeverAlerts(t *testing.T) {
	store := newMemStore()
	seedUser(store, 1, "AAPL")

	market := &fakeMarket{records: map[string][]series.MergedRecord{"AAPL": mergedPair(98, 100)}}
	notifier := &fakeNotifier{}
	svc := newTestService(store, market, notifier)

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(notifier.sent) != 0 {
		t.Fatal("the first observation for a pair must not alert")
	}
	if store.positions[pairKey{1, "AAPL"}] != storage.PositionBelow {
		t.Fatal("first observation must still seed the stored position")
	}
}

func TestRunCycleSuppressesRecentDuplicate(t *testing.T) {
	store := newMemStore()
	seedUser(store, 1, "AAPL")
	store.positions[pairKey{1, "AAPL"}] = storage.PositionAbove
	store.alerts = append(store.alerts, storage.AlertRecord{
		ID:              1,
		UserID:          1,
		Symbol:          "AAPL",
		CrossType:       storage.CrossBearish,
		SentAt:          time.Now().Add(-24 * time.Hour),
		TelegramSuccess: false,
	})

	market := &fakeMarket{records: map[string][]series.MergedRecord{"AAPL": mergedPair(98, 100)}}
	notifier := &fakeNotifier{}
	svc := newTestService(store, market, notifier)

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(notifier.sent) != 0 {
		t.Fatal("a bearish alert within the dedup window must be suppressed")
	}
	if len(store.alerts) != 1 {
		t.Fatalf("no new alert row expected, got %d", len(store.alerts))
	}
}

func TestRunCycleRecordsFailedDelivery(t *testing.T) {
	store := newMemStore()
	seedUser(store, 1, "AAPL")
	store.positions[pairKey{1, "AAPL"}] = storage.PositionAbove

	market := &fakeMarket{records: map[string][]series.MergedRecord{"AAPL": mergedPair(98, 100)}}
	notifier := &fakeNotifier{err: errors.New("telegram: chat not found")}
	svc := newTestService(store, market, notifier)

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("delivery failure must not abort the cycle: %v", err)
	}

	if len(store.alerts) != 1 {
		t.Fatalf("failed attempt must still be recorded, got %d rows", len(store.alerts))
	}
	if store.alerts[0].TelegramSuccess {
		t.Fatal("failed delivery must be recorded with telegram_success=false")
	}
}

func TestRunCycleContinuesPastSymbolFailure(t *testing.T) {
	store := newMemStore()
	seedUser(store, 1, "AAPL", "MSFT")
	store.positions[pairKey{1, "MSFT"}] = storage.PositionAbove

	market := &fakeMarket{
		records: map[string][]series.MergedRecord{"MSFT": mergedPair(98, 100)},
		errs:    map[string]error{"AAPL": errors.New("quota exceeded")},
	}
	notifier := &fakeNotifier{}
	svc := newTestService(store, market, notifier)

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("单个标的失败不应中断整轮: %v", err)
	}

	if len(market.fetches) != 2 {
		t.Fatalf("both symbols must be attempted, got %v", market.fetches)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].note.Symbol != "MSFT" {
		t.Fatalf("remaining symbols must still alert: %+v", notifier.sent)
	}
}

func TestRunCycleSkipsDisabledUser(t *testing.T) {
	store := newMemStore()
	seedUser(store, 1, "AAPL")
	store.configs[1].Enabled = false

	market := &fakeMarket{records: map[string][]series.MergedRecord{"AAPL": mergedPair(98, 100)}}
	notifier := &fakeNotifier{}
	svc := newTestService(store, market, notifier)

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(market.fetches) != 0 {
		t.Fatal("disabled users must not be checked")
	}
}

func TestCheckUserPacesBetweenSymbols(t *testing.T) {
	store := newMemStore()
	seedUser(store, 1, "AAPL", "MSFT", "NVDA")

	market := &fakeMarket{records: map[string][]series.MergedRecord{
		"AAPL": mergedPair(98, 100),
		"MSFT": mergedPair(98, 100),
		"NVDA": mergedPair(98, 100),
	}}
	notifier := &fakeNotifier{}
	svc := newTestService(store, market, notifier)
	svc.pacing = 3 * time.Second

	var sleeps []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	if err := svc.CheckUser(context.Background(), 1); err != nil {
		t.Fatalf("CheckUser: %v", err)
	}

	if len(sleeps) != 2 {
		t.Fatalf("pacing applies between symbols, not before the first: %v", sleeps)
	}
	for _, d := range sleeps {
		if d != 3*time.Second {
			t.Fatalf("pacing duration mismatch: %s", d)
		}
	}
}
