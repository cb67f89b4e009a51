package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"equitywatch/internal/alerting"
	"equitywatch/internal/config"
	"equitywatch/internal/fetcher"
	"equitywatch/internal/series"
	"equitywatch/internal/storage"
	"equitywatch/internal/tracker"
)

// Service orchestrates one crossover check cycle: every enabled user's
// full watchlist, sequentially, with inter-symbol pacing. Individual
// symbol failures are logged and skipped; the cycle itself never aborts.
type Service struct {
	market     fetcher.MarketDataFetcher
	watchlists storage.WatchlistStore
	configs    storage.NotifyConfigStore
	alerts     storage.AlertStore
	tracker    *tracker.Tracker
	dedup      *tracker.Deduplicator
	notifier   alerting.Notifier
	logger     zerolog.Logger

	pacing   time.Duration
	alertsOn bool
	locker   storage.AdvisoryLocker
	lockKey  int64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs the crossover check service.
func New(cfg *config.Config, market fetcher.MarketDataFetcher, watchlists storage.WatchlistStore, configs storage.NotifyConfigStore, alerts storage.AlertStore, trk *tracker.Tracker, dedup *tracker.Deduplicator, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := watchlists.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		market:     market,
		watchlists: watchlists,
		configs:    configs,
		alerts:     alerts,
		tracker:    trk,
		dedup:      dedup,
		notifier:   notifier,
		logger:     logger.With().Str("component", "service").Logger(),
		pacing:     cfg.Scheduler.SymbolPacing,
		alertsOn:   cfg.Alerting.Enabled,
		locker:     locker,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// RunCycle executes one crossover check over every enabled user.
func (s *Service) RunCycle(ctx context.Context) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	userIDs, err := s.configs.ListEnabledUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list enabled users: %w", err)
	}

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.CheckUser(ctx, userID); err != nil {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("user check failed")
		}
	}

	s.logger.Info().Int("users", len(userIDs)).Msg("crossover check cycle completed")
	return nil
}

// CheckUser walks one user's watchlist. A per-symbol failure is logged and
// the loop continues; one bad symbol never aborts the remaining work.
func (s *Service) CheckUser(ctx context.Context, userID int64) error {
	cfg, err := s.configs.GetConfig(ctx, userID)
	if err != nil {
		return err
	}
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	items, err := s.watchlists.ListWatchlist(ctx, userID)
	if err != nil {
		return err
	}

	for i, item := range items {
		if i > 0 && s.pacing > 0 {
			if err := s.sleep(ctx, s.pacing); err != nil {
				return err
			}
		}

		if err := s.CheckSymbol(ctx, userID, cfg, item.Symbol); err != nil {
			s.logger.Error().Err(err).
				Int64("user_id", userID).
				Str("symbol", item.Symbol).
				Msg("symbol check failed")
		}
	}
	return nil
}

// CheckSymbol runs the full pipeline for one (user, symbol) pair: fetch
// merged history, evaluate the position transition, gate on direction and
// dedup, dispatch, and record the attempt.
func (s *Service) CheckSymbol(ctx context.Context, userID int64, cfg *storage.NotifyConfig, symbol string) error {
	records, err := s.market.FetchMerged(ctx, symbol)
	if err != nil {
		return err
	}

	latest := series.Latest(records)
	if latest == nil {
		return tracker.ErrInsufficientData
	}

	eval, err := s.tracker.Evaluate(ctx, userID, symbol, latest.Close, latest.SMA)
	if err != nil {
		return err
	}

	if !eval.Transitioned {
		return nil
	}

	kind := eval.Kind()
	s.logger.Info().
		Int64("user_id", userID).
		Str("symbol", symbol).
		Str("from", string(eval.Previous)).
		Str("to", string(eval.Current)).
		Str("kind", string(kind)).
		Msg("position transition detected")

	// Bullish transitions are computed but deliberately not dispatched.
	if kind != storage.CrossBearish {
		s.logger.Info().Str("symbol", symbol).Msg("skipping bullish crossover; only bearish alerts enabled")
		return nil
	}

	if !s.alertsOn || s.notifier == nil {
		return nil
	}

	suppress, err := s.dedup.ShouldSuppress(ctx, userID, symbol, kind)
	if err != nil {
		return err
	}
	if suppress {
		return nil
	}

	note := alerting.Notification{
		Symbol:   symbol,
		Kind:     kind,
		Price:    latest.Close,
		SMAValue: *latest.SMA,
		At:       s.now(),
	}

	deliveryErr := s.notifier.Notify(ctx, cfg.BotToken, cfg.ChatID, note)
	if deliveryErr != nil {
		s.logger.Error().Err(deliveryErr).
			Int64("user_id", userID).
			Str("symbol", symbol).
			Msg("failed to dispatch alert")
	}

	record := storage.AlertRecord{
		UserID:          userID,
		Symbol:          symbol,
		CrossType:       kind,
		Price:           latest.Close,
		SMAValue:        *latest.SMA,
		TelegramSuccess: deliveryErr == nil,
	}
	if _, err := s.alerts.InsertAlert(ctx, record); err != nil {
		s.logger.Error().Err(err).
			Int64("user_id", userID).
			Str("symbol", symbol).
			Msg("failed to persist alert record")
	}

	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
