package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"equitywatch/internal/alerting"
	"equitywatch/internal/config"
	"equitywatch/internal/fetcher"
	"equitywatch/internal/scheduler"
	"equitywatch/internal/service"
	"equitywatch/internal/storage"
	"equitywatch/internal/tracker"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newMarketClient() *fetcher.AlphaVantage {
	av := a.Config.AlphaVantage
	cache := fetcher.NewCache(av.CacheTTL)
	pacer := fetcher.NewPacer(av.MinRequestInterval)
	return fetcher.NewAlphaVantage(fetcher.AlphaVantageOptions{
		BaseURL:   av.BaseURL,
		APIKey:    av.APIKey,
		SMAPeriod: av.SMAPeriod,
		Timeout:   av.RequestTimeout,
		UserAgent: av.UserAgent,
	}, cache, pacer, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	return alerting.NewTelegramNotifier(a.Config.Telegram.APIBase, a.Config.Telegram.RequestTimeout, a.Logger)
}

func (a *App) newService(store *storage.Store, market fetcher.MarketDataFetcher, notifier alerting.Notifier) *service.Service {
	trk := tracker.NewTracker(store, a.Logger)
	dedup := tracker.NewDeduplicator(store, a.Config.Alerting.DedupWindow, a.Logger)
	return service.New(a.Config, market, store, store, store, trk, dedup, notifier, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) requireStore(ctx context.Context) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database.dsn not configured")
	}
	return store, closeStore, nil
}

func (a *App) schedulerOptions() (scheduler.Options, error) {
	clock, err := config.ParseClock(a.Config.Scheduler.MarketOpen)
	if err != nil {
		return scheduler.Options{}, err
	}
	loc, err := time.LoadLocation(a.Config.Scheduler.Timezone)
	if err != nil {
		return scheduler.Options{}, err
	}
	return scheduler.Options{
		Hour:         clock.Hour,
		Minute:       clock.Minute,
		Location:     loc,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, nil
}

// Run executes the long-running crossover alert daemon.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	opts, err := a.schedulerOptions()
	if err != nil {
		return err
	}
	sched := scheduler.New(opts, a.Logger)

	svc := a.newService(store, a.newMarketClient(), a.newNotifier())

	a.Logger.Info().
		Str("market_open", a.Config.Scheduler.MarketOpen).
		Str("timezone", a.Config.Scheduler.Timezone).
		Msg("starting crossover alert daemon")

	err = sched.Run(ctx, svc.RunCycle)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("daemon terminated with error")
		return err
	}

	a.Logger.Info().Msg("daemon stopped")
	return nil
}

// Check runs one crossover cycle immediately and exits.
func (a *App) Check(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, a.newMarketClient(), a.newNotifier())
	return svc.RunCycle(ctx)
}

// ShowOptions configure the show command.
type ShowOptions struct {
	UserID int64
	Limit  int
}

// ExportOptions hold parameters for exporting merged history.
type ExportOptions struct {
	Symbol    string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
