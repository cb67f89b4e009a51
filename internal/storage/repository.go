package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrDuplicateSymbol indicates the symbol is already on the watchlist.
	ErrDuplicateSymbol = errors.New("storage: symbol already on watchlist")
)

const (
	listWatchlistSQL = `SELECT id, user_id, symbol, added_at
    FROM watchlist
    WHERE user_id = $1
    ORDER BY added_at DESC;`

	insertWatchItemSQL = `INSERT INTO watchlist (user_id, symbol)
    VALUES ($1, $2)
    ON CONFLICT (user_id, symbol) DO NOTHING
    RETURNING id, user_id, symbol, added_at;`

	deleteWatchItemSQL = `DELETE FROM watchlist WHERE user_id = $1 AND symbol = $2;`

	deletePositionSQL = `DELETE FROM sma_state WHERE user_id = $1 AND symbol = $2;`

	listEnabledUserIDsSQL = `SELECT DISTINCT user_id FROM telegram_config WHERE enabled;`

	getConfigSQL = `SELECT id, user_id, bot_token, chat_id, enabled, created_at, updated_at
    FROM telegram_config
    WHERE user_id = $1;`

	upsertConfigSQL = `INSERT INTO telegram_config (user_id, bot_token, chat_id, enabled)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (user_id) DO UPDATE
    SET bot_token = EXCLUDED.bot_token,
        chat_id    = EXCLUDED.chat_id,
        enabled    = EXCLUDED.enabled,
        updated_at = now();`

	getPositionSQL = `SELECT user_id, symbol, last_position, last_checked
    FROM sma_state
    WHERE user_id = $1 AND symbol = $2;`

	upsertPositionSQL = `INSERT INTO sma_state (user_id, symbol, last_position, last_checked)
    VALUES ($1, $2, $3, now())
    ON CONFLICT (user_id, symbol) DO UPDATE
    SET last_position = EXCLUDED.last_position,
        last_checked  = now();`

	insertAlertSQL = `INSERT INTO alert_history (
        user_id,
        symbol,
        cross_type,
        price,
        sma_value,
        telegram_success
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, user_id, symbol, cross_type, price, sma_value, sent_at, telegram_success;`

	latestAlertSinceSQL = `SELECT id, user_id, symbol, cross_type, price, sma_value, sent_at, telegram_success
    FROM alert_history
    WHERE user_id = $1
      AND symbol = $2
      AND cross_type = $3
      AND sent_at > $4
    ORDER BY sent_at DESC
    LIMIT 1;`

	listRecentAlertsSQL = `SELECT id, user_id, symbol, cross_type, price, sma_value, sent_at, telegram_success
    FROM alert_history
    WHERE user_id = $1
    ORDER BY sent_at DESC
    LIMIT $2;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// WatchlistStore defines operations over a user's watched symbols.
type WatchlistStore interface {
	ListWatchlist(ctx context.Context, userID int64) ([]WatchItem, error)
	AddWatchItem(ctx context.Context, userID int64, symbol string) (WatchItem, error)
	RemoveWatchItem(ctx context.Context, userID int64, symbol string) error
}

// NotifyConfigStore defines operations over per-user alert routing.
type NotifyConfigStore interface {
	ListEnabledUserIDs(ctx context.Context) ([]int64, error)
	GetConfig(ctx context.Context, userID int64) (*NotifyConfig, error)
	UpsertConfig(ctx context.Context, cfg NotifyConfig) error
}

// PositionStore defines operations over per-pair position state.
type PositionStore interface {
	GetPosition(ctx context.Context, userID int64, symbol string) (*PositionState, error)
	UpsertPosition(ctx context.Context, userID int64, symbol string, position Position) error
}

// AlertStore defines operations for alert history.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	LatestAlertSince(ctx context.Context, userID int64, symbol string, kind CrossType, since time.Time) (*AlertRecord, error)
	ListRecentAlerts(ctx context.Context, userID int64, limit int) ([]AlertRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to watchlists, configs, position state, and
// alert history.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// ListWatchlist returns a user's watched symbols, most recent first.
func (s *Store) ListWatchlist(ctx context.Context, userID int64) ([]WatchItem, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listWatchlistSQL, userID)
	if queryErr != nil {
		return nil, fmt.Errorf("list watchlist: %w", queryErr)
	}
	defer rows.Close()

	items := make([]WatchItem, 0)
	for rows.Next() {
		var item WatchItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.Symbol, &item.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// AddWatchItem inserts a symbol onto a user's watchlist.
func (s *Store) AddWatchItem(ctx context.Context, userID int64, symbol string) (WatchItem, error) {
	pool, err := s.getPool()
	if err != nil {
		return WatchItem{}, err
	}

	var item WatchItem
	scanErr := pool.QueryRow(ctx, insertWatchItemSQL, userID, symbol).
		Scan(&item.ID, &item.UserID, &item.Symbol, &item.AddedAt)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return WatchItem{}, ErrDuplicateSymbol
	}
	if scanErr != nil {
		return WatchItem{}, fmt.Errorf("add watch item: %w", scanErr)
	}
	return item, nil
}

// RemoveWatchItem deletes a symbol from a user's watchlist along with the
// pair's position state, so a re-added symbol starts from unknown.
func (s *Store) RemoveWatchItem(ctx context.Context, userID int64, symbol string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteWatchItemSQL, userID, symbol); execErr != nil {
		return fmt.Errorf("remove watch item: %w", execErr)
	}
	if _, execErr := pool.Exec(ctx, deletePositionSQL, userID, symbol); execErr != nil {
		return fmt.Errorf("remove position state: %w", execErr)
	}
	return nil
}

// ListEnabledUserIDs returns every user with alerting switched on.
func (s *Store) ListEnabledUserIDs(ctx context.Context) ([]int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listEnabledUserIDsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list enabled users: %w", queryErr)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}

// GetConfig returns a user's alert routing, or nil when none is stored.
func (s *Store) GetConfig(ctx context.Context, userID int64) (*NotifyConfig, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var cfg NotifyConfig
	scanErr := pool.QueryRow(ctx, getConfigSQL, userID).Scan(
		&cfg.ID,
		&cfg.UserID,
		&cfg.BotToken,
		&cfg.ChatID,
		&cfg.Enabled,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return nil, nil
	}
	if scanErr != nil {
		return nil, fmt.Errorf("get telegram config: %w", scanErr)
	}
	return &cfg, nil
}

// UpsertConfig stores a user's alert routing.
func (s *Store) UpsertConfig(ctx context.Context, cfg NotifyConfig) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertConfigSQL, cfg.UserID, cfg.BotToken, cfg.ChatID, cfg.Enabled); execErr != nil {
		return fmt.Errorf("upsert telegram config: %w", execErr)
	}
	return nil
}

// GetPosition returns the stored position for a pair, or nil if the pair
// was never checked.
func (s *Store) GetPosition(ctx context.Context, userID int64, symbol string) (*PositionState, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var state PositionState
	var position string
	scanErr := pool.QueryRow(ctx, getPositionSQL, userID, symbol).Scan(
		&state.UserID,
		&state.Symbol,
		&position,
		&state.LastChecked,
	)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return nil, nil
	}
	if scanErr != nil {
		return nil, fmt.Errorf("get position: %w", scanErr)
	}
	state.LastPosition = Position(position)
	return &state, nil
}

// UpsertPosition stores the current position for a pair and stamps the
// check time. Called on every evaluation, transition or not.
func (s *Store) UpsertPosition(ctx context.Context, userID int64, symbol string, position Position) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertPositionSQL, userID, symbol, string(position)); execErr != nil {
		return fmt.Errorf("upsert position: %w", execErr)
	}
	return nil
}

// InsertAlert appends a notification attempt to the alert history.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.UserID,
		alert.Symbol,
		string(alert.CrossType),
		alert.Price.String(),
		alert.SMAValue.String(),
		alert.TelegramSuccess,
	)

	rec, scanErr := scanAlertRecord(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// LatestAlertSince returns the most recent alert for (user, symbol, kind)
// sent after since, or nil when none exists.
func (s *Store) LatestAlertSince(ctx context.Context, userID int64, symbol string, kind CrossType, since time.Time) (*AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	row := pool.QueryRow(ctx, latestAlertSinceSQL, userID, symbol, string(kind), since)
	rec, scanErr := scanAlertRecord(row)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return nil, nil
	}
	if scanErr != nil {
		return nil, fmt.Errorf("latest alert since: %w", scanErr)
	}
	return &rec, nil
}

// ListRecentAlerts lists a user's most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, userID int64, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, userID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlertRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlertRecord(row pgx.Row) (AlertRecord, error) {
	var (
		rec       AlertRecord
		crossType string
		priceStr  string
		smaStr    string
	)

	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Symbol,
		&crossType,
		&priceStr,
		&smaStr,
		&rec.SentAt,
		&rec.TelegramSuccess,
	); err != nil {
		return AlertRecord{}, err
	}

	rec.CrossType = CrossType(crossType)

	var convErr error
	rec.Price, convErr = decimal.NewFromString(priceStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse price: %w", convErr)
	}
	rec.SMAValue, convErr = decimal.NewFromString(smaStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse sma value: %w", convErr)
	}

	return rec, nil
}
