package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the qualitative relationship between price and its moving
// average. Once a pair has a stored position it only ever flips between
// above and below.
type Position string

const (
	PositionAbove Position = "above"
	PositionBelow Position = "below"
)

// CrossType labels the direction of a detected transition.
type CrossType string

const (
	CrossBullish CrossType = "bullish"
	CrossBearish CrossType = "bearish"
)

// WatchItem is one symbol on a user's watchlist.
type WatchItem struct {
	ID      int64
	UserID  int64
	Symbol  string
	AddedAt time.Time
}

// NotifyConfig holds a user's Telegram alert routing.
type NotifyConfig struct {
	ID        int64
	UserID    int64
	BotToken  string
	ChatID    string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PositionState tracks the last known position per (user, symbol). One row
// per pair, updated on every scheduled check.
type PositionState struct {
	UserID       int64
	Symbol       string
	LastPosition Position
	LastChecked  time.Time
}

// AlertRecord captures a dispatched (or attempted) notification. Rows are
// append-only and never mutated after insert.
type AlertRecord struct {
	ID              int64
	UserID          int64
	Symbol          string
	CrossType       CrossType
	Price           decimal.Decimal
	SMAValue        decimal.Decimal
	SentAt          time.Time
	TelegramSuccess bool
}
