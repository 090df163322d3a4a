package entity

import (
	"time"
)

// Item is a sellable product. Stock is the durable count; during a flash
// sale the live count is served from the cache-resident counter instead.
type Item struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
	Sales int     `json:"sales"`
}

// User is the authenticated buyer. Sessions are managed externally; the
// pipeline only reads the user back from the shared store.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PromoStatus is derived from the promotion window on every read.
type PromoStatus int

const (
	PromoUpcoming PromoStatus = iota + 1
	PromoActive
	PromoEnded
)

// Promo is a flash-sale promotion for a single item.
type Promo struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ItemID    int64     `json:"item_id"`
	ItemPrice float64   `json:"item_price"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// StatusAt computes the promotion status for the given instant. The status
// is never stored; it is recomputed on each read.
func (p Promo) StatusAt(now time.Time) PromoStatus {
	switch {
	case now.Before(p.StartsAt):
		return PromoUpcoming
	case now.After(p.EndsAt):
		return PromoEnded
	default:
		return PromoActive
	}
}

// Order is the durable record written by the commit protocol's local
// transaction. StockLogID correlates it with the reconciliation ledger.
type Order struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	ItemID     int64     `json:"item_id"`
	PromoID    int64     `json:"promo_id"`
	Amount     int       `json:"amount"`
	ItemPrice  float64   `json:"item_price"`
	OrderPrice float64   `json:"order_price"`
	StockLogID string    `json:"stock_log_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// StockLogStatus is the reconciliation state of one attempted decrement.
// The integer values are persisted; they must not be reordered.
type StockLogStatus int

const (
	StockLogPending    StockLogStatus = 1
	StockLogConfirmed  StockLogStatus = 2
	StockLogRolledBack StockLogStatus = 3
)

func (s StockLogStatus) String() string {
	switch s {
	case StockLogPending:
		return "pending"
	case StockLogConfirmed:
		return "confirmed"
	case StockLogRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// StockLog is the durable intent record for a single stock decrement.
// Rows are never deleted; they double as the consumer's idempotency key.
type StockLog struct {
	ID        string         `json:"stock_log_id"`
	ItemID    int64          `json:"item_id"`
	Amount    int            `json:"amount"`
	Status    StockLogStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// StockDecrementMessage is the queue message body carrying a confirmed
// decrement to the durable system of record.
type StockDecrementMessage struct {
	ItemID     int64  `json:"itemId"`
	Amount     int    `json:"amount"`
	StockLogID string `json:"stockLogId"`
}
