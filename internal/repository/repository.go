package repository

import (
	"context"
	"time"

	"github.com/flashmart/seckill/internal/entity"
)

// ItemRepository handles persistence for items and their durable stock.
type ItemRepository interface {
	FindByID(ctx context.Context, id int64) (*entity.Item, error)
	// ApplyDecrement applies a durable stock decrement exactly once per
	// stock log id. It reports false when the decrement was already applied.
	ApplyDecrement(ctx context.Context, stockLogID string, itemID int64, amount int) (bool, error)
	// Seed inserts initial items if none exist.
	Seed(ctx context.Context, items []entity.Item) error
}

// UserRepository reads buyers from the system of record.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*entity.User, error)
}

// PromoRepository reads promotions. Status is derived by the caller, never
// stored.
type PromoRepository interface {
	FindByID(ctx context.Context, id int64) (*entity.Promo, error)
	FindByItemID(ctx context.Context, itemID int64) (*entity.Promo, error)
}

// OrderRepository persists orders. CreateOrder runs the whole local
// transaction of the commit protocol: the order insert, the sales bump and
// the stock log confirmation commit or fail together.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order entity.Order) error
}

// StockLogRepository is the reconciliation ledger. Entries transition
// PENDING -> CONFIRMED or PENDING -> ROLLED_BACK and never leave a terminal
// state; rows are never deleted.
type StockLogRepository interface {
	Create(ctx context.Context, log entity.StockLog) error
	// MarkConfirmed and MarkRolledBack are single conditional updates.
	// They return entity.ErrStockLogNotFound for unknown ids and
	// entity.ErrStockLogFinalized when the entry already left PENDING.
	MarkConfirmed(ctx context.Context, id string) error
	MarkRolledBack(ctx context.Context, id string) error
	StatusOf(ctx context.Context, id string) (entity.StockLogStatus, error)
	// FindPendingBefore lists entries still PENDING after the cutoff, for
	// the reaper that reclaims decrements whose executor died.
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]entity.StockLog, error)
}
