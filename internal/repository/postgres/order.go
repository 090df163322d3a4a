package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flashmart/seckill/internal/entity"
	"github.com/flashmart/seckill/internal/repository"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates an OrderRepository backed by Postgres.
func NewOrderRepository(db *sql.DB) repository.OrderRepository {
	return &orderRepository{db: db}
}

// CreateOrder is the local durable transaction of the commit protocol: the
// order row, the sales bump and the stock log confirmation are one SQL
// transaction. The conditional stock log update guarantees a single writer
// per log id; if the log already left PENDING nothing is persisted.
func (r *orderRepository) CreateOrder(ctx context.Context, order entity.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, item_id, promo_id, amount, item_price, order_price, stock_log_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, order.UserID, order.ItemID, order.PromoID, order.Amount,
		order.ItemPrice, order.OrderPrice, order.StockLogID, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE items SET sales = sales + $1 WHERE id = $2",
		order.Amount, order.ItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to increase sales: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE stock_log SET status = $1 WHERE stock_log_id = $2 AND status = $3",
		int(entity.StockLogConfirmed), order.StockLogID, int(entity.StockLogPending),
	)
	if err != nil {
		return fmt.Errorf("failed to confirm stock log: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("stock log %s not pending: %w", order.StockLogID, entity.ErrStockLogFinalized)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
