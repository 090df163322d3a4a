package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flashmart/seckill/internal/entity"
	"github.com/flashmart/seckill/internal/repository"
)

type itemRepository struct {
	db *sql.DB
}

// NewItemRepository creates an ItemRepository backed by Postgres.
func NewItemRepository(db *sql.DB) repository.ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) FindByID(ctx context.Context, id int64) (*entity.Item, error) {
	var item entity.Item
	err := r.db.QueryRowContext(ctx,
		`SELECT i.id, i.title, i.price, i.sales, COALESCE(s.stock, 0)
		 FROM items i LEFT JOIN item_stock s ON s.item_id = i.id
		 WHERE i.id = $1`,
		id,
	).Scan(&item.ID, &item.Title, &item.Price, &item.Sales, &item.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item %d: %w", id, err)
	}
	return &item, nil
}

// ApplyDecrement is the idempotent durable decrement: the insert into
// applied_decrements gates the stock update, so a redelivered message is a
// no-op after the first apply.
func (r *itemRepository) ApplyDecrement(ctx context.Context, stockLogID string, itemID int64, amount int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO applied_decrements (stock_log_id) VALUES ($1) ON CONFLICT (stock_log_id) DO NOTHING",
		stockLogID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record applied decrement: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if inserted == 0 {
		// Already applied for this stock log id.
		return false, nil
	}

	res, err = tx.ExecContext(ctx,
		"UPDATE item_stock SET stock = stock - $1 WHERE item_id = $2 AND stock >= $1",
		amount, itemID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if updated == 0 {
		return false, fmt.Errorf("durable stock for item %d below %d: %w", itemID, amount, entity.ErrStockUnavailable)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func (r *itemRepository) Seed(ctx context.Context, items []entity.Item) error {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count); err != nil {
		return fmt.Errorf("failed to count items: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, item := range items {
		var id int64
		err := r.db.QueryRowContext(ctx,
			"INSERT INTO items (title, price, sales) VALUES ($1, $2, $3) RETURNING id",
			item.Title, item.Price, item.Sales,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to seed item %q: %w", item.Title, err)
		}
		_, err = r.db.ExecContext(ctx,
			"INSERT INTO item_stock (item_id, stock) VALUES ($1, $2)",
			id, item.Stock,
		)
		if err != nil {
			return fmt.Errorf("failed to seed stock for item %q: %w", item.Title, err)
		}
	}
	return nil
}
