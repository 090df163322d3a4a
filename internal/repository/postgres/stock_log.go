package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flashmart/seckill/internal/entity"
	"github.com/flashmart/seckill/internal/repository"
)

type stockLogRepository struct {
	db *sql.DB
}

// NewStockLogRepository creates the reconciliation ledger backed by Postgres.
func NewStockLogRepository(db *sql.DB) repository.StockLogRepository {
	return &stockLogRepository{db: db}
}

func (r *stockLogRepository) Create(ctx context.Context, log entity.StockLog) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO stock_log (stock_log_id, item_id, amount, status, created_at) VALUES ($1, $2, $3, $4, $5)",
		log.ID, log.ItemID, log.Amount, int(log.Status), log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert stock log %s: %w", log.ID, err)
	}
	return nil
}

func (r *stockLogRepository) MarkConfirmed(ctx context.Context, id string) error {
	return r.transition(ctx, id, entity.StockLogConfirmed)
}

func (r *stockLogRepository) MarkRolledBack(ctx context.Context, id string) error {
	return r.transition(ctx, id, entity.StockLogRolledBack)
}

// transition is a single conditional update: only PENDING rows move, so a
// terminal state can never be left again.
func (r *stockLogRepository) transition(ctx context.Context, id string, to entity.StockLogStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE stock_log SET status = $1 WHERE stock_log_id = $2 AND status = $3",
		int(to), id, int(entity.StockLogPending),
	)
	if err != nil {
		return fmt.Errorf("failed to update stock log %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Either the row does not exist or it already reached a terminal state.
	// A loser of the race to the same target state still gets
	// ErrStockLogFinalized: the winner owns any follow-up compensation, and
	// reporting success here would run it twice.
	status, err := r.StatusOf(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("stock log %s is %s: %w", id, status, entity.ErrStockLogFinalized)
}

func (r *stockLogRepository) StatusOf(ctx context.Context, id string) (entity.StockLogStatus, error) {
	var status int
	err := r.db.QueryRowContext(ctx,
		"SELECT status FROM stock_log WHERE stock_log_id = $1", id,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, entity.ErrStockLogNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query stock log %s: %w", id, err)
	}
	return entity.StockLogStatus(status), nil
}

func (r *stockLogRepository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]entity.StockLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT stock_log_id, item_id, amount, status, created_at
		 FROM stock_log
		 WHERE status = $1 AND created_at < $2
		 ORDER BY created_at
		 LIMIT $3`,
		int(entity.StockLogPending), cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending stock logs: %w", err)
	}
	defer rows.Close()

	var logs []entity.StockLog
	for rows.Next() {
		var log entity.StockLog
		var status int
		if err := rows.Scan(&log.ID, &log.ItemID, &log.Amount, &status, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock log: %w", err)
		}
		log.Status = entity.StockLogStatus(status)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
