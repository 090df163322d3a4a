package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/flashmart/seckill/internal/cache"
	"github.com/flashmart/seckill/internal/clock"
	"github.com/flashmart/seckill/internal/entity"
	"github.com/flashmart/seckill/internal/repository"
)

// StockOutcome is the result of one cache-resident decrement attempt.
type StockOutcome int

const (
	// StockOK: the decrement succeeded and stock remains.
	StockOK StockOutcome = iota + 1
	// StockSoldOut: the decrement succeeded and took the last unit; the
	// sold-out marker is now set.
	StockSoldOut
	// StockRejected: the decrement would have gone negative and was rolled
	// back in place.
	StockRejected
)

// StockService is the cache-resident stock ledger plus the durable
// reconciliation ledger that records every attempted decrement.
type StockService struct {
	counters  cache.CounterStore
	flags     cache.FlagStore
	stockLogs repository.StockLogRepository
	clock     clock.Clock
}

func NewStockService(counters cache.CounterStore, flags cache.FlagStore, stockLogs repository.StockLogRepository, clk clock.Clock) *StockService {
	return &StockService{
		counters:  counters,
		flags:     flags,
		stockLogs: stockLogs,
		clock:     clk,
	}
}

// Decrease atomically subtracts amount from the cached stock counter and
// inspects the resulting value. Inspecting the result instead of
// pre-checking avoids the check-then-act race: the atomic add is the sole
// source of truth, so no locking is needed under concurrent callers.
func (s *StockService) Decrease(ctx context.Context, itemID int64, amount int) (StockOutcome, error) {
	if amount <= 0 {
		return 0, entity.ErrValidationFailed
	}

	result, err := s.counters.IncrBy(ctx, cache.StockKey(itemID), -int64(amount))
	if err != nil {
		return 0, fmt.Errorf("failed to decrement stock for item %d: %w", itemID, err)
	}

	switch {
	case result > 0:
		return StockOK, nil
	case result == 0:
		// Last unit sold. The marker stops further attempts before they
		// touch the counter.
		if err := s.flags.SetFlag(ctx, cache.SoldOutKey(itemID)); err != nil {
			return 0, fmt.Errorf("failed to mark item %d sold out: %w", itemID, err)
		}
		return StockSoldOut, nil
	default:
		// Oversold attempt: compensate in place and reject.
		if err := s.Increase(ctx, itemID, amount); err != nil {
			return 0, err
		}
		return StockRejected, nil
	}
}

// Increase is the unconditional compensating counterpart of Decrease, used
// by both the rejected-decrement rollback and the commit protocol's failure
// path.
func (s *StockService) Increase(ctx context.Context, itemID int64, amount int) error {
	if _, err := s.counters.IncrBy(ctx, cache.StockKey(itemID), int64(amount)); err != nil {
		return fmt.Errorf("failed to restore stock for item %d: %w", itemID, err)
	}
	return nil
}

// SoldOut reports whether the sold-out marker is set for the item.
func (s *StockService) SoldOut(ctx context.Context, itemID int64) (bool, error) {
	return s.flags.HasFlag(ctx, cache.SoldOutKey(itemID))
}

// OpenStockLog creates a PENDING reconciliation entry and returns its id.
// The id is the correlation key threaded through the queue message and the
// eventual durable write.
func (s *StockService) OpenStockLog(ctx context.Context, itemID int64, amount int) (string, error) {
	log := entity.StockLog{
		ID:        strings.ReplaceAll(uuid.New().String(), "-", ""),
		ItemID:    itemID,
		Amount:    amount,
		Status:    entity.StockLogPending,
		CreatedAt: s.clock.Now(),
	}
	if err := s.stockLogs.Create(ctx, log); err != nil {
		return "", fmt.Errorf("failed to open stock log: %w", err)
	}
	return log.ID, nil
}
