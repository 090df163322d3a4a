// Package commit implements the transactional-message protocol that keeps
// the cache-resident stock ledger and the durable system of record
// consistent: a staged "half message" is held invisible to consumers until
// the local durable transaction reports an outcome, and ambiguous outcomes
// are resolved later by re-reading the reconciliation ledger.
package commit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flashmart/seckill/internal/clock"
	"github.com/flashmart/seckill/internal/entity"
	"github.com/flashmart/seckill/internal/messaging"
	"github.com/flashmart/seckill/internal/repository"
)

// ReduceStockArgs correlates the queue message with the local durable write.
type ReduceStockArgs struct {
	UserID     int64
	ItemID     int64
	PromoID    int64
	Amount     int
	StockLogID string
}

// Executor runs the local durable transaction for a staged message. A nil
// return means the transaction committed, which includes confirming the
// stock log entry.
type Executor interface {
	ExecuteLocalTransaction(ctx context.Context, args ReduceStockArgs) error
}

// StockReleaser releases a cache reservation when an attempt rolls back.
type StockReleaser interface {
	Increase(ctx context.Context, itemID int64, amount int) error
}

// Outcome is the answer of the check callback.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeCommit
	OutcomeRollback
)

type stagedMessage struct {
	args     ReduceStockArgs
	payload  []byte
	attempts int
}

const (
	defaultCheckInterval    = 5 * time.Second
	defaultMaxCheckAttempts = 15
	defaultPendingGrace     = 10 * time.Minute
	defaultSweepLimit       = 100
)

// Producer coordinates the half-message / local-transaction / check-callback
// state machine. Messages are staged in-process and only published once the
// local transaction is known to have committed, so a rollback never reaches
// the decrement consumer.
type Producer struct {
	topic            string
	publisher        messaging.Publisher
	executor         Executor
	stockLogs        repository.StockLogRepository
	stock            StockReleaser
	clock            clock.Clock
	checkInterval    time.Duration
	maxCheckAttempts int
	pendingGrace     time.Duration

	mu     sync.Mutex
	staged map[string]*stagedMessage
}

func NewProducer(
	topic string,
	publisher messaging.Publisher,
	executor Executor,
	stockLogs repository.StockLogRepository,
	stock StockReleaser,
	clk clock.Clock,
	opts ...ProducerOption,
) *Producer {
	p := &Producer{
		topic:            topic,
		publisher:        publisher,
		executor:         executor,
		stockLogs:        stockLogs,
		stock:            stock,
		clock:            clk,
		checkInterval:    defaultCheckInterval,
		maxCheckAttempts: defaultMaxCheckAttempts,
		pendingGrace:     defaultPendingGrace,
		staged:           make(map[string]*stagedMessage),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type ProducerOption func(*Producer)

// WithCheckInterval overrides how often the check callback runs.
func WithCheckInterval(d time.Duration) ProducerOption {
	return func(p *Producer) {
		if d > 0 {
			p.checkInterval = d
		}
	}
}

// WithMaxCheckAttempts overrides how many unknown answers the reaper
// tolerates before forcing a rollback.
func WithMaxCheckAttempts(n int) ProducerOption {
	return func(p *Producer) {
		if n > 0 {
			p.maxCheckAttempts = n
		}
	}
}

// WithPendingGrace overrides how long a durable PENDING entry may sit before
// the sweeper reclaims it.
func WithPendingGrace(d time.Duration) ProducerOption {
	return func(p *Producer) {
		if d > 0 {
			p.pendingGrace = d
		}
	}
}

// SendReduceStock runs one purchase attempt through the protocol: stage the
// message, execute the local durable transaction, then publish on commit or
// roll back and release the reservation on failure. A nil return means the
// local outcome was an immediate commit; any later resolution through the
// check callback is not observable to the caller.
func (p *Producer) SendReduceStock(ctx context.Context, args ReduceStockArgs) error {
	payload, err := json.Marshal(entity.StockDecrementMessage{
		ItemID:     args.ItemID,
		Amount:     args.Amount,
		StockLogID: args.StockLogID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", entity.ErrCommitFailed)
	}

	p.stage(args, payload)

	execErr, ambiguous := p.execute(ctx, args)
	if ambiguous {
		// The executor died mid-flight. Leave the message staged: the check
		// callback will resolve it from the stock log. The caller still sees
		// a failure; the async resolution only reconciles state.
		return fmt.Errorf("local transaction outcome unknown: %w", entity.ErrCommitFailed)
	}
	if execErr != nil {
		p.unstage(args.StockLogID)
		p.rollback(ctx, args)
		return fmt.Errorf("local transaction failed: %v: %w", execErr, entity.ErrCommitFailed)
	}

	// Committed. The stock log was confirmed inside the local transaction;
	// make the message visible to the consumer.
	p.publishStaged(ctx, args.StockLogID)
	return nil
}

func (p *Producer) execute(ctx context.Context, args ReduceStockArgs) (execErr error, ambiguous bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Local transaction panicked", "stock_log_id", args.StockLogID, "panic", r)
			ambiguous = true
		}
	}()
	execErr = p.executor.ExecuteLocalTransaction(ctx, args)
	return execErr, false
}

// CheckTransaction re-derives the outcome of an ambiguous attempt purely
// from the reconciliation ledger. PENDING means the executor is either
// still running or died mid-flight, so the only safe answer is unknown.
func (p *Producer) CheckTransaction(ctx context.Context, stockLogID string) Outcome {
	status, err := p.stockLogs.StatusOf(ctx, stockLogID)
	switch {
	case errors.Is(err, entity.ErrStockLogNotFound):
		return OutcomeUnknown
	case err != nil:
		slog.Error("Check callback failed to read stock log", "stock_log_id", stockLogID, "err", err)
		return OutcomeUnknown
	case status == entity.StockLogConfirmed:
		return OutcomeCommit
	case status == entity.StockLogPending:
		return OutcomeUnknown
	default:
		return OutcomeRollback
	}
}

// Run drives the check callback and the pending-entry reaper until ctx is
// cancelled.
func (p *Producer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkStaged(ctx)
			p.sweepPending(ctx)
		}
	}
}

func (p *Producer) checkStaged(ctx context.Context) {
	for _, msg := range p.snapshot() {
		switch p.CheckTransaction(ctx, msg.args.StockLogID) {
		case OutcomeCommit:
			p.publishStaged(ctx, msg.args.StockLogID)
		case OutcomeRollback:
			// Whoever moved the log to ROLLED_BACK owns the compensation.
			p.unstage(msg.args.StockLogID)
		default:
			if p.recordAttempt(msg.args.StockLogID) >= p.maxCheckAttempts {
				slog.Warn("Reaping ambiguous attempt", "stock_log_id", msg.args.StockLogID)
				p.unstage(msg.args.StockLogID)
				p.rollback(ctx, msg.args)
			}
		}
	}
}

// sweepPending reclaims durable PENDING entries whose executor died before
// this process restarted; those have no staged message left to check.
func (p *Producer) sweepPending(ctx context.Context) {
	cutoff := p.clock.Now().Add(-p.pendingGrace)
	logs, err := p.stockLogs.FindPendingBefore(ctx, cutoff, defaultSweepLimit)
	if err != nil {
		slog.Error("Failed to list pending stock logs", "err", err)
		return
	}
	for _, log := range logs {
		if p.isStaged(log.ID) {
			continue
		}
		slog.Warn("Reaping orphaned pending stock log", "stock_log_id", log.ID)
		p.rollback(ctx, ReduceStockArgs{ItemID: log.ItemID, Amount: log.Amount, StockLogID: log.ID})
	}
}

// rollback finalizes the log and releases the cache reservation. The
// conditional update guarantees at most one caller wins the transition, so
// the reservation is released exactly once.
func (p *Producer) rollback(ctx context.Context, args ReduceStockArgs) {
	err := p.stockLogs.MarkRolledBack(ctx, args.StockLogID)
	switch {
	case err == nil:
		if rerr := p.stock.Increase(ctx, args.ItemID, args.Amount); rerr != nil {
			slog.Error("Failed to release stock reservation", "stock_log_id", args.StockLogID, "err", rerr)
		}
	case errors.Is(err, entity.ErrStockLogFinalized):
		// Already resolved elsewhere.
	default:
		slog.Error("Failed to roll back stock log", "stock_log_id", args.StockLogID, "err", err)
	}
}

func (p *Producer) publishStaged(ctx context.Context, stockLogID string) {
	p.mu.Lock()
	msg, ok := p.staged[stockLogID]
	p.mu.Unlock()
	if !ok {
		return
	}

	if err := p.publisher.Publish(ctx, p.topic, stockLogID, msg.payload); err != nil {
		// Keep the message staged: the stock log is CONFIRMED, so the check
		// callback will publish it on a later pass.
		slog.Error("Failed to publish confirmed decrement", "stock_log_id", stockLogID, "err", err)
		return
	}
	p.unstage(stockLogID)
}

func (p *Producer) stage(args ReduceStockArgs, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.staged[args.StockLogID] = &stagedMessage{args: args, payload: payload}
}

func (p *Producer) unstage(stockLogID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.staged, stockLogID)
}

func (p *Producer) isStaged(stockLogID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.staged[stockLogID]
	return ok
}

func (p *Producer) recordAttempt(stockLogID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg, ok := p.staged[stockLogID]
	if !ok {
		return 0
	}
	msg.attempts++
	return msg.attempts
}

func (p *Producer) snapshot() []*stagedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := make([]*stagedMessage, 0, len(p.staged))
	for _, msg := range p.staged {
		msgs = append(msgs, msg)
	}
	return msgs
}
