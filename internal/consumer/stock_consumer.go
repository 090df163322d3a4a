// Package consumer applies confirmed stock decrements to the durable
// system of record.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flashmart/seckill/internal/entity"
	"github.com/flashmart/seckill/internal/messaging"
	"github.com/flashmart/seckill/internal/repository"
)

// StockConsumer handles decrement messages. The broker delivers at least
// once, so the durable write is keyed by stock log id and redelivery is a
// no-op after the first apply.
type StockConsumer struct {
	items repository.ItemRepository
}

func NewStockConsumer(items repository.ItemRepository) *StockConsumer {
	return &StockConsumer{items: items}
}

// Handle applies one decrement. Returning an error makes the broker
// redeliver the message.
func (c *StockConsumer) Handle(ctx context.Context, payload []byte) error {
	var msg entity.StockDecrementMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to decode decrement message: %w", err)
	}
	if msg.StockLogID == "" || msg.Amount <= 0 {
		return fmt.Errorf("malformed decrement message: %+v", msg)
	}

	applied, err := c.items.ApplyDecrement(ctx, msg.StockLogID, msg.ItemID, msg.Amount)
	if err != nil {
		return fmt.Errorf("failed to apply decrement %s: %w", msg.StockLogID, err)
	}
	if !applied {
		slog.Info("Decrement already applied, skipping", "stock_log_id", msg.StockLogID)
		return nil
	}

	slog.Info("Durable stock decremented", "stock_log_id", msg.StockLogID, "item_id", msg.ItemID, "amount", msg.Amount)
	return nil
}

// Run subscribes the consumer to the decrement topic until ctx is cancelled.
func (c *StockConsumer) Run(ctx context.Context, sub messaging.Subscriber, topic, groupID string) {
	sub.Consume(ctx, topic, groupID, c.Handle)
}
