package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/flashmart/seckill/internal/clock"
	"github.com/flashmart/seckill/internal/commit"
	"github.com/flashmart/seckill/internal/entity"
	"github.com/flashmart/seckill/internal/repository"
)

// OrderService persists purchases. It is the local-transaction executor of
// the commit protocol: CreateOrder writes the order, bumps sales and
// confirms the stock log in one durable transaction.
type OrderService struct {
	orders repository.OrderRepository
	promos repository.PromoRepository
	items  ItemLookup
	users  UserLookup
	clock  clock.Clock
}

func NewOrderService(
	orders repository.OrderRepository,
	promos repository.PromoRepository,
	items ItemLookup,
	users UserLookup,
	clk clock.Clock,
) *OrderService {
	return &OrderService{
		orders: orders,
		promos: promos,
		items:  items,
		users:  users,
		clock:  clk,
	}
}

// ExecuteLocalTransaction implements commit.Executor.
func (s *OrderService) ExecuteLocalTransaction(ctx context.Context, args commit.ReduceStockArgs) error {
	return s.CreateOrder(ctx, args.UserID, args.ItemID, args.PromoID, args.Amount, args.StockLogID)
}

// CreateOrder validates the purchase and runs the durable write. Business
// failures surface as typed errors so the commit protocol can roll the
// attempt back; the durable stock decrement itself arrives later through
// the decrement consumer, not here.
func (s *OrderService) CreateOrder(ctx context.Context, userID, itemID, promoID int64, amount int, stockLogID string) error {
	if amount <= 0 || amount > 99 {
		return entity.ErrValidationFailed
	}

	item, err := s.items.ItemByID(ctx, itemID)
	if err != nil {
		return err
	}
	if _, err := s.users.UserByID(ctx, userID); err != nil {
		return err
	}

	price := item.Price
	if promoID != 0 {
		promo, err := s.promos.FindByID(ctx, promoID)
		if err != nil {
			return err
		}
		if promo.ItemID != itemID {
			return entity.ErrValidationFailed
		}
		price = promo.ItemPrice
	}

	order := entity.Order{
		ID:         strings.ReplaceAll(uuid.New().String(), "-", ""),
		UserID:     userID,
		ItemID:     itemID,
		PromoID:    promoID,
		Amount:     amount,
		ItemPrice:  price,
		OrderPrice: price * float64(amount),
		StockLogID: stockLogID,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to persist order: %w", err)
	}

	slog.Info("Order created", "order_id", order.ID, "user_id", userID, "item_id", itemID, "amount", amount)
	return nil
}
