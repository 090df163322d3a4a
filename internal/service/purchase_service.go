package service

import (
	"context"

	"github.com/flashmart/seckill/internal/commit"
	"github.com/flashmart/seckill/internal/entity"
)

// TransactionalProducer is the commit protocol entry point.
type TransactionalProducer interface {
	SendReduceStock(ctx context.Context, args commit.ReduceStockArgs) error
}

// Submitter bounds how many purchase attempts run concurrently.
type Submitter interface {
	Submit(ctx context.Context, fn func(ctx context.Context) error) error
}

// TokenValidator checks a presented purchase token.
type TokenValidator interface {
	ValidateToken(ctx context.Context, promoID, userID, itemID int64, presented string) error
}

// PurchaseService runs the purchase pipeline: token check, intake
// admission, optimistic cache decrement, reconciliation intent and the
// transactional commit.
type PurchaseService struct {
	stock    *StockService
	tokens   TokenValidator
	producer TransactionalProducer
	intake   Submitter
}

func NewPurchaseService(stock *StockService, tokens TokenValidator, producer TransactionalProducer, intake Submitter) *PurchaseService {
	return &PurchaseService{
		stock:    stock,
		tokens:   tokens,
		producer: producer,
		intake:   intake,
	}
}

// PurchaseInput is one purchase attempt. PromoID and PromoToken are
// optional; when a token is supplied it must match the stored one.
type PurchaseInput struct {
	UserID     int64
	ItemID     int64
	PromoID    int64
	Amount     int
	PromoToken string
}

// Purchase blocks until the attempt completes or is refused. Any failure
// before message confirmation leaves no durable side effect: the cache
// decrement is compensated on every early exit.
func (s *PurchaseService) Purchase(ctx context.Context, in PurchaseInput) error {
	if in.Amount <= 0 {
		return entity.ErrValidationFailed
	}
	if in.PromoToken != "" {
		if err := s.tokens.ValidateToken(ctx, in.PromoID, in.UserID, in.ItemID, in.PromoToken); err != nil {
			return err
		}
	}

	return s.intake.Submit(ctx, func(ctx context.Context) error {
		return s.attempt(ctx, in)
	})
}

func (s *PurchaseService) attempt(ctx context.Context, in PurchaseInput) error {
	soldOut, err := s.stock.SoldOut(ctx, in.ItemID)
	if err != nil {
		return err
	}
	if soldOut {
		return entity.ErrStockUnavailable
	}

	outcome, err := s.stock.Decrease(ctx, in.ItemID, in.Amount)
	if err != nil {
		return err
	}
	if outcome == StockRejected {
		return entity.ErrStockUnavailable
	}

	stockLogID, err := s.stock.OpenStockLog(ctx, in.ItemID, in.Amount)
	if err != nil {
		// The reservation is already taken from the counter; give it back.
		if rerr := s.stock.Increase(ctx, in.ItemID, in.Amount); rerr != nil {
			return rerr
		}
		return err
	}

	return s.producer.SendReduceStock(ctx, commit.ReduceStockArgs{
		UserID:     in.UserID,
		ItemID:     in.ItemID,
		PromoID:    in.PromoID,
		Amount:     in.Amount,
		StockLogID: stockLogID,
	})
}
