package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flashmart/seckill/internal/cache"
	"github.com/flashmart/seckill/internal/clock"
	"github.com/flashmart/seckill/internal/entity"
	"github.com/flashmart/seckill/internal/repository"
)

const purchaseTokenTTL = 5 * time.Minute

// defaultDoorCountFactor sizes the ticket budget above raw stock to absorb
// abandoned and failed attempts while still bounding backend load.
const defaultDoorCountFactor = 5

// ItemLookup resolves items, typically through a read-through cache.
type ItemLookup interface {
	ItemByID(ctx context.Context, id int64) (*entity.Item, error)
}

// UserLookup resolves users, typically through a read-through cache.
type UserLookup interface {
	UserByID(ctx context.Context, id int64) (*entity.User, error)
}

// PromoService publishes promotions and runs the admission gate that issues
// purchase tokens.
type PromoService struct {
	promos          repository.PromoRepository
	items           ItemLookup
	itemRepo        repository.ItemRepository
	counters        cache.CounterStore
	flags           cache.FlagStore
	tokens          cache.TokenStore
	users           UserLookup
	clock           clock.Clock
	doorCountFactor int64
}

func NewPromoService(
	promos repository.PromoRepository,
	itemRepo repository.ItemRepository,
	items ItemLookup,
	users UserLookup,
	counters cache.CounterStore,
	flags cache.FlagStore,
	tokens cache.TokenStore,
	clk clock.Clock,
	opts ...PromoServiceOption,
) *PromoService {
	svc := &PromoService{
		promos:          promos,
		itemRepo:        itemRepo,
		items:           items,
		users:           users,
		counters:        counters,
		flags:           flags,
		tokens:          tokens,
		clock:           clk,
		doorCountFactor: defaultDoorCountFactor,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type PromoServiceOption func(*PromoService)

// WithDoorCountFactor overrides the ticket budget multiplier.
func WithDoorCountFactor(factor int64) PromoServiceOption {
	return func(s *PromoService) {
		if factor > 0 {
			s.doorCountFactor = factor
		}
	}
}

// PublishPromo seeds the shared store for a promotion: the live stock
// counter from durable stock, a cleared sold-out marker and the door count.
// This is the only place counters are set rather than added to.
func (s *PromoService) PublishPromo(ctx context.Context, promoID int64) error {
	promo, err := s.promos.FindByID(ctx, promoID)
	if err != nil {
		return err
	}
	if promo.ItemID == 0 {
		return entity.ErrValidationFailed
	}
	item, err := s.itemRepo.FindByID(ctx, promo.ItemID)
	if err != nil {
		return err
	}

	if err := s.counters.Set(ctx, cache.StockKey(item.ID), int64(item.Stock)); err != nil {
		return fmt.Errorf("failed to seed stock counter: %w", err)
	}
	if err := s.flags.ClearFlag(ctx, cache.SoldOutKey(item.ID)); err != nil {
		return fmt.Errorf("failed to clear sold-out marker: %w", err)
	}
	if err := s.counters.Set(ctx, cache.DoorCountKey(promoID), int64(item.Stock)*s.doorCountFactor); err != nil {
		return fmt.Errorf("failed to seed door count: %w", err)
	}

	slog.Info("Promo published", "promo_id", promoID, "item_id", item.ID, "stock", item.Stock)
	return nil
}

// PromoByItemID returns the latest promotion for an item along with its
// derived status at the current instant.
func (s *PromoService) PromoByItemID(ctx context.Context, itemID int64) (*entity.Promo, entity.PromoStatus, error) {
	promo, err := s.promos.FindByItemID(ctx, itemID)
	if err != nil {
		return nil, 0, err
	}
	return promo, promo.StatusAt(s.clock.Now()), nil
}

// IssueToken is the admission gate. Each step is a hard gate; any failure
// short-circuits with ErrAdmissionDenied (or the lookup error). Correctness
// under unbounded concurrent callers rests on the atomicity of the door
// count decrement and the overwrite semantics of the token write.
func (s *PromoService) IssueToken(ctx context.Context, promoID, itemID, userID int64) (string, error) {
	soldOut, err := s.flags.HasFlag(ctx, cache.SoldOutKey(itemID))
	if err != nil {
		return "", err
	}
	if soldOut {
		return "", entity.ErrStockUnavailable
	}

	promo, err := s.promos.FindByID(ctx, promoID)
	if err != nil {
		return "", err
	}
	if promo.StatusAt(s.clock.Now()) != entity.PromoActive {
		return "", entity.ErrAdmissionDenied
	}

	if _, err := s.items.ItemByID(ctx, itemID); err != nil {
		return "", err
	}
	if _, err := s.users.UserByID(ctx, userID); err != nil {
		return "", err
	}

	// A ticket lost to a caller that fails later is never re-credited:
	// the slack is baked into the initial multiplier.
	count, err := s.counters.IncrBy(ctx, cache.DoorCountKey(promoID), -1)
	if err != nil {
		return "", fmt.Errorf("failed to decrement door count: %w", err)
	}
	if count < 0 {
		return "", entity.ErrAdmissionDenied
	}

	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	key := cache.PurchaseTokenKey(promoID, userID, itemID)
	if err := s.tokens.Put(ctx, key, token, purchaseTokenTTL); err != nil {
		return "", fmt.Errorf("failed to store purchase token: %w", err)
	}
	return token, nil
}

// ValidateToken checks a presented purchase token against the stored one.
// An expired token is rejected identically to one that never existed.
func (s *PromoService) ValidateToken(ctx context.Context, promoID, userID, itemID int64, presented string) error {
	stored, err := s.tokens.Get(ctx, cache.PurchaseTokenKey(promoID, userID, itemID))
	if err != nil {
		return err
	}
	if stored == "" || stored != presented {
		return entity.ErrValidationFailed
	}
	return nil
}
