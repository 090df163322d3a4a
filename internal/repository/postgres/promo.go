package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flashmart/seckill/internal/entity"
	"github.com/flashmart/seckill/internal/repository"
)

type promoRepository struct {
	db *sql.DB
}

// NewPromoRepository creates a PromoRepository backed by Postgres.
func NewPromoRepository(db *sql.DB) repository.PromoRepository {
	return &promoRepository{db: db}
}

const promoColumns = "id, name, item_id, item_price, starts_at, ends_at"

func (r *promoRepository) FindByID(ctx context.Context, id int64) (*entity.Promo, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		"SELECT "+promoColumns+" FROM promos WHERE id = $1", id))
}

func (r *promoRepository) FindByItemID(ctx context.Context, itemID int64) (*entity.Promo, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		"SELECT "+promoColumns+" FROM promos WHERE item_id = $1 ORDER BY starts_at DESC LIMIT 1", itemID))
}

func (r *promoRepository) scanOne(row *sql.Row) (*entity.Promo, error) {
	var promo entity.Promo
	err := row.Scan(&promo.ID, &promo.Name, &promo.ItemID, &promo.ItemPrice, &promo.StartsAt, &promo.EndsAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrPromoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query promo: %w", err)
	}
	return &promo, nil
}

type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a UserRepository backed by Postgres.
func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id int64) (*entity.User, error) {
	var user entity.User
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name FROM users WHERE id = $1", id,
	).Scan(&user.ID, &user.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user %d: %w", id, err)
	}
	return &user, nil
}
