package service

import (
	"context"
	"fmt"
	"time"

	"github.com/flashmart/seckill/internal/cache"
	"github.com/flashmart/seckill/internal/entity"
	"github.com/flashmart/seckill/internal/repository"
)

// Items and users are read-mostly; serving them from a short-lived cache is
// acceptable for admission checks even when slightly stale.
const lookupCacheTTL = 10 * time.Minute

// ItemService serves items through a read-through cache.
type ItemService struct {
	repo  repository.ItemRepository
	cache cache.ObjectCache
}

func NewItemService(repo repository.ItemRepository, objects cache.ObjectCache) *ItemService {
	return &ItemService{repo: repo, cache: objects}
}

func (s *ItemService) ItemByID(ctx context.Context, id int64) (*entity.Item, error) {
	var item entity.Item
	hit, err := s.cache.GetJSON(ctx, cache.ItemKey(id), &item)
	if err != nil {
		return nil, err
	}
	if hit {
		return &item, nil
	}

	found, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.PutJSON(ctx, cache.ItemKey(id), found, lookupCacheTTL); err != nil {
		return nil, fmt.Errorf("failed to cache item %d: %w", id, err)
	}
	return found, nil
}

// UserService serves users through a read-through cache.
type UserService struct {
	repo  repository.UserRepository
	cache cache.ObjectCache
}

func NewUserService(repo repository.UserRepository, objects cache.ObjectCache) *UserService {
	return &UserService{repo: repo, cache: objects}
}

func (s *UserService) UserByID(ctx context.Context, id int64) (*entity.User, error) {
	var user entity.User
	hit, err := s.cache.GetJSON(ctx, cache.UserKey(id), &user)
	if err != nil {
		return nil, err
	}
	if hit {
		return &user, nil
	}

	found, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.PutJSON(ctx, cache.UserKey(id), found, lookupCacheTTL); err != nil {
		return nil, fmt.Errorf("failed to cache user %d: %w", id, err)
	}
	return found, nil
}
