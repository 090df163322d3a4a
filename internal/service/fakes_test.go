package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/flashmart/seckill/internal/clock"
	"github.com/flashmart/seckill/internal/entity"
)

// In-memory fakes for the cache and repository ports. The counter fake is
// linearizable per key (one mutex), which mirrors the guarantee the real
// store provides.

type fakeCounterStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{counters: make(map[string]int64)}
}

func (f *fakeCounterStore) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key] += delta
	return f.counters[key], nil
}

func (f *fakeCounterStore) Set(_ context.Context, key string, value int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key] = value
	return nil
}

func (f *fakeCounterStore) value(key string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[key]
}

type fakeFlagStore struct {
	mu    sync.Mutex
	flags map[string]bool
}

func newFakeFlagStore() *fakeFlagStore {
	return &fakeFlagStore{flags: make(map[string]bool)}
}

func (f *fakeFlagStore) SetFlag(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[key] = true
	return nil
}

func (f *fakeFlagStore) HasFlag(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags[key], nil
}

func (f *fakeFlagStore) ClearFlag(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.flags, key)
	return nil
}

type tokenEntry struct {
	value     string
	expiresAt time.Time
}

// fakeTokenStore honors TTLs against an injected clock so expiry is
// testable without sleeping.
type fakeTokenStore struct {
	mu     sync.Mutex
	clock  clock.Clock
	tokens map[string]tokenEntry
}

func newFakeTokenStore(clk clock.Clock) *fakeTokenStore {
	return &fakeTokenStore{clock: clk, tokens: make(map[string]tokenEntry)}
}

func (f *fakeTokenStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[key] = tokenEntry{value: value, expiresAt: f.clock.Now().Add(ttl)}
	return nil
}

func (f *fakeTokenStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.tokens[key]
	if !ok || !f.clock.Now().Before(entry.expiresAt) {
		return "", nil
	}
	return entry.value, nil
}

func (f *fakeTokenStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, key)
	return nil
}

type fakeStockLogRepo struct {
	mu   sync.Mutex
	logs map[string]entity.StockLog
	err  error
}

func newFakeStockLogRepo() *fakeStockLogRepo {
	return &fakeStockLogRepo{logs: make(map[string]entity.StockLog)}
}

func (f *fakeStockLogRepo) Create(_ context.Context, log entity.StockLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.logs[log.ID] = log
	return nil
}

func (f *fakeStockLogRepo) transition(id string, to entity.StockLogStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.logs[id]
	if !ok {
		return entity.ErrStockLogNotFound
	}
	if log.Status != entity.StockLogPending {
		return entity.ErrStockLogFinalized
	}
	log.Status = to
	f.logs[id] = log
	return nil
}

func (f *fakeStockLogRepo) MarkConfirmed(_ context.Context, id string) error {
	return f.transition(id, entity.StockLogConfirmed)
}

func (f *fakeStockLogRepo) MarkRolledBack(_ context.Context, id string) error {
	return f.transition(id, entity.StockLogRolledBack)
}

func (f *fakeStockLogRepo) StatusOf(_ context.Context, id string) (entity.StockLogStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.logs[id]
	if !ok {
		return 0, entity.ErrStockLogNotFound
	}
	return log.Status, nil
}

func (f *fakeStockLogRepo) FindPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]entity.StockLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.StockLog
	for _, log := range f.logs {
		if log.Status == entity.StockLogPending && log.CreatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, log)
		}
	}
	return out, nil
}

type fakeItemRepo struct {
	mu    sync.Mutex
	items map[int64]entity.Item
}

func newFakeItemRepo(items ...entity.Item) *fakeItemRepo {
	f := &fakeItemRepo{items: make(map[int64]entity.Item)}
	for _, item := range items {
		f.items[item.ID] = item
	}
	return f
}

func (f *fakeItemRepo) FindByID(_ context.Context, id int64) (*entity.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, entity.ErrItemNotFound
	}
	return &item, nil
}

func (f *fakeItemRepo) ApplyDecrement(_ context.Context, _ string, itemID int64, amount int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.items[itemID]
	item.Stock -= amount
	f.items[itemID] = item
	return true, nil
}

func (f *fakeItemRepo) Seed(_ context.Context, items []entity.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		f.items[item.ID] = item
	}
	return nil
}

type fakeUserRepo struct {
	users map[int64]entity.User
}

func newFakeUserRepo(users ...entity.User) *fakeUserRepo {
	f := &fakeUserRepo{users: make(map[int64]entity.User)}
	for _, user := range users {
		f.users[user.ID] = user
	}
	return f
}

func (f *fakeUserRepo) FindByID(_ context.Context, id int64) (*entity.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, entity.ErrUserNotFound
	}
	return &user, nil
}

type fakePromoRepo struct {
	promos map[int64]entity.Promo
}

func newFakePromoRepo(promos ...entity.Promo) *fakePromoRepo {
	f := &fakePromoRepo{promos: make(map[int64]entity.Promo)}
	for _, promo := range promos {
		f.promos[promo.ID] = promo
	}
	return f
}

func (f *fakePromoRepo) FindByID(_ context.Context, id int64) (*entity.Promo, error) {
	promo, ok := f.promos[id]
	if !ok {
		return nil, entity.ErrPromoNotFound
	}
	return &promo, nil
}

func (f *fakePromoRepo) FindByItemID(_ context.Context, itemID int64) (*entity.Promo, error) {
	for _, promo := range f.promos {
		if promo.ItemID == itemID {
			p := promo
			return &p, nil
		}
	}
	return nil, entity.ErrPromoNotFound
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders []entity.Order
	err    error
}

func (f *fakeOrderRepo) CreateOrder(_ context.Context, order entity.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.orders = append(f.orders, order)
	return nil
}

type fakeObjectCache struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectCache() *fakeObjectCache {
	return &fakeObjectCache{objects: make(map[string][]byte)}
}

func (f *fakeObjectCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (f *fakeObjectCache) PutJSON(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.objects[key] = raw
	return nil
}
