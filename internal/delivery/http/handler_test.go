package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/flashmart/seckill/internal/cache"
	"github.com/flashmart/seckill/internal/clock"
	"github.com/flashmart/seckill/internal/commit"
	"github.com/flashmart/seckill/internal/entity"
	"github.com/flashmart/seckill/internal/service"
)

// In-memory stand-ins for the shared fast store.

type memStore struct {
	mu       sync.Mutex
	counters map[string]int64
	flags    map[string]bool
	tokens   map[string]string
	objects  map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{
		counters: make(map[string]int64),
		flags:    make(map[string]bool),
		tokens:   make(map[string]string),
		objects:  make(map[string][]byte),
	}
}

func (m *memStore) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key] += delta
	return m.counters[key], nil
}

func (m *memStore) counter(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

func (m *memStore) Set(_ context.Context, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key] = value
	return nil
}

func (m *memStore) SetFlag(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[key] = true
	return nil
}

func (m *memStore) HasFlag(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags[key], nil
}

func (m *memStore) ClearFlag(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, key)
	return nil
}

func (m *memStore) Put(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key] = value
	return nil
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[key], nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, key)
	return nil
}

func (m *memStore) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	raw, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memStore) PutJSON(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = raw
	return nil
}

// Repository fakes backed by fixture maps.

type memItemRepo struct{ items map[int64]entity.Item }

func (r *memItemRepo) FindByID(_ context.Context, id int64) (*entity.Item, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, entity.ErrItemNotFound
	}
	return &item, nil
}

func (r *memItemRepo) ApplyDecrement(context.Context, string, int64, int) (bool, error) {
	return true, nil
}

func (r *memItemRepo) Seed(context.Context, []entity.Item) error { return nil }

type memUserRepo struct{ users map[int64]entity.User }

func (r *memUserRepo) FindByID(_ context.Context, id int64) (*entity.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, entity.ErrUserNotFound
	}
	return &user, nil
}

type memPromoRepo struct{ promos map[int64]entity.Promo }

func (r *memPromoRepo) FindByID(_ context.Context, id int64) (*entity.Promo, error) {
	promo, ok := r.promos[id]
	if !ok {
		return nil, entity.ErrPromoNotFound
	}
	return &promo, nil
}

func (r *memPromoRepo) FindByItemID(_ context.Context, itemID int64) (*entity.Promo, error) {
	for _, promo := range r.promos {
		if promo.ItemID == itemID {
			return &promo, nil
		}
	}
	return nil, entity.ErrPromoNotFound
}

type memStockLogRepo struct {
	mu   sync.Mutex
	logs map[string]entity.StockLog
}

func (r *memStockLogRepo) Create(_ context.Context, log entity.StockLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.logs == nil {
		r.logs = make(map[string]entity.StockLog)
	}
	r.logs[log.ID] = log
	return nil
}

func (r *memStockLogRepo) MarkConfirmed(_ context.Context, id string) error  { return nil }
func (r *memStockLogRepo) MarkRolledBack(_ context.Context, id string) error { return nil }

func (r *memStockLogRepo) StatusOf(_ context.Context, id string) (entity.StockLogStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok {
		return 0, entity.ErrStockLogNotFound
	}
	return log.Status, nil
}

func (r *memStockLogRepo) FindPendingBefore(context.Context, time.Time, int) ([]entity.StockLog, error) {
	return nil, nil
}

// capturingProducer records commit protocol submissions instead of sending.
type capturingProducer struct {
	mu   sync.Mutex
	sent []commit.ReduceStockArgs
	err  error
}

func (p *capturingProducer) submissions() []commit.ReduceStockArgs {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]commit.ReduceStockArgs(nil), p.sent...)
}

func (p *capturingProducer) SendReduceStock(_ context.Context, args commit.ReduceStockArgs) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, args)
	return nil
}

type inlineSubmitter struct{}

func (inlineSubmitter) Submit(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type env struct {
	server   *httptest.Server
	store    *memStore
	producer *capturingProducer
	promo    entity.Promo
}

const sessionToken = "sess-abc"

func newEnv(t *testing.T) *env {
	t.Helper()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)

	items := &memItemRepo{items: map[int64]entity.Item{
		5: {ID: 5, Title: "Keyboard", Price: 100, Stock: 10},
	}}
	users := &memUserRepo{users: map[int64]entity.User{
		1: {ID: 1, Name: "alice"},
	}}
	promo := entity.Promo{
		ID:        3,
		Name:      "launch",
		ItemID:    5,
		ItemPrice: 10,
		StartsAt:  now.Add(-time.Hour),
		EndsAt:    now.Add(time.Hour),
	}
	promos := &memPromoRepo{promos: map[int64]entity.Promo{3: promo}}

	store := newMemStore()
	if err := store.PutJSON(context.Background(), cache.SessionKey(sessionToken), entity.User{ID: 1, Name: "alice"}, time.Hour); err != nil {
		t.Fatal(err)
	}

	itemSvc := service.NewItemService(items, store)
	userSvc := service.NewUserService(users, store)
	promoSvc := service.NewPromoService(promos, items, itemSvc, userSvc, store, store, store, clk)
	stockSvc := service.NewStockService(store, store, &memStockLogRepo{}, clk)
	producer := &capturingProducer{}
	purchaseSvc := service.NewPurchaseService(stockSvc, promoSvc, producer, inlineSubmitter{})

	mux := http.NewServeMux()
	NewHandler(promoSvc, purchaseSvc, itemSvc, store).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &env{server: server, store: store, producer: producer, promo: promo}
}

func (e *env) do(t *testing.T, method, path, authToken string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if authToken != "" {
		req.Header.Set("X-Auth-Token", authToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *env) publish(t *testing.T) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/promo/publish", "", map[string]any{"promoId": e.promo.ID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish: expected 200, got %d", resp.StatusCode)
	}
}

func (e *env) issueToken(t *testing.T) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/promo/token", sessionToken, map[string]any{"promoId": e.promo.ID, "itemId": e.promo.ItemID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("issue token: expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Token == "" {
		t.Fatal("expected a non-empty token")
	}
	return body.Token
}

func TestHandler_Authentication(t *testing.T) {
	e := newEnv(t)

	t.Run("missing session header", func(t *testing.T) {
		resp := e.do(t, http.MethodPost, "/api/promo/token", "", map[string]any{"promoId": 3, "itemId": 5})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		resp := e.do(t, http.MethodPost, "/api/orders", "no-such-session", map[string]any{"itemId": 5, "amount": 1})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})
}

func TestHandler_PurchaseFlow(t *testing.T) {
	e := newEnv(t)
	e.publish(t)
	token := e.issueToken(t)

	resp := e.do(t, http.MethodPost, "/api/orders", sessionToken, map[string]any{
		"itemId":     5,
		"amount":     2,
		"promoId":    3,
		"promoToken": token,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	submissions := e.producer.submissions()
	if len(submissions) != 1 {
		t.Fatalf("expected one commit submission, got %d", len(submissions))
	}
	sent := submissions[0]
	if sent.UserID != 1 || sent.ItemID != 5 || sent.PromoID != 3 || sent.Amount != 2 {
		t.Fatalf("unexpected submission %+v", sent)
	}
	if sent.StockLogID == "" {
		t.Fatal("expected a stock log id on the submission")
	}
	if got := e.store.counter(cache.StockKey(5)); got != 8 {
		t.Fatalf("expected cached stock 8, got %d", got)
	}
}

func TestHandler_ErrorMapping(t *testing.T) {
	t.Run("forged token is rejected", func(t *testing.T) {
		e := newEnv(t)
		e.publish(t)
		resp := e.do(t, http.MethodPost, "/api/orders", sessionToken, map[string]any{
			"itemId": 5, "amount": 1, "promoId": 3, "promoToken": "forged",
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		if len(e.producer.submissions()) != 0 {
			t.Fatal("nothing must reach the commit protocol")
		}
	})

	t.Run("sold out conflicts", func(t *testing.T) {
		e := newEnv(t)
		e.publish(t)
		e.store.SetFlag(context.Background(), cache.SoldOutKey(5))
		resp := e.do(t, http.MethodPost, "/api/orders", sessionToken, map[string]any{"itemId": 5, "amount": 1})
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409, got %d", resp.StatusCode)
		}
	})

	t.Run("exhausted door count throttles", func(t *testing.T) {
		e := newEnv(t)
		e.publish(t)
		e.store.Set(context.Background(), cache.DoorCountKey(3), 0)
		resp := e.do(t, http.MethodPost, "/api/promo/token", sessionToken, map[string]any{"promoId": 3, "itemId": 5})
		if resp.StatusCode != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", resp.StatusCode)
		}
	})

	t.Run("commit failure maps to bad gateway", func(t *testing.T) {
		e := newEnv(t)
		e.publish(t)
		e.producer.err = entity.ErrCommitFailed
		resp := e.do(t, http.MethodPost, "/api/orders", sessionToken, map[string]any{"itemId": 5, "amount": 1})
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", resp.StatusCode)
		}
	})

	t.Run("non-positive amount", func(t *testing.T) {
		e := newEnv(t)
		resp := e.do(t, http.MethodPost, "/api/orders", sessionToken, map[string]any{"itemId": 5, "amount": 0})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestHandler_GetItem(t *testing.T) {
	e := newEnv(t)

	t.Run("found", func(t *testing.T) {
		resp := e.do(t, http.MethodGet, "/api/items/5", "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var item entity.Item
		if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
			t.Fatal(err)
		}
		if item.ID != 5 || item.Title != "Keyboard" {
			t.Fatalf("unexpected item %+v", item)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		resp := e.do(t, http.MethodGet, "/api/items/999", "", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		resp := e.do(t, http.MethodGet, "/api/items/abc", "", nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})
}
