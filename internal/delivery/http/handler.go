package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/flashmart/seckill/internal/cache"
	"github.com/flashmart/seckill/internal/entity"
	"github.com/flashmart/seckill/internal/service"
)

// Handler handles HTTP requests for the purchase pipeline.
type Handler struct {
	promoSvc    *service.PromoService
	purchaseSvc *service.PurchaseService
	itemSvc     *service.ItemService
	sessions    cache.ObjectCache
}

func NewHandler(promoSvc *service.PromoService, purchaseSvc *service.PurchaseService, itemSvc *service.ItemService, sessions cache.ObjectCache) *Handler {
	return &Handler{
		promoSvc:    promoSvc,
		purchaseSvc: purchaseSvc,
		itemSvc:     itemSvc,
		sessions:    sessions,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/promo/publish", h.handlePublishPromo)
	mux.HandleFunc("POST /api/promo/token", h.handleIssueToken)
	mux.HandleFunc("POST /api/orders", h.handleCreateOrder)
	mux.HandleFunc("GET /api/items/{id}", h.handleGetItem)
}

// authenticate resolves the session written by the (external) login flow.
func (h *Handler) authenticate(r *http.Request) (*entity.User, error) {
	token := r.Header.Get("X-Auth-Token")
	if token == "" {
		return nil, entity.ErrNotAuthenticated
	}
	var user entity.User
	hit, err := h.sessions.GetJSON(r.Context(), cache.SessionKey(token), &user)
	if err != nil {
		return nil, err
	}
	if !hit {
		return nil, entity.ErrNotAuthenticated
	}
	return &user, nil
}

type publishPromoRequest struct {
	PromoID int64 `json:"promoId"`
}

func (h *Handler) handlePublishPromo(w http.ResponseWriter, r *http.Request) {
	var req publishPromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.promoSvc.PublishPromo(r.Context(), req.PromoID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"promo_id": req.PromoID, "status": "published"})
}

type issueTokenRequest struct {
	PromoID int64 `json:"promoId"`
	ItemID  int64 `json:"itemId"`
}

func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, err := h.promoSvc.IssueToken(r.Context(), req.PromoID, req.ItemID, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type createOrderRequest struct {
	ItemID     int64  `json:"itemId"`
	Amount     int    `json:"amount"`
	PromoID    int64  `json:"promoId,omitempty"`
	PromoToken string `json:"promoToken,omitempty"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err = h.purchaseSvc.Purchase(r.Context(), service.PurchaseInput{
		UserID:     user.ID,
		ItemID:     req.ItemID,
		PromoID:    req.PromoID,
		Amount:     req.Amount,
		PromoToken: req.PromoToken,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "accepted"})
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}
	item, err := h.itemSvc.ItemByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy to status codes. Ambiguous commit
// outcomes are never surfaced here; callers only ever see a typed failure.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrNotAuthenticated):
		http.Error(w, "not authenticated", http.StatusUnauthorized)
	case errors.Is(err, entity.ErrValidationFailed):
		http.Error(w, "validation failed", http.StatusBadRequest)
	case errors.Is(err, entity.ErrStockUnavailable):
		http.Error(w, "stock unavailable", http.StatusConflict)
	case errors.Is(err, entity.ErrAdmissionDenied):
		http.Error(w, "admission denied", http.StatusTooManyRequests)
	case errors.Is(err, entity.ErrCommitFailed):
		http.Error(w, "order failed", http.StatusBadGateway)
	case errors.Is(err, entity.ErrItemNotFound),
		errors.Is(err, entity.ErrUserNotFound),
		errors.Is(err, entity.ErrPromoNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		slog.Error("Request failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// EnableCORS is a middleware to allow a browser frontend to connect.
func EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Token")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
