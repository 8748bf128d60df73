package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/cart"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
)

type CartHandler struct {
	repo cart.Repository
	log  *zap.Logger
}

func NewCartHandler(repo cart.Repository, log *zap.Logger) *CartHandler {
	return &CartHandler{repo: repo, log: log}
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	c, err := h.repo.GetCart(r.Context(), uid)
	if err != nil {
		h.internal(w, r, "get cart", err)
		return
	}
	if c == nil {
		c = &cart.Cart{UserID: uid, Lines: []pricing.CartLine{}}
	}
	WriteJSON(w, http.StatusOK, c)
}

type addItemRequest struct {
	ItemID       string          `json:"itemId"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Quantity     int             `json:"quantity"`
	RestaurantID string          `json:"restaurantId"`
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemID == "" || req.RestaurantID == "" || req.UnitPrice.IsNegative() {
		WriteError(w, r, http.StatusBadRequest, "itemId, restaurantId and a non-negative unitPrice are required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	err := h.repo.AddItem(r.Context(), userID(r), pricing.CartLine{
		ItemID:       req.ItemID,
		Name:         req.Name,
		UnitPrice:    req.UnitPrice,
		Quantity:     req.Quantity,
		RestaurantID: req.RestaurantID,
	})
	if err != nil {
		if errors.Is(err, cart.ErrInvalidQuantity) || errors.Is(err, pricing.ErrInvalidLine) {
			WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.internal(w, r, "add cart item", err)
		return
	}
	h.Get(w, r)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.repo.UpdateQuantity(r.Context(), userID(r), chi.URLParam(r, "itemId"), req.Quantity)
	if h.writeItemError(w, r, "update cart item", err) {
		return
	}
	h.Get(w, r)
}

func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	err := h.repo.Remove(r.Context(), userID(r), chi.URLParam(r, "itemId"))
	if h.writeItemError(w, r, "remove cart item", err) {
		return
	}
	h.Get(w, r)
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Clear(r.Context(), userID(r)); err != nil {
		h.internal(w, r, "clear cart", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) writeItemError(w http.ResponseWriter, r *http.Request, op string, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, cart.ErrItemNotFound):
		WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity):
		WriteError(w, r, http.StatusBadRequest, err.Error())
	default:
		h.internal(w, r, op, err)
	}
	return true
}

func (h *CartHandler) internal(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.log.Error(op, zap.String("userId", userID(r)), zap.Error(err))
	WriteError(w, r, http.StatusInternalServerError, "internal error")
}
