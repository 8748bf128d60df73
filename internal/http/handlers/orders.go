package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/checkout"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/coupon"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/middleware"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/order"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/restaurant"
)

type OrderPlacer interface {
	Place(ctx context.Context, req order.PlaceRequest) (*order.Order, error)
}

type OrderStore interface {
	GetByID(ctx context.Context, orderID string) (*order.Order, error)
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, to order.Status) (*order.Order, error)
}

// PendingOrders lists entries submitted but not yet visible in the store.
type PendingOrders interface {
	OrderList(userID string) []checkout.OrderSummary
}

type OrderHandler struct {
	placer  OrderPlacer
	store   OrderStore
	pending PendingOrders
	log     *zap.Logger
}

func NewOrderHandler(placer OrderPlacer, store OrderStore, pending PendingOrders, log *zap.Logger) *OrderHandler {
	return &OrderHandler{placer: placer, store: store, pending: pending, log: log}
}

type placeOrderRequest struct {
	RestaurantID     string          `json:"restaurantId"`
	Items            []order.Item    `json:"items"`
	Customer         order.Customer  `json:"customer"`
	Delivery         order.Address   `json:"delivery"`
	CouponCode       string          `json:"couponCode,omitempty"`
	PaymentMethod    string          `json:"paymentMethod,omitempty"`
	PaymentReference string          `json:"paymentReference,omitempty"`
	Totals           *pricing.Totals `json:"totals,omitempty"`
}

type placeOrderResponse struct {
	OrderID string         `json:"orderId"`
	Status  order.Status   `json:"status"`
	Totals  pricing.Totals `json:"totals"`
}

func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	method := order.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod)))
	if method == "" {
		method = order.PaymentCash
	}
	lines := make([]pricing.CartLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, pricing.CartLine{
			ItemID:       it.ItemID,
			Name:         it.Name,
			UnitPrice:    it.UnitPrice,
			Quantity:     it.Quantity,
			RestaurantID: req.RestaurantID,
		})
	}

	o, err := h.placer.Place(r.Context(), order.PlaceRequest{
		UserID:           userID(r),
		RestaurantID:     req.RestaurantID,
		Lines:            lines,
		Customer:         req.Customer,
		Delivery:         req.Delivery,
		CouponCode:       req.CouponCode,
		PaymentMethod:    method,
		PaymentReference: req.PaymentReference,
		ClientTotals:     req.Totals,
	})
	if err != nil {
		h.writePlaceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, placeOrderResponse{OrderID: o.ID, Status: o.Status, Totals: o.Totals.Rounded()})
}

func (h *OrderHandler) writePlaceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		rejection *coupon.Rejection
		contact   *order.ContactError
	)
	switch {
	case errors.Is(err, coupon.ErrCouponConflict):
		WriteError(w, r, http.StatusConflict, coupon.ErrCouponConflict.Message)
	case errors.As(err, &rejection):
		WriteError(w, r, http.StatusUnprocessableEntity, rejection.Message)
	case errors.As(err, &contact):
		WriteError(w, r, http.StatusUnprocessableEntity, contact.Message)
	case errors.Is(err, order.ErrTotalsMismatch):
		WriteError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrPaymentAlreadyUsed):
		WriteError(w, r, http.StatusConflict, order.ErrPaymentAlreadyUsed.Error())
	case errors.Is(err, order.ErrPaymentNotPaid):
		WriteError(w, r, http.StatusPaymentRequired, order.ErrPaymentNotPaid.Error())
	case errors.Is(err, order.ErrRestaurantClosed),
		errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, pricing.ErrMultipleRestaurants),
		errors.Is(err, pricing.ErrInvalidLine),
		errors.Is(err, restaurant.ErrNotFound):
		WriteError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrInvalidRequest):
		WriteError(w, r, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("place order", zap.String("userId", userID(r)), zap.Error(err))
		WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// Get returns an order to its owner or an admin. Others get 404.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	o, err := h.store.GetByID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			WriteError(w, r, http.StatusNotFound, "order not found")
			return
		}
		h.log.Error("get order", zap.String("orderId", orderID), zap.Error(err))
		WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	p := middleware.GetPrincipal(r.Context())
	if p == nil || (o.UserID != p.ID && !p.IsAdmin()) {
		WriteError(w, r, http.StatusNotFound, "order not found")
		return
	}
	WriteJSON(w, http.StatusOK, o)
}

// ListMine merges optimistic entries that the store has not caught up with
// ahead of the persisted orders.
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	orders, err := h.store.ListByUser(r.Context(), uid)
	if err != nil {
		h.log.Error("list orders", zap.String("userId", uid), zap.Error(err))
		WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	persisted := make(map[string]struct{}, len(orders))
	out := make([]checkout.OrderSummary, 0, len(orders))
	if h.pending != nil {
		for _, o := range orders {
			persisted[o.ID] = struct{}{}
		}
		for _, e := range h.pending.OrderList(uid) {
			if _, ok := persisted[e.ID]; ok || !e.Optimistic {
				continue
			}
			out = append(out, e)
		}
	}
	for _, o := range orders {
		out = append(out, checkout.OrderSummary{
			ID:           o.ID,
			RestaurantID: o.RestaurantID,
			Status:       string(o.Status),
			Total:        o.Totals.Total.Round(2),
			CreatedAt:    o.CreatedAt,
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

type statusRequest struct {
	Status order.Status `json:"status"`
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil || !req.Status.Valid() {
		WriteError(w, r, http.StatusBadRequest, "invalid status")
		return
	}

	o, err := h.store.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrNotFound):
			WriteError(w, r, http.StatusNotFound, "order not found")
		case errors.Is(err, order.ErrInvalidTransition):
			WriteError(w, r, http.StatusConflict, err.Error())
		default:
			h.log.Error("update order status", zap.String("orderId", orderID), zap.Error(err))
			WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	WriteJSON(w, http.StatusOK, o)
}
