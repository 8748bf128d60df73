package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/coupon"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/pricing"
)

type CouponValidator interface {
	Validate(ctx context.Context, req coupon.Request) (coupon.Result, error)
}

type CouponAdmin interface {
	Create(ctx context.Context, c *coupon.Coupon) error
	List(ctx context.Context) ([]coupon.Coupon, error)
	Deactivate(ctx context.Context, code string) error
}

type CouponHandler struct {
	validator CouponValidator
	admin     CouponAdmin
	log       *zap.Logger
}

func NewCouponHandler(v CouponValidator, admin CouponAdmin, log *zap.Logger) *CouponHandler {
	return &CouponHandler{validator: v, admin: admin, log: log}
}

type validateRequest struct {
	Code         string          `json:"code"`
	RestaurantID string          `json:"restaurantId"`
	OrderAmount  decimal.Decimal `json:"orderAmount"`
}

// Validate answers {valid, coupon?, error?}. Rule failures are 200 responses.
func (h *CouponHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderAmount.IsNegative() {
		WriteError(w, r, http.StatusBadRequest, "orderAmount must not be negative")
		return
	}

	res, err := h.validator.Validate(r.Context(), coupon.Request{
		Code:         req.Code,
		UserID:       userID(r),
		RestaurantID: req.RestaurantID,
		OrderAmount:  req.OrderAmount,
	})
	if err != nil {
		h.log.Error("validate coupon", zap.String("code", req.Code), zap.Error(err))
		WriteError(w, r, http.StatusServiceUnavailable, "coupon validation unavailable")
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

type createCouponRequest struct {
	Code          string               `json:"code"`
	DiscountType  pricing.DiscountType `json:"discountType"`
	DiscountValue decimal.Decimal      `json:"discountValue"`
	MinimumOrder  decimal.Decimal      `json:"minimumOrder"`
	MaxUsage      *int                 `json:"maxUsage"`
	UserLimit     *int                 `json:"userLimit"`
	StartDate     time.Time            `json:"startDate"`
	EndDate       time.Time            `json:"endDate"`
	RestaurantID  *string              `json:"restaurantId"`
	IsActive      *bool                `json:"isActive"`
}

func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	c := &coupon.Coupon{
		Code:          req.Code,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MinimumOrder:  req.MinimumOrder,
		MaxUsage:      req.MaxUsage,
		UserLimit:     req.UserLimit,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		RestaurantID:  req.RestaurantID,
		IsActive:      req.IsActive == nil || *req.IsActive,
	}

	if err := h.admin.Create(r.Context(), c); err != nil {
		switch {
		case errors.Is(err, coupon.ErrInvalidDefinition):
			WriteError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, coupon.ErrDuplicateCode):
			WriteError(w, r, http.StatusConflict, err.Error())
		default:
			h.log.Error("create coupon", zap.String("code", c.Code), zap.Error(err))
			WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	WriteJSON(w, http.StatusCreated, c)
}

func (h *CouponHandler) List(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.admin.List(r.Context())
	if err != nil {
		h.log.Error("list coupons", zap.Error(err))
		WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	WriteJSON(w, http.StatusOK, coupons)
}

func (h *CouponHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.admin.Deactivate(r.Context(), code); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			WriteError(w, r, http.StatusNotFound, "coupon not found")
			return
		}
		h.log.Error("deactivate coupon", zap.String("code", code), zap.Error(err))
		WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
