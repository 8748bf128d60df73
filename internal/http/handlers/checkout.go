package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/checkout"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/order"
)

// CheckoutHandler exposes one endpoint per checkout step. Every response
// carries the session as it stands after the step.
type CheckoutHandler struct {
	m   *checkout.Machine
	log *zap.Logger
}

func NewCheckoutHandler(m *checkout.Machine, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{m: m, log: log}
}

type failureResponse struct {
	Error   string               `json:"error"`
	Kind    checkout.FailureKind `json:"kind"`
	Session *checkout.Session    `json:"session"`
}

func (h *CheckoutHandler) Start(w http.ResponseWriter, r *http.Request) {
	s, err := h.m.Start(r.Context(), userFrom(r))
	if err != nil {
		h.respond(w, r, s, err)
		return
	}
	WriteJSON(w, http.StatusCreated, s)
}

func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.m.Get(r.Context(), userFrom(r), chi.URLParam(r, "sessionId"))
	h.respond(w, r, s, err)
}

func (h *CheckoutHandler) ConfirmCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.m.ConfirmCart(r.Context(), userFrom(r), chi.URLParam(r, "sessionId"))
	h.respond(w, r, s, err)
}

type contactRequest struct {
	Customer order.Customer `json:"customer"`
	Delivery order.Address  `json:"delivery"`
}

func (h *CheckoutHandler) SetContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	s, err := h.m.SetContact(r.Context(), userFrom(r), chi.URLParam(r, "sessionId"), req.Customer, req.Delivery)
	h.respond(w, r, s, err)
}

type couponRequest struct {
	Code string `json:"code"`
}

func (h *CheckoutHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	s, err := h.m.ApplyCoupon(r.Context(), userFrom(r), chi.URLParam(r, "sessionId"), req.Code)
	h.respond(w, r, s, err)
}

func (h *CheckoutHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	s, err := h.m.RemoveCoupon(r.Context(), userFrom(r), chi.URLParam(r, "sessionId"))
	h.respond(w, r, s, err)
}

func (h *CheckoutHandler) ContinueToPayment(w http.ResponseWriter, r *http.Request) {
	s, err := h.m.ContinueToPayment(r.Context(), userFrom(r), chi.URLParam(r, "sessionId"))
	h.respond(w, r, s, err)
}

type paymentRequest struct {
	Method order.PaymentMethod `json:"method"`
}

func (h *CheckoutHandler) SelectPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil || !req.Method.Valid() {
		WriteError(w, r, http.StatusBadRequest, "method must be cash or card")
		return
	}
	s, err := h.m.SelectPayment(r.Context(), userFrom(r), chi.URLParam(r, "sessionId"), req.Method)
	h.respond(w, r, s, err)
}

func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	s, err := h.m.Submit(r.Context(), userFrom(r), chi.URLParam(r, "sessionId"))
	h.respond(w, r, s, err)
}

func (h *CheckoutHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	s, err := h.m.ConfirmPayment(r.Context(), userFrom(r), chi.URLParam(r, "sessionId"))
	h.respond(w, r, s, err)
}

func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	s, err := h.m.Cancel(r.Context(), userFrom(r), chi.URLParam(r, "sessionId"))
	h.respond(w, r, s, err)
}

func (h *CheckoutHandler) respond(w http.ResponseWriter, r *http.Request, s *checkout.Session, err error) {
	if err == nil {
		WriteJSON(w, http.StatusOK, s)
		return
	}

	var f *checkout.Failure
	if errors.As(err, &f) {
		WriteJSON(w, failureStatus(f.Kind), failureResponse{Error: f.Message, Kind: f.Kind, Session: s})
		return
	}

	switch {
	case errors.Is(err, checkout.ErrUnauthenticated):
		WriteError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, checkout.ErrSessionNotFound):
		WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, checkout.ErrInvalidState),
		errors.Is(err, checkout.ErrSubmissionInFlight),
		errors.Is(err, checkout.ErrCannotCancel),
		errors.Is(err, checkout.ErrStaleSession):
		WriteError(w, r, http.StatusConflict, err.Error())
	default:
		h.log.Error("checkout", zap.String("path", r.URL.Path), zap.Error(err))
		WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func failureStatus(k checkout.FailureKind) int {
	switch k {
	case checkout.FailureValidation:
		return http.StatusUnprocessableEntity
	case checkout.FailureConflict:
		return http.StatusConflict
	case checkout.FailureTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
