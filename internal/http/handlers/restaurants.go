package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/restaurant"
)

type RestaurantStatus interface {
	Status(ctx context.Context, restaurantID string) (restaurant.Status, error)
}

type RestaurantHandler struct {
	status RestaurantStatus
	log    *zap.Logger
}

func NewRestaurantHandler(status RestaurantStatus, log *zap.Logger) *RestaurantHandler {
	return &RestaurantHandler{status: status, log: log}
}

func (h *RestaurantHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "restaurantId")
	st, err := h.status.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, restaurant.ErrNotFound) {
			WriteError(w, r, http.StatusNotFound, "restaurant not found")
			return
		}
		h.log.Error("restaurant status", zap.String("restaurantId", id), zap.Error(err))
		WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	WriteJSON(w, http.StatusOK, st)
}
