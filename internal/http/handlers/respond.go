// Package handlers holds the JSON handlers behind the checkout API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/checkout"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/middleware"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body is required")

type errorBody struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	WriteJSON(w, status, errorBody{
		Error:         msg,
		CorrelationID: middleware.GetCorrelationID(r.Context()),
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

// userFrom maps the authenticated principal onto the checkout customer.
func userFrom(r *http.Request) *checkout.User {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		return nil
	}
	return &checkout.User{ID: p.ID, Email: p.Email, FirstName: p.FirstName, LastName: p.LastName}
}

func userID(r *http.Request) string {
	if p := middleware.GetPrincipal(r.Context()); p != nil {
		return p.ID
	}
	return ""
}
