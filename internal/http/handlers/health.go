package handlers

import (
	"context"
	"net/http"
	"time"
)

// Probe checks one dependency.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthHandler struct {
	Probes []Probe
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every probe and reports 503 if any fails.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.Probes))
	for _, p := range h.Probes {
		if err := p.Check(ctx); err != nil {
			results[p.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[p.Name] = "ok"
	}
	WriteJSON(w, status, map[string]any{"ok": status == http.StatusOK, "checks": results})
}
