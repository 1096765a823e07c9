package admin

import (
	"encoding/json"
	"net/http"

	"github.com/wanderwise/edge/internal/lifecycle"
)

// StatusPath is where the registry snapshot is served.
const StatusPath = "/_edge/status"

type Registry interface {
	Snapshot() lifecycle.Snapshot
	Controlling() (string, bool)
}

// Handler exposes the worker state for operators and readiness probes.
type Handler struct {
	Registry Registry
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(h.Registry.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Ready answers 200 once clients have been claimed, 503 before.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.Registry.Controlling(); !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
