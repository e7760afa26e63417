package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"farmgate/internal/registry/application"
)

// RefreshHandler forces a registry snapshot reload out of band of the
// periodic refresh.
type RefreshHandler struct {
	store  *application.Store
	logger *log.Logger
}

// NewRefreshHandler constructs a refresh handler.
func NewRefreshHandler(store *application.Store, logger *log.Logger) (*RefreshHandler, error) {
	if store == nil {
		return nil, errors.New("registry refresh: nil store")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RefreshHandler{store: store, logger: logger}, nil
}

// ServeHTTP handles POST /api/v1/registry/refresh.
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := h.store.Refresh(r.Context()); err != nil {
		h.logger.Printf("registry refresh: %v", err)
		http.Error(w, "refresh error", http.StatusInternalServerError)
		return
	}

	devices, plots, bounded, loadedAt := h.store.Stats()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"devices":  devices,
		"plots":    plots,
		"bounded":  bounded,
		"loadedAt": loadedAt.UTC().Format(time.RFC3339),
	})
}
