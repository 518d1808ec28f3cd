package analytics

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclinic/healthdesk/internal/record"
)

// Handler provides the analytics HTTP surface
type Handler struct {
	store *record.Store
	agg   *Aggregator
}

// NewHandler creates an analytics handler
func NewHandler(store *record.Store, agg *Aggregator) *Handler {
	return &Handler{store: store, agg: agg}
}

// Routes registers the analytics routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetAnalytics)
	return r
}

// GetAnalytics computes and returns a fresh summary snapshot
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	data := h.agg.Compute(h.store.Patients())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}
