package pattern

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclinic/healthdesk/internal/record"
	"github.com/openclinic/healthdesk/internal/shared/errors"
	"github.com/openclinic/healthdesk/internal/shared/types"
)

// Handler provides the pattern detection HTTP surface
type Handler struct {
	store    *record.Store
	detector *Detector
}

// NewHandler creates a pattern handler
func NewHandler(store *record.Store, detector *Detector) *Handler {
	return &Handler{store: store, detector: detector}
}

// Routes registers the pattern routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/detect", h.RunDetection)
	r.Get("/trend/{patientID}", h.GetTrend)
	r.Get("/insights/{patientID}", h.GetInsights)

	return r
}

// RunDetection runs all detection rules and returns the alerts raised
func (h *Handler) RunDetection(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.detector.Run(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alertsRaised": len(alerts),
		"alerts":       alerts,
	})
}

// GetTrend classifies a patient's severity trajectory
func (h *Handler) GetTrend(w http.ResponseWriter, r *http.Request) {
	id := types.ID(chi.URLParam(r, "patientID"))

	p, ok := h.store.Patient(id)
	if !ok {
		writeError(w, errors.NotFound("patient", id.String()))
		return
	}
	writeJSON(w, http.StatusOK, Trend(p))
}

// GetInsights returns a patient's analysis snapshot
func (h *Handler) GetInsights(w http.ResponseWriter, r *http.Request) {
	id := types.ID(chi.URLParam(r, "patientID"))

	p, ok := h.store.Patient(id)
	if !ok {
		writeError(w, errors.NotFound("patient", id.String()))
		return
	}
	writeJSON(w, http.StatusOK, ComputeInsights(p))
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
