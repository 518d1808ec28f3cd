package exchange

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openclinic/healthdesk/internal/shared/errors"
)

// Handler provides the import/export/backup HTTP surface
type Handler struct {
	svc *Service
}

// NewHandler creates an exchange handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes registers the exchange routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/export/json", h.ExportJSON)
	r.Get("/export/csv", h.ExportCSV)
	r.Post("/import/json", h.ImportJSON)
	r.Post("/import/csv", h.ImportCSV)

	r.Post("/backup", h.CreateBackup)
	r.Post("/restore", h.RestoreBackup)
	r.Delete("/data", h.ClearAll)
	r.Get("/storage", h.StorageInfo)

	return r
}

// ExportJSON streams the complete data set as a downloadable JSON file
func (h *Handler) ExportJSON(w http.ResponseWriter, r *http.Request) {
	snapshot := h.svc.ExportJSON()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", attachment("json"))
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(snapshot)
}

// ExportCSV streams the flattened patient-visit data as a CSV file
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.ExportCSV()
	if err != nil {
		writeError(w, errors.Internal(err))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", attachment("csv"))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ImportJSON replaces the sections carried by the uploaded envelope
func (h *Handler) ImportJSON(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errors.BadRequest("unable to read request body"))
		return
	}

	if err := h.svc.ImportJSON(r.Context(), body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}

// ImportCSV replaces the patient collection with the uploaded rows
func (h *Handler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errors.BadRequest("unable to read request body"))
		return
	}

	if err := h.svc.ImportCSV(r.Context(), body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}

// CreateBackup snapshots the data set
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CreateBackup(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "backup created"})
}

// RestoreBackup replaces the live data with the stored snapshot
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RestoreBackup(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// ClearAll wipes every collection and reseeds defaults
func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StorageInfo reports collection counts and footprint
func (h *Handler) StorageInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Info())
}

func attachment(ext string) string {
	return fmt.Sprintf(`attachment; filename="health_data_%s.%s"`,
		time.Now().UTC().Format("2006-01-02"), ext)
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
