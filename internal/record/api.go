package record

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclinic/healthdesk/internal/shared/errors"
	"github.com/openclinic/healthdesk/internal/shared/events"
	"github.com/openclinic/healthdesk/internal/shared/types"
)

// Handler provides HTTP handlers for the record store
type Handler struct {
	store *Store
	bus   *events.Bus
}

// NewHandler creates a new record handler
func NewHandler(store *Store, bus *events.Bus) *Handler {
	return &Handler{store: store, bus: bus}
}

// Routes registers the record routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/patients", h.ListPatients)
	r.Post("/patients", h.CreatePatient)

	r.Route("/patients/{patientID}", func(r chi.Router) {
		r.Get("/", h.GetPatient)
		r.Put("/", h.UpdatePatient)
		r.Delete("/", h.DeletePatient)

		r.Post("/visits", h.AddVisit)
		r.Put("/visits/{visitID}", h.UpdateVisit)
		r.Delete("/visits/{visitID}", h.DeleteVisit)
	})

	r.Get("/alerts", h.ListAlerts)
	r.Post("/alerts/{alertID}/read", h.MarkAlertRead)
	r.Delete("/alerts/{alertID}", h.DeleteAlert)

	r.Get("/config", h.GetDetectionConfig)
	r.Put("/config", h.UpdateDetectionConfig)

	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)

	r.Get("/medicines", h.ListMedicines)
	r.Post("/medicines", h.AddMedicine)

	return r
}

// ListPatients lists all patients
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients := h.store.Patients()
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  patients,
		"total": len(patients),
	})
}

// GetPatient gets a patient by ID
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	id := types.ID(chi.URLParam(r, "patientID"))

	p, ok := h.store.Patient(id)
	if !ok {
		writeError(w, errors.NotFound("patient", id.String()))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreatePatient creates a new patient
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req Patient
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	p, err := h.store.AddPatient(req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.bus.Publish(r.Context(), events.NewEvent("patient.created", "record", map[string]any{
		"patient_id": p.ID,
		"name":       p.Name,
	}))

	writeJSON(w, http.StatusCreated, p)
}

// UpdatePatient merges a partial update into a patient
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	id := types.ID(chi.URLParam(r, "patientID"))

	var req PatientUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	p, err := h.store.UpdatePatient(id, req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.bus.Publish(r.Context(), events.NewEvent("patient.updated", "record", map[string]any{
		"patient_id": p.ID,
	}))

	writeJSON(w, http.StatusOK, p)
}

// DeletePatient deletes a patient and its visit history
func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	id := types.ID(chi.URLParam(r, "patientID"))

	deleted, err := h.store.DeletePatient(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, errors.NotFound("patient", id.String()))
		return
	}

	h.bus.Publish(r.Context(), events.NewEvent("patient.deleted", "record", map[string]any{
		"patient_id": id,
	}))

	w.WriteHeader(http.StatusNoContent)
}

// AddVisit records a visit for a patient
func (h *Handler) AddVisit(w http.ResponseWriter, r *http.Request) {
	patientID := types.ID(chi.URLParam(r, "patientID"))

	var req Visit
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	v, err := h.store.AddVisit(patientID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.bus.Publish(r.Context(), events.NewEvent("visit.recorded", "record", map[string]any{
		"patient_id": patientID,
		"visit_id":   v.ID,
		"severity":   v.Severity,
	}))

	writeJSON(w, http.StatusCreated, v)
}

// UpdateVisit merges a partial update into a visit
func (h *Handler) UpdateVisit(w http.ResponseWriter, r *http.Request) {
	patientID := types.ID(chi.URLParam(r, "patientID"))
	visitID := types.ID(chi.URLParam(r, "visitID"))

	var req VisitUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	v, err := h.store.UpdateVisit(patientID, visitID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// DeleteVisit removes a visit from a patient
func (h *Handler) DeleteVisit(w http.ResponseWriter, r *http.Request) {
	patientID := types.ID(chi.URLParam(r, "patientID"))
	visitID := types.ID(chi.URLParam(r, "visitID"))

	deleted, err := h.store.DeleteVisit(patientID, visitID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, errors.NotFound("visit", visitID.String()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAlerts lists all pattern alerts
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.store.Alerts()

	// Optional unread filter
	if r.URL.Query().Get("unread") == "true" {
		unread := make([]PatternAlert, 0, len(alerts))
		for _, a := range alerts {
			if !a.IsRead {
				unread = append(unread, a)
			}
		}
		alerts = unread
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  alerts,
		"total": len(alerts),
	})
}

// MarkAlertRead marks an alert as read
func (h *Handler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	id := types.ID(chi.URLParam(r, "alertID"))

	ok, err := h.store.MarkAlertRead(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, errors.NotFound("alert", id.String()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "read"})
}

// DeleteAlert deletes an alert
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := types.ID(chi.URLParam(r, "alertID"))

	deleted, err := h.store.DeleteAlert(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, errors.NotFound("alert", id.String()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDetectionConfig returns the pattern detection configuration
func (h *Handler) GetDetectionConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.DetectionConfig())
}

// UpdateDetectionConfig replaces the pattern detection configuration
func (h *Handler) UpdateDetectionConfig(w http.ResponseWriter, r *http.Request) {
	var cfg DetectionConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if err := h.store.SaveDetectionConfig(cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.DetectionConfig())
}

// GetSettings returns the user settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Settings())
}

// UpdateSettings replaces the user settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var st Settings
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if err := h.store.SaveSettings(st); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.Settings())
}

// ListMedicines returns the medicine picker list
func (h *Handler) ListMedicines(w http.ResponseWriter, r *http.Request) {
	list := h.store.Medicines()
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  list,
		"total": len(list),
	})
}

// AddMedicine appends a medicine to the picker list
func (h *Handler) AddMedicine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, errors.BadRequest("medicine name is required"))
		return
	}

	if err := h.store.AddMedicine(req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"name": req.Name})
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
