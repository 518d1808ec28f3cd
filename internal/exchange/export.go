// Package exchange moves complete data sets in and out of the store:
// JSON and CSV export, tolerant import, and the backup snapshot cycle.
package exchange

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"go.uber.org/zap"

	"github.com/openclinic/healthdesk/internal/record"
	"github.com/openclinic/healthdesk/internal/shared/events"
	"github.com/openclinic/healthdesk/internal/shared/metrics"
	"github.com/openclinic/healthdesk/internal/storage"
)

// ExportVersion tags every export envelope. Importers accept any
// version; the field exists for forward compatibility.
const ExportVersion = "1.0.0"

// Export is the complete-data envelope written by JSON export and the
// backup snapshot. TotalRecords counts patients plus alerts.
type Export struct {
	Patients      []record.Patient      `json:"patients"`
	Alerts        []record.PatternAlert `json:"alerts"`
	Settings      record.Settings       `json:"settings"`
	PatternConfig record.DetectionConfig `json:"patternConfig"`
	MedicineList  []string              `json:"medicineList"`
	ExportDate    string                `json:"exportDate"`
	Version       string                `json:"version"`
	TotalRecords  int                   `json:"totalRecords"`
}

// Service implements the import/export/backup operations.
type Service struct {
	store *record.Store
	kv    storage.KV
	bus   *events.Bus
	log   *zap.Logger
}

// NewService creates an exchange service. The raw key-value store is
// needed alongside the record store because the backup snapshot lives
// under its own key.
func NewService(store *record.Store, kv storage.KV, bus *events.Bus, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, kv: kv, bus: bus, log: log}
}

// Snapshot assembles the complete-data envelope from the current store
// contents.
func (s *Service) Snapshot() Export {
	patients := s.store.Patients()
	alerts := s.store.Alerts()

	return Export{
		Patients:      patients,
		Alerts:        alerts,
		Settings:      s.store.Settings(),
		PatternConfig: s.store.DetectionConfig(),
		MedicineList:  s.store.Medicines(),
		ExportDate:    record.NowISO(),
		Version:       ExportVersion,
		TotalRecords:  len(patients) + len(alerts),
	}
}

// ExportJSON returns the envelope for serialization by the caller.
func (s *Service) ExportJSON() Export {
	metrics.RecordExport("json")
	return s.Snapshot()
}

// csvHeader is the flattened patient-visit layout. One row per visit;
// patient fields repeat on every row of that patient.
var csvHeader = []string{
	"Patient ID",
	"Patient Name",
	"Age",
	"Gender",
	"Contact Info",
	"Patient Created At",
	"Patient Updated At",
	"Visit ID",
	"Visit Date",
	"Symptoms",
	"Diagnosis",
	"Treatment",
	"Severity",
	"Healing Duration (days)",
	"Notes",
	"Medicines",
	"Repeat Enabled",
	"Repeat Times",
	"Repeat Interval Days",
	"Visit Created At",
}

// ExportCSV renders every visit of every patient as one CSV row. A
// patient with no visits contributes no rows.
func (s *Service) ExportCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, p := range s.store.Patients() {
		for _, v := range p.Visits {
			repeatEnabled := "false"
			repeatTimes := ""
			repeatInterval := ""
			if v.Repeat != nil && v.Repeat.Enabled {
				repeatEnabled = "true"
				repeatTimes = strconv.Itoa(v.Repeat.Times.Int())
				repeatInterval = strconv.Itoa(v.Repeat.IntervalDays.Int())
			}

			row := []string{
				p.ID.String(),
				p.Name,
				strconv.Itoa(p.Age.Int()),
				string(p.Gender),
				p.ContactInfo,
				p.CreatedAt,
				p.UpdatedAt,
				v.ID.String(),
				v.Date,
				joinList(v.Symptoms),
				v.Diagnosis,
				v.Treatment,
				string(v.Severity),
				strconv.Itoa(v.HealingDuration.Int()),
				v.Notes,
				joinList(v.Medicines),
				repeatEnabled,
				repeatTimes,
				repeatInterval,
				v.CreatedAt,
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	metrics.RecordExport("csv")
	return buf.Bytes(), nil
}

// joinList packs a multi-valued field into one CSV cell.
func joinList(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += "; "
		}
		out += item
	}
	return out
}
