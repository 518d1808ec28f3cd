package exchange

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/openclinic/healthdesk/internal/record"
	"github.com/openclinic/healthdesk/internal/shared/errors"
	"github.com/openclinic/healthdesk/internal/shared/events"
	"github.com/openclinic/healthdesk/internal/shared/metrics"
	"github.com/openclinic/healthdesk/internal/shared/types"
)

// importPayload distinguishes an absent section from an empty one:
// a key that is present replaces the collection, even with an empty
// list, and a key that is absent leaves it untouched.
type importPayload struct {
	Patients      *[]record.Patient       `json:"patients"`
	Alerts        *[]record.PatternAlert  `json:"alerts"`
	Settings      *record.Settings        `json:"settings"`
	PatternConfig *record.DetectionConfig `json:"patternConfig"`
	MedicineList  *[]string               `json:"medicineList"`
}

// ImportJSON parses a complete-data envelope and replaces every section
// it carries. Parsing happens before any write, so a malformed payload
// leaves the store unchanged.
func (s *Service) ImportJSON(ctx context.Context, data []byte) error {
	var payload importPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		metrics.RecordImport("json", false)
		return errors.Import(err)
	}

	if payload.Patients != nil {
		if err := s.store.ReplacePatients(*payload.Patients); err != nil {
			metrics.RecordImport("json", false)
			return err
		}
	}
	if payload.Alerts != nil {
		if err := s.store.ReplaceAlerts(*payload.Alerts); err != nil {
			metrics.RecordImport("json", false)
			return err
		}
	}
	if payload.Settings != nil {
		if err := s.store.SaveSettings(*payload.Settings); err != nil {
			metrics.RecordImport("json", false)
			return err
		}
	}
	if payload.PatternConfig != nil {
		if err := s.store.SaveDetectionConfig(*payload.PatternConfig); err != nil {
			metrics.RecordImport("json", false)
			return err
		}
	}
	if payload.MedicineList != nil {
		if err := s.store.ReplaceMedicines(*payload.MedicineList); err != nil {
			metrics.RecordImport("json", false)
			return err
		}
	}

	metrics.RecordImport("json", true)
	s.bus.Publish(ctx, events.NewEvent("data.imported", "exchange", map[string]any{
		"format": "json",
	}))
	return nil
}

// ImportCSV parses the flattened patient-visit layout and replaces the
// patient collection wholesale. Rows are grouped by patient ID; a visit
// ID seen twice under the same patient keeps its first occurrence.
func (s *Service) ImportCSV(ctx context.Context, data []byte) error {
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		metrics.RecordImport("csv", false)
		return errors.Import(err)
	}
	if len(rows) < 2 {
		metrics.RecordImport("csv", false)
		return errors.BadRequest("csv import needs a header row and at least one data row")
	}

	header := rows[0]

	byID := map[types.ID]*record.Patient{}
	var order []types.ID
	seenVisits := map[types.ID]map[types.ID]bool{}

	for _, row := range rows[1:] {
		// Short rows are skipped, not fatal
		if len(row) < len(header) {
			continue
		}

		patientID := types.ID(row[0])
		visitID := types.ID(row[7])

		p, ok := byID[patientID]
		if !ok {
			p = &record.Patient{
				ID:          patientID,
				Name:        row[1],
				Age:         record.FlexInt(atoiOr(row[2], 0)),
				Gender:      record.Gender(row[3]),
				ContactInfo: row[4],
				Visits:      []record.Visit{},
				CreatedAt:   row[5],
				UpdatedAt:   row[6],
			}
			byID[patientID] = p
			order = append(order, patientID)
			seenVisits[patientID] = map[types.ID]bool{}
		}

		if seenVisits[patientID][visitID] {
			continue
		}
		seenVisits[patientID][visitID] = true

		v := record.Visit{
			ID:              visitID,
			Date:            row[8],
			Symptoms:        splitList(row[9]),
			Diagnosis:       row[10],
			Treatment:       row[11],
			Severity:        record.Severity(row[12]),
			HealingDuration: record.FlexInt(atoiOr(row[13], 0)),
			Notes:           row[14],
			Medicines:       splitList(row[15]),
			CreatedAt:       row[19],
		}
		if row[16] == "true" {
			v.Repeat = &record.VisitRepeat{
				Enabled:      true,
				Times:        record.FlexInt(atoiOr(row[17], 1)),
				IntervalDays: record.FlexInt(atoiOr(row[18], 1)),
			}
		}
		p.Visits = append(p.Visits, v)
	}

	patients := make([]record.Patient, 0, len(order))
	for _, id := range order {
		patients = append(patients, *byID[id])
	}

	if err := s.store.ReplacePatients(patients); err != nil {
		metrics.RecordImport("csv", false)
		return err
	}

	metrics.RecordImport("csv", true)
	s.bus.Publish(ctx, events.NewEvent("data.imported", "exchange", map[string]any{
		"format":   "csv",
		"patients": len(patients),
	}))
	return nil
}

// splitList unpacks a multi-valued CSV cell, dropping empty entries.
func splitList(cell string) []string {
	out := []string{}
	for _, part := range strings.Split(cell, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}
