// Package pattern scans patient histories for configured clinical
// patterns and materializes alerts, and classifies per-patient health
// trajectories.
package pattern

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openclinic/healthdesk/internal/record"
	"github.com/openclinic/healthdesk/internal/shared/events"
	"github.com/openclinic/healthdesk/internal/shared/metrics"
)

// Detector evaluates every patient against the three detection rules and
// persists the resulting alerts. Each run appends: alerts are a log of
// detections, so an unchanged data set detected twice yields two sets of
// alerts.
type Detector struct {
	store *record.Store
	bus   *events.Bus
	log   *zap.Logger

	// now is swappable for deterministic window tests
	now func() time.Time
}

// NewDetector creates a detector over the given store.
func NewDetector(store *record.Store, bus *events.Bus, log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{
		store: store,
		bus:   bus,
		log:   log,
		now:   time.Now,
	}
}

// Run loads the patients and detection config, evaluates all rules, and
// persists every qualifying alert. It returns the alerts as persisted.
func (d *Detector) Run(ctx context.Context) ([]record.PatternAlert, error) {
	start := time.Now()

	patients := d.store.Patients()
	cfg := d.store.DetectionConfig()

	detected := d.Detect(patients, cfg)

	persisted := make([]record.PatternAlert, 0, len(detected))
	for _, alert := range detected {
		saved, err := d.store.AddAlert(alert)
		if err != nil {
			return persisted, err
		}
		persisted = append(persisted, saved)

		metrics.RecordAlertRaised(string(saved.Type), string(saved.Severity))
		d.bus.Publish(ctx, events.NewEvent("alert.raised", "pattern", map[string]any{
			"alert_id":   saved.ID.String(),
			"patient_id": saved.PatientID.String(),
			"type":       string(saved.Type),
			"severity":   string(saved.Severity),
			"message":    saved.Message,
		}))
	}

	metrics.RecordDetectionRun(time.Since(start))
	d.log.Info("pattern detection completed",
		zap.Int("patients", len(patients)),
		zap.Int("alerts_raised", len(persisted)))

	return persisted, nil
}

// Detect evaluates the three rules against each patient independently
// and returns the alerts that would be raised. It has no side effects.
func (d *Detector) Detect(patients []record.Patient, cfg record.DetectionConfig) []record.PatternAlert {
	var alerts []record.PatternAlert
	for _, p := range patients {
		alerts = append(alerts, d.detectRepeatedSymptoms(p, cfg)...)
		alerts = append(alerts, d.detectFrequentVisits(p, cfg)...)
		alerts = append(alerts, d.detectSevereCases(p, cfg)...)
	}
	return alerts
}

// detectRepeatedSymptoms emits one alert per symptom whose count within
// the rolling window reaches the threshold.
func (d *Detector) detectRepeatedSymptoms(p record.Patient, cfg record.DetectionConfig) []record.PatternAlert {
	window := cfg.SymptomRepeatDays.Int()
	threshold := cfg.SymptomRepeatThreshold.Int()
	cutoff := d.cutoff(window)

	counts := map[string]int{}
	var order []string
	for _, v := range p.Visits {
		if !inWindow(v, cutoff) {
			continue
		}
		for _, s := range v.Symptoms {
			if _, seen := counts[s]; !seen {
				order = append(order, s)
			}
			counts[s]++
		}
	}

	var alerts []record.PatternAlert
	for _, symptom := range order {
		count := counts[symptom]
		if count < threshold {
			continue
		}
		alerts = append(alerts, record.PatternAlert{
			Type:      record.AlertTypeSymptomRepeat,
			Message:   fmt.Sprintf("Patient %s has reported %q %d times in the last %d days", p.Name, symptom, count, window),
			PatientID: p.ID,
			Severity:  tier(count, threshold),
		})
	}
	return alerts
}

// detectFrequentVisits emits one alert when the visit count within the
// rolling window reaches the threshold.
func (d *Detector) detectFrequentVisits(p record.Patient, cfg record.DetectionConfig) []record.PatternAlert {
	window := cfg.FrequentVisitDays.Int()
	threshold := cfg.FrequentVisitThreshold.Int()
	cutoff := d.cutoff(window)

	count := 0
	for _, v := range p.Visits {
		if inWindow(v, cutoff) {
			count++
		}
	}
	if count < threshold {
		return nil
	}

	return []record.PatternAlert{{
		Type:      record.AlertTypeFrequentVisits,
		Message:   fmt.Sprintf("Patient %s has visited %d times in the last %d days", p.Name, count, window),
		PatientID: p.ID,
		Severity:  tier(count, threshold),
	}}
}

// detectSevereCases emits one alert when the count of severe visits
// within the rolling window reaches the threshold.
func (d *Detector) detectSevereCases(p record.Patient, cfg record.DetectionConfig) []record.PatternAlert {
	window := cfg.SevereCaseDays.Int()
	threshold := cfg.SevereCaseThreshold.Int()
	cutoff := d.cutoff(window)

	count := 0
	for _, v := range p.Visits {
		if v.Severity == record.SeveritySevere && inWindow(v, cutoff) {
			count++
		}
	}
	if count < threshold {
		return nil
	}

	return []record.PatternAlert{{
		Type:      record.AlertTypeSevereCase,
		Message:   fmt.Sprintf("Patient %s has had %d severe cases in the last %d days", p.Name, count, window),
		PatientID: p.ID,
		Severity:  tier(count, threshold),
	}}
}

// cutoff returns the start of a rolling window measured backward from now.
func (d *Detector) cutoff(days int) time.Time {
	return d.now().Add(-time.Duration(days) * 24 * time.Hour)
}

// inWindow reports whether a visit falls inside the window. A visit with
// an unparseable date never matches.
func inWindow(v record.Visit, cutoff time.Time) bool {
	day, err := record.ParseDate(v.Date)
	if err != nil {
		return false
	}
	return !day.Before(cutoff)
}

// tier grades an alert: double the threshold is high, one and a half
// times is medium, anything else that fired is low.
func tier(count, threshold int) record.AlertSeverity {
	switch {
	case count >= threshold*2:
		return record.AlertSeverityHigh
	case float64(count) >= float64(threshold)*1.5:
		return record.AlertSeverityMedium
	default:
		return record.AlertSeverityLow
	}
}
