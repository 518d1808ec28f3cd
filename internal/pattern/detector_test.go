package pattern

import (
	"context"
	"testing"
	"time"

	"github.com/openclinic/healthdesk/internal/record"
	"github.com/openclinic/healthdesk/internal/storage"
)

var detectNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestDetector(t *testing.T) (*Detector, *record.Store) {
	t.Helper()
	kv, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory storage: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	store := record.New(kv, nil)
	if err := store.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	d := NewDetector(store, nil, nil)
	d.now = func() time.Time { return detectNow }
	return d, store
}

// daysAgo renders a visit date a fixed number of days before detectNow.
func daysAgo(n int) string {
	return detectNow.AddDate(0, 0, -n).Format("2006-01-02")
}

func symptomVisits(symptom string, count, spacingDays int) []record.Visit {
	visits := make([]record.Visit, 0, count)
	for i := 0; i < count; i++ {
		visits = append(visits, record.Visit{
			Date:     daysAgo(i * spacingDays),
			Symptoms: []string{symptom},
			Severity: record.SeverityMild,
		})
	}
	return visits
}

func TestDetectRepeatedSymptomTiers(t *testing.T) {
	d, _ := newTestDetector(t)
	cfg := record.DetectionConfig{
		SymptomRepeatThreshold: 3,
		SymptomRepeatDays:      30,
		FrequentVisitThreshold: 100,
		FrequentVisitDays:      30,
		SevereCaseThreshold:    100,
		SevereCaseDays:         7,
	}

	tests := []struct {
		name     string
		count    int
		want     record.AlertSeverity
		expected bool
	}{
		{"below threshold", 2, "", false},
		{"exactly threshold is low", 3, record.AlertSeverityLow, true},
		{"one and a half times is medium", 5, record.AlertSeverityMedium, true},
		{"double threshold is high", 6, record.AlertSeverityHigh, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patients := []record.Patient{{
				Name:   "Ana",
				Visits: symptomVisits("fever", tt.count, 1),
			}}

			alerts := d.Detect(patients, cfg)
			if !tt.expected {
				if len(alerts) != 0 {
					t.Fatalf("expected no alerts, got %+v", alerts)
				}
				return
			}
			if len(alerts) != 1 {
				t.Fatalf("alerts = %d, want 1", len(alerts))
			}
			if alerts[0].Type != record.AlertTypeSymptomRepeat {
				t.Errorf("type = %q, want symptom_repeat", alerts[0].Type)
			}
			if alerts[0].Severity != tt.want {
				t.Errorf("severity = %q, want %q", alerts[0].Severity, tt.want)
			}
		})
	}
}

func TestDetectWindowExcludesOldVisits(t *testing.T) {
	d, _ := newTestDetector(t)
	cfg := record.DefaultDetectionConfig()

	// Two in the window, one well outside
	patients := []record.Patient{{
		Name: "Marko",
		Visits: []record.Visit{
			{Date: daysAgo(1), Symptoms: []string{"cough"}},
			{Date: daysAgo(5), Symptoms: []string{"cough"}},
			{Date: daysAgo(90), Symptoms: []string{"cough"}},
		},
	}}

	if alerts := d.Detect(patients, cfg); len(alerts) != 0 {
		t.Errorf("expected no alerts with 2 in-window reports, got %+v", alerts)
	}
}

func TestDetectFrequentVisits(t *testing.T) {
	d, _ := newTestDetector(t)
	cfg := record.DetectionConfig{
		SymptomRepeatThreshold: 100,
		SymptomRepeatDays:      30,
		FrequentVisitThreshold: 5,
		FrequentVisitDays:      30,
		SevereCaseThreshold:    100,
		SevereCaseDays:         7,
	}

	visits := make([]record.Visit, 0, 5)
	for i := 0; i < 5; i++ {
		visits = append(visits, record.Visit{Date: daysAgo(i + 1)})
	}
	patients := []record.Patient{{Name: "Ivana", Visits: visits}}

	alerts := d.Detect(patients, cfg)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Type != record.AlertTypeFrequentVisits {
		t.Errorf("type = %q, want frequent_visits", alerts[0].Type)
	}
	wantMsg := "Patient Ivana has visited 5 times in the last 30 days"
	if alerts[0].Message != wantMsg {
		t.Errorf("message = %q, want %q", alerts[0].Message, wantMsg)
	}
}

func TestDetectSevereCasesHighTier(t *testing.T) {
	d, _ := newTestDetector(t)
	cfg := record.DetectionConfig{
		SymptomRepeatThreshold: 100,
		SymptomRepeatDays:      30,
		FrequentVisitThreshold: 100,
		FrequentVisitDays:      30,
		SevereCaseThreshold:    2,
		SevereCaseDays:         7,
	}

	visits := make([]record.Visit, 0, 4)
	for i := 0; i < 4; i++ {
		visits = append(visits, record.Visit{
			Date:     daysAgo(i + 1),
			Severity: record.SeveritySevere,
		})
	}
	patients := []record.Patient{{Name: "Luka", Visits: visits}}

	alerts := d.Detect(patients, cfg)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != record.AlertSeverityHigh {
		t.Errorf("severity = %q, want high with 4 cases against threshold 2", alerts[0].Severity)
	}
}

func TestRunPersistsAndReemits(t *testing.T) {
	d, store := newTestDetector(t)

	p, err := store.AddPatient(record.Patient{Name: "Ana"})
	if err != nil {
		t.Fatalf("add patient: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.AddVisit(p.ID, record.Visit{
			Date:     daysAgo(i + 1),
			Symptoms: []string{"fever"},
		}); err != nil {
			t.Fatalf("add visit: %v", err)
		}
	}

	first, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first run alerts = %d, want 1", len(first))
	}
	if first[0].PatientID != p.ID {
		t.Errorf("patientId = %q, want %q", first[0].PatientID, p.ID)
	}

	// Unchanged data detected again raises a second, distinct alert
	second, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("second run alerts = %d, want 1", len(second))
	}
	if second[0].ID == first[0].ID {
		t.Error("expected a new alert identity on re-detection")
	}

	if got := store.Alerts(); len(got) != 2 {
		t.Errorf("stored alerts = %d, want 2", len(got))
	}
}
