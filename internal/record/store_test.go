package record

import (
	"testing"

	"github.com/openclinic/healthdesk/internal/shared/types"
	"github.com/openclinic/healthdesk/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	kv, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory storage: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	s := New(kv, nil)
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return s
}

func TestInitializeSeedsDefaults(t *testing.T) {
	s := newTestStore(t)

	if got := s.Patients(); len(got) != 0 {
		t.Errorf("expected empty patients, got %d", len(got))
	}
	if got := s.DetectionConfig(); got != DefaultDetectionConfig() {
		t.Errorf("config = %+v, want defaults", got)
	}
	if got := s.Medicines(); len(got) == 0 {
		t.Error("expected seeded medicine list")
	}
	if got := s.Settings(); got.Theme != "light" {
		t.Errorf("theme = %q, want light", got.Theme)
	}
}

func TestPatientCRUD(t *testing.T) {
	s := newTestStore(t)

	created, err := s.AddPatient(Patient{Name: "Ana", Age: 34, Gender: GenderFemale})
	if err != nil {
		t.Fatalf("add patient: %v", err)
	}
	if created.ID.IsZero() {
		t.Fatal("expected generated ID")
	}

	got, ok := s.Patient(created.ID)
	if !ok {
		t.Fatal("patient not found after create")
	}
	if got.Name != "Ana" {
		t.Errorf("name = %q, want Ana", got.Name)
	}

	newName := "Ana Petrovic"
	updated, err := s.UpdatePatient(created.ID, PatientUpdate{Name: &newName})
	if err != nil {
		t.Fatalf("update patient: %v", err)
	}
	if updated.Name != newName {
		t.Errorf("name = %q, want %q", updated.Name, newName)
	}
	if updated.Age != 34 {
		t.Errorf("age = %d, want unchanged 34", updated.Age)
	}

	deleted, err := s.DeletePatient(created.ID)
	if err != nil {
		t.Fatalf("delete patient: %v", err)
	}
	if !deleted {
		t.Error("expected delete to report true")
	}
	if _, ok := s.Patient(created.ID); ok {
		t.Error("patient still present after delete")
	}
}

func TestUpdatePatientNotFound(t *testing.T) {
	s := newTestStore(t)

	name := "ghost"
	if _, err := s.UpdatePatient(types.NewID(), PatientUpdate{Name: &name}); err == nil {
		t.Fatal("expected error for unknown patient")
	}
}

func TestAddVisit(t *testing.T) {
	s := newTestStore(t)

	p, err := s.AddPatient(Patient{Name: "Marko"})
	if err != nil {
		t.Fatalf("add patient: %v", err)
	}
	before := p.UpdatedAt

	v, err := s.AddVisit(p.ID, Visit{
		Date:            "2026-03-01",
		Symptoms:        []string{"fever"},
		Severity:        SeverityModerate,
		HealingDuration: 5,
	})
	if err != nil {
		t.Fatalf("add visit: %v", err)
	}
	if v.ID.IsZero() {
		t.Error("expected generated visit ID")
	}

	got, _ := s.Patient(p.ID)
	if len(got.Visits) != 1 {
		t.Fatalf("visits = %d, want 1", len(got.Visits))
	}
	if got.UpdatedAt < before {
		t.Error("expected updatedAt to move forward")
	}
}

func TestAddVisitMissingPatient(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.AddVisit(types.NewID(), Visit{Date: "2026-03-01"}); err == nil {
		t.Fatal("expected error for missing patient")
	}
}

func TestDeleteVisit(t *testing.T) {
	s := newTestStore(t)

	p, _ := s.AddPatient(Patient{Name: "Ivana"})
	v, _ := s.AddVisit(p.ID, Visit{Date: "2026-03-01"})

	deleted, err := s.DeleteVisit(p.ID, v.ID)
	if err != nil {
		t.Fatalf("delete visit: %v", err)
	}
	if !deleted {
		t.Error("expected delete to report true")
	}

	got, _ := s.Patient(p.ID)
	if len(got.Visits) != 0 {
		t.Errorf("visits = %d, want 0", len(got.Visits))
	}
}

func TestAlertLifecycle(t *testing.T) {
	s := newTestStore(t)

	a, err := s.AddAlert(PatternAlert{
		Type:      AlertTypeFrequentVisits,
		Message:   "test alert",
		PatientID: types.NewID(),
		Severity:  AlertSeverityMedium,
	})
	if err != nil {
		t.Fatalf("add alert: %v", err)
	}
	if a.IsRead {
		t.Error("new alert should be unread")
	}

	ok, err := s.MarkAlertRead(a.ID)
	if err != nil || !ok {
		t.Fatalf("mark read: ok=%v err=%v", ok, err)
	}
	alerts := s.Alerts()
	if len(alerts) != 1 || !alerts[0].IsRead {
		t.Errorf("alerts = %+v, want one read alert", alerts)
	}

	deleted, err := s.DeleteAlert(a.ID)
	if err != nil || !deleted {
		t.Fatalf("delete alert: deleted=%v err=%v", deleted, err)
	}
	if got := s.Alerts(); len(got) != 0 {
		t.Errorf("alerts = %d, want 0", len(got))
	}
}

func TestAlertsSurvivePatientDelete(t *testing.T) {
	s := newTestStore(t)

	p, _ := s.AddPatient(Patient{Name: "Luka"})
	s.AddAlert(PatternAlert{Type: AlertTypeSevereCase, PatientID: p.ID})

	s.DeletePatient(p.ID)

	if got := s.Alerts(); len(got) != 1 {
		t.Errorf("alerts = %d, want 1 surviving alert", len(got))
	}
}

func TestAddMedicineDeduplicates(t *testing.T) {
	s := newTestStore(t)

	before := len(s.Medicines())
	if err := s.AddMedicine("Paracetamol"); err != nil {
		t.Fatalf("add medicine: %v", err)
	}
	if got := len(s.Medicines()); got != before {
		t.Errorf("medicines = %d, want unchanged %d", got, before)
	}

	if err := s.AddMedicine("Novomed"); err != nil {
		t.Fatalf("add medicine: %v", err)
	}
	if got := len(s.Medicines()); got != before+1 {
		t.Errorf("medicines = %d, want %d", got, before+1)
	}
}

func TestStampLastBackup(t *testing.T) {
	s := newTestStore(t)

	if err := s.StampLastBackup(); err != nil {
		t.Fatalf("stamp backup: %v", err)
	}
	if s.Settings().LastBackup == "" {
		t.Error("expected lastBackup to be set")
	}
}
