package exchange

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/openclinic/healthdesk/internal/record"
	"github.com/openclinic/healthdesk/internal/storage"
)

func newTestService(t *testing.T) (*Service, *record.Store) {
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
	return NewService(store, kv, nil, nil), store
}

func seedPatient(t *testing.T, store *record.Store, name string) record.Patient {
	t.Helper()
	p, err := store.AddPatient(record.Patient{Name: name, Age: 30, Gender: record.GenderFemale})
	if err != nil {
		t.Fatalf("add patient: %v", err)
	}
	return p
}

func TestSnapshotEnvelope(t *testing.T) {
	svc, store := newTestService(t)
	p := seedPatient(t, store, "Ana")
	store.AddAlert(record.PatternAlert{Type: record.AlertTypeSevereCase, PatientID: p.ID})

	snap := svc.Snapshot()

	if snap.Version != ExportVersion {
		t.Errorf("version = %q, want %q", snap.Version, ExportVersion)
	}
	if snap.ExportDate == "" {
		t.Error("expected exportDate")
	}
	if snap.TotalRecords != 2 {
		t.Errorf("totalRecords = %d, want patients+alerts = 2", snap.TotalRecords)
	}
	if len(snap.Patients) != 1 || len(snap.Alerts) != 1 {
		t.Errorf("collections = %d patients / %d alerts, want 1/1", len(snap.Patients), len(snap.Alerts))
	}
	if len(snap.MedicineList) == 0 {
		t.Error("expected seeded medicine list in snapshot")
	}
}

func TestJSONExportImportRoundTrip(t *testing.T) {
	svc, store := newTestService(t)
	p := seedPatient(t, store, "Ana")
	store.AddVisit(p.ID, record.Visit{
		Date:     "2026-02-01",
		Symptoms: []string{"fever"},
		Severity: record.SeverityModerate,
	})

	data, err := json.Marshal(svc.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Wipe and re-import
	if err := store.ReplacePatients(nil); err != nil {
		t.Fatalf("wipe: %v", err)
	}
	if err := svc.ImportJSON(context.Background(), data); err != nil {
		t.Fatalf("import: %v", err)
	}

	patients := store.Patients()
	if len(patients) != 1 {
		t.Fatalf("patients = %d, want 1", len(patients))
	}
	if patients[0].Name != "Ana" || len(patients[0].Visits) != 1 {
		t.Errorf("restored patient = %+v", patients[0])
	}
}

func TestImportJSONPartialSections(t *testing.T) {
	svc, store := newTestService(t)
	seedPatient(t, store, "Keep Me")

	// Only settings present: patients must stay untouched
	payload := `{"settings":{"theme":"dark","language":"sr","timeFormat":"24h","backupInterval":14}}`
	if err := svc.ImportJSON(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("import: %v", err)
	}

	if got := store.Settings(); got.Theme != "dark" || got.TimeFormat != "24h" {
		t.Errorf("settings = %+v, want imported values", got)
	}
	if got := store.Patients(); len(got) != 1 {
		t.Errorf("patients = %d, want untouched 1", len(got))
	}
}

func TestImportJSONMalformedLeavesStoreUnchanged(t *testing.T) {
	svc, store := newTestService(t)
	seedPatient(t, store, "Survivor")

	if err := svc.ImportJSON(context.Background(), []byte(`{"patients": [{]`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}

	if got := store.Patients(); len(got) != 1 || got[0].Name != "Survivor" {
		t.Errorf("patients = %+v, want untouched", got)
	}
}

func TestExportCSVLayout(t *testing.T) {
	svc, store := newTestService(t)
	p := seedPatient(t, store, `Ana "Quotes" Petrovic`)
	store.AddVisit(p.ID, record.Visit{
		Date:      "2026-02-01",
		Symptoms:  []string{"fever", "dry cough"},
		Diagnosis: "flu, seasonal",
		Severity:  record.SeverityMild,
		Medicines: []string{"Paracetamol"},
		Repeat:    &record.VisitRepeat{Enabled: true, Times: 3, IntervalDays: 2},
	})

	data, err := svc.ExportCSV()
	if err != nil {
		t.Fatalf("export csv: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("parse exported csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1 visit", len(rows))
	}
	if len(rows[0]) != 20 {
		t.Errorf("header columns = %d, want 20", len(rows[0]))
	}

	row := rows[1]
	if row[1] != `Ana "Quotes" Petrovic` {
		t.Errorf("name cell = %q, quoting lost", row[1])
	}
	if row[9] != "fever; dry cough" {
		t.Errorf("symptoms cell = %q", row[9])
	}
	if row[10] != "flu, seasonal" {
		t.Errorf("diagnosis cell = %q, comma escaping lost", row[10])
	}
	if row[16] != "true" || row[17] != "3" || row[18] != "2" {
		t.Errorf("repeat cells = %q/%q/%q", row[16], row[17], row[18])
	}
}

func TestImportCSVGroupsAndDeduplicates(t *testing.T) {
	svc, store := newTestService(t)

	header := strings.Join(csvHeader, ",")
	rows := []string{
		header,
		`p1,Ana,34,female,ana@example.com,2026-01-01T00:00:00Z,2026-01-01T00:00:00Z,v1,2026-01-10,fever; cough,flu,rest,mild,3,,Paracetamol,false,,,2026-01-10T00:00:00Z`,
		`p1,Ana,34,female,ana@example.com,2026-01-01T00:00:00Z,2026-01-01T00:00:00Z,v2,2026-02-10,headache,migraine,rest,moderate,2,,,true,3,2,2026-02-10T00:00:00Z`,
		// Duplicate visit ID for the same patient keeps the first row
		`p1,Ana,34,female,ana@example.com,2026-01-01T00:00:00Z,2026-01-01T00:00:00Z,v1,2026-03-10,sneezing,cold,rest,mild,1,,,false,,,2026-03-10T00:00:00Z`,
		`p2,Marko,40,male,marko@example.com,2026-01-05T00:00:00Z,2026-01-05T00:00:00Z,v3,2026-01-20,fatigue,anemia,iron,mild,14,,,false,,,2026-01-20T00:00:00Z`,
	}

	if err := svc.ImportCSV(context.Background(), []byte(strings.Join(rows, "\n"))); err != nil {
		t.Fatalf("import csv: %v", err)
	}

	patients := store.Patients()
	if len(patients) != 2 {
		t.Fatalf("patients = %d, want 2", len(patients))
	}

	ana := patients[0]
	if ana.Name != "Ana" || len(ana.Visits) != 2 {
		t.Fatalf("ana = %+v, want 2 deduplicated visits", ana)
	}
	if ana.Visits[0].Diagnosis != "flu" {
		t.Errorf("first visit diagnosis = %q, duplicate should not win", ana.Visits[0].Diagnosis)
	}
	if len(ana.Visits[0].Symptoms) != 2 {
		t.Errorf("symptoms = %v, want split on semicolon", ana.Visits[0].Symptoms)
	}
	if ana.Visits[1].Repeat == nil || ana.Visits[1].Repeat.Times != 3 {
		t.Errorf("repeat = %+v, want enabled with times 3", ana.Visits[1].Repeat)
	}
}

func TestImportCSVRejectsHeaderOnly(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.ImportCSV(context.Background(), []byte(strings.Join(csvHeader, ",")+"\n"))
	if err == nil {
		t.Fatal("expected error for header-only payload")
	}
}

func TestBackupRestoreCycle(t *testing.T) {
	svc, store := newTestService(t)
	seedPatient(t, store, "Ana")

	if err := svc.CreateBackup(context.Background()); err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if store.Settings().LastBackup == "" {
		t.Error("expected lastBackup stamp after backup")
	}

	// Lose the live data, then restore
	if err := store.ReplacePatients(nil); err != nil {
		t.Fatalf("wipe: %v", err)
	}
	if err := svc.RestoreBackup(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	patients := store.Patients()
	if len(patients) != 1 || patients[0].Name != "Ana" {
		t.Errorf("restored patients = %+v", patients)
	}
}

func TestRestoreWithoutBackup(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.RestoreBackup(context.Background()); err == nil {
		t.Fatal("expected error when no backup exists")
	}
}

func TestClearAllReseedsDefaults(t *testing.T) {
	svc, store := newTestService(t)
	seedPatient(t, store, "Gone")
	svc.CreateBackup(context.Background())

	if err := svc.ClearAll(context.Background()); err != nil {
		t.Fatalf("clear all: %v", err)
	}

	if got := store.Patients(); len(got) != 0 {
		t.Errorf("patients = %d, want 0", len(got))
	}
	if got := store.DetectionConfig(); got != record.DefaultDetectionConfig() {
		t.Errorf("config = %+v, want reseeded defaults", got)
	}
	if got := len(store.Medicines()); got == 0 {
		t.Error("expected reseeded medicine list")
	}
	if err := svc.RestoreBackup(context.Background()); err == nil {
		t.Error("expected backup to be cleared too")
	}
}

func TestStorageInfo(t *testing.T) {
	svc, store := newTestService(t)
	seedPatient(t, store, "Ana")

	info := svc.Info()
	if info.PatientsCount != 1 {
		t.Errorf("patientsCount = %d, want 1", info.PatientsCount)
	}
	if info.TotalSize <= 0 {
		t.Errorf("totalSize = %d, want positive", info.TotalSize)
	}
	if info.StorageUsed == "" {
		t.Error("expected human-readable size")
	}
}
