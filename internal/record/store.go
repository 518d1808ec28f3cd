package record

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/openclinic/healthdesk/internal/shared/errors"
	"github.com/openclinic/healthdesk/internal/shared/metrics"
	"github.com/openclinic/healthdesk/internal/shared/types"
	"github.com/openclinic/healthdesk/internal/storage"
)

// Store is the authoritative keeper of patients, alerts, and
// configuration. Every mutation is a full load-normalize-save cycle over
// one storage key, serialized behind a mutex so concurrent HTTP handlers
// cannot lose updates. Reads never fail: malformed or absent data is
// logged and replaced with well-typed defaults.
type Store struct {
	kv  storage.KV
	log *zap.Logger

	mu sync.Mutex
}

// New creates a record store over the given key-value backend.
func New(kv storage.KV, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{kv: kv, log: log}
}

// Initialize seeds defaults for every absent key. Existing data is left
// untouched, so it is safe to call on every start.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seeds := []struct {
		key   string
		value any
	}{
		{storage.KeyPatients, []Patient{}},
		{storage.KeyAlerts, []PatternAlert{}},
		{storage.KeySettings, DefaultSettings()},
		{storage.KeyPatternConfig, DefaultDetectionConfig()},
		{storage.KeyMedicineList, DefaultMedicines()},
	}

	for _, seed := range seeds {
		existing, err := s.kv.Get(seed.key)
		if err != nil {
			return errors.Wrap(err, "failed to initialize storage")
		}
		if existing != nil {
			continue
		}
		if err := s.write(seed.key, seed.value); err != nil {
			return err
		}
	}
	return nil
}

// --- Patients ---

// Patients returns all patients, each individually normalized. An
// unreadable or corrupt collection yields an empty list, never an error.
func (s *Store) Patients() []Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadPatients()
}

// Patient returns one patient by ID.
func (s *Store) Patient(id types.ID) (Patient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.loadPatients() {
		if p.ID == id {
			return p, true
		}
	}
	return Patient{}, false
}

// ReplacePatients swaps the whole collection, normalizing on the way in.
// Imports use this for their wholesale-replace semantics.
func (s *Store) ReplacePatients(patients []Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savePatients(patients)
}

// AddPatient assigns identity and timestamps, normalizes, and persists.
func (s *Store) AddPatient(p Patient) (Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = types.NewID()
	p.CreatedAt = NowISO()
	p.UpdatedAt = NowISO()
	p = NormalizePatient(p)

	patients := append(s.loadPatients(), p)
	if err := s.savePatients(patients); err != nil {
		return Patient{}, err
	}
	metrics.RecordPatientCreated()
	return p, nil
}

// UpdatePatient merges the update into an existing patient and refreshes
// its updatedAt stamp. Returns a NotFound error for an unknown ID.
func (s *Store) UpdatePatient(id types.ID, upd PatientUpdate) (Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	patients := s.loadPatients()
	for i := range patients {
		if patients[i].ID != id {
			continue
		}
		upd.apply(&patients[i])
		patients[i].UpdatedAt = NowISO()
		patients[i] = NormalizePatient(patients[i])
		if err := s.savePatients(patients); err != nil {
			return Patient{}, err
		}
		return patients[i], nil
	}
	return Patient{}, errors.NotFound("patient", id.String())
}

// DeletePatient removes a patient and, with it, the owned visit history.
// Alerts referencing the patient stay behind as weak references.
func (s *Store) DeletePatient(id types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	patients := s.loadPatients()
	kept := patients[:0]
	for _, p := range patients {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(patients) {
		return false, nil
	}
	if err := s.savePatients(kept); err != nil {
		return false, err
	}
	return true, nil
}

// --- Visits ---

// AddVisit appends a visit to its owning patient. A missing patient is
// the one hard precondition violation in the store and returns an error
// rather than a sentinel.
func (s *Store) AddVisit(patientID types.ID, v Visit) (Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	patients := s.loadPatients()
	for i := range patients {
		if patients[i].ID != patientID {
			continue
		}
		v.ID = types.NewID()
		v.CreatedAt = NowISO()
		v = NormalizeVisit(v)

		patients[i].Visits = append(patients[i].Visits, v)
		patients[i].UpdatedAt = NowISO()
		if err := s.savePatients(patients); err != nil {
			return Visit{}, err
		}
		metrics.RecordVisitRecorded()
		return v, nil
	}
	return Visit{}, errors.NotFound("patient", patientID.String())
}

// UpdateVisit merges the update into one visit of one patient.
func (s *Store) UpdateVisit(patientID, visitID types.ID, upd VisitUpdate) (Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	patients := s.loadPatients()
	for i := range patients {
		if patients[i].ID != patientID {
			continue
		}
		for j := range patients[i].Visits {
			if patients[i].Visits[j].ID != visitID {
				continue
			}
			upd.apply(&patients[i].Visits[j])
			patients[i].Visits[j] = NormalizeVisit(patients[i].Visits[j])
			patients[i].UpdatedAt = NowISO()
			if err := s.savePatients(patients); err != nil {
				return Visit{}, err
			}
			return patients[i].Visits[j], nil
		}
		return Visit{}, errors.NotFound("visit", visitID.String())
	}
	return Visit{}, errors.NotFound("patient", patientID.String())
}

// DeleteVisit removes one visit from one patient.
func (s *Store) DeleteVisit(patientID, visitID types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	patients := s.loadPatients()
	for i := range patients {
		if patients[i].ID != patientID {
			continue
		}
		visits := patients[i].Visits
		kept := visits[:0]
		for _, v := range visits {
			if v.ID != visitID {
				kept = append(kept, v)
			}
		}
		if len(kept) == len(visits) {
			return false, nil
		}
		patients[i].Visits = kept
		patients[i].UpdatedAt = NowISO()
		if err := s.savePatients(patients); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// --- Alerts ---

// Alerts returns all alerts, normalized, oldest first.
func (s *Store) Alerts() []PatternAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadAlerts()
}

// ReplaceAlerts swaps the whole alert collection.
func (s *Store) ReplaceAlerts(alerts []PatternAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAlerts(alerts)
}

// AddAlert assigns identity and timestamp, normalizes, and appends. The
// collection is append-only from the detector's point of view: no
// deduplication happens here.
func (s *Store) AddAlert(a PatternAlert) (PatternAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = types.NewID()
	a.CreatedAt = NowISO()
	a = NormalizeAlert(a)

	alerts := append(s.loadAlerts(), a)
	if err := s.saveAlerts(alerts); err != nil {
		return PatternAlert{}, err
	}
	return a, nil
}

// MarkAlertRead marks an alert as read. Marking twice is a no-op.
func (s *Store) MarkAlertRead(id types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts := s.loadAlerts()
	for i := range alerts {
		if alerts[i].ID == id {
			alerts[i].IsRead = true
			if err := s.saveAlerts(alerts); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// DeleteAlert removes an alert by ID.
func (s *Store) DeleteAlert(id types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts := s.loadAlerts()
	kept := alerts[:0]
	for _, a := range alerts {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	if len(kept) == len(alerts) {
		return false, nil
	}
	if err := s.saveAlerts(kept); err != nil {
		return false, err
	}
	return true, nil
}

// --- Configuration, settings, medicines ---

// DetectionConfig returns the pattern detection knobs, falling back to
// defaults when the key is absent or corrupt.
func (s *Store) DetectionConfig() DetectionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cfg DetectionConfig
	if !s.read(storage.KeyPatternConfig, &cfg) {
		return DefaultDetectionConfig()
	}
	return NormalizeDetectionConfig(cfg)
}

// SaveDetectionConfig persists the detection knobs, normalized.
func (s *Store) SaveDetectionConfig(cfg DetectionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(storage.KeyPatternConfig, NormalizeDetectionConfig(cfg))
}

// Settings returns the user preferences.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadSettings()
}

// SaveSettings persists the user preferences, normalized.
func (s *Store) SaveSettings(st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(storage.KeySettings, NormalizeSettings(st))
}

// StampLastBackup records the time of the latest backup in settings.
func (s *Store) StampLastBackup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.loadSettings()
	st.LastBackup = NowISO()
	return s.write(storage.KeySettings, st)
}

// Medicines returns the medicine picker list.
func (s *Store) Medicines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []string
	if !s.read(storage.KeyMedicineList, &list) {
		return DefaultMedicines()
	}
	return list
}

// ReplaceMedicines swaps the medicine list.
func (s *Store) ReplaceMedicines(list []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(storage.KeyMedicineList, list)
}

// AddMedicine appends a medicine unless it is already listed.
func (s *Store) AddMedicine(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []string
	if !s.read(storage.KeyMedicineList, &list) {
		list = DefaultMedicines()
	}
	for _, m := range list {
		if m == name {
			return nil
		}
	}
	return s.write(storage.KeyMedicineList, append(list, name))
}

// --- Internal load/save plumbing (callers hold the mutex) ---

func (s *Store) loadPatients() []Patient {
	var patients []Patient
	if !s.read(storage.KeyPatients, &patients) {
		return []Patient{}
	}
	for i := range patients {
		patients[i] = NormalizePatient(patients[i])
	}
	return patients
}

func (s *Store) savePatients(patients []Patient) error {
	for i := range patients {
		patients[i] = NormalizePatient(patients[i])
	}
	return s.write(storage.KeyPatients, patients)
}

func (s *Store) loadAlerts() []PatternAlert {
	var alerts []PatternAlert
	if !s.read(storage.KeyAlerts, &alerts) {
		return []PatternAlert{}
	}
	for i := range alerts {
		alerts[i] = NormalizeAlert(alerts[i])
	}
	return alerts
}

func (s *Store) saveAlerts(alerts []PatternAlert) error {
	for i := range alerts {
		alerts[i] = NormalizeAlert(alerts[i])
	}
	return s.write(storage.KeyAlerts, alerts)
}

func (s *Store) loadSettings() Settings {
	var st Settings
	if !s.read(storage.KeySettings, &st) {
		return DefaultSettings()
	}
	return NormalizeSettings(st)
}

// read unmarshals one key into dst. It reports false when the key is
// absent, unreadable, or corrupt; failures are logged, never propagated.
func (s *Store) read(key string, dst any) bool {
	data, err := s.kv.Get(key)
	if err != nil {
		s.log.Warn("storage read failed", zap.String("key", key), zap.Error(err))
		metrics.RecordStoreReadFailure(key)
		return false
	}
	if data == nil {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn("malformed stored value", zap.String("key", key), zap.Error(err))
		metrics.RecordStoreReadFailure(key)
		return false
	}
	return true
}

func (s *Store) write(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to encode "+key)
	}
	if err := s.kv.Set(key, data); err != nil {
		return errors.Wrap(err, "failed to persist "+key)
	}
	return nil
}

// --- Partial updates ---

// PatientUpdate carries the mergeable patient fields; nil means "leave
// unchanged".
type PatientUpdate struct {
	Name        *string  `json:"name,omitempty"`
	Age         *FlexInt `json:"age,omitempty"`
	Gender      *Gender  `json:"gender,omitempty"`
	ContactInfo *string  `json:"contactInfo,omitempty"`
	Visits      *[]Visit `json:"visits,omitempty"`
}

func (u PatientUpdate) apply(p *Patient) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Age != nil {
		p.Age = *u.Age
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	if u.ContactInfo != nil {
		p.ContactInfo = *u.ContactInfo
	}
	if u.Visits != nil {
		p.Visits = *u.Visits
	}
}

// VisitUpdate carries the mergeable visit fields.
type VisitUpdate struct {
	Date            *string      `json:"date,omitempty"`
	Symptoms        *[]string    `json:"symptoms,omitempty"`
	Diagnosis       *string      `json:"diagnosis,omitempty"`
	Treatment       *string      `json:"treatment,omitempty"`
	Severity        *Severity    `json:"severity,omitempty"`
	HealingDuration *FlexInt     `json:"healingDuration,omitempty"`
	Notes           *string      `json:"notes,omitempty"`
	Medicines       *[]string    `json:"medicines,omitempty"`
	Repeat          *VisitRepeat `json:"repeat,omitempty"`
}

func (u VisitUpdate) apply(v *Visit) {
	if u.Date != nil {
		v.Date = *u.Date
	}
	if u.Symptoms != nil {
		v.Symptoms = *u.Symptoms
	}
	if u.Diagnosis != nil {
		v.Diagnosis = *u.Diagnosis
	}
	if u.Treatment != nil {
		v.Treatment = *u.Treatment
	}
	if u.Severity != nil {
		v.Severity = *u.Severity
	}
	if u.HealingDuration != nil {
		v.HealingDuration = *u.HealingDuration
	}
	if u.Notes != nil {
		v.Notes = *u.Notes
	}
	if u.Medicines != nil {
		v.Medicines = *u.Medicines
	}
	if u.Repeat != nil {
		r := *u.Repeat
		v.Repeat = &r
	}
}
