// Package record owns the canonical patient, visit, and alert collections
// and their normalization rules. Persisted data may come from older
// versions or external imports, so every read path coerces records into
// shape instead of rejecting them.
package record

import (
	"strconv"
	"strings"
	"time"

	"github.com/openclinic/healthdesk/internal/shared/types"
)

// Gender is a patient demographic enum
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Severity classifies a single visit
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Ordinal returns the numeric encoding used for trend computation.
func (s Severity) Ordinal() int {
	switch s {
	case SeverityMild:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	}
	return 0
}

// AlertType identifies which detection rule produced an alert
type AlertType string

const (
	AlertTypeSymptomRepeat  AlertType = "symptom_repeat"
	AlertTypeFrequentVisits AlertType = "frequent_visits"
	AlertTypeSevereCase     AlertType = "severe_case"
)

// AlertSeverity grades a raised alert
type AlertSeverity string

const (
	AlertSeverityLow    AlertSeverity = "low"
	AlertSeverityMedium AlertSeverity = "medium"
	AlertSeverityHigh   AlertSeverity = "high"
)

// FlexInt is an int that tolerates the loosely typed JSON found in old
// exports: numbers, numeric strings, floats, and garbage all decode
// without error. Anything unparseable becomes 0 and is handled by
// normalization.
type FlexInt int

// Int returns the plain int value.
func (n FlexInt) Int() int {
	return int(n)
}

// UnmarshalJSON implements tolerant decoding.
func (n *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		*n = FlexInt(i)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*n = FlexInt(int(f))
		return nil
	}
	*n = 0
	return nil
}

// Patient is the root record. It exclusively owns its visits; deleting a
// patient deletes the visit history with it.
type Patient struct {
	ID          types.ID `json:"id"`
	Name        string   `json:"name"`
	Age         FlexInt  `json:"age"`
	Gender      Gender   `json:"gender"`
	ContactInfo string   `json:"contactInfo"`
	Visits      []Visit  `json:"visits"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// Visit is one clinical encounter belonging to a patient.
type Visit struct {
	ID              types.ID     `json:"id"`
	Date            string       `json:"date"`
	Symptoms        []string     `json:"symptoms"`
	Diagnosis       string       `json:"diagnosis"`
	Treatment       string       `json:"treatment"`
	Severity        Severity     `json:"severity"`
	HealingDuration FlexInt      `json:"healingDuration"`
	Notes           string       `json:"notes"`
	CreatedAt       string       `json:"createdAt"`
	Medicines       []string     `json:"medicines"`
	Repeat          *VisitRepeat `json:"repeat,omitempty"`
}

// VisitRepeat describes a recurring prescription schedule.
type VisitRepeat struct {
	Enabled      bool    `json:"enabled"`
	Times        FlexInt `json:"times"`
	IntervalDays FlexInt `json:"intervalDays"`
}

// PatternAlert is a notice that a configured clinical threshold was
// crossed. PatientID is a weak reference: alerts survive deletion of the
// patient they point at.
type PatternAlert struct {
	ID        types.ID      `json:"id"`
	Type      AlertType     `json:"type"`
	Message   string        `json:"message"`
	PatientID types.ID      `json:"patientId"`
	Severity  AlertSeverity `json:"severity"`
	CreatedAt string        `json:"createdAt"`
	IsRead    bool          `json:"isRead"`
}

// DetectionConfig holds the six knobs of the pattern detection engine,
// one threshold/window pair per rule.
type DetectionConfig struct {
	SymptomRepeatThreshold FlexInt `json:"symptomRepeatThreshold"`
	SymptomRepeatDays      FlexInt `json:"symptomRepeatDays"`
	FrequentVisitThreshold FlexInt `json:"frequentVisitThreshold"`
	FrequentVisitDays      FlexInt `json:"frequentVisitDays"`
	SevereCaseThreshold    FlexInt `json:"severeCaseThreshold"`
	SevereCaseDays         FlexInt `json:"severeCaseDays"`
}

// DefaultDetectionConfig returns the stock thresholds.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		SymptomRepeatThreshold: 3,
		SymptomRepeatDays:      30,
		FrequentVisitThreshold: 5,
		FrequentVisitDays:      30,
		SevereCaseThreshold:    2,
		SevereCaseDays:         7,
	}
}

// Settings holds the user preferences persisted alongside the records.
type Settings struct {
	Theme          string  `json:"theme"`
	Language       string  `json:"language"`
	DateFormat     string  `json:"dateFormat"`
	TimeFormat     string  `json:"timeFormat"`
	AutoBackup     bool    `json:"autoBackup"`
	BackupInterval FlexInt `json:"backupInterval"`
	LastBackup     string  `json:"lastBackup"`
}

// DefaultSettings returns the stock preferences.
func DefaultSettings() Settings {
	return Settings{
		Theme:          "light",
		Language:       "en",
		DateFormat:     "MM/DD/YYYY",
		TimeFormat:     "12h",
		AutoBackup:     true,
		BackupInterval: 7,
		LastBackup:     NowISO(),
	}
}

// DefaultMedicines returns the seed medicine list.
func DefaultMedicines() []string {
	return []string{
		"Paracetamol",
		"Ibuprofen",
		"Amoxicillin",
		"Azithromycin",
		"Cetirizine",
		"Metformin",
		"Atorvastatin",
		"Omeprazole",
		"Amlodipine",
		"Losartan",
		"Aspirin",
		"Diclofenac",
		"Pantoprazole",
		"Ranitidine",
		"Loratadine",
		"Montelukast",
		"Salbutamol",
		"Budesonide",
	}
}

// NowISO returns the current UTC time as an ISO 8601 string, the
// timestamp format of the persisted collections.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ParseDate parses a visit date. Dates are stored as ISO 8601 calendar
// dates but imported data sometimes carries full timestamps.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// --- Normalization ---
//
// Every entity has exactly one normalization function with a documented
// default per field, applied uniformly on read, write, and import.
// Normalization is idempotent.

// NormalizePatient coerces a patient into a record satisfying all
// invariants. Defaults: fresh ID, age 0, gender male, empty strings,
// empty visit list, current timestamps.
func NormalizePatient(p Patient) Patient {
	if p.ID.IsZero() {
		p.ID = types.NewID()
	}
	if p.Age < 0 {
		p.Age = 0
	}
	switch p.Gender {
	case GenderMale, GenderFemale, GenderOther:
	default:
		p.Gender = GenderMale
	}
	if p.Visits == nil {
		p.Visits = []Visit{}
	}
	for i := range p.Visits {
		p.Visits[i] = NormalizeVisit(p.Visits[i])
	}
	if p.CreatedAt == "" {
		p.CreatedAt = NowISO()
	}
	if p.UpdatedAt == "" {
		p.UpdatedAt = NowISO()
	}
	return p
}

// NormalizeVisit coerces a visit. Defaults: fresh ID, today's date,
// trimmed non-empty symptoms, severity mild, healing duration 1 day,
// empty medicine list, current creation timestamp.
func NormalizeVisit(v Visit) Visit {
	if v.ID.IsZero() {
		v.ID = types.NewID()
	}
	if v.Date == "" {
		v.Date = time.Now().UTC().Format("2006-01-02")
	}
	symptoms := make([]string, 0, len(v.Symptoms))
	for _, s := range v.Symptoms {
		s = strings.TrimSpace(s)
		if s != "" {
			symptoms = append(symptoms, s)
		}
	}
	v.Symptoms = symptoms
	switch v.Severity {
	case SeverityMild, SeverityModerate, SeveritySevere:
	default:
		v.Severity = SeverityMild
	}
	if v.HealingDuration < 1 {
		v.HealingDuration = 1
	}
	if v.CreatedAt == "" {
		v.CreatedAt = NowISO()
	}
	if v.Medicines == nil {
		v.Medicines = []string{}
	}
	if v.Repeat != nil {
		r := *v.Repeat
		if r.Times < 1 {
			r.Times = 1
		}
		if r.IntervalDays < 1 {
			r.IntervalDays = 1
		}
		v.Repeat = &r
	}
	return v
}

// NormalizeAlert coerces an alert. Defaults: fresh ID, type
// symptom_repeat, severity low, current creation timestamp, unread.
func NormalizeAlert(a PatternAlert) PatternAlert {
	if a.ID.IsZero() {
		a.ID = types.NewID()
	}
	switch a.Type {
	case AlertTypeSymptomRepeat, AlertTypeFrequentVisits, AlertTypeSevereCase:
	default:
		a.Type = AlertTypeSymptomRepeat
	}
	switch a.Severity {
	case AlertSeverityLow, AlertSeverityMedium, AlertSeverityHigh:
	default:
		a.Severity = AlertSeverityLow
	}
	if a.CreatedAt == "" {
		a.CreatedAt = NowISO()
	}
	return a
}

// NormalizeDetectionConfig replaces non-positive knobs with their
// defaults. A zero threshold would fire on every patient, so it is
// treated as absent rather than honored.
func NormalizeDetectionConfig(c DetectionConfig) DetectionConfig {
	def := DefaultDetectionConfig()
	if c.SymptomRepeatThreshold < 1 {
		c.SymptomRepeatThreshold = def.SymptomRepeatThreshold
	}
	if c.SymptomRepeatDays < 1 {
		c.SymptomRepeatDays = def.SymptomRepeatDays
	}
	if c.FrequentVisitThreshold < 1 {
		c.FrequentVisitThreshold = def.FrequentVisitThreshold
	}
	if c.FrequentVisitDays < 1 {
		c.FrequentVisitDays = def.FrequentVisitDays
	}
	if c.SevereCaseThreshold < 1 {
		c.SevereCaseThreshold = def.SevereCaseThreshold
	}
	if c.SevereCaseDays < 1 {
		c.SevereCaseDays = def.SevereCaseDays
	}
	return c
}

// NormalizeSettings coerces the settings object. Defaults match
// DefaultSettings except LastBackup, which stays empty until the first
// backup runs.
func NormalizeSettings(s Settings) Settings {
	if s.Theme != "light" && s.Theme != "dark" {
		s.Theme = "light"
	}
	if s.Language == "" {
		s.Language = "en"
	}
	if s.DateFormat == "" {
		s.DateFormat = "MM/DD/YYYY"
	}
	if s.TimeFormat != "12h" && s.TimeFormat != "24h" {
		s.TimeFormat = "12h"
	}
	if s.BackupInterval < 1 {
		s.BackupInterval = 7
	}
	return s
}
