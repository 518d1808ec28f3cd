package record

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestFlexIntUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"plain number", `5`, 5},
		{"numeric string", `"7"`, 7},
		{"float", `3.9`, 3},
		{"float string", `"2.5"`, 2},
		{"negative string", `"-5"`, -5},
		{"empty string", `""`, 0},
		{"null", `null`, 0},
		{"garbage", `"abc"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n FlexInt
			if err := json.Unmarshal([]byte(tt.input), &n); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.input, err)
			}
			if n.Int() != tt.want {
				t.Errorf("got %d, want %d", n.Int(), tt.want)
			}
		})
	}
}

func TestNormalizeVisitDefaults(t *testing.T) {
	v := NormalizeVisit(Visit{
		Symptoms:        []string{"  fever ", "", "cough"},
		HealingDuration: -5,
	})

	if v.ID.IsZero() {
		t.Error("expected generated visit ID")
	}
	if v.Date == "" {
		t.Error("expected default date")
	}
	if v.Severity != SeverityMild {
		t.Errorf("severity = %q, want mild", v.Severity)
	}
	if v.HealingDuration != 1 {
		t.Errorf("healingDuration = %d, want 1", v.HealingDuration)
	}
	if !reflect.DeepEqual(v.Symptoms, []string{"fever", "cough"}) {
		t.Errorf("symptoms = %v, want trimmed non-empty", v.Symptoms)
	}
	if v.Medicines == nil {
		t.Error("expected non-nil medicines")
	}
}

func TestNormalizePatientDefaults(t *testing.T) {
	p := NormalizePatient(Patient{Name: "Ana", Age: -1, Gender: "unknown"})

	if p.ID.IsZero() {
		t.Error("expected generated patient ID")
	}
	if p.Age != 0 {
		t.Errorf("age = %d, want 0", p.Age)
	}
	if p.Gender != GenderMale {
		t.Errorf("gender = %q, want male", p.Gender)
	}
	if p.Visits == nil {
		t.Error("expected non-nil visits")
	}
	if p.CreatedAt == "" || p.UpdatedAt == "" {
		t.Error("expected timestamps")
	}
}

func TestNormalizePatientIdempotent(t *testing.T) {
	p := NormalizePatient(Patient{
		Name:   "Marko",
		Gender: GenderFemale,
		Visits: []Visit{{Symptoms: []string{"fever"}, Severity: SeveritySevere, HealingDuration: 3}},
	})

	again := NormalizePatient(p)
	if !reflect.DeepEqual(p, again) {
		t.Errorf("normalization not idempotent:\nfirst  %+v\nsecond %+v", p, again)
	}
}

func TestNormalizeDetectionConfig(t *testing.T) {
	tests := []struct {
		name string
		in   DetectionConfig
		want DetectionConfig
	}{
		{"all zero gets defaults", DetectionConfig{}, DefaultDetectionConfig()},
		{
			"valid values kept",
			DetectionConfig{10, 60, 8, 45, 3, 14},
			DetectionConfig{10, 60, 8, 45, 3, 14},
		},
		{
			"negative knob replaced",
			DetectionConfig{-1, 60, 8, 45, 3, 14},
			DetectionConfig{3, 60, 8, 45, 3, 14},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDetectionConfig(tt.in)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalizeSettings(t *testing.T) {
	s := NormalizeSettings(Settings{Theme: "neon", TimeFormat: "25h", BackupInterval: 0})

	if s.Theme != "light" {
		t.Errorf("theme = %q, want light", s.Theme)
	}
	if s.TimeFormat != "12h" {
		t.Errorf("timeFormat = %q, want 12h", s.TimeFormat)
	}
	if s.BackupInterval != 7 {
		t.Errorf("backupInterval = %d, want 7", s.BackupInterval)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"2026-01-15", true},
		{"2026-01-15T10:30:00Z", true},
		{"2026-01-15T10:30:00", true},
		{"not a date", false},
		{"", false},
	}

	for _, tt := range tests {
		_, err := ParseDate(tt.input)
		if (err == nil) != tt.ok {
			t.Errorf("ParseDate(%q) error = %v, want ok=%v", tt.input, err, tt.ok)
		}
	}
}
