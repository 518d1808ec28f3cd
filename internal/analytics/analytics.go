// Package analytics derives the dashboard summary from the patient
// collection. Computation is a pure function of its input: nothing is
// cached, nothing is persisted, and every request sees a fresh snapshot.
package analytics

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/openclinic/healthdesk/internal/record"
)

// SymptomCount is one entry of the ranked symptom list
type SymptomCount struct {
	Symptom string `json:"symptom"`
	Count   int    `json:"count"`
}

// DiagnosisCount is one entry of the ranked diagnosis list
type DiagnosisCount struct {
	Diagnosis string `json:"diagnosis"`
	Count     int    `json:"count"`
}

// MonthCount is the visit tally of one calendar month
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// SeverityCount is the visit tally of one severity grade
type SeverityCount struct {
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// Data is the derived summary snapshot
type Data struct {
	TotalPatients          int              `json:"totalPatients"`
	TotalVisits            int              `json:"totalVisits"`
	CommonSymptoms         []SymptomCount   `json:"commonSymptoms"`
	CommonDiagnoses        []DiagnosisCount `json:"commonDiagnoses"`
	AverageHealingDuration float64          `json:"averageHealingDuration"`
	VisitFrequency         []MonthCount     `json:"visitFrequency"`
	SeverityDistribution   []SeverityCount  `json:"severityDistribution"`
}

// Aggregator computes summary statistics over the patient collection
type Aggregator struct {
	log *zap.Logger
}

// New creates an aggregator
func New(log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{log: log}
}

// Compute builds the summary snapshot from the given patients. A visit
// with an unparseable date is excluded from the monthly frequency but
// still counts everywhere else; the failure is logged, not propagated.
func (a *Aggregator) Compute(patients []record.Patient) Data {
	symptoms := newCounter()
	diagnoses := newCounter()
	severities := newCounter()
	months := map[time.Time]int{}

	totalVisits := 0
	healingSum := 0

	for _, p := range patients {
		for _, v := range p.Visits {
			totalVisits++
			healingSum += v.HealingDuration.Int()

			for _, s := range v.Symptoms {
				symptoms.add(s)
			}
			if v.Diagnosis != "" {
				diagnoses.add(v.Diagnosis)
			}
			severities.add(string(v.Severity))

			day, err := record.ParseDate(v.Date)
			if err != nil {
				a.log.Warn("visit excluded from monthly frequency",
					zap.String("visit_id", v.ID.String()),
					zap.String("date", v.Date))
				continue
			}
			month := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
			months[month]++
		}
	}

	avgHealing := 0.0
	if totalVisits > 0 {
		avgHealing = float64(healingSum) / float64(totalVisits)
	}

	return Data{
		TotalPatients:          len(patients),
		TotalVisits:            totalVisits,
		CommonSymptoms:         topSymptoms(symptoms, 10),
		CommonDiagnoses:        topDiagnoses(diagnoses, 10),
		AverageHealingDuration: avgHealing,
		VisitFrequency:         monthlyFrequency(months),
		SeverityDistribution:   severityDistribution(severities),
	}
}

// counter tallies strings while remembering first-encounter order, so
// that ranking ties resolve stably.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: map[string]int{}}
}

func (c *counter) add(key string) {
	if _, seen := c.counts[key]; !seen {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

// ranked returns keys sorted by count descending, ties in
// first-encounter order, truncated to limit.
func (c *counter) ranked(limit int) []string {
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	sort.SliceStable(keys, func(i, j int) bool {
		return c.counts[keys[i]] > c.counts[keys[j]]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

func topSymptoms(c *counter, limit int) []SymptomCount {
	out := make([]SymptomCount, 0, limit)
	for _, k := range c.ranked(limit) {
		out = append(out, SymptomCount{Symptom: k, Count: c.counts[k]})
	}
	return out
}

func topDiagnoses(c *counter, limit int) []DiagnosisCount {
	out := make([]DiagnosisCount, 0, limit)
	for _, k := range c.ranked(limit) {
		out = append(out, DiagnosisCount{Diagnosis: k, Count: c.counts[k]})
	}
	return out
}

func monthlyFrequency(months map[time.Time]int) []MonthCount {
	keys := make([]time.Time, 0, len(months))
	for m := range months {
		keys = append(keys, m)
	}
	// Chronological by the underlying date, not by label text
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	out := make([]MonthCount, 0, len(keys))
	for _, m := range keys {
		out = append(out, MonthCount{Month: m.Format("Jan 2006"), Count: months[m]})
	}
	return out
}

func severityDistribution(c *counter) []SeverityCount {
	out := make([]SeverityCount, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, SeverityCount{Severity: k, Count: c.counts[k]})
	}
	return out
}
