package pattern

import (
	"sort"
	"time"

	"github.com/openclinic/healthdesk/internal/record"
)

// Trend classification labels.
const (
	TrendImproving        = "Improving - Severity decreasing"
	TrendWorsening        = "Worsening - Severity increasing"
	TrendStable           = "Stable - No significant change"
	TrendInsufficientData = "Insufficient data"
)

// Slope magnitudes below this are noise, not a direction.
const slopeEpsilon = 0.1

// HealthTrend classifies the direction of a patient's severity over time.
// Exactly one of the three booleans is true.
type HealthTrend struct {
	Improving bool   `json:"improving"`
	Worsening bool   `json:"worsening"`
	Stable    bool   `json:"stable"`
	Trend     string `json:"trend"`
}

// SymptomTally is one entry of a patient's ranked symptom list.
type SymptomTally struct {
	Symptom string `json:"symptom"`
	Count   int    `json:"count"`
}

// SeverityTally is a patient's visit count at one severity grade.
type SeverityTally struct {
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// Insights is the per-patient analysis snapshot.
type Insights struct {
	MostCommonSymptoms     []SymptomTally  `json:"mostCommonSymptoms"`
	AverageHealingDuration float64         `json:"averageHealingDuration"`
	SeverityTrend          []SeverityTally `json:"severityTrend"`
	VisitFrequency         float64         `json:"visitFrequency"`
}

// Trend fits a least-squares line through the patient's severity
// ordinals in date order and classifies the slope. Fewer than two
// visits is not enough signal to call a direction.
func Trend(p record.Patient) HealthTrend {
	if len(p.Visits) < 2 {
		return HealthTrend{Stable: true, Trend: TrendInsufficientData}
	}

	visits := make([]record.Visit, len(p.Visits))
	copy(visits, p.Visits)
	sort.SliceStable(visits, func(i, j int) bool {
		return visitTime(visits[i]).Before(visitTime(visits[j]))
	})

	n := float64(len(visits))
	var sumX, sumY, sumXY, sumX2 float64
	for i, v := range visits {
		x := float64(i)
		y := float64(v.Severity.Ordinal())
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	slope := (n*sumXY - sumX*sumY) / (n*sumX2 - sumX*sumX)

	switch {
	case slope < -slopeEpsilon:
		return HealthTrend{Improving: true, Trend: TrendImproving}
	case slope > slopeEpsilon:
		return HealthTrend{Worsening: true, Trend: TrendWorsening}
	default:
		return HealthTrend{Stable: true, Trend: TrendStable}
	}
}

// ComputeInsights summarizes a single patient's history: top symptoms,
// average healing duration, severity breakdown, and average visits per
// month across the span from first to last visit.
func ComputeInsights(p record.Patient) Insights {
	counts := map[string]int{}
	var order []string
	severityCounts := map[string]int{}
	var severityOrder []string

	healingSum := 0
	for _, v := range p.Visits {
		healingSum += v.HealingDuration.Int()
		for _, s := range v.Symptoms {
			if _, seen := counts[s]; !seen {
				order = append(order, s)
			}
			counts[s]++
		}
		sev := string(v.Severity)
		if _, seen := severityCounts[sev]; !seen {
			severityOrder = append(severityOrder, sev)
		}
		severityCounts[sev]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > 5 {
		order = order[:5]
	}
	top := make([]SymptomTally, 0, len(order))
	for _, s := range order {
		top = append(top, SymptomTally{Symptom: s, Count: counts[s]})
	}

	severities := make([]SeverityTally, 0, len(severityOrder))
	for _, s := range severityOrder {
		severities = append(severities, SeverityTally{Severity: s, Count: severityCounts[s]})
	}

	avgHealing := 0.0
	if len(p.Visits) > 0 {
		avgHealing = float64(healingSum) / float64(len(p.Visits))
	}

	return Insights{
		MostCommonSymptoms:     top,
		AverageHealingDuration: avgHealing,
		SeverityTrend:          severities,
		VisitFrequency:         visitsPerMonth(p.Visits),
	}
}

// visitsPerMonth averages the visit count over the span from the first
// to the last visit, measured in 30-day months. A span of zero or an
// unparseable endpoint yields zero.
func visitsPerMonth(visits []record.Visit) float64 {
	if len(visits) == 0 {
		return 0
	}
	first, errFirst := record.ParseDate(visits[0].Date)
	last, errLast := record.ParseDate(visits[len(visits)-1].Date)
	if errFirst != nil || errLast != nil {
		return 0
	}
	months := last.Sub(first).Hours() / 24 / 30
	if months <= 0 {
		return 0
	}
	return float64(len(visits)) / months
}

// visitTime orders visits for the regression. Unparseable dates sort
// first rather than breaking the fit.
func visitTime(v record.Visit) time.Time {
	t, err := record.ParseDate(v.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}
