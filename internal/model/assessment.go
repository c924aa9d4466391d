package model

import (
	"time"
)

// FactorType identifies an independently computed risk contributor.
type FactorType string

const (
	FactorTaxStatus            FactorType = "tax_status"
	FactorPaymentHistory       FactorType = "payment_history"
	FactorLegalStatus          FactorType = "legal_status"
	FactorDataCompleteness     FactorType = "data_completeness"
	FactorActivityLevel        FactorType = "activity_level"
	FactorDocumentCompliance   FactorType = "document_compliance"
	FactorCommunicationPattern FactorType = "communication_pattern"
)

// FactorCategory groups factors for filtered queries.
type FactorCategory string

const (
	CategoryCompliance  FactorCategory = "compliance"
	CategoryFinancial   FactorCategory = "financial"
	CategoryOperational FactorCategory = "operational"
	CategoryDataQuality FactorCategory = "data_quality"
)

// RiskLevel is the ordinal classification derived from the composite score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank returns the ordinal position of the level (low=0 .. critical=3).
// Unknown levels rank below low so they never satisfy a minimum-level filter.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return -1
}

// ParseRiskLevel returns the RiskLevel for s, or false if s is not a level.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return RiskLevel(s), true
	}
	return "", false
}

// LevelsAtOrAbove returns min and every level above it in ordinal order.
func LevelsAtOrAbove(min RiskLevel) []RiskLevel {
	all := []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
	var out []RiskLevel
	for _, l := range all {
		if l.Rank() >= min.Rank() {
			out = append(out, l)
		}
	}
	return out
}

// TriggerSource records what initiated an assessment.
type TriggerSource string

const (
	TriggerManual TriggerSource = "manual"
	TriggerAuto   TriggerSource = "auto"
)

// RiskFactor is one weighted contributor to an assessment. Immutable once created.
type RiskFactor struct {
	Type          FactorType     `json:"type"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Score         float64        `json:"score"`
	Weight        float64        `json:"weight"`
	WeightedScore float64        `json:"weighted_score"`
	Category      FactorCategory `json:"category"`
}

// RiskAssessment is a point-in-time risk snapshot for one client.
// A re-assessment creates a new record; prior records stay for history.
type RiskAssessment struct {
	ID              string        `json:"id"`
	ClientID        string        `json:"client_id"`
	OverallScore    float64       `json:"overall_score"`
	RiskLevel       RiskLevel     `json:"risk_level"`
	Factors         []RiskFactor  `json:"factors"`
	Summary         string        `json:"summary"`
	Recommendations []string      `json:"recommendations"`
	AssessedAt      time.Time     `json:"assessed_at"`
	ValidUntil      time.Time     `json:"valid_until"`
	TriggeredBy     TriggerSource `json:"triggered_by"`
	CreatedBy       string        `json:"created_by"`
}

// Fresh reports whether the assessment is still inside its validity window.
func (a *RiskAssessment) Fresh(now time.Time) bool {
	return !now.After(a.ValidUntil)
}

// TopFactors returns the n highest-scoring factors, ties broken by original
// factor order.
func (a *RiskAssessment) TopFactors(n int) []RiskFactor {
	if n <= 0 || len(a.Factors) == 0 {
		return nil
	}
	idx := make([]int, len(a.Factors))
	for i := range idx {
		idx[i] = i
	}
	// Stable insertion sort: higher score first, earlier position wins ties.
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0; j-- {
			p, q := idx[j-1], idx[j]
			if a.Factors[q].Score > a.Factors[p].Score {
				idx[j-1], idx[j] = idx[j], idx[j-1]
			} else {
				break
			}
		}
	}
	if n > len(idx) {
		n = len(idx)
	}
	top := make([]RiskFactor, 0, n)
	for _, i := range idx[:n] {
		top = append(top, a.Factors[i])
	}
	return top
}

// AssessmentView is the presentation form of an assessment. Trend fields are
// annotations computed against the previous assessment, never persisted.
type AssessmentView struct {
	RiskAssessment
	Cached        bool     `json:"cached,omitempty"`
	PreviousScore *float64 `json:"previous_score,omitempty"`
	ScoreTrend    string   `json:"score_trend,omitempty"`
}

// Score trends.
const (
	TrendImproving = "improving"
	TrendWorsening = "worsening"
	TrendStable    = "stable"
)
