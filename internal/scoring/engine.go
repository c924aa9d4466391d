// Package scoring combines factor sub-scores into a composite risk score and
// derives the level, trend, and recommendations from it.
package scoring

import (
	"fmt"
	"math"

	"github.com/sells-group/client-risk-service/internal/model"
)

// ComputeScore applies the configured weights to the collected factors and
// returns the composite score with the per-factor breakdown filled in.
//
// The composite is the weighted mean over factors carrying a positive weight,
// rounded to the nearest point and clamped to [0,100]. Zero-weighted factors
// stay in the breakdown but do not move the composite, so an organization can
// disable a factor without skewing normalization. All-zero weights yield 0.
func ComputeScore(factors []model.RiskFactor, weights map[model.FactorType]float64) (float64, []model.RiskFactor) {
	out := make([]model.RiskFactor, len(factors))

	var weightedSum, weightSum float64
	for i, f := range factors {
		w := weights[f.Type]
		if w < 0 {
			w = 0
		}
		f.Weight = w
		f.WeightedScore = f.Score * w / 100
		out[i] = f

		weightedSum += f.WeightedScore
		weightSum += w
	}

	if weightSum <= 0 {
		return 0, out
	}

	overall := math.Round(weightedSum / weightSum * 100)
	return clamp(overall, 0, 100), out
}

// Classify maps a composite score onto the configured thresholds. Boundary
// values fall into the lower band.
func Classify(score float64, t model.Thresholds) model.RiskLevel {
	switch {
	case score <= t.Low:
		return model.RiskLow
	case score <= t.Medium:
		return model.RiskMedium
	case score <= t.High:
		return model.RiskHigh
	default:
		return model.RiskCritical
	}
}

// Summarize derives the one-line assessment summary from the computed result.
func Summarize(score float64, level model.RiskLevel, factors []model.RiskFactor) string {
	top := ""
	best := -1.0
	for _, f := range factors {
		if f.Score > best {
			best = f.Score
			top = f.Name
		}
	}
	if top == "" {
		return fmt.Sprintf("Overall risk %s (score %.0f)", level, score)
	}
	return fmt.Sprintf("Overall risk %s (score %.0f); highest factor: %s", level, score, top)
}

// ValidateConfig checks threshold ordering and weight signs. The returned
// error describes the first violation found.
func ValidateConfig(cfg model.RiskConfig) error {
	t := cfg.Thresholds
	if !(0 < t.Low && t.Low < t.Medium && t.Medium < t.High && t.High <= 100) {
		return fmt.Errorf("thresholds must satisfy 0 < low < medium < high <= 100, got low=%.1f medium=%.1f high=%.1f",
			t.Low, t.Medium, t.High)
	}
	for ft, w := range cfg.FactorWeights {
		if w < 0 {
			return fmt.Errorf("weight for %s must be >= 0, got %.1f", ft, w)
		}
	}
	if cfg.AutoAssessIntervalDays <= 0 {
		return fmt.Errorf("auto assess interval must be > 0 days, got %d", cfg.AutoAssessIntervalDays)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
