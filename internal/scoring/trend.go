package scoring

import "github.com/sells-group/client-risk-service/internal/model"

// stableBand is the score-point distance within which two consecutive
// assessments count as stable. Fixed policy.
const stableBand = 5.0

// Trend classifies the movement from the previous composite score to the
// current one. A falling score means risk improved.
func Trend(previous, current float64) string {
	switch {
	case previous-current > stableBand:
		return model.TrendImproving
	case current-previous > stableBand:
		return model.TrendWorsening
	default:
		return model.TrendStable
	}
}
