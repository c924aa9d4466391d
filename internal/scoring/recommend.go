package scoring

import (
	"fmt"

	"github.com/sells-group/client-risk-service/internal/model"
)

// recommendTrigger is the factor score above which a recommendation fires.
const recommendTrigger = 60.0

// Recommend derives guidance strings from the computed factors. Entries are
// ordered by the score of their triggering factor, descending; duplicates
// collapse to one entry. The result is never nil.
func Recommend(factors []model.RiskFactor, facts model.ClientFacts) []string {
	type hit struct {
		score float64
		text  string
	}

	var hits []hit
	for _, f := range factors {
		if f.Score <= recommendTrigger {
			continue
		}
		text := recommendationFor(f, facts)
		if text == "" {
			continue
		}
		hits = append(hits, hit{score: f.Score, text: text})
	}

	// Stable sort by score descending; equal scores keep factor order.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].score > hits[j-1].score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	out := make([]string, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if seen[h.text] {
			continue
		}
		seen[h.text] = true
		out = append(out, h.text)
	}
	return out
}

func recommendationFor(f model.RiskFactor, facts model.ClientFacts) string {
	switch f.Type {
	case model.FactorTaxStatus:
		return "Re-verify the client's VAT registration number"
	case model.FactorDataCompleteness:
		missing := facts.MissingFields()
		if len(missing) == 0 {
			return "Review the client record for data quality issues"
		}
		// The first missing canonical field is the most impactful one.
		return fmt.Sprintf("Complete the client record: add %s", missing[0])
	case model.FactorActivityLevel:
		return "Re-engage the client; no meaningful recent activity"
	case model.FactorLegalStatus:
		return "Review the client's account standing before further business"
	case model.FactorPaymentHistory:
		return "Follow up on overdue invoices"
	case model.FactorDocumentCompliance:
		return "Request re-submission of rejected compliance documents"
	case model.FactorCommunicationPattern:
		return "Schedule outreach; communication cadence has lapsed"
	}
	return ""
}
