// Package collector computes normalized per-factor risk sub-scores from raw
// client facts. Every collector is a pure function returning a score in
// [0,100] where 100 is highest risk; missing inputs raise the score instead
// of failing.
package collector

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sells-group/client-risk-service/internal/model"
)

// Input bundles the collaborator data a collector may consume. Any field may
// be zero-valued when the corresponding collaborator had nothing to report.
type Input struct {
	Facts    model.ClientFacts
	Activity model.ActivitySnapshot
	Tax      *model.TaxValidation
	Now      time.Time
}

// Func computes one risk factor from collected client inputs.
type Func func(in Input) model.RiskFactor

// Scoring constants. Fixed policy, not business-tunable per organization.
const (
	scoreMax = 100.0

	// tax_status
	taxInvalidScore   = 95.0
	taxUncertainScore = 50.0
	taxValidBaseScore = 5.0
	taxStalePer90Days = 5.0
	taxValidScoreCap  = 60.0

	// data_completeness
	missingFieldIncrement = 20.0

	// activity_level
	activityBaseScore = 90.0
	activityPerEvent  = 15.0

	// legal_status (account standing)
	statusSuspendedScore = 90.0
	statusInactiveScore  = 70.0
	statusActiveScore    = 10.0

	// document_compliance
	docUncertainScore = 40.0

	// communication_pattern
	commNeverScore = 85.0

	// payment_history
	paymentUncertainScore = 45.0
	paymentPerOverdue     = 25.0
)

// Order is the fixed evaluation order of the registered collectors; the
// factors list of an assessment follows it.
var Order = []model.FactorType{
	model.FactorTaxStatus,
	model.FactorPaymentHistory,
	model.FactorLegalStatus,
	model.FactorDataCompleteness,
	model.FactorActivityLevel,
	model.FactorDocumentCompliance,
	model.FactorCommunicationPattern,
}

// Registry maps factor types to their collectors. Adding a factor type means
// registering a new entry here and appending it to Order.
var Registry = map[model.FactorType]Func{
	model.FactorTaxStatus:            collectTaxStatus,
	model.FactorPaymentHistory:       collectPaymentHistory,
	model.FactorLegalStatus:          collectLegalStatus,
	model.FactorDataCompleteness:     collectDataCompleteness,
	model.FactorActivityLevel:        collectActivityLevel,
	model.FactorDocumentCompliance:   collectDocumentCompliance,
	model.FactorCommunicationPattern: collectCommunicationPattern,
}

// CollectAll runs every registered collector in Order against the input.
func CollectAll(in Input) []model.RiskFactor {
	factors := make([]model.RiskFactor, 0, len(Order))
	for _, ft := range Order {
		fn, ok := Registry[ft]
		if !ok {
			continue
		}
		factors = append(factors, fn(in))
	}
	return factors
}

func collectTaxStatus(in Input) model.RiskFactor {
	score := taxUncertainScore
	desc := "VAT registration has never been verified"

	if in.Tax != nil {
		switch in.Tax.Status {
		case model.TaxInvalid, model.TaxInactive:
			score = taxInvalidScore
			desc = fmt.Sprintf("VAT registration is %s", in.Tax.Status)
		case model.TaxValid:
			score = taxValidBaseScore
			desc = "VAT registration confirmed active"
			if in.Tax.CheckedAt != nil {
				age := in.Now.Sub(*in.Tax.CheckedAt)
				stale := math.Floor(age.Hours() / 24 / 90)
				if stale > 0 {
					score = math.Min(taxValidScoreCap, score+stale*taxStalePer90Days)
					desc = fmt.Sprintf("VAT registration valid, last verified %d days ago",
						int(age.Hours()/24))
				}
			}
		case model.TaxUnknown:
			// Collaborator degraded or result inconclusive: uncertain, not an error.
		}
	}

	return factor(model.FactorTaxStatus, "Tax registration", desc, score, model.CategoryCompliance)
}

func collectPaymentHistory(in Input) model.RiskFactor {
	billing := in.Activity.OverdueInvoices + in.Activity.PaidInvoices
	if billing == 0 {
		return factor(model.FactorPaymentHistory, "Payment history",
			"no billing history recorded", paymentUncertainScore, model.CategoryFinancial)
	}

	score := math.Min(scoreMax, float64(in.Activity.OverdueInvoices)*paymentPerOverdue)
	desc := fmt.Sprintf("%d of %d invoices overdue", in.Activity.OverdueInvoices, billing)
	return factor(model.FactorPaymentHistory, "Payment history", desc, score, model.CategoryFinancial)
}

func collectLegalStatus(in Input) model.RiskFactor {
	var score float64
	switch in.Facts.Status {
	case model.ClientSuspended:
		score = statusSuspendedScore
	case model.ClientInactive:
		score = statusInactiveScore
	default:
		score = statusActiveScore
	}
	desc := fmt.Sprintf("account status is %s", in.Facts.Status)
	return factor(model.FactorLegalStatus, "Account status", desc, score, model.CategoryCompliance)
}

func collectDataCompleteness(in Input) model.RiskFactor {
	missing := in.Facts.MissingFields()
	score := math.Min(scoreMax, float64(len(missing))*missingFieldIncrement)

	desc := "all canonical contact fields present"
	if len(missing) > 0 {
		desc = fmt.Sprintf("missing: %s", strings.Join(missing, ", "))
	}
	return factor(model.FactorDataCompleteness, "Data completeness", desc, score, model.CategoryDataQuality)
}

func collectActivityLevel(in Input) model.RiskFactor {
	if in.Activity.TotalEvents == 0 {
		return factor(model.FactorActivityLevel, "Activity level",
			"no recorded activity", scoreMax, model.CategoryOperational)
	}

	score := math.Max(0, activityBaseScore-float64(in.Activity.RecentEvents)*activityPerEvent)
	desc := fmt.Sprintf("%d recent timeline events", in.Activity.RecentEvents)
	return factor(model.FactorActivityLevel, "Activity level", desc, score, model.CategoryOperational)
}

func collectDocumentCompliance(in Input) model.RiskFactor {
	submitted := in.Activity.DocumentsSubmitted
	if submitted == 0 {
		return factor(model.FactorDocumentCompliance, "Document compliance",
			"no document history", docUncertainScore, model.CategoryCompliance)
	}

	rejectRate := float64(in.Activity.DocumentsRejected) / float64(submitted)
	score := math.Min(scoreMax, rejectRate*scoreMax)
	desc := fmt.Sprintf("%d of %d submitted documents rejected",
		in.Activity.DocumentsRejected, submitted)
	return factor(model.FactorDocumentCompliance, "Document compliance", desc, score, model.CategoryCompliance)
}

func collectCommunicationPattern(in Input) model.RiskFactor {
	if in.Activity.LastCommunication == nil {
		return factor(model.FactorCommunicationPattern, "Communication cadence",
			"no communication recorded", commNeverScore, model.CategoryOperational)
	}

	days := int(in.Now.Sub(*in.Activity.LastCommunication).Hours() / 24)
	var score float64
	switch {
	case days <= 30:
		score = 10
	case days <= 90:
		score = 40
	case days <= 180:
		score = 70
	default:
		score = 90
	}
	desc := fmt.Sprintf("last communication %d days ago", days)
	return factor(model.FactorCommunicationPattern, "Communication cadence", desc, score, model.CategoryOperational)
}

func factor(ft model.FactorType, name, desc string, score float64, cat model.FactorCategory) model.RiskFactor {
	return model.RiskFactor{
		Type:        ft,
		Name:        name,
		Description: desc,
		Score:       score,
		Category:    cat,
	}
}
