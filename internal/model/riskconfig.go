package model

// Thresholds are the ascending score boundaries between risk levels. Each
// boundary is the maximum score still classified at the lower level.
type Thresholds struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// RiskConfig is the per-organization scoring configuration. Exactly one logical
// record is effective per organization at any instant: the last one upserted,
// or DefaultRiskConfig when none exists.
type RiskConfig struct {
	FactorWeights          map[FactorType]float64 `json:"factor_weights"`
	Thresholds             Thresholds             `json:"thresholds"`
	AutoAssessIntervalDays int                    `json:"auto_assess_interval_days"`
	EnableAutoAssess       bool                   `json:"enable_auto_assess"`
}

// DefaultRiskConfig returns the configuration used when an organization has
// never stored one. Callers must treat the result as their own copy.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		FactorWeights: map[FactorType]float64{
			FactorTaxStatus:            25,
			FactorPaymentHistory:       20,
			FactorLegalStatus:          15,
			FactorDataCompleteness:     10,
			FactorActivityLevel:        10,
			FactorDocumentCompliance:   10,
			FactorCommunicationPattern: 10,
		},
		Thresholds:             Thresholds{Low: 25, Medium: 50, High: 75},
		AutoAssessIntervalDays: 30,
		EnableAutoAssess:       false,
	}
}

// Clone returns a deep copy so callers can mutate weights safely.
func (c RiskConfig) Clone() RiskConfig {
	out := c
	out.FactorWeights = make(map[FactorType]float64, len(c.FactorWeights))
	for k, v := range c.FactorWeights {
		out.FactorWeights[k] = v
	}
	return out
}
