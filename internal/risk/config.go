package risk

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/client-risk-service/internal/audit"
	"github.com/sells-group/client-risk-service/internal/model"
	"github.com/sells-group/client-risk-service/internal/scoring"
)

// Config returns the effective risk configuration for an organization,
// falling back to the built-in defaults when none is stored.
func (s *Service) Config(ctx context.Context, orgID string) (*model.RiskConfig, error) {
	if orgID == "" {
		orgID = s.opts.DefaultOrgID
	}
	cfg, err := s.store.GetRiskConfig(ctx, orgID)
	if err != nil {
		return nil, eris.Wrapf(err, "risk: load config for %s", orgID)
	}
	if cfg == nil {
		def := model.DefaultRiskConfig()
		return &def, nil
	}
	// Stored configs written before a factor type existed get the default
	// weight for the new factor.
	defaults := model.DefaultRiskConfig()
	for ft, w := range defaults.FactorWeights {
		if _, ok := cfg.FactorWeights[ft]; !ok {
			if cfg.FactorWeights == nil {
				cfg.FactorWeights = map[model.FactorType]float64{}
			}
			cfg.FactorWeights[ft] = w
		}
	}
	return cfg, nil
}

// ConfigPatch carries a partial configuration update. Nil or absent fields
// leave the current value untouched; provided weights replace per factor.
type ConfigPatch struct {
	FactorWeights          map[model.FactorType]float64 `json:"factor_weights,omitempty"`
	Thresholds             *model.Thresholds            `json:"thresholds,omitempty"`
	AutoAssessIntervalDays *int                         `json:"auto_assess_interval_days,omitempty"`
	EnableAutoAssess       *bool                        `json:"enable_auto_assess,omitempty"`
}

// UpdateConfig merges the patch onto the organization's effective config,
// validates the result, and persists it. The stored config is returned.
func (s *Service) UpdateConfig(ctx context.Context, orgID string, patch ConfigPatch, actor string) (*model.RiskConfig, error) {
	if orgID == "" {
		orgID = s.opts.DefaultOrgID
	}
	current, err := s.Config(ctx, orgID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	for ft, w := range patch.FactorWeights {
		next.FactorWeights[ft] = w
	}
	if patch.Thresholds != nil {
		next.Thresholds = *patch.Thresholds
	}
	if patch.AutoAssessIntervalDays != nil {
		next.AutoAssessIntervalDays = *patch.AutoAssessIntervalDays
	}
	if patch.EnableAutoAssess != nil {
		next.EnableAutoAssess = *patch.EnableAutoAssess
	}

	if err := scoring.ValidateConfig(next); err != nil {
		return nil, eris.Wrapf(ErrInvalidConfig, "%v", err)
	}

	if err := s.store.UpsertRiskConfig(ctx, orgID, next); err != nil {
		return nil, eris.Wrapf(err, "risk: save config for %s", orgID)
	}

	s.audit.Record(ctx, audit.Event{
		OrgID:        orgID,
		Action:       audit.ActionConfigUpdated,
		ResourceType: "risk_config",
		ResourceID:   orgID,
		Actor:        actor,
		Detail: map[string]any{
			"thresholds": next.Thresholds,
		},
	})
	zap.S().Infow("risk config updated", "org_id", orgID, "actor", actor)
	return &next, nil
}
