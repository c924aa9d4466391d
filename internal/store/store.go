package store

import (
	"context"
	"time"

	"github.com/sells-group/client-risk-service/internal/model"
)

// AssessmentFilter specifies criteria for the filtered assessment query.
// Only the latest assessment per client is considered.
type AssessmentFilter struct {
	Levels   []model.RiskLevel    `json:"levels"`
	Category model.FactorCategory `json:"category,omitempty"`
	Page     int                  `json:"page,omitempty"`
	Limit    int                  `json:"limit,omitempty"`
}

// Store defines the persistence interface for the risk engine. Lookups for
// records that may legitimately be absent return (nil, nil); absence handling
// is the caller's concern.
type Store interface {
	// Client facts (read-only collaborators). Events after cutoff count as
	// recent; the caller derives cutoff from its own clock.
	GetClientFacts(ctx context.Context, clientID string) (*model.ClientFacts, error)
	GetActivity(ctx context.Context, clientID string, cutoff time.Time) (*model.ActivitySnapshot, error)
	GetLatestTaxValidation(ctx context.Context, clientID string) (*model.TaxValidation, error)

	// Assessments
	CreateAssessment(ctx context.Context, a *model.RiskAssessment) error
	LatestAssessment(ctx context.Context, clientID string) (*model.RiskAssessment, error)
	PreviousAssessment(ctx context.Context, clientID string, before time.Time) (*model.RiskAssessment, error)
	AssessmentHistory(ctx context.Context, clientID string, limit int) ([]model.RiskAssessment, int, error)
	FilterAssessments(ctx context.Context, filter AssessmentFilter) ([]model.RiskAssessment, int, error)

	// Per-organization configuration
	GetRiskConfig(ctx context.Context, orgID string) (*model.RiskConfig, error)
	UpsertRiskConfig(ctx context.Context, orgID string, cfg model.RiskConfig) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
