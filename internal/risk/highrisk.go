package risk

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/client-risk-service/internal/model"
	"github.com/sells-group/client-risk-service/internal/store"
)

// topFactorCount is how many leading factors a high-risk entry carries.
const topFactorCount = 3

// HighRiskQuery selects clients whose latest assessment meets a minimum level.
type HighRiskQuery struct {
	MinLevel model.RiskLevel
	// Category restricts results to assessments containing at least one
	// factor of this category. Empty matches all.
	Category model.FactorCategory
	Page     int
	Limit    int
}

// HighRiskEntry is one client in a high-risk listing.
type HighRiskEntry struct {
	ClientID     string             `json:"client_id"`
	OverallScore float64            `json:"overall_score"`
	RiskLevel    model.RiskLevel    `json:"risk_level"`
	AssessedAt   string             `json:"assessed_at"`
	TopFactors   []model.RiskFactor `json:"top_factors"`
}

// HighRiskPage is a paginated high-risk listing.
type HighRiskPage struct {
	Results    []HighRiskEntry `json:"results"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"total_pages"`
	HasMore    bool            `json:"has_more"`
}

// HighRisk lists clients whose most recent assessment is at or above the
// requested level, highest score first.
func (s *Service) HighRisk(ctx context.Context, q HighRiskQuery) (*HighRiskPage, error) {
	minLevel := q.MinLevel
	if minLevel == "" {
		minLevel = model.RiskHigh
	}
	if minLevel.Rank() < 0 {
		return nil, eris.Errorf("risk: unknown risk level %q", string(q.MinLevel))
	}

	page := q.Page
	if page <= 0 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	assessments, total, err := s.store.FilterAssessments(ctx, store.AssessmentFilter{
		Levels:   model.LevelsAtOrAbove(minLevel),
		Category: q.Category,
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "risk: query high-risk clients")
	}

	results := make([]HighRiskEntry, 0, len(assessments))
	for i := range assessments {
		a := &assessments[i]
		results = append(results, HighRiskEntry{
			ClientID:     a.ClientID,
			OverallScore: a.OverallScore,
			RiskLevel:    a.RiskLevel,
			AssessedAt:   a.AssessedAt.UTC().Format(time.RFC3339),
			TopFactors:   a.TopFactors(topFactorCount),
		})
	}

	totalPages := (total + limit - 1) / limit
	return &HighRiskPage{
		Results:    results,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	}, nil
}
