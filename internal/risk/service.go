// Package risk assembles factor collection, weighted scoring, and persistence
// into client risk assessments.
package risk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/client-risk-service/internal/audit"
	"github.com/sells-group/client-risk-service/internal/collector"
	"github.com/sells-group/client-risk-service/internal/model"
	"github.com/sells-group/client-risk-service/internal/scoring"
	"github.com/sells-group/client-risk-service/internal/store"
)

var (
	// ErrClientNotFound is returned when the client id resolves to nothing.
	ErrClientNotFound = eris.New("client not found")
	// ErrInvalidConfig is returned when a config update fails validation.
	ErrInvalidConfig = eris.New("invalid risk config")
	// ErrBatchTooLarge is returned when a bulk request exceeds MaxBatchSize.
	ErrBatchTooLarge = eris.New("batch too large")
)

// Options tunes the service. Zero values fall back to sane defaults.
type Options struct {
	// ActivityLookback bounds the recent-events window collectors see.
	ActivityLookback time.Duration
	// DefaultOrgID is used when a caller does not scope a config operation.
	DefaultOrgID string
	// BatchConcurrency caps parallel client assessments in a bulk run.
	BatchConcurrency int
	// BulkLimiter paces bulk assessment fan-out. Nil disables pacing.
	BulkLimiter *rate.Limiter
	// Clock overrides time.Now for freshness checks. Test hook.
	Clock func() time.Time
}

// Service owns assessment computation and storage.
type Service struct {
	store store.Store
	audit audit.Recorder
	opts  Options
}

// New wires a Service. A nil recorder disables audit logging.
func New(st store.Store, rec audit.Recorder, opts Options) *Service {
	if rec == nil {
		rec = audit.Nop{}
	}
	if opts.ActivityLookback <= 0 {
		opts.ActivityLookback = 90 * 24 * time.Hour
	}
	if opts.DefaultOrgID == "" {
		opts.DefaultOrgID = "default"
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 5
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{store: st, audit: rec, opts: opts}
}

// AssessRequest controls a single-client assessment.
type AssessRequest struct {
	ClientID string
	// IncludeHistory attaches the previous score and trend to the response.
	IncludeHistory bool
	// Recalculate forces a fresh computation even when a valid cached
	// assessment exists.
	Recalculate bool
	TriggeredBy model.TriggerSource
	Actor       string
}

// Assess returns the current risk assessment for a client, reusing the latest
// stored assessment while it is still inside its validity window.
func (s *Service) Assess(ctx context.Context, req AssessRequest) (*model.AssessmentView, error) {
	facts, err := s.store.GetClientFacts(ctx, req.ClientID)
	if err != nil {
		return nil, eris.Wrap(err, "risk: load client")
	}
	if facts == nil {
		return nil, eris.Wrapf(ErrClientNotFound, "client %s", req.ClientID)
	}

	now := s.opts.Clock().UTC()

	latest, err := s.store.LatestAssessment(ctx, req.ClientID)
	if err != nil {
		return nil, eris.Wrap(err, "risk: load latest assessment")
	}
	if latest != nil && latest.Fresh(now) && !req.Recalculate {
		view := &model.AssessmentView{RiskAssessment: *latest, Cached: true}
		if req.IncludeHistory {
			if err := s.attachTrend(ctx, view); err != nil {
				return nil, err
			}
		}
		return view, nil
	}

	assessment, err := s.compute(ctx, facts, now, req.TriggeredBy, req.Actor)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateAssessment(ctx, assessment); err != nil {
		return nil, eris.Wrap(err, "risk: persist assessment")
	}

	s.audit.Record(ctx, audit.Event{
		OrgID:        facts.OrgID,
		Action:       audit.ActionAssessed,
		ResourceType: "risk_assessment",
		ResourceID:   assessment.ID,
		Actor:        req.Actor,
		Detail: map[string]any{
			"client_id":     assessment.ClientID,
			"overall_score": assessment.OverallScore,
			"risk_level":    assessment.RiskLevel,
		},
	})
	zap.S().Infow("client assessed",
		"client_id", assessment.ClientID,
		"overall_score", assessment.OverallScore,
		"risk_level", assessment.RiskLevel,
		"triggered_by", assessment.TriggeredBy)

	view := &model.AssessmentView{RiskAssessment: *assessment}
	if req.IncludeHistory {
		if err := s.attachTrend(ctx, view); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// compute runs the collectors and scoring engine for one client.
func (s *Service) compute(ctx context.Context, facts *model.ClientFacts, now time.Time, trigger model.TriggerSource, actor string) (*model.RiskAssessment, error) {
	activity, err := s.store.GetActivity(ctx, facts.ID, now.Add(-s.opts.ActivityLookback))
	if err != nil {
		return nil, eris.Wrap(err, "risk: load activity")
	}
	if activity == nil {
		activity = &model.ActivitySnapshot{}
	}
	tax, err := s.store.GetLatestTaxValidation(ctx, facts.ID)
	if err != nil {
		return nil, eris.Wrap(err, "risk: load tax validation")
	}

	cfg, err := s.Config(ctx, facts.OrgID)
	if err != nil {
		return nil, err
	}

	factors := collector.CollectAll(collector.Input{
		Facts:    *facts,
		Activity: *activity,
		Tax:      tax,
		Now:      now,
	})
	overall, factors := scoring.ComputeScore(factors, cfg.FactorWeights)
	level := scoring.Classify(overall, cfg.Thresholds)

	if trigger == "" {
		trigger = model.TriggerManual
	}
	return &model.RiskAssessment{
		ID:              uuid.NewString(),
		ClientID:        facts.ID,
		OverallScore:    overall,
		RiskLevel:       level,
		Factors:         factors,
		Summary:         scoring.Summarize(overall, level, factors),
		Recommendations: scoring.Recommend(factors, *facts),
		AssessedAt:      now,
		ValidUntil:      now.AddDate(0, 0, cfg.AutoAssessIntervalDays),
		TriggeredBy:     trigger,
		CreatedBy:       actor,
	}, nil
}

// attachTrend fills PreviousScore and ScoreTrend from the assessment that
// preceded the one in the view. Both stay unset when there is no prior.
func (s *Service) attachTrend(ctx context.Context, view *model.AssessmentView) error {
	prev, err := s.store.PreviousAssessment(ctx, view.ClientID, view.AssessedAt)
	if err != nil {
		return eris.Wrap(err, "risk: load previous assessment")
	}
	if prev == nil {
		return nil
	}
	score := prev.OverallScore
	view.PreviousScore = &score
	view.ScoreTrend = scoring.Trend(prev.OverallScore, view.OverallScore)
	return nil
}

// History returns up to limit past assessments for a client, newest first,
// along with the total number of stored assessments.
func (s *Service) History(ctx context.Context, clientID string, limit int) ([]model.RiskAssessment, int, error) {
	facts, err := s.store.GetClientFacts(ctx, clientID)
	if err != nil {
		return nil, 0, eris.Wrap(err, "risk: load client")
	}
	if facts == nil {
		return nil, 0, eris.Wrapf(ErrClientNotFound, "client %s", clientID)
	}
	history, total, err := s.store.AssessmentHistory(ctx, clientID, limit)
	if err != nil {
		return nil, 0, eris.Wrap(err, "risk: load history")
	}
	return history, total, nil
}
