package risk

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/client-risk-service/internal/audit"
	"github.com/sells-group/client-risk-service/internal/model"
)

// MaxBatchSize caps how many clients one bulk request may name.
const MaxBatchSize = 50

// BatchError pairs a failed client id with its error message.
type BatchError struct {
	ClientID string `json:"client_id"`
	Error    string `json:"error"`
}

// BatchResult aggregates a bulk assessment run. Successful assessments keep
// the order of the input ids; failures never abort the rest of the batch.
type BatchResult struct {
	Assessed    int                    `json:"assessed"`
	Failed      int                    `json:"failed"`
	Assessments []model.AssessmentView `json:"assessments"`
	Errors      []BatchError           `json:"errors"`
}

// BulkAssess assesses up to MaxBatchSize clients concurrently. Per-client
// cache semantics match Assess: a still-valid stored assessment is reused
// unless recalculate forces a fresh computation for every member.
func (s *Service) BulkAssess(ctx context.Context, clientIDs []string, recalculate bool, actor string) (*BatchResult, error) {
	if len(clientIDs) > MaxBatchSize {
		return nil, eris.Wrapf(ErrBatchTooLarge, "%d clients exceeds limit of %d", len(clientIDs), MaxBatchSize)
	}

	views := make([]*model.AssessmentView, len(clientIDs))
	failures := make([]*BatchError, len(clientIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.BatchConcurrency)
	for i, id := range clientIDs {
		g.Go(func() error {
			if s.opts.BulkLimiter != nil {
				if err := s.opts.BulkLimiter.Wait(gctx); err != nil {
					return err
				}
			}
			view, err := s.Assess(gctx, AssessRequest{
				ClientID:    id,
				Recalculate: recalculate,
				TriggeredBy: model.TriggerManual,
				Actor:       actor,
			})
			if err != nil {
				failures[i] = &BatchError{ClientID: id, Error: eris.Cause(err).Error()}
				return nil
			}
			views[i] = view
			return nil
		})
	}
	// Group errors only arise from context cancellation; per-client failures
	// are captured in place.
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "risk: bulk assess")
	}

	result := &BatchResult{
		Assessments: []model.AssessmentView{},
		Errors:      []BatchError{},
	}
	for i := range clientIDs {
		if views[i] != nil {
			result.Assessments = append(result.Assessments, *views[i])
			result.Assessed++
		}
		if failures[i] != nil {
			result.Errors = append(result.Errors, *failures[i])
			result.Failed++
		}
	}

	s.audit.Record(ctx, audit.Event{
		OrgID:        s.opts.DefaultOrgID,
		Action:       audit.ActionBulkAssessed,
		ResourceType: "risk_assessment",
		Actor:        actor,
		Detail: map[string]any{
			"requested": len(clientIDs),
			"assessed":  result.Assessed,
			"failed":    result.Failed,
		},
	})
	zap.S().Infow("bulk assessment finished",
		"requested", len(clientIDs), "assessed", result.Assessed, "failed", result.Failed)
	return result, nil
}
