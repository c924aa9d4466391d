// Package audit records who changed what. Entries land in the audit_log
// table; recording failures are logged and never propagated to callers.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/client-risk-service/internal/db"
)

// Actions recorded by the risk service.
const (
	ActionAssessed      = "risk.assessed"
	ActionBulkAssessed  = "risk.bulk_assessed"
	ActionConfigUpdated = "risk.config_updated"
)

// Outcome of the audited action.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Event is one audit record.
type Event struct {
	OrgID        string
	Action       string
	ResourceType string
	ResourceID   string
	Actor        string
	Status       string
	Detail       map[string]any
}

// Recorder persists audit events. Implementations must not fail the calling
// operation: a lost audit row is logged, not returned.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// PostgresRecorder writes audit events through the shared pgx pool.
type PostgresRecorder struct {
	pool db.Pool
}

func NewPostgresRecorder(pool db.Pool) *PostgresRecorder {
	return &PostgresRecorder{pool: pool}
}

func (r *PostgresRecorder) Record(ctx context.Context, e Event) {
	detailJSON := marshalDetail(e)
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_log (id, org_id, action, resource_type, resource_id, actor, status, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.NewString(), e.OrgID, e.Action, e.ResourceType, e.ResourceID,
		e.Actor, status(e), detailJSON, time.Now().UTC(),
	)
	if err != nil {
		zap.S().Warnw("audit record failed", "action", e.Action, "resource_id", e.ResourceID, "error", err)
	}
}

// SQLiteRecorder writes audit events through the shared sqlite handle.
type SQLiteRecorder struct {
	db *sql.DB
}

func NewSQLiteRecorder(database *sql.DB) *SQLiteRecorder {
	return &SQLiteRecorder{db: database}
}

func (r *SQLiteRecorder) Record(ctx context.Context, e Event) {
	detailJSON := marshalDetail(e)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, org_id, action, resource_type, resource_id, actor, status, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), e.OrgID, e.Action, e.ResourceType, e.ResourceID,
		e.Actor, status(e), string(detailJSON), time.Now().UTC(),
	)
	if err != nil {
		zap.S().Warnw("audit record failed", "action", e.Action, "resource_id", e.ResourceID, "error", err)
	}
}

// Nop discards all events. Used by commands that run without a store.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

func status(e Event) string {
	if e.Status == "" {
		return StatusSuccess
	}
	return e.Status
}

func marshalDetail(e Event) []byte {
	if len(e.Detail) == 0 {
		return []byte("{}")
	}
	b, err := json.Marshal(e.Detail)
	if err != nil {
		zap.S().Warnw("audit detail marshal failed", "action", e.Action, "error", err)
		return []byte("{}")
	}
	return b
}
