package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/client-risk-service/internal/db"
	"github.com/sells-group/client-risk-service/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// SQL for the hottest store operations. The same constants are used at query
// time and in the per-connection prepare hook, so the text matches and pgx
// reuses the prepared plans.
const (
	getClientSQL        = `SELECT id, org_id, name, status, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(registration_number, ''), COALESCE(address, ''), created_at FROM clients WHERE id = $1`
	latestAssessmentSQL = `SELECT id, client_id, overall_score, risk_level, factors, summary, recommendations, assessed_at, valid_until, triggered_by, created_by FROM risk_assessments WHERE client_id = $1 ORDER BY assessed_at DESC LIMIT 1`
	insertAssessmentSQL = `INSERT INTO risk_assessments (id, client_id, overall_score, risk_level, factors, summary, recommendations, assessed_at, valid_until, triggered_by, created_by) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
)

var preparedStatements = map[string]string{
	"get_client":        getClientSQL,
	"latest_assessment": latestAssessmentSQL,
	"insert_assessment": insertAssessmentSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., the audit recorder).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS clients (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	org_id              TEXT NOT NULL,
	name                TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'active',
	email               TEXT,
	phone               TEXT,
	registration_number TEXT,
	address             TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS client_events (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	client_id   TEXT NOT NULL REFERENCES clients(id),
	kind        TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tax_validations (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	client_id  TEXT NOT NULL REFERENCES clients(id),
	status     TEXT NOT NULL,
	checked_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS risk_assessments (
	id              TEXT PRIMARY KEY,
	client_id       TEXT NOT NULL REFERENCES clients(id),
	overall_score   DOUBLE PRECISION NOT NULL,
	risk_level      TEXT NOT NULL,
	factors         JSONB NOT NULL,
	summary         TEXT NOT NULL DEFAULT '',
	recommendations JSONB NOT NULL DEFAULT '[]',
	assessed_at     TIMESTAMPTZ NOT NULL,
	valid_until     TIMESTAMPTZ NOT NULL,
	triggered_by    TEXT NOT NULL DEFAULT 'manual',
	created_by      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS risk_config (
	org_id                    TEXT PRIMARY KEY,
	factor_weights            JSONB NOT NULL,
	threshold_low             DOUBLE PRECISION NOT NULL,
	threshold_medium          DOUBLE PRECISION NOT NULL,
	threshold_high            DOUBLE PRECISION NOT NULL,
	auto_assess_interval_days INTEGER NOT NULL,
	enable_auto_assess        BOOLEAN NOT NULL DEFAULT false,
	updated_at                TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_log (
	id            TEXT PRIMARY KEY,
	org_id        TEXT NOT NULL,
	action        TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL DEFAULT '',
	actor         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'success',
	detail        JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_clients_org ON clients(org_id);
CREATE INDEX IF NOT EXISTS idx_client_events_client ON client_events(client_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_tax_validations_client ON tax_validations(client_id, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_assessments_client_time ON risk_assessments(client_id, assessed_at DESC);
CREATE INDEX IF NOT EXISTS idx_assessments_level ON risk_assessments(risk_level);
CREATE INDEX IF NOT EXISTS idx_audit_log_org ON audit_log(org_id, created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetClientFacts(ctx context.Context, clientID string) (*model.ClientFacts, error) {
	var c model.ClientFacts
	err := s.pool.QueryRow(ctx, getClientSQL, clientID).
		Scan(&c.ID, &c.OrgID, &c.Name, &c.Status, &c.Email, &c.Phone,
			&c.RegistrationNumber, &c.Address, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get client %s", clientID)
	}
	return &c, nil
}

func (s *PostgresStore) GetActivity(ctx context.Context, clientID string, cutoff time.Time) (*model.ActivitySnapshot, error) {
	var a model.ActivitySnapshot
	var lastComm *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE occurred_at > $2),
			COUNT(*),
			COUNT(*) FILTER (WHERE kind = 'document_submitted'),
			COUNT(*) FILTER (WHERE kind = 'document_rejected'),
			COUNT(*) FILTER (WHERE kind = 'invoice_overdue'),
			COUNT(*) FILTER (WHERE kind = 'invoice_paid'),
			MAX(occurred_at) FILTER (WHERE kind = 'communication')
		 FROM client_events WHERE client_id = $1`,
		clientID, cutoff,
	).Scan(&a.RecentEvents, &a.TotalEvents, &a.DocumentsSubmitted, &a.DocumentsRejected,
		&a.OverdueInvoices, &a.PaidInvoices, &lastComm)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get activity for %s", clientID)
	}
	a.LastCommunication = lastComm
	return &a, nil
}

func (s *PostgresStore) GetLatestTaxValidation(ctx context.Context, clientID string) (*model.TaxValidation, error) {
	var tv model.TaxValidation
	err := s.pool.QueryRow(ctx,
		`SELECT status, checked_at FROM tax_validations
		 WHERE client_id = $1
		 ORDER BY checked_at DESC NULLS LAST LIMIT 1`,
		clientID,
	).Scan(&tv.Status, &tv.CheckedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get tax validation for %s", clientID)
	}
	return &tv, nil
}

func (s *PostgresStore) CreateAssessment(ctx context.Context, a *model.RiskAssessment) error {
	factorsJSON, err := json.Marshal(a.Factors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal factors")
	}
	recsJSON, err := json.Marshal(a.Recommendations)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal recommendations")
	}

	_, err = s.pool.Exec(ctx, insertAssessmentSQL,
		a.ID, a.ClientID, a.OverallScore, string(a.RiskLevel), factorsJSON, a.Summary,
		recsJSON, a.AssessedAt, a.ValidUntil, string(a.TriggeredBy), a.CreatedBy,
	)
	return eris.Wrapf(err, "postgres: insert assessment for %s", a.ClientID)
}

const assessmentColumns = `id, client_id, overall_score, risk_level, factors, summary,
		recommendations, assessed_at, valid_until, triggered_by, created_by`

func (s *PostgresStore) LatestAssessment(ctx context.Context, clientID string) (*model.RiskAssessment, error) {
	row := s.pool.QueryRow(ctx, latestAssessmentSQL, clientID)
	a, err := scanAssessment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: latest assessment for %s", clientID)
	}
	return a, nil
}

func (s *PostgresStore) PreviousAssessment(ctx context.Context, clientID string, before time.Time) (*model.RiskAssessment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+`
		 FROM risk_assessments WHERE client_id = $1 AND assessed_at < $2
		 ORDER BY assessed_at DESC LIMIT 1`,
		clientID, before,
	)
	a, err := scanAssessment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: previous assessment for %s", clientID)
	}
	return a, nil
}

func (s *PostgresStore) AssessmentHistory(ctx context.Context, clientID string, limit int) ([]model.RiskAssessment, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM risk_assessments WHERE client_id = $1`,
		clientID,
	).Scan(&total)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "postgres: count history for %s", clientID)
	}

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+assessmentColumns+`
		 FROM risk_assessments WHERE client_id = $1
		 ORDER BY assessed_at DESC LIMIT $2`,
		clientID, limit,
	)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "postgres: history for %s", clientID)
	}
	defer rows.Close()

	var history []model.RiskAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan history row")
		}
		history = append(history, *a)
	}
	return history, total, eris.Wrap(rows.Err(), "postgres: history iterate")
}

func (s *PostgresStore) FilterAssessments(ctx context.Context, filter AssessmentFilter) ([]model.RiskAssessment, int, error) {
	if len(filter.Levels) == 0 {
		return nil, 0, nil
	}
	levels := make([]string, len(filter.Levels))
	for i, l := range filter.Levels {
		levels[i] = string(l)
	}

	where := `WHERE risk_level = ANY($1)`
	args := []any{levels}
	if filter.Category != "" {
		catJSON, err := json.Marshal([]map[string]string{{"category": string(filter.Category)}})
		if err != nil {
			return nil, 0, eris.Wrap(err, "postgres: marshal category filter")
		}
		where += ` AND factors @> $2`
		args = append(args, catJSON)
	}

	latestCTE := `WITH latest AS (
		SELECT DISTINCT ON (client_id) ` + assessmentColumns + `
		FROM risk_assessments
		ORDER BY client_id, assessed_at DESC
	)`

	var total int
	err := s.pool.QueryRow(ctx,
		latestCTE+` SELECT COUNT(*) FROM latest `+where,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count filtered assessments")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query := latestCTE + ` SELECT ` + assessmentColumns + ` FROM latest ` + where +
		` ORDER BY overall_score DESC` +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: filter assessments")
	}
	defer rows.Close()

	var results []model.RiskAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan filtered assessment")
		}
		results = append(results, *a)
	}
	return results, total, eris.Wrap(rows.Err(), "postgres: filter iterate")
}

func (s *PostgresStore) GetRiskConfig(ctx context.Context, orgID string) (*model.RiskConfig, error) {
	var cfg model.RiskConfig
	var weightsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT factor_weights, threshold_low, threshold_medium, threshold_high,
		        auto_assess_interval_days, enable_auto_assess
		 FROM risk_config WHERE org_id = $1`,
		orgID,
	).Scan(&weightsJSON, &cfg.Thresholds.Low, &cfg.Thresholds.Medium, &cfg.Thresholds.High,
		&cfg.AutoAssessIntervalDays, &cfg.EnableAutoAssess)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get risk config for %s", orgID)
	}
	if err := json.Unmarshal(weightsJSON, &cfg.FactorWeights); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal factor weights")
	}
	return &cfg, nil
}

func (s *PostgresStore) UpsertRiskConfig(ctx context.Context, orgID string, cfg model.RiskConfig) error {
	weightsJSON, err := json.Marshal(cfg.FactorWeights)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal factor weights")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO risk_config
		 (org_id, factor_weights, threshold_low, threshold_medium, threshold_high,
		  auto_assess_interval_days, enable_auto_assess, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (org_id) DO UPDATE SET
		   factor_weights = $2, threshold_low = $3, threshold_medium = $4,
		   threshold_high = $5, auto_assess_interval_days = $6,
		   enable_auto_assess = $7, updated_at = $8`,
		orgID, weightsJSON, cfg.Thresholds.Low, cfg.Thresholds.Medium, cfg.Thresholds.High,
		cfg.AutoAssessIntervalDays, cfg.EnableAutoAssess, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert risk config for %s", orgID)
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanAssessment(row scannable) (*model.RiskAssessment, error) {
	var a model.RiskAssessment
	var factorsJSON, recsJSON []byte

	err := row.Scan(&a.ID, &a.ClientID, &a.OverallScore, &a.RiskLevel, &factorsJSON,
		&a.Summary, &recsJSON, &a.AssessedAt, &a.ValidUntil, &a.TriggeredBy, &a.CreatedBy)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(factorsJSON, &a.Factors); err != nil {
		return nil, eris.Wrap(err, "unmarshal factors")
	}
	if len(recsJSON) > 0 {
		if err := json.Unmarshal(recsJSON, &a.Recommendations); err != nil {
			return nil, eris.Wrap(err, "unmarshal recommendations")
		}
	}
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}
	return &a, nil
}
