package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/client-risk-service/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the local and
// development driver; postgres is the production one.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle for the audit recorder.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS clients (
	id                  TEXT PRIMARY KEY,
	org_id              TEXT NOT NULL,
	name                TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'active',
	email               TEXT,
	phone               TEXT,
	registration_number TEXT,
	address             TEXT,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS client_events (
	id          TEXT PRIMARY KEY,
	client_id   TEXT NOT NULL REFERENCES clients(id),
	kind        TEXT NOT NULL,
	occurred_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tax_validations (
	id         TEXT PRIMARY KEY,
	client_id  TEXT NOT NULL REFERENCES clients(id),
	status     TEXT NOT NULL,
	checked_at DATETIME
);

CREATE TABLE IF NOT EXISTS risk_assessments (
	id              TEXT PRIMARY KEY,
	client_id       TEXT NOT NULL REFERENCES clients(id),
	overall_score   REAL NOT NULL,
	risk_level      TEXT NOT NULL,
	factors         TEXT NOT NULL,
	summary         TEXT NOT NULL DEFAULT '',
	recommendations TEXT NOT NULL DEFAULT '[]',
	assessed_at     DATETIME NOT NULL,
	valid_until     DATETIME NOT NULL,
	triggered_by    TEXT NOT NULL DEFAULT 'manual',
	created_by      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS risk_config (
	org_id                    TEXT PRIMARY KEY,
	factor_weights            TEXT NOT NULL,
	threshold_low             REAL NOT NULL,
	threshold_medium          REAL NOT NULL,
	threshold_high            REAL NOT NULL,
	auto_assess_interval_days INTEGER NOT NULL,
	enable_auto_assess        INTEGER NOT NULL DEFAULT 0,
	updated_at                DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_log (
	id            TEXT PRIMARY KEY,
	org_id        TEXT NOT NULL,
	action        TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL DEFAULT '',
	actor         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'success',
	detail        TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_clients_org ON clients(org_id);
CREATE INDEX IF NOT EXISTS idx_client_events_client ON client_events(client_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_tax_validations_client ON tax_validations(client_id, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_assessments_client_time ON risk_assessments(client_id, assessed_at DESC);
CREATE INDEX IF NOT EXISTS idx_assessments_level ON risk_assessments(risk_level);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

func (s *SQLiteStore) GetClientFacts(ctx context.Context, clientID string) (*model.ClientFacts, error) {
	var c model.ClientFacts
	err := s.db.QueryRowContext(ctx,
		`SELECT id, org_id, name, status, COALESCE(email, ''), COALESCE(phone, ''),
		        COALESCE(registration_number, ''), COALESCE(address, ''), created_at
		 FROM clients WHERE id = ?`,
		clientID,
	).Scan(&c.ID, &c.OrgID, &c.Name, &c.Status, &c.Email, &c.Phone,
		&c.RegistrationNumber, &c.Address, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get client %s", clientID)
	}
	return &c, nil
}

func (s *SQLiteStore) GetActivity(ctx context.Context, clientID string, cutoff time.Time) (*model.ActivitySnapshot, error) {
	var a model.ActivitySnapshot
	err := s.db.QueryRowContext(ctx,
		`SELECT
			SUM(CASE WHEN occurred_at > ? THEN 1 ELSE 0 END),
			COUNT(*),
			SUM(CASE WHEN kind = 'document_submitted' THEN 1 ELSE 0 END),
			SUM(CASE WHEN kind = 'document_rejected' THEN 1 ELSE 0 END),
			SUM(CASE WHEN kind = 'invoice_overdue' THEN 1 ELSE 0 END),
			SUM(CASE WHEN kind = 'invoice_paid' THEN 1 ELSE 0 END),
			MAX(CASE WHEN kind = 'communication' THEN occurred_at END)
		 FROM client_events WHERE client_id = ?`,
		cutoff, clientID,
	).Scan(
		&nullableInt{&a.RecentEvents}, &a.TotalEvents,
		&nullableInt{&a.DocumentsSubmitted}, &nullableInt{&a.DocumentsRejected},
		&nullableInt{&a.OverdueInvoices}, &nullableInt{&a.PaidInvoices},
		&nullableTime{&a.LastCommunication},
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get activity for %s", clientID)
	}
	return &a, nil
}

func (s *SQLiteStore) GetLatestTaxValidation(ctx context.Context, clientID string) (*model.TaxValidation, error) {
	var tv model.TaxValidation
	var checked sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT status, checked_at FROM tax_validations
		 WHERE client_id = ?
		 ORDER BY checked_at DESC LIMIT 1`,
		clientID,
	).Scan(&tv.Status, &checked)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get tax validation for %s", clientID)
	}
	if checked.Valid {
		t := checked.Time
		tv.CheckedAt = &t
	}
	return &tv, nil
}

func (s *SQLiteStore) CreateAssessment(ctx context.Context, a *model.RiskAssessment) error {
	factorsJSON, err := json.Marshal(a.Factors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal factors")
	}
	recsJSON, err := json.Marshal(a.Recommendations)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal recommendations")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO risk_assessments
		 (id, client_id, overall_score, risk_level, factors, summary, recommendations,
		  assessed_at, valid_until, triggered_by, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ClientID, a.OverallScore, string(a.RiskLevel), string(factorsJSON), a.Summary,
		string(recsJSON), a.AssessedAt, a.ValidUntil, string(a.TriggeredBy), a.CreatedBy,
	)
	return eris.Wrapf(err, "sqlite: insert assessment for %s", a.ClientID)
}

const sqliteAssessmentColumns = `id, client_id, overall_score, risk_level, factors, summary,
		recommendations, assessed_at, valid_until, triggered_by, created_by`

func (s *SQLiteStore) LatestAssessment(ctx context.Context, clientID string) (*model.RiskAssessment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteAssessmentColumns+`
		 FROM risk_assessments WHERE client_id = ?
		 ORDER BY assessed_at DESC LIMIT 1`,
		clientID,
	)
	a, err := scanSQLiteAssessment(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: latest assessment for %s", clientID)
	}
	return a, nil
}

func (s *SQLiteStore) PreviousAssessment(ctx context.Context, clientID string, before time.Time) (*model.RiskAssessment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteAssessmentColumns+`
		 FROM risk_assessments WHERE client_id = ? AND assessed_at < ?
		 ORDER BY assessed_at DESC LIMIT 1`,
		clientID, before,
	)
	a, err := scanSQLiteAssessment(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: previous assessment for %s", clientID)
	}
	return a, nil
}

func (s *SQLiteStore) AssessmentHistory(ctx context.Context, clientID string, limit int) ([]model.RiskAssessment, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM risk_assessments WHERE client_id = ?`,
		clientID,
	).Scan(&total)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "sqlite: count history for %s", clientID)
	}

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteAssessmentColumns+`
		 FROM risk_assessments WHERE client_id = ?
		 ORDER BY assessed_at DESC LIMIT ?`,
		clientID, limit,
	)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "sqlite: history for %s", clientID)
	}
	defer rows.Close()

	var history []model.RiskAssessment
	for rows.Next() {
		a, err := scanSQLiteAssessment(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "sqlite: scan history row")
		}
		history = append(history, *a)
	}
	return history, total, eris.Wrap(rows.Err(), "sqlite: history iterate")
}

func (s *SQLiteStore) FilterAssessments(ctx context.Context, filter AssessmentFilter) ([]model.RiskAssessment, int, error) {
	if len(filter.Levels) == 0 {
		return nil, 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(filter.Levels)), ", ")
	where := `WHERE rn = 1 AND risk_level IN (` + placeholders + `)`
	var args []any
	for _, l := range filter.Levels {
		args = append(args, string(l))
	}
	if filter.Category != "" {
		where += ` AND EXISTS (SELECT 1 FROM json_each(factors) WHERE json_extract(value, '$.category') = ?)`
		args = append(args, string(filter.Category))
	}

	latestCTE := `WITH latest AS (
		SELECT ` + sqliteAssessmentColumns + `,
		       ROW_NUMBER() OVER (PARTITION BY client_id ORDER BY assessed_at DESC) AS rn
		FROM risk_assessments
	)`

	var total int
	err := s.db.QueryRowContext(ctx,
		latestCTE+` SELECT COUNT(*) FROM latest `+where,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count filtered assessments")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	query := latestCTE + ` SELECT ` + sqliteAssessmentColumns + ` FROM latest ` + where +
		` ORDER BY overall_score DESC LIMIT ? OFFSET ?`
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: filter assessments")
	}
	defer rows.Close()

	var results []model.RiskAssessment
	for rows.Next() {
		a, err := scanSQLiteAssessment(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "sqlite: scan filtered assessment")
		}
		results = append(results, *a)
	}
	return results, total, eris.Wrap(rows.Err(), "sqlite: filter iterate")
}

func (s *SQLiteStore) GetRiskConfig(ctx context.Context, orgID string) (*model.RiskConfig, error) {
	var cfg model.RiskConfig
	var weightsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT factor_weights, threshold_low, threshold_medium, threshold_high,
		        auto_assess_interval_days, enable_auto_assess
		 FROM risk_config WHERE org_id = ?`,
		orgID,
	).Scan(&weightsJSON, &cfg.Thresholds.Low, &cfg.Thresholds.Medium, &cfg.Thresholds.High,
		&cfg.AutoAssessIntervalDays, &cfg.EnableAutoAssess)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get risk config for %s", orgID)
	}
	if err := json.Unmarshal([]byte(weightsJSON), &cfg.FactorWeights); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal factor weights")
	}
	return &cfg, nil
}

func (s *SQLiteStore) UpsertRiskConfig(ctx context.Context, orgID string, cfg model.RiskConfig) error {
	weightsJSON, err := json.Marshal(cfg.FactorWeights)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal factor weights")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO risk_config
		 (org_id, factor_weights, threshold_low, threshold_medium, threshold_high,
		  auto_assess_interval_days, enable_auto_assess, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (org_id) DO UPDATE SET
		   factor_weights = excluded.factor_weights,
		   threshold_low = excluded.threshold_low,
		   threshold_medium = excluded.threshold_medium,
		   threshold_high = excluded.threshold_high,
		   auto_assess_interval_days = excluded.auto_assess_interval_days,
		   enable_auto_assess = excluded.enable_auto_assess,
		   updated_at = excluded.updated_at`,
		orgID, string(weightsJSON), cfg.Thresholds.Low, cfg.Thresholds.Medium, cfg.Thresholds.High,
		cfg.AutoAssessIntervalDays, cfg.EnableAutoAssess, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert risk config for %s", orgID)
}

// helpers

// nullableInt scans a SUM() result that is NULL when no rows match.
type nullableInt struct {
	dst *int
}

func (n *nullableInt) Scan(src any) error {
	if src == nil {
		*n.dst = 0
		return nil
	}
	switch v := src.(type) {
	case int64:
		*n.dst = int(v)
	case float64:
		*n.dst = int(v)
	default:
		return eris.Errorf("unsupported count type %T", src)
	}
	return nil
}

// sqliteTimeLayouts covers the text forms the driver hands back for datetime
// values coming out of expressions, where the column decltype is lost and
// database/sql cannot convert to time.Time itself.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// nullableTime scans a MAX()/CASE datetime expression that is NULL when no
// rows match and a bare string otherwise.
type nullableTime struct {
	dst **time.Time
}

func (n *nullableTime) Scan(src any) error {
	if src == nil {
		*n.dst = nil
		return nil
	}
	switch v := src.(type) {
	case time.Time:
		t := v
		*n.dst = &t
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	default:
		return eris.Errorf("unsupported time type %T", src)
	}
}

func (n *nullableTime) parse(s string) error {
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*n.dst = &t
			return nil
		}
	}
	return eris.Errorf("unparseable time %q", s)
}

func scanSQLiteAssessment(row scannable) (*model.RiskAssessment, error) {
	var a model.RiskAssessment
	var factorsJSON, recsJSON string

	err := row.Scan(&a.ID, &a.ClientID, &a.OverallScore, &a.RiskLevel, &factorsJSON,
		&a.Summary, &recsJSON, &a.AssessedAt, &a.ValidUntil, &a.TriggeredBy, &a.CreatedBy)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(factorsJSON), &a.Factors); err != nil {
		return nil, eris.Wrap(err, "unmarshal factors")
	}
	if recsJSON != "" {
		if err := json.Unmarshal([]byte(recsJSON), &a.Recommendations); err != nil {
			return nil, eris.Wrap(err, "unmarshal recommendations")
		}
	}
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}
	return &a, nil
}
