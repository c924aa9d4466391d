package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/client-risk-service/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedClient(t *testing.T, st *SQLiteStore, id, orgID string) {
	t.Helper()
	_, err := st.DB().Exec(
		`INSERT INTO clients (id, org_id, name, status, email, phone, registration_number, address, created_at)
		 VALUES (?, ?, ?, 'active', 'ops@test.local', '', 'REG-1', '', ?)`,
		id, orgID, "Client "+id, time.Now().UTC(),
	)
	require.NoError(t, err)
}

func seedEvent(t *testing.T, st *SQLiteStore, clientID string, kind model.EventKind, at time.Time) {
	t.Helper()
	_, err := st.DB().Exec(
		`INSERT INTO client_events (id, client_id, kind, occurred_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), clientID, string(kind), at,
	)
	require.NoError(t, err)
}

func sampleAssessment(clientID string, score float64, level model.RiskLevel, assessedAt time.Time) *model.RiskAssessment {
	return &model.RiskAssessment{
		ID:           uuid.NewString(),
		ClientID:     clientID,
		OverallScore: score,
		RiskLevel:    level,
		Factors: []model.RiskFactor{
			{Type: model.FactorTaxStatus, Name: "Tax Status", Score: score, Weight: 25, Category: model.CategoryCompliance},
		},
		Summary:         "test summary",
		Recommendations: []string{},
		AssessedAt:      assessedAt,
		ValidUntil:      assessedAt.Add(30 * 24 * time.Hour),
		TriggeredBy:     model.TriggerManual,
		CreatedBy:       "test",
	}
}

func TestSQLite_GetClientFacts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedClient(t, st, "client-1", "org-1")

	facts, err := st.GetClientFacts(ctx, "client-1")
	require.NoError(t, err)
	require.NotNil(t, facts)
	assert.Equal(t, "org-1", facts.OrgID)
	assert.Equal(t, model.ClientActive, facts.Status)
	assert.Equal(t, []string{"phone", "address"}, facts.MissingFields())
}

func TestSQLite_GetClientFacts_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	facts, err := st.GetClientFacts(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, facts)
}

func TestSQLite_GetActivity(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedClient(t, st, "client-1", "org-1")

	// Cutoff is supplied by the caller, so a fixed reference time keeps the
	// recent/total split deterministic.
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	lastComm := now.Add(-72 * time.Hour)
	seedEvent(t, st, "client-1", model.EventDocumentSubmitted, now.Add(-24*time.Hour))
	seedEvent(t, st, "client-1", model.EventDocumentRejected, now.Add(-48*time.Hour))
	seedEvent(t, st, "client-1", model.EventCommunication, lastComm)
	seedEvent(t, st, "client-1", model.EventInvoiceOverdue, now.Add(-200*24*time.Hour))

	a, err := st.GetActivity(ctx, "client-1", now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 3, a.RecentEvents)
	assert.Equal(t, 4, a.TotalEvents)
	assert.Equal(t, 1, a.DocumentsSubmitted)
	assert.Equal(t, 1, a.DocumentsRejected)
	assert.Equal(t, 1, a.OverdueInvoices)
	assert.Equal(t, 0, a.PaidInvoices)
	require.NotNil(t, a.LastCommunication)
	assert.WithinDuration(t, lastComm, *a.LastCommunication, time.Second)
}

func TestSQLite_GetActivity_NoEvents(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedClient(t, st, "client-1", "org-1")

	a, err := st.GetActivity(context.Background(), "client-1", time.Now().UTC().Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Zero(t, a.TotalEvents)
	assert.Nil(t, a.LastCommunication)
}

func TestSQLite_TaxValidation_LatestWins(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedClient(t, st, "client-1", "org-1")

	old := time.Now().UTC().Add(-200 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-10 * 24 * time.Hour)
	for _, row := range []struct {
		status string
		at     time.Time
	}{
		{"invalid", old},
		{"valid", recent},
	} {
		_, err := st.DB().Exec(
			`INSERT INTO tax_validations (id, client_id, status, checked_at) VALUES (?, ?, ?, ?)`,
			uuid.NewString(), "client-1", row.status, row.at,
		)
		require.NoError(t, err)
	}

	tv, err := st.GetLatestTaxValidation(ctx, "client-1")
	require.NoError(t, err)
	require.NotNil(t, tv)
	assert.Equal(t, model.TaxValid, tv.Status)
	require.NotNil(t, tv.CheckedAt)
}

func TestSQLite_TaxValidation_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedClient(t, st, "client-1", "org-1")

	tv, err := st.GetLatestTaxValidation(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Nil(t, tv)
}

func TestSQLite_Assessment_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedClient(t, st, "client-1", "org-1")

	now := time.Now().UTC().Truncate(time.Second)
	a := sampleAssessment("client-1", 67, model.RiskHigh, now)
	a.Recommendations = []string{"Follow up on overdue invoices"}
	require.NoError(t, st.CreateAssessment(ctx, a))

	got, err := st.LatestAssessment(ctx, "client-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, 67.0, got.OverallScore)
	assert.Equal(t, model.RiskHigh, got.RiskLevel)
	require.Len(t, got.Factors, 1)
	assert.Equal(t, model.FactorTaxStatus, got.Factors[0].Type)
	assert.Equal(t, a.Recommendations, got.Recommendations)
}

func TestSQLite_LatestAssessment_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedClient(t, st, "client-1", "org-1")

	got, err := st.LatestAssessment(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_PreviousAssessment(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedClient(t, st, "client-1", "org-1")

	base := time.Now().UTC().Truncate(time.Second)
	first := sampleAssessment("client-1", 30, model.RiskMedium, base.Add(-48*time.Hour))
	second := sampleAssessment("client-1", 70, model.RiskHigh, base)
	require.NoError(t, st.CreateAssessment(ctx, first))
	require.NoError(t, st.CreateAssessment(ctx, second))

	prev, err := st.PreviousAssessment(ctx, "client-1", second.AssessedAt)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, first.ID, prev.ID)

	none, err := st.PreviousAssessment(ctx, "client-1", first.AssessedAt)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLite_AssessmentHistory(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedClient(t, st, "client-1", "org-1")

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		a := sampleAssessment("client-1", float64(10*i), model.RiskLow, base.Add(-time.Duration(i)*24*time.Hour))
		require.NoError(t, st.CreateAssessment(ctx, a))
	}

	history, total, err := st.AssessmentHistory(ctx, "client-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, history, 3)
	// Newest first.
	assert.True(t, history[0].AssessedAt.After(history[1].AssessedAt))
	assert.True(t, history[1].AssessedAt.After(history[2].AssessedAt))
}

func TestSQLite_FilterAssessments_LatestPerClient(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)

	// client-a was critical but its latest assessment is low; it must not match.
	seedClient(t, st, "client-a", "org-1")
	require.NoError(t, st.CreateAssessment(ctx, sampleAssessment("client-a", 90, model.RiskCritical, base.Add(-48*time.Hour))))
	require.NoError(t, st.CreateAssessment(ctx, sampleAssessment("client-a", 10, model.RiskLow, base)))

	seedClient(t, st, "client-b", "org-1")
	require.NoError(t, st.CreateAssessment(ctx, sampleAssessment("client-b", 80, model.RiskCritical, base)))

	seedClient(t, st, "client-c", "org-1")
	require.NoError(t, st.CreateAssessment(ctx, sampleAssessment("client-c", 65, model.RiskHigh, base)))

	results, total, err := st.FilterAssessments(ctx, AssessmentFilter{
		Levels: model.LevelsAtOrAbove(model.RiskHigh),
		Page:   1,
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, results, 2)
	// Highest score first.
	assert.Equal(t, "client-b", results[0].ClientID)
	assert.Equal(t, "client-c", results[1].ClientID)
}

func TestSQLite_FilterAssessments_CategoryAndPaging(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"client-a", "client-b", "client-c"} {
		seedClient(t, st, id, "org-1")
		a := sampleAssessment(id, float64(60+10*i), model.RiskHigh, base)
		require.NoError(t, st.CreateAssessment(ctx, a))
	}

	// Financial category never appears in the seeded factor set.
	results, total, err := st.FilterAssessments(ctx, AssessmentFilter{
		Levels:   model.LevelsAtOrAbove(model.RiskHigh),
		Category: model.CategoryFinancial,
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, results)

	// Compliance matches everything; page 2 of size 2 holds the last result.
	results, total, err = st.FilterAssessments(ctx, AssessmentFilter{
		Levels:   model.LevelsAtOrAbove(model.RiskHigh),
		Category: model.CategoryCompliance,
		Page:     2,
		Limit:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, results, 1)
	assert.Equal(t, "client-a", results[0].ClientID)
}

func TestSQLite_RiskConfig_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	missing, err := st.GetRiskConfig(ctx, "org-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	cfg := model.DefaultRiskConfig()
	cfg.Thresholds.High = 80
	cfg.FactorWeights[model.FactorTaxStatus] = 40
	require.NoError(t, st.UpsertRiskConfig(ctx, "org-1", cfg))

	got, err := st.GetRiskConfig(ctx, "org-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 80.0, got.Thresholds.High)
	assert.Equal(t, 40.0, got.FactorWeights[model.FactorTaxStatus])

	// Upsert overwrites.
	cfg.Thresholds.High = 85
	require.NoError(t, st.UpsertRiskConfig(ctx, "org-1", cfg))
	got, err = st.GetRiskConfig(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 85.0, got.Thresholds.High)
}
