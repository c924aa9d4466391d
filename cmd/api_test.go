package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/client-risk-service/internal/audit"
	"github.com/sells-group/client-risk-service/internal/risk"
	"github.com/sells-group/client-risk-service/internal/store"
)

// newTestRouter builds the API against a throwaway sqlite store.
func newTestRouter(t *testing.T) (http.Handler, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	svc := risk.New(st, audit.NewSQLiteRecorder(st.DB()), risk.Options{})
	return newRouter(svc, []string{"*"}), st
}

func seedAPIClient(t *testing.T, st *store.SQLiteStore, id string) {
	t.Helper()
	_, err := st.DB().Exec(
		`INSERT INTO clients (id, org_id, name, status, email, phone, registration_number, address, created_at)
		 VALUES (?, 'org-1', 'Test Client', 'active', 'ops@test.local', '+49 30 1', 'HRB 9', 'Berlin', ?)`,
		id, time.Now().UTC(),
	)
	require.NoError(t, err)
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestAPI_Health(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doRequest(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAPI_Assess(t *testing.T) {
	router, st := newTestRouter(t)
	seedAPIClient(t, st, "client-1")

	rr := doRequest(t, router, http.MethodPost, "/clients/client-1/risk/assess", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var view struct {
		ClientID     string  `json:"client_id"`
		OverallScore float64 `json:"overall_score"`
		RiskLevel    string  `json:"risk_level"`
		Cached       bool    `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, "client-1", view.ClientID)
	assert.NotEmpty(t, view.RiskLevel)
	assert.False(t, view.Cached)

	// Second call inside the validity window returns the cached assessment.
	rr = doRequest(t, router, http.MethodPost, "/clients/client-1/risk/assess", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.True(t, view.Cached)
}

func TestAPI_Assess_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doRequest(t, router, http.MethodPost, "/clients/ghost/risk/assess", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_History(t *testing.T) {
	router, st := newTestRouter(t)
	seedAPIClient(t, st, "client-1")

	rr := doRequest(t, router, http.MethodPost, "/clients/client-1/risk/assess", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/clients/client-1/risk/history?limit=5", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Assessments []json.RawMessage `json:"assessments"`
		Total       int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	assert.Len(t, body.Assessments, 1)
}

func TestAPI_ConfigRoundTrip(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doRequest(t, router, http.MethodGet, "/risk/config?org=org-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var cfg struct {
		Thresholds struct {
			High float64 `json:"high"`
		} `json:"thresholds"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cfg))
	assert.Equal(t, 75.0, cfg.Thresholds.High)

	rr = doRequest(t, router, http.MethodPut, "/risk/config?org=org-1", map[string]any{
		"thresholds": map[string]float64{"low": 20, "medium": 45, "high": 70},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doRequest(t, router, http.MethodGet, "/risk/config?org=org-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cfg))
	assert.Equal(t, 70.0, cfg.Thresholds.High)
}

func TestAPI_Config_RejectsInvalid(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doRequest(t, router, http.MethodPut, "/risk/config", map[string]any{
		"thresholds": map[string]float64{"low": 60, "medium": 50, "high": 75},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_Bulk(t *testing.T) {
	router, st := newTestRouter(t)
	seedAPIClient(t, st, "client-1")

	rr := doRequest(t, router, http.MethodPost, "/risk/bulk", map[string]any{
		"client_ids": []string{"client-1", "client-missing"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result struct {
		Assessed int `json:"assessed"`
		Failed   int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Assessed)
	assert.Equal(t, 1, result.Failed)
}

func TestAPI_Bulk_RecalculateForcesRecompute(t *testing.T) {
	router, st := newTestRouter(t)
	seedAPIClient(t, st, "client-1")

	first := doRequest(t, router, http.MethodPost, "/risk/bulk", map[string]any{
		"client_ids": []string{"client-1"},
	})
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	rr := doRequest(t, router, http.MethodPost, "/risk/bulk", map[string]any{
		"client_ids":  []string{"client-1"},
		"recalculate": true,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result struct {
		Assessments []struct {
			Cached bool `json:"cached"`
		} `json:"assessments"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Len(t, result.Assessments, 1)
	assert.False(t, result.Assessments[0].Cached)
}

func TestAPI_Bulk_RequiresIDs(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doRequest(t, router, http.MethodPost, "/risk/bulk", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_Bulk_TooLarge(t *testing.T) {
	router, _ := newTestRouter(t)

	ids := make([]string, risk.MaxBatchSize+1)
	for i := range ids {
		ids[i] = "client"
	}
	rr := doRequest(t, router, http.MethodPost, "/risk/bulk", map[string]any{"client_ids": ids})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_HighRisk_Empty(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doRequest(t, router, http.MethodGet, "/risk/high?min_level=high", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var page struct {
		Results []json.RawMessage `json:"results"`
		Total   int               `json:"total"`
		HasMore bool              `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Zero(t, page.Total)
	assert.False(t, page.HasMore)
}
