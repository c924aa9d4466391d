package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/client-risk-service/internal/model"
	"github.com/sells-group/client-risk-service/internal/risk"
)

type apiHandler struct {
	svc *risk.Service
}

func (h *apiHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *apiHandler) assess(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")

	// Body is optional; an empty POST assesses with defaults.
	var body struct {
		IncludeHistory bool   `json:"include_history"`
		Recalculate    bool   `json:"recalculate"`
		Actor          string `json:"actor"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	view, err := h.svc.Assess(r.Context(), risk.AssessRequest{
		ClientID:       clientID,
		IncludeHistory: body.IncludeHistory,
		Recalculate:    body.Recalculate,
		TriggeredBy:    model.TriggerManual,
		Actor:          body.Actor,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *apiHandler) history(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	limit := queryInt(r, "limit", 10)

	history, total, err := h.svc.History(r.Context(), clientID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if history == nil {
		history = []model.RiskAssessment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assessments": history,
		"total":       total,
	})
}

func (h *apiHandler) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Config(r.Context(), r.URL.Query().Get("org"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *apiHandler) putConfig(w http.ResponseWriter, r *http.Request) {
	var body struct {
		risk.ConfigPatch
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := h.svc.UpdateConfig(r.Context(), r.URL.Query().Get("org"), body.ConfigPatch, body.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *apiHandler) bulkAssess(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientIDs   []string `json:"client_ids"`
		Recalculate bool     `json:"recalculate"`
		Actor       string   `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.ClientIDs) == 0 {
		writeError(w, http.StatusBadRequest, "client_ids is required")
		return
	}

	result, err := h.svc.BulkAssess(r.Context(), body.ClientIDs, body.Recalculate, body.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *apiHandler) highRisk(w http.ResponseWriter, r *http.Request) {
	q := risk.HighRiskQuery{
		MinLevel: model.RiskLevel(r.URL.Query().Get("min_level")),
		Category: model.FactorCategory(r.URL.Query().Get("category")),
		Page:     queryInt(r, "page", 1),
		Limit:    queryInt(r, "limit", 20),
	}

	page, err := h.svc.HighRisk(r.Context(), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnw("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service sentinels to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, risk.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "client not found")
	case eris.Is(err, risk.ErrInvalidConfig), eris.Is(err, risk.ErrBatchTooLarge):
		writeError(w, http.StatusBadRequest, eris.Cause(err).Error())
	default:
		zap.S().Errorw("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
