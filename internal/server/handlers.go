package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/scopelabs/scopeintel/internal/db/gorm"
)

// analysisRequest is the POST /api/v1/analyses body.
type analysisRequest struct {
	System     string `json:"system"`
	PeriodDays int    `json:"period_days"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startTime).String(),
	})
}

func (s *Service) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := s.store.ListRuns(r.Context(), r.URL.Query().Get("system"), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list analyses")
		writeError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": runs})
}

func (s *Service) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid analysis id")
		return
	}

	result, err := s.store.GetRun(r.Context(), uint(id))
	if errors.Is(err, gorm.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Uint64("id", id).Msg("get analysis")
		writeError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.System == "" {
		writeError(w, http.StatusBadRequest, "system is required")
		return
	}
	if req.PeriodDays <= 0 {
		req.PeriodDays = s.periodDays
	}

	result, id, err := s.runner.Run(r.Context(), req.System, req.PeriodDays)
	if err != nil {
		s.log.Error().Err(err).Str("system", req.System).Msg("analysis run failed")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"run_id":   id,
		"metadata": result.Metadata,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
