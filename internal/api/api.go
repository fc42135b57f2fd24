/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/benchworks/magbench/internal/events"
	"github.com/benchworks/magbench/internal/logbuffer"
	"github.com/benchworks/magbench/internal/models"
	"github.com/benchworks/magbench/internal/runner"
)

// API exposes HTTP handlers for run control and inspection.
type API struct {
	db     *gorm.DB
	runs   *runner.Service
	bus    *events.Bus
	logs   *logbuffer.Buffer
	logger zerolog.Logger
}

// New creates the API router wrapper. logs may be nil, disabling /logs.
func New(db *gorm.DB, runs *runner.Service, bus *events.Bus, logs *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		db:     db,
		runs:   runs,
		bus:    bus,
		logs:   logs,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts all API routes on the router.
func (a *API) Routes(r chi.Router) {
	r.Get("/health", a.handleHealth)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", a.handleRunsList)
		r.Post("/", a.handleRunsStart)
		r.Get("/active", a.handleRunActive)
		r.Get("/{runID}", a.handleRunsGet)
		r.Get("/{runID}/actions", a.handleRunActions)
	})
	r.Get("/logs", a.handleLogs)
	r.Get("/events", a.handleEventsWS)
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logs == nil {
		writeError(w, http.StatusNotFound, "log_buffer_disabled")
		return
	}
	q := logbuffer.Query{
		Level:     r.URL.Query().Get("level"),
		Component: r.URL.Query().Get("component"),
		RunID:     r.URL.Query().Get("run_id"),
		Limit:     500,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		q.Limit = limit
	}
	writeJSON(w, http.StatusOK, a.logs.Filter(q))
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleRunsList(w http.ResponseWriter, r *http.Request) {
	var runs []models.Run
	if err := a.db.Order("created_at DESC").Limit(100).Find(&runs).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *API) handleRunsStart(w http.ResponseWriter, r *http.Request) {
	runID, err := a.runs.StartRun(nil)
	if err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "run_in_progress")
			return
		}
		a.logger.Error().Err(err).Msg("start run failed")
		writeError(w, http.StatusInternalServerError, "start_failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (a *API) handleRunActive(w http.ResponseWriter, r *http.Request) {
	runID, ok := a.runs.ActiveRunID()
	if !ok {
		writeError(w, http.StatusNotFound, "no_active_run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"run_id": runID})
}

// runDetail is a run with its per-sample outcomes attached.
type runDetail struct {
	models.Run
	Samples []models.SampleResult `json:"samples"`
}

func (a *API) handleRunsGet(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id_required")
		return
	}

	var run models.Run
	if err := a.db.First(&run, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	detail := runDetail{Run: run}
	if err := a.db.Where("run_id = ?", runID).Order("sample_id").Find(&detail.Samples).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleRunActions(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id_required")
		return
	}

	var count int64
	if err := a.db.Model(&models.Run{}).Where("id = ?", runID).Count(&count).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if count == 0 {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	var actions []models.ActionLog
	if err := a.db.Where("run_id = ?", runID).Order("executed_at_ms").Find(&actions).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
