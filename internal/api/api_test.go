/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/benchworks/magbench/internal/events"
	"github.com/benchworks/magbench/internal/logbuffer"
	"github.com/benchworks/magbench/internal/models"
)

func setupAPI(t *testing.T) (*API, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Run{}, &models.SampleResult{}, &models.ActionLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db, nil, events.NewBus(), logbuffer.New(100), zerolog.Nop()), db
}

func seedRun(t *testing.T, db *gorm.DB, status models.RunStatus) models.Run {
	t.Helper()
	run := models.Run{
		ID:          uuid.NewString(),
		Protocol:    "nucleomag-plasmid",
		SampleCount: 2,
		Status:      status,
		StartedAt:   time.Now().UTC(),
	}
	if err := db.Create(&run).Error; err != nil {
		t.Fatal(err)
	}
	for i := 0; i < run.SampleCount; i++ {
		sample := models.SampleResult{
			ID:       uuid.NewString(),
			RunID:    run.ID,
			SampleID: i,
			State:    models.SampleDeferredDone,
		}
		if err := db.Create(&sample).Error; err != nil {
			t.Fatal(err)
		}
		action := models.ActionLog{
			ID:           uuid.NewString(),
			RunID:        run.ID,
			SampleID:     i,
			Kind:         models.ActionLyse,
			Phase:        models.PhaseImmediate,
			ExecutedAtMS: int64(i * 1000),
			Outcome:      "ok",
		}
		if err := db.Create(&action).Error; err != nil {
			t.Fatal(err)
		}
	}
	return run
}

func serve(a *API, method, path string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	a.Routes(router)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	a, _ := setupAPI(t)
	rr := serve(a, http.MethodGet, "/health")
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestRunsListAndDetail(t *testing.T) {
	a, db := setupAPI(t)
	run := seedRun(t, db, models.RunCompleted)

	rr := serve(a, http.MethodGet, "/runs/")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rr.Code)
	}
	var runs []models.Run
	if err := json.Unmarshal(rr.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Errorf("list = %+v, want seeded run", runs)
	}

	rr = serve(a, http.MethodGet, "/runs/"+run.ID)
	if rr.Code != http.StatusOK {
		t.Fatalf("detail status = %d, want 200", rr.Code)
	}
	var detail struct {
		models.Run
		Samples []models.SampleResult `json:"samples"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.ID != run.ID {
		t.Errorf("detail id = %s, want %s", detail.ID, run.ID)
	}
	if len(detail.Samples) != 2 {
		t.Errorf("detail has %d samples, want 2", len(detail.Samples))
	}
}

func TestRunActions(t *testing.T) {
	a, db := setupAPI(t)
	run := seedRun(t, db, models.RunFailed)

	rr := serve(a, http.MethodGet, "/runs/"+run.ID+"/actions")
	if rr.Code != http.StatusOK {
		t.Fatalf("actions status = %d, want 200", rr.Code)
	}
	var actions []models.ActionLog
	if err := json.Unmarshal(rr.Body.Bytes(), &actions); err != nil {
		t.Fatal(err)
	}
	if len(actions) != 2 {
		t.Errorf("got %d actions, want 2", len(actions))
	}
}

func TestRunNotFound(t *testing.T) {
	a, _ := setupAPI(t)

	for _, path := range []string{
		"/runs/" + uuid.NewString(),
		"/runs/" + uuid.NewString() + "/actions",
	} {
		rr := serve(a, http.MethodGet, path)
		if rr.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rr.Code)
		}
	}
}
