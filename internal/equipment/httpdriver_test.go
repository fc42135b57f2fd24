/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package equipment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestDriver(t *testing.T, handler http.HandlerFunc) *HTTPDriver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPDriver(srv.URL, 5*time.Second, zerolog.Nop())
}

func TestTransferPostsCommand(t *testing.T) {
	var got commandRequest
	driver := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/commands" {
			t.Errorf("path = %s, want /v1/commands", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		_ = json.NewEncoder(w).Encode(commandResponse{Status: "succeeded"})
	})

	err := driver.Transfer(context.Background(), Transfer{
		VolumeUL: 120,
		From:     "A2",
		To:       "B1",
		MixAfter: Mix{Repetitions: 5, VolumeUL: 100},
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got.Command != "transfer" {
		t.Errorf("command = %q, want transfer", got.Command)
	}
	if got.Params["volume_ul"] != float64(120) {
		t.Errorf("volume_ul = %v, want 120", got.Params["volume_ul"])
	}
	if got.Params["from"] != "A2" || got.Params["to"] != "B1" {
		t.Errorf("wells = %v -> %v", got.Params["from"], got.Params["to"])
	}
	if _, ok := got.Params["mix_after"]; !ok {
		t.Error("mix_after missing from params")
	}
	if _, ok := got.Params["mix_before"]; ok {
		t.Error("mix_before present without repetitions")
	}
}

func TestCommandFailureStatuses(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "offline", http.StatusServiceUnavailable)
		}},
		{"failed status", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(commandResponse{Status: "failed", Detail: "tip crash"})
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := newTestDriver(t, tt.handler)
			err := driver.Engage(context.Background(), 3)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, ErrCommandFailed) {
				t.Errorf("error %v is not an ErrCommandFailed", err)
			}
			var cmdErr *CommandError
			if !errors.As(err, &cmdErr) {
				t.Fatalf("error %T is not a CommandError", err)
			}
			if cmdErr.Command != "magnet_engage" {
				t.Errorf("failed command = %q, want magnet_engage", cmdErr.Command)
			}
		})
	}
}

func TestUnreachableRobot(t *testing.T) {
	driver := NewHTTPDriver("http://127.0.0.1:1", time.Second, zerolog.Nop())
	if err := driver.Disengage(context.Background()); !errors.Is(err, ErrCommandFailed) {
		t.Errorf("error %v is not an ErrCommandFailed", err)
	}
}

func TestHealth(t *testing.T) {
	driver := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Errorf("path = %s, want /v1/health", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})
	if err := driver.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}

	down := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	if err := down.Health(context.Background()); err == nil {
		t.Error("Health against a failing robot should error")
	}
}
