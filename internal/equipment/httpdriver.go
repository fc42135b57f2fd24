/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package equipment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPDriver speaks the liquid handler's REST command API. Commands are posted
// one at a time and the call blocks until the robot reports the motion
// finished, which preserves the single-arm serialization guarantee.
type HTTPDriver struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPDriver creates a driver for the robot at baseURL.
func NewHTTPDriver(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPDriver {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPDriver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "equipment_http").Logger(),
	}
}

type commandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

type commandResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (d *HTTPDriver) post(ctx context.Context, command string, params map[string]any) error {
	body, err := json.Marshal(commandRequest{Command: command, Params: params})
	if err != nil {
		return &CommandError{Command: command, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/commands", bytes.NewReader(body))
	if err != nil {
		return &CommandError{Command: command, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error().Err(err).Str("command", command).Msg("robot unreachable")
		return &CommandError{Command: command, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return &CommandError{Command: command, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.logger.Error().Int("status", resp.StatusCode).Str("command", command).Msg("robot rejected command")
		return &CommandError{Command: command, Err: fmt.Errorf("robot returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}

	var cr commandResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return &CommandError{Command: command, Err: fmt.Errorf("decode response: %w", err)}
	}
	if cr.Status != "succeeded" {
		return &CommandError{Command: command, Err: fmt.Errorf("command %s: %s", cr.Status, cr.Detail)}
	}

	d.logger.Debug().Str("command", command).Msg("command completed")
	return nil
}

func (d *HTTPDriver) Transfer(ctx context.Context, t Transfer) error {
	params := map[string]any{
		"volume_ul": t.VolumeUL,
		"from":      t.From,
		"to":        t.To,
	}
	if t.MixBefore.Repetitions > 0 {
		params["mix_before"] = map[string]any{"repetitions": t.MixBefore.Repetitions, "volume_ul": t.MixBefore.VolumeUL}
	}
	if t.MixAfter.Repetitions > 0 {
		params["mix_after"] = map[string]any{"repetitions": t.MixAfter.Repetitions, "volume_ul": t.MixAfter.VolumeUL}
	}
	return d.post(ctx, "transfer", params)
}

func (d *HTTPDriver) RemoveToWaste(ctx context.Context, volumeUL float64, from string) error {
	return d.post(ctx, "remove_to_waste", map[string]any{"volume_ul": volumeUL, "from": from})
}

func (d *HTTPDriver) Engage(ctx context.Context, heightMM float64) error {
	return d.post(ctx, "magnet_engage", map[string]any{"height_mm": heightMM})
}

func (d *HTTPDriver) Disengage(ctx context.Context) error {
	return d.post(ctx, "magnet_disengage", nil)
}

// Health probes the robot's health endpoint.
func (d *HTTPDriver) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("robot health returned %d", resp.StatusCode)
	}
	return nil
}
