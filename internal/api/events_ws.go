/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/benchworks/magbench/internal/events"
)

// streamedEvents lists the event types forwarded to websocket clients.
var streamedEvents = []events.EventType{
	events.EventRunStarted,
	events.EventRunCompleted,
	events.EventRunFailed,
	events.EventActionExecuted,
	events.EventStageStarted,
	events.EventStageCompleted,
	events.EventEquipmentFault,
}

type wsEvent struct {
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload"`
}

// handleEventsWS streams run events to a websocket client until it
// disconnects.
func (a *API) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	ctx := r.Context()
	merged := make(chan wsEvent, 32)
	done := make(chan struct{})
	defer close(done)

	for _, eventType := range streamedEvents {
		sub := a.bus.Subscribe(eventType)
		defer a.bus.Unsubscribe(eventType, sub)
		go func(eventType events.EventType, sub events.Subscriber) {
			for payload := range sub {
				select {
				case merged <- wsEvent{Type: eventType, Payload: payload}:
				case <-done:
					return
				}
			}
		}(eventType, sub)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-merged:
			if writeErr := wsjson.Write(ctx, conn, event); writeErr != nil {
				a.logger.Debug().Err(writeErr).Msg("websocket write failed, client disconnected")
				return
			}
		}
	}
}
