/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/grimnir_voice/internal/events"
	"github.com/friendsincode/grimnir_voice/internal/telemetry"
)

const eventPingInterval = 15 * time.Second

type streamedEvent struct {
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload"`
}

// handleEvents streams bus events over a websocket. ?types=a,b narrows the
// stream; unknown names are ignored and an empty list means every type.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	eventTypes := events.ParseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = events.AllEventTypes()
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	// The client never sends data frames; CloseRead handles its close frame
	// and cancels ctx when the peer goes away.
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))

	merged := make(chan streamedEvent, 32)
	var wg sync.WaitGroup
	subscribers := make([]events.Subscriber, len(eventTypes))
	for i, eventType := range eventTypes {
		sub := a.bus.Subscribe(eventType)
		subscribers[i] = sub
		wg.Add(1)
		go func(eventType events.EventType, sub events.Subscriber) {
			defer wg.Done()
			for payload := range sub {
				select {
				case merged <- streamedEvent{Type: eventType, Payload: payload}:
				case <-ctx.Done():
					return
				}
			}
		}(eventType, sub)
	}
	defer func() {
		cancel()
		for i, eventType := range eventTypes {
			a.bus.Unsubscribe(eventType, subscribers[i])
		}
		wg.Wait()
	}()

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case ev := <-merged:
			if err := a.writeEvent(ctx, conn, ev); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, ev streamedEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, ws.MessageText, data)
}
