/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/powerdown/internal/telemetry"
)

// StreamFrame is one message on the status stream.
type StreamFrame struct {
	Type   string         `json:"type"` // "status" or a lifecycle event type
	Status StatusResponse `json:"status"`
	Event  map[string]any `json:"event,omitempty"`
}

// handleStream pushes the schedule status over a WebSocket: once on connect,
// on every lifecycle event and once per poll interval.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	// Accept refuses cross-origin handshakes.
	conn, err := ws.Accept(w, r, nil)
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.StreamClients.Inc()
	defer telemetry.StreamClients.Dec()

	sub := a.bus.SubscribeAll()
	defer a.bus.UnsubscribeAll(sub)

	// The client only listens; CloseRead handles control frames and cancels
	// ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	a.logger.Debug().Str("remote", r.RemoteAddr).Msg("status stream connected")

	if err := a.sendFrame(ctx, conn, StreamFrame{Type: "status"}); err != nil {
		a.logger.Debug().Err(err).Msg("send initial status failed")
		return
	}

	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "client disconnected")
			return

		case <-ticker.C:
			if err := a.sendFrame(ctx, conn, StreamFrame{Type: "status"}); err != nil {
				a.logger.Debug().Err(err).Msg("send status failed")
				return
			}

		case payload, ok := <-sub:
			if !ok {
				conn.Close(ws.StatusNormalClosure, "stream closed")
				return
			}
			eventType, _ := payload["type"].(string)
			if err := a.sendFrame(ctx, conn, StreamFrame{Type: eventType, Event: payload}); err != nil {
				a.logger.Debug().Err(err).Msg("send event failed")
				return
			}
		}
	}
}

func (a *API) sendFrame(ctx context.Context, conn *ws.Conn, frame StreamFrame) error {
	frame.Status = NewStatusResponse(a.ctrl.Status())
	bytes, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, ws.MessageText, bytes)
}
