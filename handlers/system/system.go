// Package system implements the handler for the default request category,
// which carries connection-level housekeeping rather than game logic.
package system

import (
	"context"
	"strconv"
	"time"

	"github.com/cyberinferno/gameserver/dispatch"
	"github.com/cyberinferno/gameserver/protocol"
)

// HeartbeatReply is returned for a heartbeat with an empty payload.
const HeartbeatReply = "pong"

// Handler serves protocol.RequestNone.
type Handler struct {
	now func() time.Time
}

// New returns a system Handler.
func New() *Handler {
	return &Handler{now: time.Now}
}

// Operations implements dispatch.Handler.
func (h *Handler) Operations() dispatch.Operations {
	return dispatch.Operations{
		protocol.ActionHeartbeat: h.Heartbeat,
	}
}

// Heartbeat answers keep-alive probes. An empty payload gets HeartbeatReply;
// a non-empty payload is treated as the client's send timestamp and echoed
// back with the server time appended, as "<payload>,<unix millis>", so the
// client can measure round-trip latency and clock skew.
func (h *Handler) Heartbeat(ctx context.Context, payload string) (string, error) {
	if payload == "" {
		return HeartbeatReply, nil
	}

	return payload + "," + strconv.FormatInt(h.now().UnixMilli(), 10), nil
}
