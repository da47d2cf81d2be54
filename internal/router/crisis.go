package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/internal/dispatch"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/state"
)

func (r *Router) handleCrisisJoin(ctx context.Context, conn *state.Connection, payload json.RawMessage) {
	var p crisisRefPayload
	if !r.decode(conn, payload, &p) {
		return
	}
	r.joinRoom(ctx, conn, state.CrisisRoom(p.CrisisID))
}

func (r *Router) handleCrisisLeave(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p crisisRefPayload
	if !r.decode(conn, payload, &p) {
		return
	}
	r.leaveRoom(conn, state.CrisisRoom(p.CrisisID))
}

// handleCrisisSendUpdate publishes a status update to everyone watching the
// crisis.
func (r *Router) handleCrisisSendUpdate(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p crisisMessagePayload
	if !r.decode(conn, payload, &p) {
		return
	}
	if !r.states.InRoom(conn.ID, state.CrisisRoom(p.CrisisID)) {
		return
	}
	r.disp.CrisisUpdate(p.CrisisID, dispatch.CrisisPayload{
		CrisisID:  p.CrisisID,
		UserID:    conn.User.ID,
		Message:   p.Message,
		Timestamp: time.Now().UnixMilli(),
	})
}

// handleCrisisViewing tells other watchers someone opened the crisis view.
func (r *Router) handleCrisisViewing(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p crisisRefPayload
	if !r.decode(conn, payload, &p) {
		return
	}
	if !r.states.InRoom(conn.ID, state.CrisisRoom(p.CrisisID)) {
		return
	}
	r.disp.CrisisViewerPing(p.CrisisID, conn.ID, conn.User.ID)
}

// handleCrisisEmergency publishes an emergency to the crisis room and fans
// the alert out to the sender's friends' user rooms. A failed friend lookup
// degrades to the room broadcast alone.
func (r *Router) handleCrisisEmergency(ctx context.Context, conn *state.Connection, payload json.RawMessage) {
	var p crisisMessagePayload
	if !r.decode(conn, payload, &p) {
		return
	}
	if !r.states.InRoom(conn.ID, state.CrisisRoom(p.CrisisID)) {
		return
	}

	friends, err := r.store.Friends(ctx, conn.User.ID)
	if err != nil {
		r.logger.Warn("Friend lookup failed for emergency fan-out",
			slog.String("userID", conn.User.ID),
			slog.Any("error", err),
		)
		friends = nil
	}
	r.disp.CrisisEmergency(p.CrisisID, friends, dispatch.CrisisPayload{
		CrisisID:  p.CrisisID,
		UserID:    conn.User.ID,
		Message:   p.Message,
		Timestamp: time.Now().UnixMilli(),
	})
}
