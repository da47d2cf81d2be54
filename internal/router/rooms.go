package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/state"
)

// joinRoom runs the authorizer's membership check and joins on allow. Denied
// joins are reported to the requesting connection only; nobody else learns a
// join was attempted.
func (r *Router) joinRoom(ctx context.Context, conn *state.Connection, roomName string) {
	decision := r.authz.CanJoinRoom(ctx, conn.User.ID, roomName)
	if !decision.Allow {
		r.logger.Debug("Room join denied",
			slog.String("connID", conn.ID.String()),
			slog.String("room", roomName),
			slog.String("reason", decision.Reason),
		)
		r.replyError(conn, "subscription denied")
		return
	}
	if err := r.states.Join(conn.ID, roomName); err != nil {
		r.logger.Error("Room join failed", slog.String("room", roomName), slog.Any("error", err))
	}
}

func (r *Router) leaveRoom(conn *state.Connection, roomName string) {
	if err := r.states.Leave(conn.ID, roomName); err != nil {
		r.logger.Error("Room leave failed", slog.String("room", roomName), slog.Any("error", err))
	}
}

func (r *Router) handleEventSubscribe(ctx context.Context, conn *state.Connection, payload json.RawMessage) {
	var p eventSubPayload
	if !r.decode(conn, payload, &p) {
		return
	}
	r.joinRoom(ctx, conn, state.EventRoom(p.EventID))
}

func (r *Router) handleEventUnsubscribe(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p eventSubPayload
	if !r.decode(conn, payload, &p) {
		return
	}
	r.leaveRoom(conn, state.EventRoom(p.EventID))
}

func (r *Router) handleClubSubscribe(ctx context.Context, conn *state.Connection, payload json.RawMessage) {
	var p clubSubPayload
	if !r.decode(conn, payload, &p) {
		return
	}
	r.joinRoom(ctx, conn, state.ClubRoom(p.ClubID))
}

func (r *Router) handleClubUnsubscribe(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p clubSubPayload
	if !r.decode(conn, payload, &p) {
		return
	}
	r.leaveRoom(conn, state.ClubRoom(p.ClubID))
}

// handleClubTyping relays a typing indicator to the club room, skipping the
// sender. Only members already in the room may emit into it.
func (r *Router) handleClubTyping(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p clubTypingPayload
	if !r.decode(conn, payload, &p) {
		return
	}
	if !r.states.InRoom(conn.ID, state.ClubRoom(p.ClubID)) {
		return
	}
	r.disp.ClubTyping(p.ClubID, conn.ID, conn.User.ID, p.UserName)
}

func (r *Router) handleClubStopTyping(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p clubSubPayload
	if !r.decode(conn, payload, &p) {
		return
	}
	if !r.states.InRoom(conn.ID, state.ClubRoom(p.ClubID)) {
		return
	}
	r.disp.ClubStopTyping(p.ClubID, conn.ID, conn.User.ID)
}
