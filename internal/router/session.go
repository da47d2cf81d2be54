package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/state"
)

// handleAuthenticate binds the connection to the user named in the payload.
// The transport-level JWT already proved identity; the message must agree
// with it. Idempotent for an already-bound connection.
func (r *Router) handleAuthenticate(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p authenticatePayload
	if !r.decode(conn, payload, &p) {
		return
	}

	if p.UserID != conn.Subject {
		r.logger.Warn("Authenticate subject mismatch",
			slog.String("connID", conn.ID.String()),
			slog.String("claimed", p.UserID),
		)
		r.replyError(conn, "authentication failed")
		return
	}

	binding, err := r.states.Bind(conn.ID, p.UserID)
	if err != nil {
		r.logger.Warn("Bind failed", slog.String("connID", conn.ID.String()), slog.Any("error", err))
		r.replyError(conn, "authentication failed")
		return
	}

	// Every device of a user listens on the user room.
	if err := r.states.Join(conn.ID, state.UserRoom(p.UserID)); err != nil {
		r.logger.Error("Failed to join user room", slog.String("connID", conn.ID.String()), slog.Any("error", err))
	}

	r.disp.ToConn(conn.Transport, "authenticated", map[string]string{"user_id": p.UserID})

	// Presence transitions only on the 0->1 connection edge.
	if binding.WentOnline {
		now := binding.User.LastActive
		r.disp.UserStatusChanged(p.UserID, true, now)
		userID := p.UserID
		r.retrier.Go(r.ctx, "presence_online:"+userID, func(ctx context.Context) error {
			return r.store.SetUserOnline(ctx, userID, true, now)
		})
		r.logger.Info("User came online", slog.String("userID", userID))
	}
}

// handlePing answers the client heartbeat. The lastActive refresh already
// happened in HandleMessage.
func (r *Router) handlePing(_ context.Context, conn *state.Connection, _ json.RawMessage) {
	r.disp.ToConn(conn.Transport, "pong", map[string]int64{
		"timestamp": time.Now().UnixMilli(),
	})
}
