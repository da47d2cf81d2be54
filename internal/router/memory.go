package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/internal/dispatch"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/state"
)

const defaultMemoryLimit = 20

// Memories are served per request to the originating connection only; the
// other devices of the user did not ask.

func (r *Router) memoryError(conn *state.Connection, message string) {
	r.disp.ToConn(conn.Transport, dispatch.EventMemoryError, map[string]string{"message": message})
}

func (r *Router) handleMemoryRequest(ctx context.Context, conn *state.Connection, payload json.RawMessage) {
	var p memoryRequestPayload
	if len(payload) > 0 && !r.decode(conn, payload, &p) {
		r.memoryError(conn, "invalid request")
		return
	}
	limit := p.Limit
	if limit == 0 {
		limit = defaultMemoryLimit
	}

	memories, err := r.store.Memories(ctx, conn.User.ID, p.IncludeViewed, limit)
	if err != nil {
		r.logger.Warn("Memory lookup failed", slog.String("userID", conn.User.ID), slog.Any("error", err))
		r.memoryError(conn, "could not load memories")
		return
	}
	r.disp.ToConn(conn.Transport, dispatch.EventMemoryResponse, map[string]any{
		"memories": memories,
		"count":    len(memories),
	})
}

func (r *Router) handleMemoryView(ctx context.Context, conn *state.Connection, payload json.RawMessage) {
	var p memoryRefPayload
	if !r.decode(conn, payload, &p) {
		r.memoryError(conn, "invalid request")
		return
	}
	if err := r.store.MarkMemoryViewed(ctx, conn.User.ID, p.MemoryID); err != nil {
		r.logger.Warn("Mark memory viewed failed", slog.String("memoryID", p.MemoryID), slog.Any("error", err))
		r.memoryError(conn, "could not mark memory viewed")
		return
	}
	r.disp.ToConn(conn.Transport, dispatch.EventMemoryViewed, map[string]string{"memoryId": p.MemoryID})
}

func (r *Router) handleMemoryShare(ctx context.Context, conn *state.Connection, payload json.RawMessage) {
	var p memoryRefPayload
	if !r.decode(conn, payload, &p) {
		r.memoryError(conn, "invalid request")
		return
	}
	shared, err := r.store.ShareMemory(ctx, conn.User.ID, p.MemoryID)
	if err != nil {
		r.logger.Warn("Share memory failed", slog.String("memoryID", p.MemoryID), slog.Any("error", err))
		r.memoryError(conn, "could not share memory")
		return
	}
	r.disp.ToConn(conn.Transport, dispatch.EventMemoryShared, map[string]any{"memory": shared})
}
