package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/call"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/state"
	"github.com/tidwall/gjson"
)

// The controller reports every rejection to the requester itself; the router
// only logs the outcome.

func (r *Router) handleCallInitiate(ctx context.Context, conn *state.Connection, payload json.RawMessage) {
	var p callInitiatePayload
	if !r.decode(conn, payload, &p) {
		return
	}
	if err := r.calls.Initiate(ctx, p.CallID, conn.User.ID, p.CalleeID, call.Kind(p.CallType)); err != nil {
		r.logger.Debug("Call initiate rejected", slog.String("callID", p.CallID), slog.Any("error", err))
	}
}

func (r *Router) handleCallAccept(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p callRefPayload
	if !r.decode(conn, payload, &p) {
		return
	}
	if err := r.calls.Accept(p.CallID, conn.User.ID); err != nil {
		r.logger.Debug("Call accept rejected", slog.String("callID", p.CallID), slog.Any("error", err))
	}
}

func (r *Router) handleCallDecline(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p callRefPayload
	if !r.decode(conn, payload, &p) {
		return
	}
	if err := r.calls.Decline(p.CallID, conn.User.ID); err != nil {
		r.logger.Debug("Call decline rejected", slog.String("callID", p.CallID), slog.Any("error", err))
	}
}

func (r *Router) handleCallEnd(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p callRefPayload
	if !r.decode(conn, payload, &p) {
		return
	}
	if err := r.calls.End(p.CallID, conn.User.ID); err != nil {
		r.logger.Debug("Call end rejected", slog.String("callID", p.CallID), slog.Any("error", err))
	}
}

func (r *Router) handleCallBusy(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p callRefPayload
	if !r.decode(conn, payload, &p) {
		return
	}
	if err := r.calls.Busy(p.CallID, conn.User.ID); err != nil {
		r.logger.Debug("Call busy rejected", slog.String("callID", p.CallID), slog.Any("error", err))
	}
}

// relaySignal forwards offer/answer/ICE payloads verbatim to the peer's user
// room, gated on the call being live and both ids being its parties. Gating
// failures drop silently; signaling is chatty and an attacker learns nothing.
func (r *Router) relaySignal(event string) handlerFunc {
	return func(_ context.Context, conn *state.Connection, payload json.RawMessage) {
		callID := gjson.GetBytes(payload, "call_id").String()
		peerID := gjson.GetBytes(payload, "peer_id").String()
		if callID == "" || peerID == "" {
			r.logger.Debug("Signal relay missing routing fields", slog.String("event", event))
			return
		}
		if !r.calls.CanRelay(callID, conn.User.ID, peerID) {
			r.logger.Debug("Signal relay gated",
				slog.String("event", event),
				slog.String("callID", callID),
				slog.String("sender", conn.User.ID),
			)
			return
		}
		r.disp.ToUser(peerID, event, payload)
	}
}
