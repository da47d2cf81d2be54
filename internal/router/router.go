package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/internal/dispatch"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/authz"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/call"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/persist"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/state"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type handlerFunc func(ctx context.Context, conn *state.Connection, payload json.RawMessage)

// Router parses client messages and dispatches them to the owning component.
// It holds no domain state of its own: auth, presence, rooms, and the call
// machine all live behind the collaborators it is wired with.
type Router struct {
	logger   *slog.Logger
	states   state.Manager
	disp     *dispatch.Dispatcher
	calls    *call.Controller
	authz    *authz.Authorizer
	store    persist.Adapter
	retrier  *persist.Retrier
	validate *validator.Validate

	lastActiveWindow time.Duration
	handlers         map[string]handlerFunc

	// base context for background persistence writes.
	ctx context.Context
}

func New(
	ctx context.Context,
	logger *slog.Logger,
	states state.Manager,
	disp *dispatch.Dispatcher,
	calls *call.Controller,
	authorizer *authz.Authorizer,
	store persist.Adapter,
	retrier *persist.Retrier,
	lastActiveWindow time.Duration,
) *Router {
	r := &Router{
		logger:           logger.With(slog.String("component", "router")),
		states:           states,
		disp:             disp,
		calls:            calls,
		authz:            authorizer,
		store:            store,
		retrier:          retrier,
		validate:         validator.New(),
		lastActiveWindow: lastActiveWindow,
		ctx:              ctx,
	}

	r.handlers = map[string]handlerFunc{
		"ping": r.handlePing,

		"events:subscribe":   r.handleEventSubscribe,
		"events:unsubscribe": r.handleEventUnsubscribe,
		"club:subscribe":     r.handleClubSubscribe,
		"club:unsubscribe":   r.handleClubUnsubscribe,
		"club:typing":        r.handleClubTyping,
		"club:stop-typing":   r.handleClubStopTyping,

		"crisis:join":                r.handleCrisisJoin,
		"crisis:leave":               r.handleCrisisLeave,
		"crisis:send-update":         r.handleCrisisSendUpdate,
		"crisis:viewing":             r.handleCrisisViewing,
		"crisis:emergency-broadcast": r.handleCrisisEmergency,

		"memory:request": r.handleMemoryRequest,
		"memory:view":    r.handleMemoryView,
		"memory:share":   r.handleMemoryShare,

		"call:initiate":      r.handleCallInitiate,
		"call:accept":        r.handleCallAccept,
		"call:decline":       r.handleCallDecline,
		"call:end":           r.handleCallEnd,
		"call:busy":          r.handleCallBusy,
		"call:offer":         r.relaySignal(call.EventOffer),
		"call:answer":        r.relaySignal(call.EventAnswer),
		"call:ice-candidate": r.relaySignal(call.EventICECandidate),
	}
	return r
}

// HandleMessage is the transport's message callback.
func (r *Router) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var clientMsg ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		// Malformed frames are dropped without a reply.
		r.logger.Warn("Failed to unmarshal client message", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}

	conn, ok := r.states.GetConnection(connID)
	if !ok {
		r.logger.Error("Message from unregistered connection", slog.String("connID", connID.String()))
		return
	}

	if clientMsg.Event == "authenticate" {
		r.handleAuthenticate(ctx, conn, clientMsg.Payload)
		return
	}

	// Unauthenticated messages are dropped, not errored.
	if conn.User == nil {
		r.logger.Debug("Dropping message from unauthenticated connection",
			slog.String("connID", connID.String()),
			slog.String("event", clientMsg.Event),
		)
		return
	}

	r.touch(conn.User.ID)

	handler, ok := r.handlers[clientMsg.Event]
	if !ok {
		r.logger.Warn("Received unknown event", slog.String("event", clientMsg.Event), slog.String("connID", connID.String()))
		return
	}
	handler(ctx, conn, clientMsg.Payload)
}

// HandleClose is the transport's close callback: it unwinds the connection's
// registry state and everything derived from it (rooms, presence, calls).
func (r *Router) HandleClose(connID uuid.UUID) {
	dep, err := r.states.DeregisterConnection(connID)
	if err != nil {
		r.logger.Error("Failed to deregister connection", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}
	if dep == nil || !dep.WentOffline {
		return
	}

	userID := dep.UserID
	r.calls.HandleDisconnect(userID)
	r.disp.UserStatusChanged(userID, false, dep.LastActive)
	lastActive := dep.LastActive
	r.retrier.Go(r.ctx, "presence_offline:"+userID, func(ctx context.Context) error {
		return r.store.SetUserOnline(ctx, userID, false, lastActive)
	})
	r.logger.Info("User went offline", slog.String("userID", userID))
}

// decode unmarshals and validates a payload, dropping the message on failure.
func (r *Router) decode(conn *state.Connection, payload json.RawMessage, v any) bool {
	if err := json.Unmarshal(payload, v); err != nil {
		r.logger.Warn("Malformed payload", slog.String("connID", conn.ID.String()), slog.Any("error", err))
		return false
	}
	if err := r.validate.Struct(v); err != nil {
		r.logger.Warn("Invalid payload", slog.String("connID", conn.ID.String()), slog.Any("error", err))
		return false
	}
	return true
}

// replyError sends a one-line error to the originating connection only.
func (r *Router) replyError(conn *state.Connection, message string) {
	r.disp.ToConn(conn.Transport, "error", map[string]string{"message": message})
}

// touch refreshes lastActive and, when the coalescing window has elapsed,
// flushes it to the adapter.
func (r *Router) touch(userID string) {
	lastActive, flush := r.states.Touch(userID, r.lastActiveWindow)
	if !flush {
		return
	}
	r.retrier.Go(r.ctx, "presence_touch:"+userID, func(ctx context.Context) error {
		return r.store.SetUserOnline(ctx, userID, true, lastActive)
	})
}
