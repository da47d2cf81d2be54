package call

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/authz"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/persist"
)

var (
	ErrCalleeOffline = errors.New("callee is offline")
	ErrCallerBusy    = errors.New("caller already has an active call")
	ErrCalleeBusy    = errors.New("callee already has an active call")
	ErrDuplicateID   = errors.New("call id already in use")
	ErrUnknownCall   = errors.New("call not found")
	ErrNotParty      = errors.New("user is not a party to this call")
	ErrNotCallee     = errors.New("only the callee may do that")
	ErrBadState      = errors.New("transition forbidden by call state")
)

// Publisher delivers hub→client events; satisfied by the dispatcher.
type Publisher interface {
	ToUser(userID, event string, payload any)
}

// PresenceSource answers whether a user has at least one live connection;
// satisfied by the session registry.
type PresenceSource interface {
	IsOnline(userID string) bool
}

// Store is the slice of the persistence adapter the controller writes to and
// reads from.
type Store interface {
	UpsertCall(ctx context.Context, rec persist.CallRecord) error
	CallerProfile(ctx context.Context, userID string) (persist.Profile, error)
}

// SignalGate decides whether a sender may relay signaling for a call between
// the two given parties; satisfied by the authorizer.
type SignalGate interface {
	CanSignal(callerID, calleeID, senderID string) authz.Decision
}

// Controller drives the call state machine. It owns the call table; every
// transition is a check-then-mutate under one lock, with the persistence
// write handed to the retrier so a slow store never holds up signaling.
type Controller struct {
	mu     sync.Mutex
	calls  map[string]*Call  // non-terminal calls, keyed by call id
	active map[string]string // user id -> id of their call in {ringing, accepted}

	pub      Publisher
	presence PresenceSource
	store    Store
	gate     SignalGate
	retrier  *persist.Retrier
	deadline time.Duration
	logger   *slog.Logger

	// base context for background persistence writes; transitions must not
	// die with the request that triggered them.
	ctx context.Context
}

func NewController(ctx context.Context, pub Publisher, presence PresenceSource, store Store, gate SignalGate, retrier *persist.Retrier, deadline time.Duration, logger *slog.Logger) *Controller {
	return &Controller{
		calls:    make(map[string]*Call),
		active:   make(map[string]string),
		pub:      pub,
		presence: presence,
		store:    store,
		gate:     gate,
		retrier:  retrier,
		deadline: deadline,
		logger:   logger.With(slog.String("component", "call_controller")),
		ctx:      ctx,
	}
}

// Initiate starts a new call in the ringing state and delivers call:incoming
// to the callee. Rejections are reported to the caller only and create no
// record.
func (c *Controller) Initiate(ctx context.Context, callID, callerID, calleeID string, kind Kind) error {
	c.mu.Lock()
	if _, exists := c.calls[callID]; exists {
		c.mu.Unlock()
		c.pub.ToUser(callerID, EventFailed, FailedPayload{CallID: callID, Reason: "duplicate"})
		return ErrDuplicateID
	}
	if _, busy := c.active[callerID]; busy {
		c.mu.Unlock()
		c.pub.ToUser(callerID, EventFailed, FailedPayload{CallID: callID, Reason: "already-in-call"})
		return ErrCallerBusy
	}
	if !c.presence.IsOnline(calleeID) {
		c.mu.Unlock()
		c.pub.ToUser(callerID, EventFailed, FailedPayload{CallID: callID, Reason: "offline"})
		return ErrCalleeOffline
	}
	if _, busy := c.active[calleeID]; busy {
		c.mu.Unlock()
		// No call:incoming reaches the callee; the caller just hears busy.
		c.pub.ToUser(callerID, EventBusy, RefPayload{CallID: callID})
		return ErrCalleeBusy
	}

	now := time.Now()
	call := &Call{
		ID:        callID,
		CallerID:  callerID,
		CalleeID:  calleeID,
		Kind:      kind,
		Status:    StatusRinging,
		StartedAt: now,
	}
	call.deadline = time.AfterFunc(c.deadline, func() { c.onDeadline(callID) })
	c.calls[callID] = call
	c.active[callerID] = callID
	c.active[calleeID] = callID
	rec := c.snapshot(call)
	c.mu.Unlock()

	c.persist(rec)

	// Profile hydration suspends, so it happens outside the lock. A missing
	// profile degrades the ring screen, never the call.
	profile, err := c.store.CallerProfile(ctx, callerID)
	if err != nil {
		c.logger.Warn("Caller profile lookup failed",
			slog.String("callID", callID),
			slog.String("callerID", callerID),
			slog.Any("error", err),
		)
	}

	// The call may have been torn down while we were looking up the profile.
	c.mu.Lock()
	current, ok := c.calls[callID]
	ringing := ok && current.Status == StatusRinging
	c.mu.Unlock()
	if !ringing {
		return nil
	}

	c.pub.ToUser(calleeID, EventIncoming, IncomingPayload{
		CallID:       callID,
		CallerID:     callerID,
		CallerName:   profile.Name,
		CallerAvatar: profile.Avatar,
		CallType:     kind,
	})
	c.logger.Info("Call ringing",
		slog.String("callID", callID),
		slog.String("caller", callerID),
		slog.String("callee", calleeID),
		slog.String("kind", string(kind)),
	)
	return nil
}

// Accept moves a ringing call to accepted. Only the callee may accept.
func (c *Controller) Accept(callID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, err := c.ringingCalleeAction(callID, userID)
	if err != nil {
		return err
	}

	now := time.Now()
	call.Status = StatusAccepted
	call.AcceptedAt = &now
	call.deadline.Stop()

	c.pub.ToUser(call.CallerID, EventAccepted, RefPayload{CallID: callID})
	c.persist(c.snapshot(call))
	c.logger.Info("Call accepted", slog.String("callID", callID))
	return nil
}

// Decline moves a ringing call to declined. Only the callee may decline; the
// initiator cancels via End instead.
func (c *Controller) Decline(callID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, err := c.ringingCalleeAction(callID, userID)
	if err != nil {
		return err
	}

	c.terminate(call, StatusDeclined)
	c.pub.ToUser(call.CallerID, EventDeclined, RefPayload{CallID: callID})
	c.logger.Info("Call declined", slog.String("callID", callID))
	return nil
}

// Busy marks a ringing call busy on behalf of the callee (e.g. the client UI
// auto-rejects because another app call is up).
func (c *Controller) Busy(callID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, err := c.ringingCalleeAction(callID, userID)
	if err != nil {
		return err
	}

	c.terminate(call, StatusBusy)
	c.pub.ToUser(call.CallerID, EventBusy, RefPayload{CallID: callID})
	c.logger.Info("Call busy", slog.String("callID", callID))
	return nil
}

// End terminates a ringing or accepted call. Either party may end.
func (c *Controller) End(callID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, ok := c.calls[callID]
	if !ok {
		c.reject(userID, callID, "unknown-call")
		return ErrUnknownCall
	}
	if !call.isParty(userID) {
		c.reject(userID, callID, "not-a-party")
		return ErrNotParty
	}
	if call.Status != StatusRinging && call.Status != StatusAccepted {
		c.reject(userID, callID, "bad-state")
		return ErrBadState
	}

	other := call.OtherParty(userID)
	c.terminate(call, StatusEnded)
	c.pub.ToUser(other, EventEnded, RefPayload{CallID: callID})
	c.logger.Info("Call ended", slog.String("callID", callID), slog.String("by", userID))
	return nil
}

// HandleDisconnect tears down the user's active call after their last
// connection closed. The surviving party hears call:ended with a disconnect
// reason.
func (c *Controller) HandleDisconnect(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	callID, ok := c.active[userID]
	if !ok {
		return
	}
	call, ok := c.calls[callID]
	if !ok {
		delete(c.active, userID)
		return
	}
	if call.Status != StatusRinging && call.Status != StatusAccepted {
		return
	}

	other := call.OtherParty(userID)
	c.terminate(call, StatusEnded)
	c.pub.ToUser(other, EventEnded, RefPayload{CallID: callID, Reason: "disconnect"})
	c.logger.Info("Call ended by disconnect", slog.String("callID", callID), slog.String("userID", userID))
}

// CanRelay gates the stateless signaling relay: the call must still be live,
// the authorizer must accept the sender as a party, and the peer must be the
// other party.
func (c *Controller) CanRelay(callID, senderID, peerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, ok := c.calls[callID]
	if !ok {
		return false
	}
	if call.Status != StatusRinging && call.Status != StatusAccepted {
		return false
	}
	if !c.gate.CanSignal(call.CallerID, call.CalleeID, senderID).Allow {
		return false
	}
	return call.OtherParty(senderID) == peerID
}

// ActiveCall reports the id of the user's call in {ringing, accepted}, if
// any.
func (c *Controller) ActiveCall(userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.active[userID]
	return id, ok
}

// onDeadline fires when the ringing timer elapses. It re-checks status under
// the lock, so a deadline racing an accept or end is a no-op.
func (c *Controller) onDeadline(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, ok := c.calls[callID]
	if !ok || call.Status != StatusRinging {
		return
	}

	c.terminate(call, StatusTimeout)
	c.pub.ToUser(call.CallerID, EventTimeout, RefPayload{CallID: callID})
	c.pub.ToUser(call.CalleeID, EventTimeout, RefPayload{CallID: callID})
	c.logger.Info("Call timed out", slog.String("callID", callID))
}

// ringingCalleeAction validates the accept/decline/busy preconditions and
// returns the call. Caller must hold the lock.
func (c *Controller) ringingCalleeAction(callID, userID string) (*Call, error) {
	call, ok := c.calls[callID]
	if !ok {
		c.reject(userID, callID, "unknown-call")
		return nil, ErrUnknownCall
	}
	if userID != call.CalleeID {
		c.reject(userID, callID, "not-the-callee")
		return nil, ErrNotCallee
	}
	if call.Status != StatusRinging {
		c.reject(userID, callID, "bad-state")
		return nil, ErrBadState
	}
	return call, nil
}

// terminate applies a terminal transition: stamps EndedAt, cancels the
// ringing timer, frees both parties, removes the call from the table, and
// enqueues the persistence write. Caller must hold the lock.
func (c *Controller) terminate(call *Call, status Status) {
	now := time.Now()
	call.Status = status
	call.EndedAt = &now
	if call.deadline != nil {
		call.deadline.Stop()
	}
	delete(c.active, call.CallerID)
	delete(c.active, call.CalleeID)
	delete(c.calls, call.ID)
	c.persist(c.snapshot(call))
}

func (c *Controller) reject(userID, callID, reason string) {
	c.pub.ToUser(userID, EventFailed, FailedPayload{CallID: callID, Reason: reason})
}

func (c *Controller) snapshot(call *Call) persist.CallRecord {
	rec := persist.CallRecord{
		ID:        call.ID,
		CallerID:  call.CallerID,
		CalleeID:  call.CalleeID,
		Kind:      string(call.Kind),
		Status:    string(call.Status),
		StartedAt: call.StartedAt,
	}
	if call.AcceptedAt != nil {
		t := *call.AcceptedAt
		rec.AcceptedAt = &t
	}
	if call.EndedAt != nil {
		t := *call.EndedAt
		rec.EndedAt = &t
	}
	return rec
}

func (c *Controller) persist(rec persist.CallRecord) {
	c.retrier.Go(c.ctx, "call_upsert:"+rec.ID, func(ctx context.Context) error {
		return c.store.UpsertCall(ctx, rec)
	})
}
