package call

import (
	"time"
)

// Event names for the call signaling surface. Part of the external protocol.
const (
	EventIncoming     = "call:incoming"
	EventAccepted     = "call:accepted"
	EventDeclined     = "call:declined"
	EventEnded        = "call:ended"
	EventTimeout      = "call:timeout"
	EventBusy         = "call:busy"
	EventFailed       = "call:failed"
	EventOffer        = "call:offer"
	EventAnswer       = "call:answer"
	EventICECandidate = "call:ice-candidate"
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

func (k Kind) Valid() bool { return k == KindAudio || k == KindVideo }

type Status string

const (
	StatusRinging  Status = "ringing"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusTimeout  Status = "timeout"
	StatusBusy     Status = "busy"
	StatusEnded    Status = "ended"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusDeclined, StatusTimeout, StatusBusy, StatusEnded:
		return true
	}
	return false
}

// Call is an in-flight peer call. The controller owns all instances; other
// components only ever hold the id.
type Call struct {
	ID         string
	CallerID   string
	CalleeID   string
	Kind       Kind
	Status     Status
	StartedAt  time.Time
	AcceptedAt *time.Time
	EndedAt    *time.Time

	deadline *time.Timer
}

// OtherParty returns the peer of the given party, or "" when the user is not
// on the call.
func (c *Call) OtherParty(userID string) string {
	switch userID {
	case c.CallerID:
		return c.CalleeID
	case c.CalleeID:
		return c.CallerID
	}
	return ""
}

func (c *Call) isParty(userID string) bool {
	return userID == c.CallerID || userID == c.CalleeID
}

// IncomingPayload is the body of call:incoming, hydrated with the caller's
// profile so the callee can render the ring screen without an HTTP round
// trip.
type IncomingPayload struct {
	CallID       string `json:"callId"`
	CallerID     string `json:"callerId"`
	CallerName   string `json:"callerName"`
	CallerAvatar string `json:"callerAvatar"`
	CallType     Kind   `json:"callType"`
}

// RefPayload is the body of the simple transition events (accepted, declined,
// timeout, busy, ended).
type RefPayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason,omitempty"`
}

// FailedPayload is the body of call:failed, delivered to the requester only.
type FailedPayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason"`
}
