package router

import "encoding/json"

// ClientMessage is the client→hub wire frame.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type authenticatePayload struct {
	UserID string `json:"user_id" validate:"required"`
}

type eventSubPayload struct {
	EventID string `json:"event_id" validate:"required"`
}

type clubSubPayload struct {
	ClubID string `json:"club_id" validate:"required"`
}

type clubTypingPayload struct {
	ClubID   string `json:"club_id" validate:"required"`
	UserName string `json:"user_name"`
}

type crisisRefPayload struct {
	CrisisID string `json:"crisis_id" validate:"required"`
}

type crisisMessagePayload struct {
	CrisisID string `json:"crisis_id" validate:"required"`
	Message  string `json:"message" validate:"required"`
}

type memoryRequestPayload struct {
	IncludeViewed bool `json:"include_viewed"`
	Limit         int  `json:"limit" validate:"omitempty,min=1,max=100"`
}

type memoryRefPayload struct {
	MemoryID string `json:"memory_id" validate:"required"`
}

type callInitiatePayload struct {
	CallID   string `json:"call_id" validate:"required"`
	CalleeID string `json:"callee_id" validate:"required"`
	CallType string `json:"call_type" validate:"required,oneof=audio video"`
}

type callRefPayload struct {
	CallID string `json:"call_id" validate:"required"`
	PeerID string `json:"peer_id"`
}
