package persist

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Profile is the subset of a user document the hub needs to hydrate an
// incoming-call payload.
type Profile struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// CallRecord is the durable shadow of an in-memory call. Upserts are
// idempotent by ID; the record may lag live state while writes retry.
type CallRecord struct {
	ID         string     `json:"id"`
	CallerID   string     `json:"callerId"`
	CalleeID   string     `json:"calleeId"`
	Kind       string     `json:"kind"`   // audio, video
	Status     string     `json:"status"` // ringing, accepted, declined, timeout, busy, ended
	StartedAt  time.Time  `json:"startedAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
}

// PresenceRecord is the durable online flag for a user.
type PresenceRecord struct {
	UserID     string    `json:"userId"`
	Online     bool      `json:"online"`
	LastActive time.Time `json:"lastActive"`
}

// Memory is a resurfaced piece of past content served over the socket.
type Memory struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Caption     string    `json:"caption"`
	MediaURL    string    `json:"mediaUrl"`
	Viewed      bool      `json:"viewed"`
	SharedCount int       `json:"sharedCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Adapter is the narrow interface through which the hub writes durable state
// and reads domain lookups. All calls are cancellable and may fail
// transiently; writes go through a Retrier.
type Adapter interface {
	// SetUserOnline records the presence flag. Fire-and-forget from the
	// caller's perspective.
	SetUserOnline(ctx context.Context, userID string, online bool, lastActive time.Time) error
	// UpsertCall persists a call record, idempotent by call id.
	UpsertCall(ctx context.Context, rec CallRecord) error
	// CallerProfile hydrates the incoming-call payload.
	CallerProfile(ctx context.Context, userID string) (Profile, error)
	// ResourceMembership answers whether a user may enter a resource-scoped
	// room (club membership, event visibility, crisis visibility).
	ResourceMembership(ctx context.Context, kind, resourceID, userID string) (bool, error)
	// Friends lists the user ids for friend-scoped fan-out.
	Friends(ctx context.Context, userID string) ([]string, error)

	Memories(ctx context.Context, userID string, includeViewed bool, limit int) ([]Memory, error)
	MarkMemoryViewed(ctx context.Context, userID, memoryID string) error
	ShareMemory(ctx context.Context, userID, memoryID string) (Memory, error)
}
