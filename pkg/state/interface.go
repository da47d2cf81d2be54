package state

import (
	"time"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/transport"
	"github.com/google/uuid"
)

type Manager interface {
	// --- Connection Lifecycle ---
	RegisterConnection(conn transport.Sender, ipAddr, subject string) (*Connection, error)
	// DeregisterConnection removes the connection from every room and from
	// its user binding. The returned Departure reports whether the user went
	// offline with it.
	DeregisterConnection(connID uuid.UUID) (*Departure, error)
	GetConnection(connID uuid.UUID) (*Connection, bool)
	FindOldestUserConnection(userID string) (*Connection, bool)

	// --- User Management ---
	// Bind links an authenticated connection to a user, creating the user if
	// they don't exist. Idempotent for the same connection.
	Bind(connID uuid.UUID, userID string) (*Binding, error)
	GetUserConnectionCount(userID string) (int, error)
	IsOnline(userID string) bool
	// Touch refreshes the user's lastActive stamp. flush reports whether the
	// coalescing window has elapsed and the stamp should be persisted.
	Touch(userID string, window time.Duration) (lastActive time.Time, flush bool)

	// --- Room Membership ---
	// Join adds a connection to a room, creating the room if it doesn't exist.
	Join(connID uuid.UUID, roomName string) error
	Leave(connID uuid.UUID, roomName string) error
	InRoom(connID uuid.UUID, roomName string) bool
	RoomConnections(roomName string) []transport.Sender
	AllConnections() []transport.Sender
}
