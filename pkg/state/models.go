package state

import (
	"time"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/transport"
	"github.com/google/uuid"
)

// representation of a single transport-layer connection.
type Connection struct {
	ID        uuid.UUID
	IPAddress string
	// Subject is the user id verified from the JWT at upgrade time. The
	// socket-level authenticate message must name the same user before the
	// connection is bound.
	Subject   string
	Transport transport.Sender // The actual connection for sending messages
	User      *User            // Pointer to the owning user (nil until authenticated)
	Rooms     map[string]*Room // Rooms this connection has joined, keyed by room name
	CreatedAt time.Time
}

// canonical representation of a user, aggregating all their connections.
// A user is online exactly while this binding set is non-empty.
type User struct {
	ID          string
	Connections map[uuid.UUID]*Connection // All active connections for this user
	LastActive  time.Time
	LastFlushed time.Time // last time LastActive was persisted; used for write coalescing
}

// canonical representation of a fan-out target. Membership is per connection,
// not per user: each device subscribes on its own.
type Room struct {
	Name    string
	Members map[uuid.UUID]*Connection
}

// Binding is the result of authenticating a connection.
type Binding struct {
	User *User
	// WentOnline is set when this was the user's first live connection.
	WentOnline bool
}

// Departure is the result of deregistering a connection.
type Departure struct {
	UserID string
	// WentOffline is set when the user's last connection closed.
	WentOffline bool
	LastActive  time.Time
	// Rooms the connection was removed from.
	Rooms []string
}
