package dispatch

import (
	"encoding/json"
	"log/slog"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/state"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/transport"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Envelope is the hub→client wire frame.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Dispatcher publishes domain events into rooms. Fan-out is synchronous and
// best-effort: a connection that cannot take the message is skipped, never
// aborting delivery to the rest of the room.
type Dispatcher struct {
	states state.Manager
	logger *slog.Logger
}

func New(states state.Manager, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		states: states,
		logger: logger.With(slog.String("component", "dispatcher")),
	}
}

func (d *Dispatcher) encode(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		d.logger.Error("Failed to marshal outbound event",
			slog.String("event", event),
			slog.Any("error", err),
		)
		return nil, false
	}
	return data, true
}

// ToConn delivers to a single connection.
func (d *Dispatcher) ToConn(conn transport.Sender, event string, payload any) {
	if conn == nil {
		return
	}
	if data, ok := d.encode(event, payload); ok {
		conn.Send(data)
	}
}

// ToUser delivers to every live device of one user.
func (d *Dispatcher) ToUser(userID, event string, payload any) {
	d.ToRoom(state.UserRoom(userID), event, payload)
}

// ToRoom delivers to every connection in a room.
func (d *Dispatcher) ToRoom(room, event string, payload any) {
	data, ok := d.encode(event, payload)
	if !ok {
		return
	}
	for _, conn := range d.states.RoomConnections(room) {
		conn.Send(data)
	}
}

// ToRoomExcept delivers to every connection in a room but the sender's.
// Used for typing indicators and viewer pings, where the origin already
// knows.
func (d *Dispatcher) ToRoomExcept(room string, except uuid.UUID, event string, payload any) {
	data, ok := d.encode(event, payload)
	if !ok {
		return
	}
	for _, conn := range d.states.RoomConnections(room) {
		if conn.ID() == except {
			continue
		}
		conn.Send(data)
	}
}

// Broadcast delivers to every open connection on the hub.
func (d *Dispatcher) Broadcast(event string, payload any) {
	data, ok := d.encode(event, payload)
	if !ok {
		return
	}
	for _, conn := range d.states.AllConnections() {
		conn.Send(data)
	}
}

// FanOutUsers delivers to each listed user's room. The caller supplies the
// list (followers, club members, friends); the dispatcher does not resolve
// relationships itself.
func (d *Dispatcher) FanOutUsers(userIDs []string, event string, payload any) {
	data, ok := d.encode(event, payload)
	if !ok {
		return
	}
	for _, userID := range lo.Uniq(userIDs) {
		for _, conn := range d.states.RoomConnections(state.UserRoom(userID)) {
			conn.Send(data)
		}
	}
}
