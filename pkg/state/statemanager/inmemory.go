package statemanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/state"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/transport"
	"github.com/google/uuid"
)

var (
	ErrAlreadyRegistered = errors.New("connection is already registered")
	ErrUnknownConnection = errors.New("connection not found")
	ErrRebindForbidden   = errors.New("connection is already bound to another user")
)

type InMemoryManager struct {
	conns map[uuid.UUID]*state.Connection
	users map[string]*state.User
	rooms map[string]*state.Room

	// Lock order: connMu before userMu before roomMu.
	connMu sync.RWMutex
	userMu sync.RWMutex
	roomMu sync.RWMutex

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:  make(map[uuid.UUID]*state.Connection),
		users:  make(map[string]*state.User),
		rooms:  make(map[string]*state.Room),
		logger: logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) RegisterConnection(conn transport.Sender, ipAddr, subject string) (*state.Connection, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	connID := conn.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, ErrAlreadyRegistered
	}
	newConn := &state.Connection{
		ID:        connID,
		IPAddress: ipAddr,
		Subject:   subject,
		Transport: conn,
		Rooms:     make(map[string]*state.Room),
		CreatedAt: time.Now(),
	}
	m.conns[connID] = newConn
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()))
	return newConn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) (*state.Departure, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.userMu.Lock()
	defer m.userMu.Unlock()
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		// connection is already deregistered
		return nil, nil
	}
	delete(m.conns, connID)

	dep := &state.Departure{}

	// remove the connection from every room it joined.
	for name, room := range conn.Rooms {
		delete(room.Members, connID)
		dep.Rooms = append(dep.Rooms, name)
		if len(room.Members) == 0 {
			delete(m.rooms, name)
			m.logger.Debug("Removed empty room", slog.String("room", name))
		}
	}
	conn.Rooms = nil

	// detach conn from user
	if conn.User != nil {
		user := conn.User
		delete(user.Connections, connID)
		dep.UserID = user.ID
		dep.LastActive = user.LastActive
		if len(user.Connections) == 0 {
			delete(m.users, user.ID)
			dep.WentOffline = true
			m.logger.Debug("User went offline", slog.String("userID", user.ID))
		}
		m.logger.Debug("Detached connection from user", slog.String("connID", connID.String()), slog.String("userID", user.ID))
	}
	m.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
	return dep, nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) FindOldestUserConnection(userID string) (*state.Connection, bool) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, false
	}

	var oldestConn *state.Connection
	var oldestTime time.Time

	for _, conn := range user.Connections {
		if oldestConn == nil || conn.CreatedAt.Before(oldestTime) {
			oldestConn = conn
			oldestTime = conn.CreatedAt
		}
	}

	if oldestConn == nil {
		return nil, false // User has no connections.
	}

	return oldestConn, true
}

// --- User Management ---

func (m *InMemoryManager) Bind(connID uuid.UUID, userID string) (*state.Binding, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.userMu.Lock()
	defer m.userMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil, ErrUnknownConnection
	}

	// Idempotent for the same connection; rebinding to a different user is
	// not supported.
	if conn.User != nil {
		if conn.User.ID == userID {
			return &state.Binding{User: conn.User}, nil
		}
		return nil, ErrRebindForbidden
	}

	// Find or create the user session.
	user, exists := m.users[userID]
	wentOnline := false
	if !exists {
		user = &state.User{
			ID:          userID,
			Connections: make(map[uuid.UUID]*state.Connection),
		}
		m.users[userID] = user
		wentOnline = true
		m.logger.Debug("Created new user session", slog.String("userID", userID))
	}

	conn.User = user
	user.Connections[connID] = conn
	user.LastActive = time.Now()

	m.logger.Debug("Bound connection to user", slog.String("connID", connID.String()), slog.String("userID", userID))
	return &state.Binding{User: user, WentOnline: wentOnline}, nil
}

func (m *InMemoryManager) GetUserConnectionCount(userID string) (int, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return 0, nil // User doesn't exist yet, so they have 0 connections.
	}
	return len(user.Connections), nil
}

func (m *InMemoryManager) IsOnline(userID string) bool {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	user, ok := m.users[userID]
	return ok && len(user.Connections) > 0
}

func (m *InMemoryManager) Touch(userID string, window time.Duration) (time.Time, bool) {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return time.Time{}, false
	}
	now := time.Now()
	user.LastActive = now
	if now.Sub(user.LastFlushed) < window {
		return now, false
	}
	user.LastFlushed = now
	return now, true
}

// --- Room Membership ---

func (m *InMemoryManager) Join(connID uuid.UUID, roomName string) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}

	// Already a member; nothing to do.
	if _, exists := conn.Rooms[roomName]; exists {
		return nil
	}

	// Find or create the room.
	room, exists := m.rooms[roomName]
	if !exists {
		room = &state.Room{
			Name:    roomName,
			Members: make(map[uuid.UUID]*state.Connection),
		}
		m.rooms[roomName] = room
	}

	room.Members[connID] = conn
	conn.Rooms[roomName] = room

	m.logger.Debug("Connection joined room", slog.String("connID", connID.String()), slog.String("room", roomName))
	return nil
}

func (m *InMemoryManager) Leave(connID uuid.UUID, roomName string) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil // Connection already gone; rooms were cleaned on deregister.
	}

	room, ok := m.rooms[roomName]
	if !ok {
		return nil // Room doesn't exist.
	}

	delete(room.Members, connID)
	delete(conn.Rooms, roomName)

	// For memory hygiene, remove the room if it's now empty.
	if len(room.Members) == 0 {
		delete(m.rooms, roomName)
		m.logger.Debug("Removed empty room", slog.String("room", roomName))
	}

	m.logger.Debug("Connection left room", slog.String("connID", connID.String()), slog.String("room", roomName))
	return nil
}

func (m *InMemoryManager) InRoom(connID uuid.UUID, roomName string) bool {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()

	room, ok := m.rooms[roomName]
	if !ok {
		return false
	}
	_, member := room.Members[connID]
	return member
}

func (m *InMemoryManager) RoomConnections(roomName string) []transport.Sender {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()

	room, ok := m.rooms[roomName]
	if !ok {
		return nil
	}
	conns := make([]transport.Sender, 0, len(room.Members))
	for _, c := range room.Members {
		conns = append(conns, c.Transport)
	}
	return conns
}

func (m *InMemoryManager) AllConnections() []transport.Sender {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	conns := make([]transport.Sender, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c.Transport)
	}
	return conns
}
