package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Sender is the write side of a connection as the rest of the hub sees it.
// *Connection implements it; tests substitute fakes.
type Sender interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// callback executed when a message is received.
type MessageHandler func(ctx context.Context, connID uuid.UUID, msg []byte)

type OnCloseHandler func(connID uuid.UUID, err error)

type ConnectionConfig struct {
	// ReadTimeout bounds the silence between inbound frames. Clients ping
	// every HeartbeatInterval, so a connection that stays silent past this
	// window is dead.
	ReadTimeout       time.Duration
	HeartbeatInterval time.Duration
}

// Connection represents a single, thread-safe WebSocket connection.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config ConnectionConfig
	send   chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	closeOnce sync.Once
	cancel    context.CancelFunc

	// sendMu orders Send against Close: Close flips closed and shuts the
	// channel under the write lock, so no Send can be mid-select when the
	// channel closes. The dispatcher and the connection cycler hold Senders
	// beyond deregistration, so late Sends are normal, not a bug.
	sendMu sync.RWMutex
	closed bool

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config ConnectionConfig, onMessage MessageHandler, onClose OnCloseHandler, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	connLogger := logger.With(slog.String("connID", id.String()))

	c := &Connection{
		id:        id,
		conn:      conn,
		logger:    connLogger,
		config:    config,
		onMessage: onMessage,
		send:      make(chan []byte, 256), // Buffered channel
		done:      make(chan struct{}),
		ctx:       connCtx,
		cancel:    cancel,
		onClose:   onClose,
		wg:        wg,
	}
	// Balanced by Done in Close, which runs even when the connection is torn
	// down before Run.
	wg.Add(1)
	return c
}

func (c *Connection) Run() {
	go c.readPump()
	go c.writePump()

	c.logger.Info("connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx, cancelRead := context.WithTimeout(c.ctx, c.config.ReadTimeout)
		typ, message, err := c.conn.Read(readCtx)
		cancelRead()
		if err != nil {
			readErr = err
			return
		}
		// Ensure we are only handling text or binary messages.
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			continue
		}
		// Pass a connection-scoped context to the handler.
		c.onMessage(c.ctx, c.id, message)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
// and keeps the link warm with protocol-level pings.
func (c *Connection) writePump() {
	var writeErr error

	defer func() {
		c.Close(writeErr)
	}()

	heartbeat := time.NewTicker(c.heartbeatInterval())
	defer heartbeat.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// The send channel was closed, signal clean closure.
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := c.conn.Write(c.ctx, websocket.MessageText, message); err != nil {
				writeErr = err
				return
			}
		case <-heartbeat.C:
			pingCtx, cancelPing := context.WithTimeout(c.ctx, c.heartbeatInterval())
			err := c.conn.Ping(pingCtx)
			cancelPing()
			if err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			c.conn.Close(websocket.StatusNormalClosure, "request cancelled")
			return
		}
	}
}

func (c *Connection) heartbeatInterval() time.Duration {
	if c.config.HeartbeatInterval > 0 {
		return c.config.HeartbeatInterval
	}
	return 25 * time.Second
}

// sends a message to the client. It is safe for concurrent use at any point
// in the connection's life. Delivery is best-effort: a full buffer or a
// closed connection drops the message.
func (c *Connection) Send(message []byte) {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		c.logger.Debug("Dropping message for closed connection")
		return
	}
	select {
	case c.send <- message:
	default:
		c.logger.Warn("Send buffer full, dropping message")
	}
}

// gracefully shuts down the connection and its resources.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		status := websocket.CloseStatus(err)
		c.logger.Info("Transport connection closing", slog.Any("reason", err), slog.String("status", status.String()))

		c.cancel() // Signal goroutines to stop.

		// Mark closed before shutting the channel; Send checks the flag under
		// the same lock, so no concurrent Send can hit a closed channel.
		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()

		c.conn.Close(websocket.StatusNormalClosure, "")
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// returns a channel that is closed when the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}
