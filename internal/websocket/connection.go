package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"huddle/pkg/types"
)

// Connection lifecycle states
const (
	StateAdmitted int32 = iota
	StateActive
	StateClosed
)

// Defaults applied when Options leaves a field zero
const (
	DefaultSendBuffer   = 100
	DefaultWriteTimeout = 5 * time.Second
)

// Options tunes per-connection buffering and timeouts.
type Options struct {
	SendBuffer   int           // queued payloads before the peer counts as stalled
	WriteTimeout time.Duration // socket write deadline
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions
// Interface boundary maintained - no business logic in connection wrapper
type Connection struct {
	id       string
	conn     *websocket.Conn
	writeCh  chan []byte // FUNCTIONAL DISCOVERY: 100 buffer absorbs bursts from busy rooms
	identity types.Identity
	roomID   string
	state    atomic.Int32
	opts     Options

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps an upgraded socket for an admitted identity and room.
// Identity and room are fixed for the lifetime of the connection.
func NewConnection(conn *websocket.Conn, identity types.Identity, roomID string, opts Options) *Connection {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:       uuid.NewString(),
		conn:     conn,
		writeCh:  make(chan []byte, opts.SendBuffer),
		identity: identity,
		roomID:   roomID,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
	}
	c.state.Store(StateAdmitted)

	// Start the single writer goroutine
	go c.writeLoop()

	return c
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
// writeCh is never closed; senders observe ctx instead.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				// a failed write leaves the socket unusable; closing it
				// unblocks the read loop which then disconnects
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the connection's unique id.
func (c *Connection) ID() string { return c.id }

// Identity returns the identity attached at admission.
func (c *Connection) Identity() types.Identity { return c.identity }

// RoomID returns the room bound at admission.
func (c *Connection) RoomID() string { return c.roomID }

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// Send queues an encoded payload for the writer goroutine and never blocks.
// A full queue closes the connection and returns ErrSlowConsumer; the read
// loop then observes the closed socket and the connection leaves its room.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- payload:
		return nil
	default:
		_ = c.Close()
		return ErrSlowConsumer
	}
}

// WriteJSON implementation with timeout and error handling
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.Send(data)
}

// Activate moves Admitted to Active.
func (c *Connection) Activate() bool {
	return c.state.CompareAndSwap(StateAdmitted, StateActive)
}

// IsActive reports whether inbound messages may be processed.
func (c *Connection) IsActive() bool {
	return c.state.Load() == StateActive
}

// State returns the current lifecycle state.
func (c *Connection) State() int32 {
	return c.state.Load()
}

// MarkClosed moves the connection to Closed from any state. Only the first
// call reports true.
func (c *Connection) MarkClosed() bool {
	for {
		current := c.state.Load()
		if current == StateClosed {
			return false
		}
		if c.state.CompareAndSwap(current, StateClosed) {
			return true
		}
	}
}

// ARCHITECTURAL DISCOVERY: Clean shutdown requires careful goroutine coordination
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
