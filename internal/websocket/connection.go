package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lingocast/pkg/types"
)

// DefaultSendBuffer is the outbound event buffer per connection. A consumer
// that falls this far behind is dropped rather than allowed to block the
// session's producer side.
const DefaultSendBuffer = 64

const writeDeadline = 5 * time.Second

// wire is the subset of *websocket.Conn the writer needs. Tests substitute
// an in-memory implementation.
type wire interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection wraps one participant's streaming connection. All writes go
// through a single writer goroutine fed by a bounded channel; the viewing
// language is client-directed state mutable at any time without
// re-subscribing.
type Connection struct {
	id        string
	sessionID string
	role      string

	conn    wire
	sendCh  chan *types.Event
	pending int32 // queued or mid-write events; CloseGraceful drains on this

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu              sync.RWMutex
	viewingLanguage string
	lastDelivered   int64
}

// NewConnection wraps an upgraded WebSocket connection for a participant.
func NewConnection(conn *websocket.Conn, sessionID, role, viewingLanguage string, buffer int) *Connection {
	return newConnection(conn, sessionID, role, viewingLanguage, buffer)
}

func newConnection(conn wire, sessionID, role, viewingLanguage string, buffer int) *Connection {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:              uuid.New().String(),
		sessionID:       sessionID,
		role:            role,
		conn:            conn,
		sendCh:          make(chan *types.Event, buffer),
		ctx:             ctx,
		cancel:          cancel,
		viewingLanguage: viewingLanguage,
	}
	go c.writeLoop()
	return c
}

// writeLoop is the single writer for the underlying connection. It also
// tracks the last transcript sequence actually handed to the transport,
// which is what resume-after-reconnect is measured against.
func (c *Connection) writeLoop() {
	for {
		select {
		case event := <-c.sendCh:
			data, err := json.Marshal(event)
			if err != nil {
				atomic.AddInt32(&c.pending, -1)
				continue
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				atomic.AddInt32(&c.pending, -1)
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				atomic.AddInt32(&c.pending, -1)
				c.Close()
				return
			}
			if event.Type == types.EventTranscriptNew && event.Entry != nil {
				c.mu.Lock()
				if event.Entry.Sequence > c.lastDelivered {
					c.lastDelivered = event.Entry.Sequence
				}
				c.mu.Unlock()
			}
			atomic.AddInt32(&c.pending, -1)

		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues an event for delivery. Never blocks: if the buffer is full
// the connection is considered overloaded and the caller is expected to
// drop it, forcing a client reconnect that replays via Since.
func (c *Connection) Send(event *types.Event) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	// Incremented before the enqueue so the writer can never observe the
	// event without the pending count covering it.
	atomic.AddInt32(&c.pending, 1)
	select {
	case c.sendCh <- event:
		return nil
	default:
		atomic.AddInt32(&c.pending, -1)
		return ErrConnectionOverloaded
	}
}

// SendBlocking queues an event, waiting up to timeout for buffer space.
// Replay delivery uses this: a history batch may exceed the live buffer,
// and the writer drains the channel as fast as the transport accepts
// writes, so waiting here is bounded by the client's actual read speed.
func (c *Connection) SendBlocking(event *types.Event, timeout time.Duration) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	atomic.AddInt32(&c.pending, 1)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.sendCh <- event:
		return nil
	case <-c.ctx.Done():
		atomic.AddInt32(&c.pending, -1)
		return ErrConnectionClosed
	case <-timer.C:
		atomic.AddInt32(&c.pending, -1)
		return ErrWriteTimeout
	}
}

// Close shuts down the writer goroutine and the underlying connection.
// Idempotent.
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

// CloseGraceful waits for queued events to flush, up to the timeout, then
// closes. Used when delivering terminal events like session.ended.
func (c *Connection) CloseGraceful(timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()

	for atomic.LoadInt32(&c.pending) > 0 {
		select {
		case <-deadline.C:
			return c.Close()
		case <-c.ctx.Done():
			return c.Close()
		case <-tick.C:
		}
	}
	return c.Close()
}

// Closed reports whether the connection has been closed.
func (c *Connection) Closed() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

func (c *Connection) ID() string        { return c.id }
func (c *Connection) SessionID() string { return c.sessionID }
func (c *Connection) Role() string      { return c.role }

// ViewingLanguage returns the language this participant is currently
// viewing the transcript in.
func (c *Connection) ViewingLanguage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewingLanguage
}

// SetViewingLanguage switches the viewer's language. History is not
// replayed automatically; the client issues an explicit replay request.
func (c *Connection) SetViewingLanguage(lang string) {
	c.mu.Lock()
	c.viewingLanguage = lang
	c.mu.Unlock()
}

// LastDeliveredSequence returns the highest transcript sequence written to
// the transport for this connection.
func (c *Connection) LastDeliveredSequence() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastDelivered
}
