// Package transport owns the chat websocket: one connection per open
// conversation, authenticated with the access token captured at open
// time. Transport errors are logged and surfaced only as the handle
// transitioning to closed; reconnect policy belongs to the caller.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"campus-client/internal/models"
	"campus-client/internal/observability"
)

// ErrNotOpen is returned by Send while the connection is not open.
var ErrNotOpen = errors.New("transport: connection not open")

// State of a connection handle.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TokenSource supplies the current access token. A refresh after Open
// does not re-authenticate an already-open socket; a fresh Open call
// picks up the current token.
type TokenSource interface {
	AccessToken() string
}

// Dialer opens chat connections against a websocket base URL
// (e.g. "ws://host/ws").
type Dialer struct {
	socketURL string
	tokens    TokenSource
	dial      func(ctx context.Context, url string) (*websocket.Conn, error)
}

// NewDialer builds a Dialer.
func NewDialer(socketURL string, tokens TokenSource) *Dialer {
	return &Dialer{
		socketURL: socketURL,
		tokens:    tokens,
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// Open starts a connection for the conversation with receiverID and
// returns its handle immediately, in the connecting state. The handle
// transitions to open once the handshake completes, or to closed when
// the dial fails.
func (d *Dialer) Open(ctx context.Context, receiverID int) *Handle {
	url := fmt.Sprintf("%s/chat/%d?token=%s", d.socketURL, receiverID, d.tokens.AccessToken())

	h := &Handle{done: make(chan struct{})}
	h.state.Store(int32(StateConnecting))

	go func() {
		ctx, span := observability.Tracer().Start(ctx, "ws.dial")
		span.SetAttributes(attribute.Int("chat.receiver_id", receiverID))
		defer span.End()

		conn, err := d.dial(ctx, url)
		if err != nil {
			log.Printf("transport: dial failed: %v", err)
			observability.IncWSEvent("dial_error")
			h.Close()
			return
		}

		h.mu.Lock()
		select {
		case <-h.done:
			// Closed while connecting; drop the fresh connection.
			h.mu.Unlock()
			conn.Close()
			return
		default:
		}
		h.conn = conn
		h.connected = true
		h.state.Store(int32(StateOpen))
		h.mu.Unlock()

		observability.IncWSActive()
		observability.IncWSEvent("connect")
		log.Printf("transport: connection established receiver=%d", receiverID)

		h.readLoop(conn)
	}()

	return h
}

// Handle is the live bidirectional channel for one open conversation.
type Handle struct {
	state     atomic.Int32
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	onMessage func(models.Message)
	done      chan struct{}
	closeOnce sync.Once
}

// State reports the current connection state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Done is closed when the handle reaches the closed state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// OnMessage registers the inbound frame callback. It is invoked once per
// decoded frame from the read loop goroutine. Registering a second
// callback replaces the first.
func (h *Handle) OnMessage(fn func(models.Message)) {
	h.mu.Lock()
	h.onMessage = fn
	h.mu.Unlock()
}

// Send transmits a chat message. It returns ErrNotOpen unless the
// connection state is open.
func (h *Handle) Send(content string) error {
	if h.State() != StateOpen {
		return ErrNotOpen
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return ErrNotOpen
	}
	if err := h.conn.WriteJSON(map[string]string{"message": content}); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	observability.IncWSEvent("message_out")
	return nil
}

// Close shuts the connection down. It is idempotent and safe in any
// state, including while still connecting.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.state.Store(int32(StateClosed))
		close(h.done)

		h.mu.Lock()
		conn := h.conn
		wasConnected := h.connected
		h.conn = nil
		h.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
		if wasConnected {
			observability.DecWSActive()
		}
		observability.IncWSEvent("close")
	})
}

// readLoop dispatches inbound frames until the connection drops. Frames
// that fail to decode are logged and discarded, never propagated.
func (h *Handle) readLoop(conn *websocket.Conn) {
	defer h.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-h.done:
				// Intentional close.
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("transport: read error: %v", err)
					observability.IncWSEvent("read_error")
				}
			}
			return
		}

		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("transport: could not decode frame: %v", err)
			observability.IncWSEvent("decode_error")
			continue
		}
		observability.IncWSEvent("message_in")

		h.mu.Lock()
		fn := h.onMessage
		h.mu.Unlock()
		if fn != nil {
			fn(msg)
		}
	}
}
