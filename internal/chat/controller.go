// Package chat implements the conversation controller: it merges the
// cached history fetch with live transport frames into one ordered,
// de-duplicated message sequence and ties the socket lifecycle to the
// view lifetime.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"campus-client/internal/cache"
	"campus-client/internal/models"
	"campus-client/internal/transport"
)

// ErrInvalidReceiver marks a non-positive conversation id; no fetch is
// issued and no socket is opened for it.
var ErrInvalidReceiver = errors.New("invalid receiver id")

// ConversationsKey caches the conversation list shown by other views.
const ConversationsKey = "conversations"

// Key names the cache entry holding one conversation's history and
// counterpart profile.
func Key(receiverID int) string {
	return fmt.Sprintf("chat/%d", receiverID)
}

// State of the controller for the currently selected conversation.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateClosed
)

// HistoryAPI is the slice of the request client the controller needs.
type HistoryAPI interface {
	Messages(ctx context.Context, receiverID int) ([]models.Message, error)
	Counterpart(ctx context.Context, receiverID int) (models.Actor, error)
}

// Opener opens chat transport connections.
type Opener interface {
	Open(ctx context.Context, receiverID int) *transport.Handle
}

// Identity reports the signed-in user.
type Identity interface {
	CurrentUserID() (int, bool)
}

// Snapshot is the render-ready view of the controller state.
type Snapshot struct {
	State       State
	ReceiverID  int
	Messages    []models.Message
	Counterpart models.Actor
	SelfChat    bool
	CanSend     bool
	Input       string
	Err         error
}

// Controller drives one conversation at a time. All methods are safe for
// concurrent use; transport callbacks and history resolution are fenced
// by a generation counter so late arrivals for a previous conversation
// are provably inert.
type Controller struct {
	api    HistoryAPI
	store  *cache.Store
	dialer Opener
	ident  Identity

	mu          sync.Mutex
	state       State
	receiverID  int
	gen         int
	cancel      context.CancelFunc
	handle      *transport.Handle
	messages    []models.Message
	early       []models.Message
	historyDone bool
	counterpart models.Actor
	err         error
	input       string

	onChange func()
}

// NewController wires a controller against its collaborators.
func NewController(api HistoryAPI, store *cache.Store, dialer Opener, ident Identity) *Controller {
	return &Controller{api: api, store: store, dialer: dialer, ident: ident}
}

// OnChange registers a callback fired after every state transition, for
// re-rendering. It must not call back into the controller synchronously.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Select switches to the conversation with receiverID. The previous
// conversation's socket is closed unconditionally, even mid-handshake,
// and its pending history fetch may still settle into the cache but is
// never applied here. A non-positive id short-circuits before any fetch
// or dial.
func (c *Controller) Select(ctx context.Context, receiverID int) {
	c.mu.Lock()
	c.teardownLocked()
	c.gen++
	gen := c.gen

	c.receiverID = receiverID
	c.messages = nil
	c.early = nil
	c.historyDone = false
	c.counterpart = nil
	c.err = nil
	c.input = ""

	if receiverID <= 0 {
		c.state = StateIdle
		c.err = ErrInvalidReceiver
		c.mu.Unlock()
		c.notify()
		return
	}

	c.state = StateLoading
	cctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	handle := c.dialer.Open(cctx, receiverID)
	handle.OnMessage(func(msg models.Message) {
		c.onLive(gen, receiverID, msg)
	})
	c.handle = handle
	c.mu.Unlock()
	c.notify()

	go func() {
		entry := c.store.Read(cctx, Key(receiverID), func(ctx context.Context) (any, error) {
			return c.fetchConversation(ctx, receiverID)
		})
		c.applyHistory(gen, entry)
	}()
}

// Reopen dials a fresh socket for the current conversation with a
// current token. There is no automatic reconnect; this is the manual
// retry path.
func (c *Controller) Reopen(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateClosed || c.receiverID <= 0 {
		c.mu.Unlock()
		return
	}
	if c.handle != nil {
		c.handle.Close()
	}
	gen := c.gen
	receiverID := c.receiverID

	handle := c.dialer.Open(ctx, receiverID)
	handle.OnMessage(func(msg models.Message) {
		c.onLive(gen, receiverID, msg)
	})
	c.handle = handle
	c.mu.Unlock()
	c.notify()
}

// Leave closes the current conversation; the transport is shut down
// synchronously and any in-flight history fetch result is ignored.
func (c *Controller) Leave() {
	c.mu.Lock()
	c.teardownLocked()
	c.state = StateClosed
	c.mu.Unlock()
	c.notify()
}

// SetInput stores the draft message text.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
}

// Send transmits the trimmed draft over the socket. It is a no-op when
// the draft is empty after trimming, and returns ErrNotOpen without
// clearing the draft when the connection is not open. The sent message
// is never appended locally: it arrives back through the inbound
// channel, the single source of truth for message identity and order.
func (c *Controller) Send() error {
	c.mu.Lock()
	content := strings.TrimSpace(c.input)
	if content == "" {
		c.mu.Unlock()
		return nil
	}
	handle := c.handle
	if handle == nil || handle.State() != transport.StateOpen {
		c.mu.Unlock()
		return transport.ErrNotOpen
	}
	c.mu.Unlock()

	if err := handle.Send(content); err != nil {
		return err
	}

	c.mu.Lock()
	c.input = ""
	c.mu.Unlock()
	c.notify()
	return nil
}

// Snapshot returns a copy of the current render state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	selfID, ok := c.ident.CurrentUserID()
	msgs := make([]models.Message, len(c.messages))
	copy(msgs, c.messages)

	return Snapshot{
		State:       c.state,
		ReceiverID:  c.receiverID,
		Messages:    msgs,
		Counterpart: c.counterpart,
		SelfChat:    ok && c.receiverID == selfID,
		CanSend:     c.handle != nil && c.handle.State() == transport.StateOpen,
		Input:       c.input,
		Err:         c.err,
	}
}

// fetchConversation loads history and the counterpart profile for one
// cache entry.
func (c *Controller) fetchConversation(ctx context.Context, receiverID int) (models.Conversation, error) {
	msgs, err := c.api.Messages(ctx, receiverID)
	if err != nil {
		return models.Conversation{}, err
	}
	counterpart, err := c.api.Counterpart(ctx, receiverID)
	if err != nil {
		return models.Conversation{}, err
	}
	return models.Conversation{Messages: msgs, Counterpart: counterpart}, nil
}

// applyHistory folds the settled cache entry into the view. A stale
// generation means the user switched conversations while the fetch was
// in flight: the result stays in the cache but is not applied.
func (c *Controller) applyHistory(gen int, entry cache.Entry) {
	c.mu.Lock()
	if gen != c.gen || c.state == StateClosed {
		c.mu.Unlock()
		return
	}

	if entry.Err != nil {
		c.err = entry.Err
		c.state = StateReady
		c.mu.Unlock()
		c.notify()
		return
	}

	conv, ok := entry.Value.(models.Conversation)
	if !ok {
		c.err = fmt.Errorf("unexpected cache value for conversation")
		c.state = StateReady
		c.mu.Unlock()
		c.notify()
		return
	}

	// Live frames that raced ahead of the history fetch are re-appended
	// after it: the merged sequence is always history first, then live
	// arrivals in socket order.
	early := c.early
	c.messages = make([]models.Message, 0, len(conv.Messages)+len(early))
	c.messages = append(c.messages, conv.Messages...)
	c.messages = append(c.messages, early...)
	c.early = nil
	c.historyDone = true
	c.counterpart = conv.Counterpart
	c.state = StateReady
	receiverID := c.receiverID
	c.mu.Unlock()

	// Fold raced-ahead frames into the cached conversation so a remount
	// sees the same merged sequence.
	if len(early) > 0 {
		c.store.Write(Key(receiverID), conv, func(current any) any {
			cached, ok := current.(models.Conversation)
			if !ok {
				cached = conv
			}
			cached.Messages = append(cached.Messages, early...)
			return cached
		})
	}
	c.notify()
}

// onLive appends one inbound frame. The protocol guarantees every live
// frame is a new message, so a plain append cannot double-count: no
// optimistic insert ever happens, and history and live frames originate
// from disjoint sources.
func (c *Controller) onLive(gen int, receiverID int, msg models.Message) {
	c.mu.Lock()
	if gen != c.gen || c.state == StateClosed {
		c.mu.Unlock()
		return
	}

	historyDone := c.historyDone
	if !historyDone {
		c.early = append(c.early, msg)
	} else {
		c.messages = append(c.messages, msg)
	}
	counterpart := c.counterpart
	c.mu.Unlock()

	// Write-through so the conversation list and a future remount of
	// this conversation observe the new message without a round trip.
	// Frames racing ahead of the history fetch are folded in when the
	// fetch settles instead.
	if historyDone {
		c.store.Write(Key(receiverID), models.Conversation{Counterpart: counterpart}, func(current any) any {
			conv, ok := current.(models.Conversation)
			if !ok {
				conv = models.Conversation{Counterpart: counterpart}
			}
			conv.Messages = append(conv.Messages, msg)
			return conv
		})
	}
	if entry, ok := c.store.Peek(ConversationsKey); ok && entry.Status == cache.StatusResolved {
		c.store.Write(ConversationsKey, nil, func(current any) any {
			summaries, ok := current.([]models.ConversationSummary)
			if !ok {
				return current
			}
			for i := range summaries {
				if summaries[i].User.ID == receiverID {
					summaries[i].LastMessage = msg.Content
					summaries[i].LastMessageTime = msg.CreatedAt
				}
			}
			return summaries
		})
	}

	c.notify()
}

// teardownLocked closes the socket and cancels the fetch scope; callers
// hold the lock.
func (c *Controller) teardownLocked() {
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
