package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"campus-client/internal/cache"
	"campus-client/internal/mocks"
	"campus-client/internal/models"
	"campus-client/internal/transport"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// chatServer is a scripted websocket endpoint: pushed messages go to the
// connected client, and incoming {"message"} frames are echoed back the
// way the backend broadcasts them.
type chatServer struct {
	*httptest.Server

	mu    sync.Mutex
	conns map[int]*websocket.Conn
}

func newChatServer(t *testing.T, selfID int) *chatServer {
	t.Helper()
	s := &chatServer{conns: make(map[int]*websocket.Conn)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		receiverID, _ := strconv.Atoi(parts[len(parts)-1])

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[receiverID] = conn
		s.mu.Unlock()

		for {
			var frame map[string]string
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			conn.WriteJSON(models.Message{
				ID:        100,
				Sender:    selfID,
				Receiver:  receiverID,
				Content:   frame["message"],
				CreatedAt: time.Now().UTC(),
			})
		}
	}))
	t.Cleanup(s.Server.Close)
	return s
}

// push delivers a message to the client connected for receiverID,
// waiting for the connection first.
func (s *chatServer) push(t *testing.T, receiverID int, msg models.Message) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		s.mu.Lock()
		conn := s.conns[receiverID]
		s.mu.Unlock()
		if conn != nil {
			require.NoError(t, conn.WriteJSON(msg))
			return
		}
		select {
		case <-deadline:
			t.Fatal("no client connected")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

type countingOpener struct {
	dialer *transport.Dialer

	mu    sync.Mutex
	opens int
}

func (o *countingOpener) Open(ctx context.Context, receiverID int) *transport.Handle {
	o.mu.Lock()
	o.opens++
	o.mu.Unlock()
	return o.dialer.Open(ctx, receiverID)
}

func (o *countingOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func testController(server *chatServer, api HistoryAPI, selfID int) (*Controller, *cache.Store, *countingOpener) {
	store := cache.NewStore()
	socketURL := strings.Replace(server.URL, "http", "ws", 1)
	opener := &countingOpener{dialer: transport.NewDialer(socketURL, mocks.StaticTokens{Token: "tok"})}
	return NewController(api, store, opener, mocks.StaticIdentity{ID: selfID, OK: true}), store, opener
}

func waitSnapshot(t *testing.T, c *Controller, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		snap := c.Snapshot()
		if cond(snap) {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("condition never met, state=%v err=%v messages=%d", snap.State, snap.Err, len(snap.Messages))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func history(contents ...string) []models.Message {
	msgs := make([]models.Message, len(contents))
	for i, content := range contents {
		msgs[i] = models.Message{ID: i + 1, Sender: 2, Receiver: 1, Content: content}
	}
	return msgs
}

func counterpart(id int) models.Actor {
	return models.Student{ID: id, User: models.UserDetail{ID: id, FirstName: "Priya", Role: models.RoleStudent}}
}

func TestSelectLoadsHistoryAndOpensSocket(t *testing.T) {
	server := newChatServer(t, 1)
	api := new(mocks.HistoryAPIMock)
	api.On("Messages", mock.Anything, 2).Return(history("hi", "hello"), nil).Once()
	api.On("Counterpart", mock.Anything, 2).Return(counterpart(2), nil).Once()

	c, _, _ := testController(server, api, 1)
	c.Select(context.Background(), 2)

	snap := waitSnapshot(t, c, func(s Snapshot) bool {
		return s.State == StateReady && s.CanSend
	})
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "hi", snap.Messages[0].Content)
	assert.Equal(t, "Priya", snap.Counterpart.Profile().FirstName)
	assert.False(t, snap.SelfChat)
	api.AssertExpectations(t)
}

func TestSelectInvalidReceiver(t *testing.T) {
	server := newChatServer(t, 1)
	api := new(mocks.HistoryAPIMock)

	c, _, opener := testController(server, api, 1)
	for _, id := range []int{0, -5} {
		c.Select(context.Background(), id)

		snap := c.Snapshot()
		require.Equal(t, StateIdle, snap.State)
		require.ErrorIs(t, snap.Err, ErrInvalidReceiver)
		assert.False(t, snap.CanSend)
	}

	assert.Equal(t, 0, opener.count())
	api.AssertNotCalled(t, "Messages", mock.Anything, mock.Anything)
}

func TestLiveFrameAppendsAfterHistory(t *testing.T) {
	server := newChatServer(t, 1)
	api := new(mocks.HistoryAPIMock)
	api.On("Messages", mock.Anything, 2).Return(history("old"), nil).Once()
	api.On("Counterpart", mock.Anything, 2).Return(counterpart(2), nil).Once()

	c, store, _ := testController(server, api, 1)
	c.Select(context.Background(), 2)
	waitSnapshot(t, c, func(s Snapshot) bool { return s.State == StateReady && s.CanSend })

	server.push(t, 2, models.Message{ID: 5, Sender: 2, Receiver: 1, Content: "new"})

	snap := waitSnapshot(t, c, func(s Snapshot) bool { return len(s.Messages) == 2 })
	assert.Equal(t, "old", snap.Messages[0].Content)
	assert.Equal(t, "new", snap.Messages[1].Content)

	// The live frame is written through to the cached conversation.
	entry, ok := store.Peek(Key(2))
	require.True(t, ok)
	conv := entry.Value.(models.Conversation)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "new", conv.Messages[1].Content)
}

func TestEarlyFramesLandAfterHistory(t *testing.T) {
	server := newChatServer(t, 1)
	release := make(chan struct{})
	api := new(mocks.HistoryAPIMock)
	api.On("Messages", mock.Anything, 2).Run(func(mock.Arguments) {
		<-release
	}).Return(history("h1", "h2"), nil).Once()
	api.On("Counterpart", mock.Anything, 2).Return(counterpart(2), nil).Once()

	c, store, _ := testController(server, api, 1)
	c.Select(context.Background(), 2)

	// A frame arrives while the history fetch is still in flight.
	server.push(t, 2, models.Message{ID: 9, Sender: 2, Receiver: 1, Content: "raced ahead"})
	waitSnapshot(t, c, func(s Snapshot) bool { return s.CanSend })
	time.Sleep(50 * time.Millisecond)
	close(release)

	snap := waitSnapshot(t, c, func(s Snapshot) bool {
		return s.State == StateReady && len(s.Messages) == 3
	})
	assert.Equal(t, "h1", snap.Messages[0].Content)
	assert.Equal(t, "h2", snap.Messages[1].Content)
	assert.Equal(t, "raced ahead", snap.Messages[2].Content)

	entry, ok := store.Peek(Key(2))
	require.True(t, ok)
	conv := entry.Value.(models.Conversation)
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, "raced ahead", conv.Messages[2].Content)
}

func TestSendAppendsOnlyViaEcho(t *testing.T) {
	server := newChatServer(t, 1)
	api := new(mocks.HistoryAPIMock)
	api.On("Messages", mock.Anything, 2).Return([]models.Message(nil), nil).Once()
	api.On("Counterpart", mock.Anything, 2).Return(counterpart(2), nil).Once()

	c, _, _ := testController(server, api, 1)
	c.Select(context.Background(), 2)
	waitSnapshot(t, c, func(s Snapshot) bool { return s.State == StateReady && s.CanSend })

	c.SetInput("  hello there  ")
	require.NoError(t, c.Send())

	// Nothing is appended locally; the message shows up once the server
	// echoes it back.
	snap := waitSnapshot(t, c, func(s Snapshot) bool { return len(s.Messages) == 1 })
	assert.Equal(t, "hello there", snap.Messages[0].Content)
	assert.Equal(t, 1, snap.Messages[0].Sender)
	assert.Empty(t, snap.Input)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, c.Snapshot().Messages, 1)
}

func TestSendGuards(t *testing.T) {
	server := newChatServer(t, 1)
	api := new(mocks.HistoryAPIMock)
	api.On("Messages", mock.Anything, 2).Return([]models.Message(nil), nil)
	api.On("Counterpart", mock.Anything, 2).Return(counterpart(2), nil)

	c, _, _ := testController(server, api, 1)
	c.Select(context.Background(), 2)
	waitSnapshot(t, c, func(s Snapshot) bool { return s.State == StateReady && s.CanSend })

	// A whitespace-only draft is a silent no-op.
	c.SetInput("   ")
	require.NoError(t, c.Send())
	assert.Equal(t, "   ", c.Snapshot().Input)

	// With the socket down, the draft survives the failed send.
	c.Leave()
	c.Select(context.Background(), 2)
	c.Leave()
	c.SetInput("draft")
	require.ErrorIs(t, c.Send(), transport.ErrNotOpen)
	assert.Equal(t, "draft", c.Snapshot().Input)
}

// blockingHistoryAPI serves canned history but, for slowReceiver, only
// after release closes or the request context is canceled, the way a
// real HTTP fetch aborts when its context goes away.
type blockingHistoryAPI struct {
	slowReceiver int
	release      chan struct{}
}

func (a *blockingHistoryAPI) Messages(ctx context.Context, receiverID int) ([]models.Message, error) {
	if receiverID == a.slowReceiver {
		select {
		case <-a.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return history("from " + strconv.Itoa(receiverID)), nil
}

func (a *blockingHistoryAPI) Counterpart(ctx context.Context, receiverID int) (models.Actor, error) {
	return counterpart(receiverID), nil
}

func TestReturningAfterSwitchReloadsHistory(t *testing.T) {
	server := newChatServer(t, 1)
	api := &blockingHistoryAPI{slowReceiver: 2, release: make(chan struct{})}

	c, store, _ := testController(server, api, 1)
	c.Select(context.Background(), 2)

	// Switching away cancels the in-flight fetch; it settles into the
	// cache as an aborted entry.
	c.Select(context.Background(), 3)
	waitSnapshot(t, c, func(s Snapshot) bool {
		return s.State == StateReady && s.ReceiverID == 3
	})
	deadline := time.After(2 * time.Second)
	for {
		entry, ok := store.Peek(Key(2))
		if ok && entry.Status == cache.StatusErrored {
			break
		}
		select {
		case <-deadline:
			t.Fatal("abandoned fetch never settled")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Coming back must reload the history, not replay the abort.
	close(api.release)
	c.Select(context.Background(), 2)
	snap := waitSnapshot(t, c, func(s Snapshot) bool {
		return s.State == StateReady && s.ReceiverID == 2
	})
	require.NoError(t, snap.Err)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "from 2", snap.Messages[0].Content)
}

func TestSwitchDropsStaleHistory(t *testing.T) {
	server := newChatServer(t, 1)
	release := make(chan struct{})
	api := new(mocks.HistoryAPIMock)
	api.On("Messages", mock.Anything, 2).Run(func(mock.Arguments) {
		<-release
	}).Return(history("slow conversation"), nil).Once()
	api.On("Counterpart", mock.Anything, 2).Return(counterpart(2), nil).Once()
	api.On("Messages", mock.Anything, 3).Return(history("fast conversation"), nil).Once()
	api.On("Counterpart", mock.Anything, 3).Return(counterpart(3), nil).Once()

	c, store, _ := testController(server, api, 1)
	c.Select(context.Background(), 2)
	c.Select(context.Background(), 3)

	snap := waitSnapshot(t, c, func(s Snapshot) bool { return s.State == StateReady })
	require.Equal(t, 3, snap.ReceiverID)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "fast conversation", snap.Messages[0].Content)

	// The first fetch settles into the cache but never reaches the view.
	close(release)
	deadline := time.After(2 * time.Second)
	for {
		entry, ok := store.Peek(Key(2))
		if ok && entry.Status == cache.StatusResolved {
			break
		}
		select {
		case <-deadline:
			t.Fatal("abandoned fetch never settled")
		case <-time.After(5 * time.Millisecond):
		}
	}
	snap = c.Snapshot()
	assert.Equal(t, 3, snap.ReceiverID)
	assert.Equal(t, "fast conversation", snap.Messages[0].Content)
}

func TestSelfChat(t *testing.T) {
	server := newChatServer(t, 1)
	api := new(mocks.HistoryAPIMock)
	self := models.Message{ID: 1, Sender: 1, Receiver: 1, Content: "note to self"}
	api.On("Messages", mock.Anything, 1).Return([]models.Message{self}, nil).Once()
	api.On("Counterpart", mock.Anything, 1).Return(counterpart(1), nil).Once()

	c, _, _ := testController(server, api, 1)
	c.Select(context.Background(), 1)

	snap := waitSnapshot(t, c, func(s Snapshot) bool { return s.State == StateReady })
	assert.True(t, snap.SelfChat)
	require.Len(t, snap.Messages, 1)
}

func TestHistoryErrorSurfaced(t *testing.T) {
	server := newChatServer(t, 1)
	api := new(mocks.HistoryAPIMock)
	api.On("Messages", mock.Anything, 2).Return([]models.Message(nil), assert.AnError).Once()

	c, _, _ := testController(server, api, 1)
	c.Select(context.Background(), 2)

	snap := waitSnapshot(t, c, func(s Snapshot) bool { return s.State == StateReady })
	require.ErrorIs(t, snap.Err, assert.AnError)
	assert.Empty(t, snap.Messages)
}

func TestLeaveClosesSocket(t *testing.T) {
	server := newChatServer(t, 1)
	api := new(mocks.HistoryAPIMock)
	api.On("Messages", mock.Anything, 2).Return([]models.Message(nil), nil).Once()
	api.On("Counterpart", mock.Anything, 2).Return(counterpart(2), nil).Once()

	c, _, _ := testController(server, api, 1)
	c.Select(context.Background(), 2)
	waitSnapshot(t, c, func(s Snapshot) bool { return s.CanSend })

	c.Leave()
	snap := c.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.False(t, snap.CanSend)

	c.SetInput("too late")
	require.ErrorIs(t, c.Send(), transport.ErrNotOpen)
}

func TestReopenRestoresSend(t *testing.T) {
	server := newChatServer(t, 1)
	api := new(mocks.HistoryAPIMock)
	api.On("Messages", mock.Anything, 2).Return([]models.Message(nil), nil).Once()
	api.On("Counterpart", mock.Anything, 2).Return(counterpart(2), nil).Once()

	c, _, opener := testController(server, api, 1)
	c.Select(context.Background(), 2)
	waitSnapshot(t, c, func(s Snapshot) bool { return s.State == StateReady && s.CanSend })

	c.Reopen(context.Background())
	waitSnapshot(t, c, func(s Snapshot) bool { return s.CanSend })
	assert.Equal(t, 2, opener.count())

	c.SetInput("back online")
	require.NoError(t, c.Send())
}

func TestLiveFrameUpdatesConversationList(t *testing.T) {
	server := newChatServer(t, 1)
	api := new(mocks.HistoryAPIMock)
	api.On("Messages", mock.Anything, 2).Return([]models.Message(nil), nil).Once()
	api.On("Counterpart", mock.Anything, 2).Return(counterpart(2), nil).Once()

	list := new(mocks.ListAPIMock)
	list.On("Conversations", mock.Anything).Return([]models.ConversationSummary{
		{User: models.UserDetail{ID: 2, FirstName: "Priya"}, LastMessage: "old"},
	}, nil).Once()

	c, store, _ := testController(server, api, 1)
	summaries, err := LoadConversations(context.Background(), store, list)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	c.Select(context.Background(), 2)
	waitSnapshot(t, c, func(s Snapshot) bool { return s.State == StateReady && s.CanSend })

	server.push(t, 2, models.Message{ID: 7, Sender: 2, Receiver: 1, Content: "latest", CreatedAt: time.Now().UTC()})
	waitSnapshot(t, c, func(s Snapshot) bool { return len(s.Messages) == 1 })

	// The cached list is updated in place, without a second fetch.
	summaries, err = LoadConversations(context.Background(), store, list)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "latest", summaries[0].LastMessage)
	list.AssertExpectations(t)
}
