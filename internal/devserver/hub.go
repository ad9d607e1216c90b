package devserver

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"campus-client/internal/models"
)

// hub maintains the active websocket connections per conversation. A
// conversation is keyed by its unordered user pair so both participants
// (or one user twice, for self-chat) land in the same room.
type hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*websocket.Conn]bool
}

func newHub() *hub {
	return &hub{rooms: make(map[string]map[*websocket.Conn]bool)}
}

// pairKey canonicalizes the unordered user pair.
func pairKey(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

func (h *hub) add(key string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = make(map[*websocket.Conn]bool)
	}
	h.rooms[key][conn] = true
}

func (h *hub) remove(key string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[key]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, key)
		}
	}
}

// broadcast sends the message to every connection in the room, including
// the sender's own socket: the server echo is the client's only source
// for its sent messages.
func (h *hub) broadcast(key string, msg models.Message) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[key]))
	for conn := range h.rooms[key] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(msg)
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("devserver: websocket write error: %v", err)
			conn.Close()
			h.remove(key, conn)
		}
	}
}
