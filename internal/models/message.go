package models

import (
	"encoding/json"
	"time"
)

// Message represents a single chat message exchanged between two users.
// ID and CreatedAt are zero until the server has assigned them; a message
// with a server id is immutable.
type Message struct {
	ID        int       `json:"id,omitempty"`
	Sender    int       `json:"sender"`
	Receiver  int       `json:"receiver"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// timestamp layouts accepted on inbound frames. The backend emits ISO-8601
// with or without fractional seconds and timezone suffix.
var messageTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON decodes a message, accepting both "receiver" and the
// "receiver_id" alias used on websocket frames, and tolerating the
// timestamp variants the backend produces.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         int    `json:"id"`
		Sender     int    `json:"sender"`
		Receiver   int    `json:"receiver"`
		ReceiverID int    `json:"receiver_id"`
		Content    string `json:"content"`
		CreatedAt  string `json:"created_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.ID = raw.ID
	m.Sender = raw.Sender
	m.Receiver = raw.Receiver
	if m.Receiver == 0 {
		m.Receiver = raw.ReceiverID
	}
	m.Content = raw.Content
	m.CreatedAt = time.Time{}
	if raw.CreatedAt != "" {
		for _, layout := range messageTimeLayouts {
			if ts, err := time.Parse(layout, raw.CreatedAt); err == nil {
				m.CreatedAt = ts
				break
			}
		}
	}
	return nil
}

// ConversationSummary is one row of the conversation list: the counterpart
// and the most recent message exchanged with them.
type ConversationSummary struct {
	User            UserDetail `json:"user"`
	LastMessage     string     `json:"last_message"`
	LastMessageTime time.Time  `json:"last_message_time"`
}

// Conversation bundles the history of one conversation with the
// counterpart's profile, as loaded into the query cache.
type Conversation struct {
	Messages    []Message
	Counterpart Actor
}
