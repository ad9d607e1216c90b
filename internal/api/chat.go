package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"campus-client/internal/models"
)

// Conversations lists every conversation with its latest message.
func (c *Client) Conversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var out []models.ConversationSummary
	err := c.do(ctx, http.MethodGet, "/chat/", "/chat/", nil, &out)
	return out, err
}

// Messages returns the ordered history of the conversation with
// receiverID, oldest first.
func (c *Client) Messages(ctx context.Context, receiverID int) ([]models.Message, error) {
	var out []models.Message
	path := fmt.Sprintf("/chat/%d/", receiverID)
	err := c.do(ctx, http.MethodGet, "/chat/:receiver/", path, nil, &out)
	return out, err
}

// SendMessage posts a message over REST. The socket path is primary in
// the chat controller; this is the fallback send.
func (c *Client) SendMessage(ctx context.Context, receiverID int, content string) (models.Message, error) {
	var out models.Message
	path := fmt.Sprintf("/chat/%d/", receiverID)
	err := c.do(ctx, http.MethodPost, "/chat/:receiver/", path, map[string]string{"content": content}, &out)
	return out, err
}

// Counterpart fetches the role-shaped profile of the conversation
// counterpart.
func (c *Client) Counterpart(ctx context.Context, receiverID int) (models.Actor, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/users/%d/", receiverID)
	if err := c.do(ctx, http.MethodGet, "/users/:id/", path, nil, &raw); err != nil {
		return nil, err
	}
	return models.DecodeActor(raw)
}
