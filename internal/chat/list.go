package chat

import (
	"context"

	"campus-client/internal/cache"
	"campus-client/internal/models"
)

// ListAPI is the slice of the request client the conversation list needs.
type ListAPI interface {
	Conversations(ctx context.Context) ([]models.ConversationSummary, error)
}

// LoadConversations reads the conversation list through the shared
// cache. Live socket events update the cached list in place, so repeated
// calls observe new last-messages without refetching.
func LoadConversations(ctx context.Context, store *cache.Store, api ListAPI) ([]models.ConversationSummary, error) {
	entry := store.Read(ctx, ConversationsKey, func(ctx context.Context) (any, error) {
		return api.Conversations(ctx)
	})
	if entry.Err != nil {
		return nil, entry.Err
	}
	summaries, _ := entry.Value.([]models.ConversationSummary)
	return summaries, nil
}
