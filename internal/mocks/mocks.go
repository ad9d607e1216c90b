package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"campus-client/internal/models"
)

type HistoryAPIMock struct {
	mock.Mock
}

func (m *HistoryAPIMock) Messages(ctx context.Context, receiverID int) ([]models.Message, error) {
	args := m.Called(ctx, receiverID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *HistoryAPIMock) Counterpart(ctx context.Context, receiverID int) (models.Actor, error) {
	args := m.Called(ctx, receiverID)
	var actor models.Actor
	if val := args.Get(0); val != nil {
		actor = val.(models.Actor)
	}
	return actor, args.Error(1)
}

type ListAPIMock struct {
	mock.Mock
}

func (m *ListAPIMock) Conversations(ctx context.Context) ([]models.ConversationSummary, error) {
	args := m.Called(ctx)
	var summaries []models.ConversationSummary
	if val := args.Get(0); val != nil {
		summaries = val.([]models.ConversationSummary)
	}
	return summaries, args.Error(1)
}

type RefresherMock struct {
	mock.Mock
}

func (m *RefresherMock) Refresh(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// StaticIdentity satisfies chat.Identity with a fixed user id.
type StaticIdentity struct {
	ID int
	OK bool
}

func (s StaticIdentity) CurrentUserID() (int, bool) {
	return s.ID, s.OK
}

// StaticTokens satisfies transport.TokenSource with a fixed token.
type StaticTokens struct {
	Token string
}

func (s StaticTokens) AccessToken() string {
	return s.Token
}
