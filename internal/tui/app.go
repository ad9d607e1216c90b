// Package tui renders the terminal front-end: login, the conversation
// list, and the chat room driven by the chat controller.
package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"campus-client/internal/api"
	"campus-client/internal/cache"
	"campus-client/internal/chat"
	"campus-client/internal/models"
	"campus-client/internal/session"
)

// Deps are the collaborators the TUI drives.
type Deps struct {
	Session    *session.Store
	API        *api.Client
	Auth       *api.AuthClient
	Store      *cache.Store
	Controller *chat.Controller
}

type screen int

const (
	screenLogin screen = iota
	screenConversations
	screenChat
)

// ChatChangedMsg is posted by the controller's change callback so the
// chat room re-reads its snapshot.
type ChatChangedMsg struct{}

type conversationsMsg struct {
	summaries []models.ConversationSummary
	err       error
}

type loginResultMsg struct {
	err error
}

type searchResultsMsg struct {
	users []models.UserDetail
	err   error
}

type openConversationMsg struct {
	receiverID int
}

type leaveConversationMsg struct{}

// App is the root bubbletea model.
type App struct {
	deps   Deps
	screen screen
	login  loginModel
	convs  convListModel
	room   chatRoomModel
	width  int
	height int
}

// NewApp builds the root model. The session decides the first screen.
func NewApp(deps Deps) App {
	app := App{
		deps:  deps,
		login: newLoginModel(),
		convs: newConvListModel(),
		room:  newChatRoomModel(deps.Controller, deps.Session),
	}
	if deps.Session.CurrentUser() != nil {
		app.screen = screenConversations
	}
	return app
}

// Init starts the first screen's work.
func (a App) Init() tea.Cmd {
	if a.screen == screenConversations {
		return tea.Batch(loadConversationsCmd(a.deps), a.convs.Init())
	}
	return a.login.Init()
}

// Update routes messages to the active screen.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.room.setSize(msg.Width, msg.Height)
		a.convs.setSize(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			a.deps.Controller.Leave()
			return a, tea.Quit
		}

	case loginResultMsg:
		if msg.err != nil {
			a.login.setError(msg.err)
			return a, nil
		}
		a.screen = screenConversations
		return a, loadConversationsCmd(a.deps)

	case conversationsMsg:
		if isSessionExpired(msg.err) {
			return a.toLogin(), nil
		}
		a.convs.setConversations(msg.summaries, msg.err)
		return a, nil

	case searchResultsMsg:
		if isSessionExpired(msg.err) {
			return a.toLogin(), nil
		}
		a.convs.setSearchResults(msg.users, msg.err)
		return a, nil

	case openConversationMsg:
		a.deps.Controller.Select(context.Background(), msg.receiverID)
		a.screen = screenChat
		a.room.reset()
		return a, a.room.Init()

	case leaveConversationMsg:
		a.deps.Controller.Leave()
		a.screen = screenConversations
		return a, loadConversationsCmd(a.deps)
	}

	var cmd tea.Cmd
	switch a.screen {
	case screenLogin:
		a.login, cmd = a.login.Update(msg, a.deps)
	case screenConversations:
		a.convs, cmd = a.convs.Update(msg, a.deps)
	case screenChat:
		a.room, cmd = a.room.Update(msg)
	}
	return a, cmd
}

// View renders the active screen.
func (a App) View() string {
	switch a.screen {
	case screenLogin:
		return a.login.View()
	case screenConversations:
		return a.convs.View()
	case screenChat:
		return a.room.View()
	default:
		return ""
	}
}

func (a App) toLogin() App {
	a.screen = screenLogin
	a.login = newLoginModel()
	a.login.setError(api.ErrSessionExpired)
	return a
}

func isSessionExpired(err error) bool {
	return errors.Is(err, api.ErrSessionExpired)
}

func loadConversationsCmd(deps Deps) tea.Cmd {
	return func() tea.Msg {
		summaries, err := chat.LoadConversations(context.Background(), deps.Store, deps.API)
		return conversationsMsg{summaries: summaries, err: err}
	}
}

func centered(width, height int, content string) string {
	if width == 0 || height == 0 {
		return content
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}
