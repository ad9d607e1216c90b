package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"campus-client/internal/chat"
	"campus-client/internal/models"
)

// convListModel shows the conversation list and a user search for
// starting new conversations.
type convListModel struct {
	summaries []models.ConversationSummary
	results   []models.UserDetail
	searching bool
	search    textinput.Model
	cursor    int
	loading   bool
	err       error
	width     int
	height    int
}

func newConvListModel() convListModel {
	search := textinput.New()
	search.Placeholder = "search users"
	search.CharLimit = 120
	return convListModel{loading: true, search: search}
}

func (m convListModel) Init() tea.Cmd {
	return nil
}

func (m *convListModel) setSize(w, h int) {
	m.width, m.height = w, h
}

func (m *convListModel) setConversations(summaries []models.ConversationSummary, err error) {
	m.summaries = summaries
	m.err = err
	m.loading = false
	if m.cursor >= len(summaries) {
		m.cursor = 0
	}
}

func (m *convListModel) setSearchResults(users []models.UserDetail, err error) {
	m.results = users
	m.err = err
	m.cursor = 0
}

func (m convListModel) Update(msg tea.Msg, deps Deps) (convListModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.searching {
		switch key.String() {
		case "esc":
			m.searching = false
			m.results = nil
			m.search.Reset()
			m.cursor = 0
			return m, nil
		case "enter":
			if len(m.results) > 0 && m.cursor < len(m.results) {
				return m, openCmd(m.results[m.cursor].ID)
			}
			query := strings.TrimSpace(m.search.Value())
			if query == "" {
				return m, nil
			}
			return m, func() tea.Msg {
				users, err := deps.API.SearchUsers(context.Background(), query)
				return searchResultsMsg{users: users, err: err}
			}
		case "up":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down":
			if m.cursor < len(m.results)-1 {
				m.cursor++
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "/":
		m.searching = true
		m.cursor = 0
		m.search.Focus()
		return m, textinput.Blink
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.summaries)-1 {
			m.cursor++
		}
	case "r":
		m.loading = true
		deps.Store.Invalidate(chat.ConversationsKey)
		return m, loadConversationsCmd(deps)
	case "enter":
		if len(m.summaries) > 0 && m.cursor < len(m.summaries) {
			return m, openCmd(m.summaries[m.cursor].User.ID)
		}
	}
	return m, nil
}

func openCmd(receiverID int) tea.Cmd {
	return func() tea.Msg {
		return openConversationMsg{receiverID: receiverID}
	}
}

func (m convListModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Messages") + "\n\n")

	if m.searching {
		b.WriteString(m.search.View() + "\n\n")
		for i, u := range m.results {
			line := fmt.Sprintf("%s  %s", u.FullName(), mutedStyle.Render(u.Email))
			if i == m.cursor {
				line = selectedStyle.Render("> ") + line
			} else {
				line = "  " + line
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n" + mutedStyle.Render("enter to search/open, esc to cancel"))
		return b.String()
	}

	switch {
	case m.loading:
		b.WriteString(mutedStyle.Render("Loading...") + "\n")
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	case len(m.summaries) == 0:
		b.WriteString(mutedStyle.Render("No conversations yet. Press / to find someone.") + "\n")
	default:
		now := time.Now()
		for i, s := range m.summaries {
			name := s.User.FullName()
			line := fmt.Sprintf("%-24s %s  %s",
				name, truncate(s.LastMessage, 40), timeStyle.Render(relativeTime(s.LastMessageTime, now)))
			if i == m.cursor {
				line = selectedStyle.Render("> ") + line
			} else {
				line = "  " + line
			}
			b.WriteString(line + "\n")
		}
	}

	b.WriteString("\n" + mutedStyle.Render("enter to open, / to search, r to refresh, ctrl+c to quit"))
	return b.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
