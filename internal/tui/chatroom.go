package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"campus-client/internal/chat"
	"campus-client/internal/session"
)

// chatRoomModel renders the chat controller's snapshot: a scrollback
// viewport over the merged message sequence and the draft input.
type chatRoomModel struct {
	controller *chat.Controller
	sess       *session.Store
	view       viewport.Model
	input      textinput.Model
	ready      bool
	width      int
	height     int
}

func newChatRoomModel(controller *chat.Controller, sess *session.Store) chatRoomModel {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 2000
	input.Focus()
	return chatRoomModel{controller: controller, sess: sess, input: input}
}

func (m chatRoomModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *chatRoomModel) reset() {
	m.input.Reset()
	if m.ready {
		m.view.SetContent("")
		m.view.GotoTop()
	}
}

func (m *chatRoomModel) setSize(w, h int) {
	m.width, m.height = w, h
	bodyHeight := h - 5
	if bodyHeight < 3 {
		bodyHeight = 3
	}
	if !m.ready {
		m.view = viewport.New(w, bodyHeight)
		m.ready = true
	} else {
		m.view.Width = w
		m.view.Height = bodyHeight
	}
	m.refresh()
}

func (m chatRoomModel) Update(msg tea.Msg) (chatRoomModel, tea.Cmd) {
	switch msg := msg.(type) {
	case ChatChangedMsg:
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, func() tea.Msg { return leaveConversationMsg{} }
		case "ctrl+r":
			m.controller.Reopen(context.Background())
			return m, nil
		case "enter":
			m.controller.SetInput(m.input.Value())
			err := m.controller.Send()
			if err == nil {
				m.input.Reset()
			}
			// ErrNotOpen leaves the draft in place; the footer already
			// shows that the channel is down.
			return m, nil
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.view, cmd = m.view.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *chatRoomModel) refresh() {
	if !m.ready {
		return
	}
	m.view.SetContent(m.renderMessages())
	m.view.GotoBottom()
}

func (m *chatRoomModel) renderMessages() string {
	snap := m.controller.Snapshot()
	selfID, _ := m.sess.CurrentUserID()

	var b strings.Builder
	if snap.SelfChat {
		b.WriteString(noticeStyle.Render(
			"This is your personal space\nDraft messages or save notes to yourself") + "\n\n")
	}
	for _, msg := range snap.Messages {
		bubble := peerBubbleStyle
		align := lipgloss.Left
		if msg.Sender == selfID {
			bubble = ownBubbleStyle
			align = lipgloss.Right
		}
		line := bubble.Render(msg.Content)
		if ts := messageTime(msg.CreatedAt); ts != "" {
			line += " " + timeStyle.Render(ts)
		}
		if m.width > 0 {
			line = lipgloss.PlaceHorizontal(m.width, align, line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (m chatRoomModel) View() string {
	snap := m.controller.Snapshot()

	if errors.Is(snap.Err, chat.ErrInvalidReceiver) {
		return errorStyle.Render("Invalid Receiver ID") + "\n\n" +
			mutedStyle.Render("esc to go back")
	}

	switch snap.State {
	case chat.StateLoading:
		return centered(m.width, m.height, mutedStyle.Render("Loading messages..."))
	case chat.StateClosed, chat.StateIdle:
		return mutedStyle.Render("No conversation selected")
	}

	if snap.Err != nil {
		return centered(m.width, m.height,
			errorStyle.Render("Error while fetching Messages")+"\n"+
				snap.Err.Error()+"\n\n"+
				mutedStyle.Render("esc to go back"))
	}

	header := "Conversation"
	if snap.Counterpart != nil {
		header = snap.Counterpart.Profile().FullName()
		if snap.SelfChat {
			header += " (You)"
		}
	}

	footer := m.input.View()
	if !snap.CanSend {
		footer += "\n" + mutedStyle.Render("channel not open, send disabled (ctrl+r to reconnect)")
	} else {
		footer += "\n" + mutedStyle.Render("enter to send, esc to go back")
	}

	body := ""
	if m.ready {
		body = m.view.View()
	}
	return titleStyle.Render(header) + "\n" + body + "\n" + footer
}
