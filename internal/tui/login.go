package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type loginModel struct {
	email    textinput.Model
	password textinput.Model
	focused  int
	busy     bool
	err      error
}

func newLoginModel() loginModel {
	email := textinput.New()
	email.Placeholder = "email"
	email.Focus()
	email.CharLimit = 120

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.CharLimit = 120

	return loginModel{email: email, password: password}
}

func (m loginModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *loginModel) setError(err error) {
	m.err = err
	m.busy = false
}

func (m loginModel) Update(msg tea.Msg, deps Deps) (loginModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab", "shift+tab", "up", "down":
			m.focused = (m.focused + 1) % 2
			if m.focused == 0 {
				m.email.Focus()
				m.password.Blur()
			} else {
				m.password.Focus()
				m.email.Blur()
			}
			return m, nil
		case "enter":
			email := strings.TrimSpace(m.email.Value())
			password := m.password.Value()
			if email == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.err = nil
			return m, func() tea.Msg {
				return loginResultMsg{err: deps.Auth.Login(context.Background(), email, password)}
			}
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.email, cmd = m.email.Update(msg)
	cmds = append(cmds, cmd)
	m.password, cmd = m.password.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m loginModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Campus") + "\n\n")
	b.WriteString("Sign in to continue\n\n")
	b.WriteString(m.email.View() + "\n")
	b.WriteString(m.password.View() + "\n\n")
	if m.busy {
		b.WriteString(mutedStyle.Render("signing in...") + "\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	}
	b.WriteString(mutedStyle.Render("enter to sign in, ctrl+c to quit"))
	return b.String()
}
