// Package tui is the interactive chat screen.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/benaskins/penny/internal/chat"
	"github.com/benaskins/penny/internal/store"
	"github.com/benaskins/penny/internal/vault"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Completer produces the assistant's next turn.
type Completer interface {
	Complete(ctx context.Context, messages []chat.Message) (chat.Message, error)
}

// History persists turns as they happen.
type History interface {
	AddMessage(ctx context.Context, conversationID int64, role, content string) (*store.Message, error)
}

type Options struct {
	Completer      Completer
	History        History
	ConversationID int64
	Title          string
	// Transcript is the prior history sent with every request.
	Transcript []chat.Message
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	statusStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type replyMsg struct {
	reply chat.Message
}

type errMsg struct {
	err error
	// unsaved means the user turn never reached History.
	unsaved bool
}

type model struct {
	ctx  context.Context
	opts Options

	transcript []chat.Message
	input      textinput.Model
	view       viewport.Model
	waiting    bool
	status     string
	failed     bool
	width      int
}

// Run starts the chat screen and blocks until the user quits.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(newModel(ctx, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func newModel(ctx context.Context, opts Options) model {
	ti := textinput.New()
	ti.Placeholder = "Send a message"
	ti.Prompt = "> "
	ti.CharLimit = 0
	ti.Width = 76
	ti.Focus()

	m := model{
		ctx:        ctx,
		opts:       opts,
		transcript: append([]chat.Message(nil), opts.Transcript...),
		input:      ti,
		view:       viewport.New(80, 20),
		status:     "enter send  •  esc quit",
		width:      80,
	}
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd { return textinput.Blink }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-4, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.waiting {
				return m, nil
			}
			m.input.Reset()
			m.transcript = append(m.transcript, chat.Message{Role: chat.RoleUser, Content: chat.Text(text)})
			m.waiting = true
			m.failed = false
			m.status = "thinking..."
			m.refresh()
			return m, m.send(text)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case replyMsg:
		m.waiting = false
		m.transcript = append(m.transcript, msg.reply)
		m.status = "enter send  •  esc quit"
		m.refresh()
		return m, nil

	case errMsg:
		m.waiting = false
		m.failed = true
		m.status = describe(msg.err)
		if msg.unsaved {
			// Put the text back so it can be resent.
			if n := len(m.transcript); n > 0 && m.transcript[n-1].Role == chat.RoleUser {
				m.input.SetValue(m.transcript[n-1].Content.String())
				m.transcript = m.transcript[:n-1]
				m.refresh()
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send persists the user turn, asks for a reply and persists that too.
func (m model) send(text string) tea.Cmd {
	ctx, opts := m.ctx, m.opts
	transcript := append([]chat.Message(nil), m.transcript...)
	return func() tea.Msg {
		if opts.History != nil {
			if _, err := opts.History.AddMessage(ctx, opts.ConversationID, chat.RoleUser, text); err != nil {
				return errMsg{err: fmt.Errorf("saving message: %w", err), unsaved: true}
			}
		}
		reply, err := opts.Completer.Complete(ctx, transcript)
		if err != nil {
			return errMsg{err: err}
		}
		if opts.History != nil {
			if _, err := opts.History.AddMessage(ctx, opts.ConversationID, reply.Role, reply.Content.String()); err != nil {
				return errMsg{err: fmt.Errorf("saving reply: %w", err)}
			}
		}
		return replyMsg{reply}
	}
}

// describe turns an error into status text. Vault errors never reveal
// more than the generic user message.
func describe(err error) string {
	if msg, ok := vault.UserMessage(err); ok {
		return msg
	}
	return err.Error()
}

func (m *model) refresh() {
	var b strings.Builder
	wrap := lipgloss.NewStyle().Width(max(m.width-2, 10))
	for _, msg := range m.transcript {
		if msg.Role == chat.RoleSystem {
			continue
		}
		label := assistantStyle.Render("assistant")
		if msg.Role == chat.RoleUser {
			label = userStyle.Render("you")
		}
		b.WriteString(label + "\n")
		b.WriteString(wrap.Render(msg.Content.String()) + "\n\n")
	}
	m.view.SetContent(b.String())
	m.view.GotoBottom()
}

func (m model) View() string {
	title := m.opts.Title
	if title == "" {
		title = "penny"
	}
	status := statusStyle.Render(m.status)
	if m.failed {
		status = errorStyle.Render(m.status)
	}
	return titleStyle.Render(title) + "\n" + m.view.View() + "\n" + m.input.View() + "\n" + status
}
