package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/muesli/reflow/wordwrap"
)

// Session is the part of the chat session the UI drives.
type Session interface {
	Submit(text, context string)
	Reset()
	SetPersona(persona string)
	Persona() string
	PendingCount() int
	Personas(ctx context.Context) ([]string, error)
}

// StateMsg carries a session state change into the program.
type StateMsg struct {
	Log     []conversations.Message
	Loading bool
}

type noticeMsg string

// Notifier forwards session state changes to a running program. Only the
// latest state is kept: every state is a full snapshot, so a slow program
// skips intermediate ones instead of blocking the session.
type Notifier struct {
	mu     sync.Mutex
	latest *StateMsg
	signal chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{signal: make(chan struct{}, 1)}
}

func (n *Notifier) Notify(log []conversations.Message, loading bool) {
	n.mu.Lock()
	n.latest = &StateMsg{Log: log, Loading: loading}
	n.mu.Unlock()

	select {
	case n.signal <- struct{}{}:
	default:
	}
}

// Run delivers states to program until ctx is done.
func (n *Notifier) Run(ctx context.Context, program *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.signal:
			n.mu.Lock()
			latest := n.latest
			n.latest = nil
			n.mu.Unlock()
			if latest != nil {
				program.Send(*latest)
			}
		}
	}
}

type Model struct {
	session Session

	log     []conversations.Message
	loading bool
	notice  string
	context string

	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
}

func NewModel(session Session, initial []conversations.Message) Model {
	input := textinput.New()
	input.Placeholder = "Ask something, or /help"
	input.CharLimit = 4000
	input.Prompt = "› "
	input.Focus()

	return Model{
		session:  session,
		log:      initial,
		input:    input,
		viewport: viewport.New(80, 20),
		width:    80,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-4)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-headerHeight-footerHeight)
		m.refresh()
		return m, nil

	case StateMsg:
		m.log = msg.Log
		m.loading = msg.Loading
		m.refresh()
		return m, nil

	case noticeMsg:
		m.notice = string(msg)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			return m.handleLine(line)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleLine(line string) (tea.Model, tea.Cmd) {
	if !strings.HasPrefix(line, "/") {
		m.notice = ""
		m.session.Submit(line, m.context)
		return m, nil
	}

	command, argument, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	argument = strings.TrimSpace(argument)
	switch command {
	case "reset":
		m.session.Reset()
		m.notice = "conversation cleared"
	case "persona":
		if argument == "" {
			m.notice = "current persona: " + m.session.Persona()
			return m, nil
		}
		m.session.SetPersona(argument)
		m.notice = "switched to " + argument
	case "personas":
		return m, m.listPersonas()
	case "context":
		m.context = argument
		if argument == "" {
			m.notice = "context cleared"
		} else {
			m.notice = "context set"
		}
	case "quit", "exit":
		return m, tea.Quit
	case "help":
		m.notice = "/reset  /persona <id>  /personas  /context <text>  /quit"
	default:
		m.notice = fmt.Sprintf("unknown command /%s", command)
	}
	return m, nil
}

func (m Model) listPersonas() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		personas, err := session.Personas(ctx)
		if err != nil {
			return noticeMsg("failed to list personas: " + err.Error())
		}
		return noticeMsg("personas: " + strings.Join(personas, ", "))
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderLog())
	m.viewport.GotoBottom()
}

func (m Model) renderLog() string {
	width := max(10, m.width-2)
	var b strings.Builder
	for _, message := range m.log {
		style, label := roleStyle(message.Role)
		b.WriteString(style.Render(label))
		b.WriteString("\n")
		b.WriteString(wordwrap.String(message.Content, width))
		b.WriteString("\n\n")
	}
	if m.loading {
		b.WriteString(thinkingStyle.Render("Thinking..."))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) View() string {
	header := headerStyle.Render("ema-chat · " + m.session.Persona())
	if pending := m.session.PendingCount(); pending > 0 {
		header += pendingStyle.Render(fmt.Sprintf("  %d queued", pending))
	}
	if m.context != "" {
		header += pendingStyle.Render("  context set")
	}

	footer := noticeStyle.Render(m.notice)
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		footer,
		m.input.View(),
	)
}
