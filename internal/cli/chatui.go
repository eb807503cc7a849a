package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/jmelchner/applyflow/internal/orchestrator"
	"github.com/jmelchner/applyflow/internal/session"
)

// Theme holds the color scheme for the chat display.
type Theme struct {
	User      lipgloss.Color
	Assistant lipgloss.Color
	Reasoning lipgloss.Color
	Error     lipgloss.Color
	Hint      lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	User:      lipgloss.Color("#5FAFD7"), // light blue
	Assistant: lipgloss.Color("#00D787"), // green
	Reasoning: lipgloss.Color("#AF87FF"), // violet
	Error:     lipgloss.Color("#FF005F"), // red
	Hint:      lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) userStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.User).Bold(true)
}

func (t Theme) assistantStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Assistant).Bold(true)
}

func (t Theme) reasoningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Reasoning).Italic(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// contextWithTimeout bounds REST calls triggered from the TUI.
func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// eventMsg wraps an orchestrator event for the bubbletea loop. Only the
// event pump produces these; locally-generated outcomes use statusMsg
// so the pump is never doubled.
type eventMsg struct {
	ev orchestrator.Event
}

// statusMsg is a locally-generated status line update.
type statusMsg struct {
	text  string
	isErr bool
}

// deleteResultMsg carries the outcome of a scheduled delete: nil on
// commit, errUndone when cancelled, the server error on failure.
type deleteResultMsg struct {
	err error
}

var errUndone = errors.New("undone")

// chatModel is the bubbletea model for the interactive chat.
type chatModel struct {
	conn *orchestrator.Conn
	sess *session.Session

	input     textinput.Model
	theme     Theme
	width     int
	height    int
	thinking  bool
	reasoning string
	status    string
	gone      bool // connection is gone for good

	editIdx   int // message being edited, -1 when composing
	pending   *session.PendingDelete
	pendingCh chan error
}

// newChatModel creates the chat model.
func newChatModel(conn *orchestrator.Conn, sess *session.Session) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Focus()

	return chatModel{
		conn:    conn,
		sess:    sess,
		input:   ti,
		theme:   defaultTheme,
		width:   80,
		editIdx: -1,
	}
}

// Init starts listening for connection events.
func (m chatModel) Init() tea.Cmd {
	return m.waitForEvent()
}

// waitForEvent blocks on the connection's event channel as a command.
func (m chatModel) waitForEvent() tea.Cmd {
	ch := m.conn.Events()
	return func() tea.Msg {
		return eventMsg{ev: <-ch}
	}
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if m.editIdx >= 0 {
				return m.handleEditSubmit()
			}
			return m.handleSend()
		case "ctrl+e":
			return m.handleEditStart()
		case "ctrl+g":
			return m.handleRegenerate()
		case "ctrl+d":
			return m.handleDelete()
		case "ctrl+u":
			return m.handleUndo()
		case "ctrl+x":
			if err := m.conn.StopGeneration(); err != nil {
				m.status = m.theme.errorStyle().Render(fmt.Sprintf("stop: %v", err))
			} else {
				m.status = m.theme.hintStyle().Render("asked the orchestrator to stop")
			}
			m.thinking = false
			return m, nil
		}

	case statusMsg:
		if msg.isErr {
			m.status = m.theme.errorStyle().Render(msg.text)
		} else {
			m.status = m.theme.hintStyle().Render(msg.text)
		}
		m.thinking = false
		return m, nil

	case deleteResultMsg:
		m.pending = nil
		m.pendingCh = nil
		switch {
		case errors.Is(msg.err, errUndone):
			m.status = m.theme.hintStyle().Render("undone, nothing deleted")
		case msg.err != nil:
			m.status = m.theme.errorStyle().Render(fmt.Sprintf("delete failed, conversation restored: %v", msg.err))
		default:
			m.status = m.theme.hintStyle().Render("deleted")
		}
		return m, nil

	case eventMsg:
		return m.handleEvent(msg.ev)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleSend validates and transmits the composed message. The
// optimistic local append only happens when the send went out.
func (m chatModel) handleSend() (tea.Model, tea.Cmd) {
	content := strings.TrimSpace(m.input.Value())
	if content == "" {
		return m, nil
	}

	if err := m.conn.SendMessage(content); err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrNotConnected):
			m.status = m.theme.errorStyle().Render("not connected, reconnecting. Message not sent")
		default:
			m.status = m.theme.errorStyle().Render(fmt.Sprintf("send: %v", err))
		}
		return m, nil
	}

	m.sess.AppendUser(content)
	m.input.SetValue("")
	m.thinking = true
	m.status = ""
	return m, nil
}

// handleEditStart loads the last user message into the input for
// editing. Submitting truncates the conversation there and resends.
func (m chatModel) handleEditStart() (tea.Model, tea.Cmd) {
	msgs := m.sess.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsUser {
			m.editIdx = i
			m.input.SetValue(msgs[i].Content)
			m.input.CursorEnd()
			m.status = m.theme.hintStyle().Render("editing your last message. Enter resends, replies after it are discarded")
			return m, nil
		}
	}
	m.status = m.theme.hintStyle().Render("no user message to edit")
	return m, nil
}

// handleEditSubmit applies the edit (truncating the tail), then resends
// the new content over the socket.
func (m chatModel) handleEditSubmit() (tea.Model, tea.Cmd) {
	content := strings.TrimSpace(m.input.Value())
	if content == "" {
		return m, nil
	}
	idx := m.editIdx
	m.editIdx = -1
	m.input.SetValue("")
	m.thinking = true
	m.status = ""

	sess, conn := m.sess, m.conn
	return m, func() tea.Msg {
		ctx, cancel := contextWithTimeout()
		defer cancel()
		if err := sess.Edit(ctx, idx, content); err != nil {
			return statusMsg{text: fmt.Sprintf("edit failed, conversation restored: %v", err), isErr: true}
		}
		if err := conn.SendMessage(content); err != nil {
			return statusMsg{text: fmt.Sprintf("edited but not resent: %v", err), isErr: true}
		}
		return nil
	}
}

// handleRegenerate rewinds to the last user message and resubmits it.
func (m chatModel) handleRegenerate() (tea.Model, tea.Cmd) {
	m.thinking = true
	m.status = ""
	sess, conn := m.sess, m.conn
	return m, func() tea.Msg {
		ctx, cancel := contextWithTimeout()
		defer cancel()
		content, err := sess.Regenerate(ctx)
		if err != nil {
			return statusMsg{text: err.Error(), isErr: true}
		}
		if err := conn.SendMessage(content); err != nil {
			return statusMsg{text: err.Error(), isErr: true}
		}
		return nil
	}
}

// handleDelete schedules deletion of the last message with the undo
// grace window. The list is truncated immediately; ctrl+u restores it.
func (m chatModel) handleDelete() (tea.Model, tea.Cmd) {
	if m.pending != nil {
		m.status = m.theme.hintStyle().Render("a delete is already pending (ctrl+u to undo)")
		return m, nil
	}
	n := m.sess.Len()
	if n == 0 {
		return m, nil
	}

	ch := make(chan error, 1)
	pending, err := m.sess.ScheduleDelete(n-1, false, func(err error) {
		ch <- err
	})
	if err != nil {
		m.status = m.theme.errorStyle().Render(err.Error())
		return m, nil
	}
	m.pending = pending
	m.pendingCh = ch
	m.status = m.theme.hintStyle().Render("deleted last message (ctrl+u to undo)")

	return m, func() tea.Msg {
		return deleteResultMsg{err: <-ch}
	}
}

// handleUndo cancels the pending delete inside its grace window.
func (m chatModel) handleUndo() (tea.Model, tea.Cmd) {
	if m.pending == nil {
		return m, nil
	}
	if m.pending.Cancel() {
		// onResult never fires after Cancel; unblock the waiting command.
		m.pendingCh <- errUndone
	}
	return m, nil
}

// handleEvent applies one orchestrator event to the model.
func (m chatModel) handleEvent(ev orchestrator.Event) (tea.Model, tea.Cmd) {
	switch ev := ev.(type) {
	case orchestrator.EventConnected:
		if ev.Reconnected {
			m.status = m.theme.hintStyle().Render("reconnected")
		}

	case orchestrator.EventAssistantMessage:
		m.sess.AppendAssistant(ev.Content)
		m.thinking = false
		m.reasoning = ""

	case orchestrator.EventReasoning:
		m.reasoning = ev.Content
		m.thinking = true

	case orchestrator.EventError:
		m.status = m.theme.errorStyle().Render(ev.Message)
		m.thinking = false

	case orchestrator.EventPageCreated:
		m.sess.SetPageID(ev.PageID)
		m.status = m.theme.hintStyle().Render(fmt.Sprintf("saved as page %s", ev.PageID))

	case orchestrator.EventSubscriptionUpdated:
		m.status = m.theme.hintStyle().Render(fmt.Sprintf("subscription updated: %s", ev.Plan))

	case orchestrator.EventDisconnected:
		m.gone = true
		m.thinking = false
		if ev.Err != nil {
			m.status = m.theme.errorStyle().Render(fmt.Sprintf("disconnected: %v", ev.Err))
		} else {
			m.status = m.theme.hintStyle().Render("disconnected")
		}
		// Terminal state: stop pumping events.
		return m, nil
	}

	return m, m.waitForEvent()
}

// View renders the chat display.
func (m chatModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m chatModel) renderContent() string {
	var b strings.Builder

	wrap := lipgloss.NewStyle().Width(max(20, m.width-4))

	for _, msg := range m.sess.Messages() {
		if msg.IsUser {
			b.WriteString(m.theme.userStyle().Render("You") + "  ")
		} else {
			b.WriteString(m.theme.assistantStyle().Render("AI") + "   ")
		}
		b.WriteString(wrap.Render(msg.Content))
		b.WriteString("\n\n")
	}

	if m.thinking {
		line := "thinking..."
		if m.reasoning != "" {
			line = m.reasoning
		}
		b.WriteString(m.theme.reasoningStyle().Render(line))
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.theme.hintStyle().Render("enter send · ctrl+e edit · ctrl+g regenerate · ctrl+d delete · ctrl+u undo · ctrl+x stop · ctrl+c quit"))
	return b.String()
}
