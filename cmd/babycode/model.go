package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/germanamz/babycode/pkg/chats/chat"
	"github.com/germanamz/babycode/pkg/chats/message"
	"github.com/germanamz/babycode/pkg/chats/role"
	"github.com/germanamz/babycode/pkg/engine"
	"github.com/germanamz/babycode/pkg/modeladapter/usage"
)

// previewLines caps the streamed reply shown below the scrollback.
const previewLines = 8

// flushTimeout bounds how long a finished send waits for its turns to reach
// the scrollback.
const flushTimeout = 2 * time.Second

// appState represents the application state machine.
type appState int

const (
	stateIdle appState = iota
	stateProcessing
	stateInspecting
)

// chatSession is the part of *engine.Session the shell drives.
type chatSession interface {
	ID() string
	Chat() *chat.Chat
	Send(ctx context.Context, text string) (message.Message, error)
	Clear() error
	Resume(id string) error
}

// usageFunc reports the tokens used so far; ok is false when unknown.
type usageFunc func() (usage.TokenCount, bool)

type initDrainMsg struct{}

// appModel is the root bubbletea model. Finished output is committed to the
// terminal scrollback with tea.Println; View only renders the live area.
type appModel struct {
	ctx          context.Context
	sess         chatSession
	events       *engine.EventBus
	usage        usageFunc
	verbose      bool
	inputBox     inputModel
	spinner      spinner.Model
	state        appState
	bridge       *bridge
	cancelSend   context.CancelFunc
	preview      string
	inspectID    string
	sendStart    time.Time
	width        int
}

func newAppModel(ctx context.Context, sess chatSession, events *engine.EventBus, usage usageFunc, verbose bool) appModel {
	return appModel{
		ctx:      ctx,
		sess:     sess,
		events:   events,
		usage:    usage,
		verbose:  verbose,
		inputBox: newInput(),
		spinner:  spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(spinnerStyle)),
		state:    stateIdle,
	}
}

func (m appModel) Init() tea.Cmd {
	// Delay focusing the input so that stale terminal escape-sequence
	// responses (e.g. OSC 11 background-color) are drained first.
	return tea.Batch(
		tea.Println(welcomeText()),
		tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg { return initDrainMsg{} }),
	)
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		initMarkdownRenderer(m.width - 4)
		m.inputBox.setWidth(m.width)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case initDrainMsg:
		if m.state != stateIdle {
			return m, nil
		}
		return m, m.inputBox.enable()

	case programReadyMsg:
		m.bridge = startBridge(m.ctx, msg.program, m.events, m.sess.Chat(), m.sess.ID())
		return m, nil

	case inputSubmitMsg:
		return m.handleSubmit(msg.text)

	case textDeltaMsg:
		m.preview += msg.text
		return m, nil

	case messageAddedMsg:
		if msg.msg.Role != role.Assistant.String() {
			return m, nil
		}
		m.preview = ""
		if strings.TrimSpace(msg.msg.Text) == "" {
			return m, nil
		}
		return m, tea.Println(renderMarkdown(msg.msg.Text))

	case toolStartMsg:
		return m, tea.Println(toolNameStyle.Render("  ⚙ " + formatToolCall(msg.call.Name, msg.call.Arguments)))

	case toolEndMsg:
		failed := strings.HasPrefix(msg.call.Result, "Error")
		if !m.verbose && !failed {
			return m, nil
		}
		line := "    ↳ " + truncate(msg.call.Result, 120) + " (" + fmtDuration(msg.call.Duration) + ")"
		if failed {
			return m, tea.Println(diffDelStyle.Render(line))
		}
		return m, tea.Println(toolResultStyle.Render(line))

	case fileChangeMsg:
		if !m.verbose || msg.change.Diff == "" {
			return m, nil
		}
		return m, tea.Println(renderDiff(msg.change.Diff))

	case inspectMsg:
		m.state = stateInspecting
		m.inspectID = msg.data.ID
		return m, tea.Println(renderInspection(msg.data, m.width))

	case sendCompleteMsg:
		return m.handleSendComplete(msg)

	case spinner.TickMsg:
		if m.state == stateIdle {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.state == stateIdle {
		var cmd tea.Cmd
		m.inputBox, cmd = m.inputBox.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m appModel) View() string {
	switch m.state {
	case stateProcessing:
		var sb strings.Builder
		if m.preview != "" {
			sb.WriteString(tailLines(strings.TrimRight(m.preview, "\n"), previewLines))
			sb.WriteString("\n")
		}
		sb.WriteString(m.spinner.View())
		sb.WriteString(dimStyle.Render(" Working... " + fmtDuration(time.Since(m.sendStart)) + " (esc to interrupt)"))
		return sb.String()
	case stateInspecting:
		return demoRuleStyle.Render("Press Enter to send this context to the model... (esc to cancel)")
	default:
		return m.inputBox.View()
	}
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m.quit()

	case tea.KeyEsc:
		if m.state != stateIdle && m.cancelSend != nil {
			m.cancelSend()
		}
		return m, nil

	case tea.KeyEnter:
		if m.state == stateInspecting {
			id := m.inspectID
			m.inspectID = ""
			m.state = stateProcessing
			if err := m.sess.Resume(id); err != nil {
				return m, tea.Println(errorBlockStyle.Render("error: " + err.Error()))
			}
			return m, nil
		}
	}

	if m.state == stateIdle {
		var cmd tea.Cmd
		m.inputBox, cmd = m.inputBox.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m appModel) handleSubmit(text string) (tea.Model, tea.Cmd) {
	switch text {
	case "quit", "exit", "/quit", "/exit":
		return m.quit()

	case "clear", "/clear":
		if err := m.sess.Clear(); err != nil {
			return m, tea.Println(errorBlockStyle.Render("error: " + err.Error()))
		}
		return m, tea.Println(dimStyle.Render("Conversation cleared.") + "\n")

	case "/help":
		return m, tea.Println(helpText())
	}

	m.state = stateProcessing
	m.inputBox.disable()
	m.preview = ""
	m.sendStart = time.Now()

	sendCtx, cancel := context.WithCancel(m.ctx)
	m.cancelSend = cancel

	ctx := m.ctx
	sess := m.sess
	b := m.bridge
	start := m.sendStart
	sendCmd := func() tea.Msg {
		_, err := sess.Send(sendCtx, text)
		d := time.Since(start)
		// The reply must reach the scrollback before the summary line.
		if b != nil {
			flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
			_ = b.flush(flushCtx)
			cancel()
		}
		return sendCompleteMsg{err: err, duration: d}
	}

	header := tea.Sequence(
		tea.Println(renderUserMessage(text)),
		tea.Println(separatorStyle.Render(rule("Agent", m.width))),
	)

	return m, tea.Batch(header, sendCmd, m.spinner.Tick)
}

func (m appModel) handleSendComplete(msg sendCompleteMsg) (tea.Model, tea.Cmd) {
	if m.cancelSend != nil {
		m.cancelSend()
		m.cancelSend = nil
	}

	m.state = stateIdle
	m.inspectID = ""
	m.preview = ""
	focusCmd := m.inputBox.enable()

	var out string
	switch {
	case msg.err == nil:
		out = dimStyle.Render(m.summary(msg.duration))
	case errors.Is(msg.err, context.Canceled) && m.ctx.Err() == nil:
		out = dimStyle.Render("Interrupted.")
	case m.ctx.Err() == nil:
		out = errorBlockStyle.Render("error: " + msg.err.Error())
	}

	if out == "" {
		return m, focusCmd
	}

	return m, tea.Batch(tea.Println(out+"\n"), focusCmd)
}

// summary describes a finished reply: elapsed time and, when known, the
// tokens used by the session so far.
func (m appModel) summary(d time.Duration) string {
	s := "done in " + fmtDuration(d)
	if m.usage == nil {
		return s
	}
	if tc, ok := m.usage(); ok && tc.Total() > 0 {
		s += " · " + fmtTokens(tc.Total()) + " tokens"
	}
	return s
}

func (m appModel) quit() (tea.Model, tea.Cmd) {
	if m.cancelSend != nil {
		m.cancelSend()
	}
	// The watchers may be blocked sending to this update loop, so they are
	// stopped from a command rather than here.
	var stopBridge tea.Cmd
	if b := m.bridge; b != nil {
		stopBridge = func() tea.Msg {
			b.stop()
			return nil
		}
	}
	return m, tea.Sequence(tea.Println(dimStyle.Render("Goodbye!")), stopBridge, tea.Quit)
}

func welcomeText() string {
	return "\n" + titleStyle.Render("babycode: a minimal coding agent") + "\n" +
		dimStyle.Render("Commands: 'quit' to exit, 'clear' to reset conversation, '/help' for help") + "\n"
}

func helpText() string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(
		"Commands:\n" +
			"  /help          Show this help message\n" +
			"  clear, /clear  Reset the conversation\n" +
			"  quit, /quit    Exit\n\n" +
			"Shortcuts:\n" +
			"  Enter          Submit message\n" +
			"  Alt+Enter      New line\n" +
			"  Esc            Interrupt the agent\n" +
			"  Ctrl+C         Exit",
	)
}
