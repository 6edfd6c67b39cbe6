// Package tui is a terminal client that tails a live session's
// transcript over the websocket endpoint.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

// serverEvent is the union of the event fields the watcher cares about.
type serverEvent struct {
	Type       string   `json:"type"`
	SessionID  string   `json:"session_id"`
	Text       string   `json:"text"`
	IsFinal    bool     `json:"is_final"`
	Sentence   string   `json:"sentence"`
	Transcript []string `json:"transcript"`
	Message    string   `json:"message"`
}

type disconnectMsg struct {
	err error
}

type model struct {
	viewport   viewport.Model
	sessionID  string
	finals     []string
	partial    string
	logEntries []string
	ready      bool
	showLog    bool
	done       bool
	events     chan tea.Msg
}

func initialModel(events chan tea.Msg) model {
	return model{events: events}
}

func (m model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "tab":
			m.showLog = !m.showLog
			m.viewport.SetContent(m.contentView())
		}

	case tea.WindowSizeMsg:
		headerHeight := lipgloss.Height(m.headerView())
		footerHeight := lipgloss.Height(m.footerView())
		verticalMarginHeight := headerHeight + footerHeight

		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-verticalMarginHeight)
			m.viewport.YPosition = headerHeight
			m.viewport.SetContent(m.contentView())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - verticalMarginHeight
		}

	case serverEvent:
		m.applyEvent(msg)
		if m.ready {
			m.viewport.SetContent(m.contentView())
			m.viewport.GotoBottom()
		}
		cmds = append(cmds, waitForEvent(m.events))

	case disconnectMsg:
		m.done = true
		m.logEntries = append(
			m.logEntries,
			fmt.Sprintf("connection closed: %v", msg.err),
		)
		if m.ready {
			m.viewport.SetContent(m.contentView())
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) applyEvent(ev serverEvent) {
	switch ev.Type {
	case "session_started", "session_resumed":
		m.sessionID = ev.SessionID
		m.finals = append([]string{}, ev.Transcript...)
		m.partial = ""
		m.logEntries = append(
			m.logEntries,
			fmt.Sprintf("SES %s (%s)", ev.SessionID, ev.Type),
		)

	case "transcription":
		if ev.IsFinal {
			m.finals = append(m.finals, ev.Text)
			m.partial = ""
		} else {
			m.partial = ev.Text
		}
		m.logEntries = append(
			m.logEntries,
			fmt.Sprintf("%s \"%s\"", logPrefix(!ev.IsFinal), ev.Text),
		)

	case "sentence_complete":
		m.logEntries = append(
			m.logEntries,
			fmt.Sprintf("FIN sentence %q", ev.Sentence),
		)

	case "transcript_cleared":
		m.finals = nil
		m.partial = ""
		m.logEntries = append(m.logEntries, "CLR transcript cleared")

	case "error":
		m.logEntries = append(m.logEntries, "ERR "+ev.Message)
	}
}

func (m model) View() string {
	if !m.ready {
		return "\n  Connecting..."
	}
	return fmt.Sprintf(
		"%s\n%s\n%s",
		m.headerView(),
		m.viewport.View(),
		m.footerView(),
	)
}

func (m model) headerView() string {
	label := "Live Transcript"
	if m.sessionID != "" {
		label = "Live Transcript " + m.sessionID
	}
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFDF5")).
		Background(lipgloss.Color("#25A065")).
		Padding(0, 1).
		Render(label)
	line := strings.Repeat(
		"─",
		max(0, m.viewport.Width-lipgloss.Width(title)),
	)
	return lipgloss.JoinHorizontal(lipgloss.Center, title, line)
}

func (m model) footerView() string {
	info := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFDF5")).
		Background(lipgloss.Color("#25A065")).
		Padding(0, 1).
		Render("Press q to quit, Tab to switch views")
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(info)))
	return lipgloss.JoinHorizontal(lipgloss.Center, line, info)
}

func (m model) contentView() string {
	if m.showLog {
		return m.logView()
	}
	return m.transcriptView()
}

func (m model) transcriptView() string {
	var sb strings.Builder
	for _, line := range m.finals {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if m.partial != "" {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
		sb.WriteString(style.Render(m.partial))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m model) logView() string {
	var sb strings.Builder
	for _, entry := range m.logEntries {
		sb.WriteString(entry)
		sb.WriteString("\n")
	}
	return sb.String()
}

func logPrefix(isPartial bool) string {
	if isPartial {
		return "TMP"
	}
	return "FIN"
}

// Watch dials the websocket endpoint and renders events until the user
// quits or the server hangs up. sessionID resumes a paused session when
// it is not empty.
func Watch(url, sessionID string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", url, err)
	}
	defer conn.Close()

	if sessionID != "" {
		init := map[string]string{"type": "init", "session_id": sessionID}
		if err := conn.WriteJSON(init); err != nil {
			return fmt.Errorf("sending init frame: %w", err)
		}
	}

	events := make(chan tea.Msg, 16)
	go func() {
		for {
			var ev serverEvent
			if err := conn.ReadJSON(&ev); err != nil {
				events <- disconnectMsg{err: err}
				return
			}
			events <- ev
		}
	}()

	p := tea.NewProgram(initialModel(events), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running watcher: %w", err)
	}
	return nil
}
