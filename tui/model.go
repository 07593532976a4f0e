package tui

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

// tickMsg is fired every second to update the watch timer.
type tickMsg time.Time

// state represents the current phase of a command.
type state int

const (
	stateInit     state = iota
	stateWorking        // request in flight
	stateWatching       // following token changes
	stateSuccess        // all done
	stateError          // fatal error
)

// statusKind distinguishes line types in the status log.
type statusKind int

const (
	statusOK   statusKind = iota
	statusWarn            // warning / non-fatal
	statusInfo            // neutral info
)

// statusLine is one row in the scrolling status log.
type statusLine struct {
	kind statusKind
	text string
}

// maxStatusLines bounds the log during long watch sessions.
const maxStatusLines = 20

// Model is the BubbleTea model for the CLI commands.
type Model struct {
	state   state
	spinner spinner.Model
	width   int
	height  int

	command string
	working string

	watchSource string
	watchSince  time.Time
	elapsed     time.Duration

	// Command results
	session  *StatusInfo
	tables   []MsgTable
	response *MsgResponse
	summary  string
	errMsg   string

	// Scrolling status log shown below the main panel
	statusLines []statusLine
}

// Lipgloss styles, defined once at package level.
var (
	styleTitleBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)

	styleTableBorder = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	styleTableHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("228")).Padding(0, 1)
	styleTableCell   = lipgloss.NewStyle().Padding(0, 1)

	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

// NewModel creates the initial TUI model.
func NewModel() Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))),
	)
	return Model{
		state:   stateInit,
		spinner: s,
	}
}

// Init starts the spinner animation.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.state != stateWatching {
			return m, nil
		}
		m.elapsed = time.Time(msg).Sub(m.watchSince)
		return m, tickAfterSecond()

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	// ── Command messages ─────────────────────────────────────────────────────

	case MsgBanner:
		m.command = msg.Command
		return m, nil

	case MsgWorking:
		m.state = stateWorking
		m.working = msg.What
		return m, nil

	case MsgLoginOK:
		m.addStatus(statusOK, "Logged in as "+msg.User)
		return m, nil

	case MsgLoginFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Login failed: %v", msg.Err))
		return m, nil

	case MsgLoggedOut:
		m.addStatus(statusOK, "Logged out, tokens removed")
		return m, nil

	case MsgStatus:
		info := msg.Info
		m.session = &info
		return m, nil

	case MsgWatching:
		m.state = stateWatching
		m.watchSource = msg.Source
		m.watchSince = time.Now()
		return m, tickAfterSecond()

	case MsgTokenChanged:
		if msg.Preview == "" {
			m.addStatus(statusWarn, "Access token cleared")
		} else {
			m.addStatus(statusOK, "Access token set: "+msg.Preview+"...")
		}
		return m, nil

	case MsgAccessTokenRejected:
		m.addStatus(statusWarn, "Access token rejected (401), refreshing...")
		return m, nil

	case MsgRefreshOK:
		m.addStatus(statusOK, "Token refreshed successfully")
		return m, nil

	case MsgRefreshFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Refresh failed: %v", msg.Err))
		return m, nil

	case MsgTokenRefreshedRetrying:
		m.addStatus(statusOK, "Token refreshed, retrying API call...")
		return m, nil

	case MsgReAuthRequired:
		m.addStatus(statusWarn, "Session expired, run 'login' again")
		return m, nil

	case MsgTable:
		m.tables = append(m.tables, msg)
		return m, nil

	case MsgResponse:
		m.response = &msg
		return m, nil

	case MsgDone:
		m.summary = msg.Summary
		m.state = stateSuccess
		return m, nil

	case MsgFatal:
		m.errMsg = msg.Err.Error()
		m.state = stateError
		return m, nil
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() tea.View {
	switch m.state {
	case stateSuccess:
		return tea.NewView(m.viewSuccess())
	case stateError:
		return tea.NewView(m.viewError())
	default:
		return tea.NewView(m.viewMain())
	}
}

func (m Model) title() string {
	if m.command == "" {
		return "  Slowfall  "
	}
	return "  Slowfall · " + m.command + "  "
}

// viewMain is shown while a command runs.
func (m Model) viewMain() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render(m.title()))
	b.WriteString("\n\n")

	switch m.state {
	case stateWorking:
		b.WriteString(m.spinner.View())
		b.WriteString(" " + m.working + "...\n")

	case stateWatching:
		b.WriteString(m.spinner.View())
		b.WriteString(" Watching token changes on " + m.watchSource + "  ")
		b.WriteString(styleDim.Render(formatDuration(m.elapsed) + " elapsed"))
		b.WriteString("\n")

	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" Initializing...\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewSuccess is shown after the command finished.
func (m Model) viewSuccess() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render(m.title()))
	b.WriteString("\n\n")

	if s := m.session; s != nil {
		b.WriteString(styleBold.Render("Origin:        "))
		b.WriteString(s.Origin + "\n")
		b.WriteString(styleBold.Render("Storage:       "))
		b.WriteString(s.Storage + "\n")
		b.WriteString(styleBold.Render("Access Token:  "))
		if s.HasAccess {
			b.WriteString(s.Preview + "...\n")
		} else {
			b.WriteString(styleDim.Render("(none)") + "\n")
		}
		b.WriteString(styleBold.Render("Refresh Token: "))
		b.WriteString(presence(s.HasRefresh) + "\n\n")
	}

	for _, t := range m.tables {
		if t.Title != "" {
			b.WriteString(styleBold.Render(t.Title))
			b.WriteString("\n")
		}
		b.WriteString(renderTable(t.Headers, t.Rows))
		b.WriteString("\n\n")
	}

	if r := m.response; r != nil {
		line := fmt.Sprintf("HTTP %d %s", r.Status, http.StatusText(r.Status))
		if r.Status >= 200 && r.Status < 300 {
			b.WriteString(styleOK.Render(line))
		} else {
			b.WriteString(styleWarn.Render(line))
		}
		b.WriteString("\n")
		if r.Body != "" {
			b.WriteString(r.Body)
			b.WriteString("\n")
		}
	}

	if m.summary != "" {
		b.WriteString(styleOK.Render("  ✓ " + m.summary))
		b.WriteString("\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewError is shown when a fatal error occurs.
func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleErr.Render("  ✗ " + strings.TrimSpace(m.command+" failed")))
	b.WriteString("\n\n")
	b.WriteString(styleDim.Render("  " + m.errMsg))
	b.WriteString("\n")

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewStatusLog renders the scrolling status log.
func (m Model) viewStatusLog() string {
	if len(m.statusLines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	for _, line := range m.statusLines {
		switch line.kind {
		case statusOK:
			b.WriteString(styleOK.Render("  ✓ " + line.text))
		case statusWarn:
			b.WriteString(styleWarn.Render("  ⚠ " + line.text))
		default:
			b.WriteString(styleDim.Render("  · " + line.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// addStatus appends a line to the status log, dropping the oldest beyond maxStatusLines.
func (m *Model) addStatus(kind statusKind, text string) {
	m.statusLines = append(m.statusLines, statusLine{kind: kind, text: text})
	if n := len(m.statusLines); n > maxStatusLines {
		m.statusLines = m.statusLines[n-maxStatusLines:]
	}
}

func renderTable(headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return styleDim.Render("  (no rows)")
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleTableBorder).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleTableHeader
			}
			return styleTableCell
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

// tickAfterSecond returns a command that fires tickMsg after one second.
func tickAfterSecond() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// formatDuration formats a duration as "Xm Ys" or "Xs".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
