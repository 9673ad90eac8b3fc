// Package monitor is the bubbletea dashboard behind `tunetrees-syncd
// monitor`: a live view of outbox depth and aggregate sync status,
// grounded on marcus-td's internal/tui/monitor.Model (periodic tick +
// fetch-as-command, single-key panel-less dashboard since there is only
// one thing to watch here: the queue).
package monitor

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tunetrees/sync/internal/localstore"
	"github.com/tunetrees/sync/internal/orchestrator"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	onlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pausedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	syncStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	headerStyle = lipgloss.NewStyle().Background(lipgloss.Color("237")).Foreground(lipgloss.Color("255")).Padding(0, 1)
)

// TickMsg triggers a queue-stats refresh.
type TickMsg time.Time

// StatsMsg carries a refreshed queue snapshot.
type StatsMsg struct {
	Stats []localstore.Stats
	Err   error
}

// Model is the bubbletea model for the live queue/status dashboard.
type Model struct {
	store    *localstore.Store
	statusCh <-chan orchestrator.StatusEvent
	interval time.Duration

	Stats       []localstore.Stats
	Status      string
	LastErr     error
	LastRefresh time.Time
	Width       int
}

// New builds a dashboard model. statusCh may be nil if no orchestrator
// session is active yet, in which case Status stays "idle".
func New(store *localstore.Store, statusCh <-chan orchestrator.StatusEvent, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return Model{store: store, statusCh: statusCh, interval: interval, Status: "idle"}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchStats(), m.scheduleTick(), m.waitStatus())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetchStats()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchStats(), m.scheduleTick())

	case StatsMsg:
		m.Stats = msg.Stats
		m.LastErr = msg.Err
		m.LastRefresh = time.Now()
		return m, nil

	case orchestrator.StatusEvent:
		m.Status = msg.State
		if msg.Err != nil {
			m.LastErr = msg.Err
		}
		return m, m.waitStatus()
	}

	return m, nil
}

func (m Model) View() string {
	var b lipgloss.Style
	switch m.Status {
	case "online":
		b = onlineStyle
	case "paused":
		b = pausedStyle
	case "syncing":
		b = syncStyle
	default:
		b = mutedStyle
	}

	out := titleStyle.Render("tunetrees-syncd monitor") + "  " + b.Render("["+m.Status+"]") + "\n\n"
	out += headerStyle.Render("TABLE                        PENDING  SYNCING   FAILED") + "\n"
	for _, s := range m.Stats {
		out += padRow(s) + "\n"
	}
	if m.LastErr != nil {
		out += "\n" + pausedStyle.Render("last error: "+m.LastErr.Error()) + "\n"
	}
	out += "\n" + mutedStyle.Render("q quit  r refresh") + "\n"
	return out
}

func padRow(s localstore.Stats) string {
	row := s.Table
	for len(row) < 28 {
		row += " "
	}
	return row + pad(s.Pending) + pad(s.Syncing) + pad(s.Failed)
}

func pad(n int64) string {
	s := ""
	switch {
	case n == 0:
		s = "0"
	default:
		s = itoa(n)
	}
	for len(s) < 9 {
		s = " " + s
	}
	return s
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) fetchStats() tea.Cmd {
	return func() tea.Msg {
		stats, err := localstore.QueueStats(context.Background(), m.store.DB())
		return StatsMsg{Stats: stats, Err: err}
	}
}

// waitStatus blocks on the next orchestrator status event. bubbletea
// reschedules it from Update each time one arrives, mirroring the
// same channel-to-tea.Msg bridge the teacher's watch command uses for
// its own event-driven updates.
func (m Model) waitStatus() tea.Cmd {
	if m.statusCh == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.statusCh
		if !ok {
			return nil
		}
		return ev
	}
}
