package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// PollFunc is polled on every tick while a WatchModel is running. ok is
// true once the value is readable; err is any non-NotFound failure, which
// ends the TUI.
type PollFunc func(ctx context.Context) (value any, ok bool, err error)

// WatchParams describes one `brrr watch` invocation: the call identity
// being watched (for display) and the poll function driving resolution.
type WatchParams struct {
	RootID   string
	TaskName string
	Args     []any
	Poll     PollFunc
	Interval time.Duration
}

type tickMsg time.Time

type resultMsg struct {
	value any
	ok    bool
	err   error
}

// WatchModel is a Bubble Tea model that polls Poll on an interval and
// displays a spinner with elapsed time until the watched call resolves.
type WatchModel struct {
	params   *WatchParams
	spinner  spinner.Model
	start    time.Time
	quitting bool
	done     bool
	value    any
	err      error
}

// NewWatchModel creates a watch model for params.
func NewWatchModel(params *WatchParams) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = ValueStyle
	return WatchModel{params: params, spinner: s, start: time.Now()}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

func (m WatchModel) poll() tea.Cmd {
	return func() tea.Msg {
		value, ok, err := m.params.Poll(context.Background())
		return resultMsg{value: value, ok: ok, err: err}
	}
}

func (m WatchModel) tick() tea.Cmd {
	return tea.Tick(m.params.Interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, watchKeys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	case resultMsg:
		if msg.err != nil {
			m.err = msg.err
			m.done = true
			return m, tea.Quit
		}
		if msg.ok {
			m.value = msg.value
			m.done = true
			return m, tea.Quit
		}
		return m, m.tick()
	case tickMsg:
		return m, m.poll()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m WatchModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Watching " + m.params.TaskName))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("root_id:"), ValueStyle.Render(m.params.RootID)))
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("elapsed:"), ValueStyle.Render(time.Since(m.start).Round(time.Second).String())))

	switch {
	case m.err != nil:
		b.WriteString(fmt.Sprintf("\n%s %s\n", ErrorStyle.Render("error:"), m.err))
	case m.done:
		b.WriteString(fmt.Sprintf("\n%s %v\n", SuccessStyle.Render("resolved:"), m.value))
	default:
		b.WriteString(fmt.Sprintf("\n%s waiting for a result...\n", m.spinner.View()))
	}

	content := BoxStyle.Render(b.String())
	if m.quitting || m.done || m.err != nil {
		return content
	}
	return content + "\n" + HelpStyle.Render("Press q or Ctrl+C to stop watching")
}

type watchKeyMap struct {
	Quit key.Binding
}

var watchKeys = watchKeyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunWatch runs the watch TUI to completion (resolution, poll error, or
// the user quitting).
func RunWatch(params *WatchParams) error {
	if params.Interval <= 0 {
		params.Interval = 500 * time.Millisecond
	}
	model := NewWatchModel(params)
	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return err
	}
	if wm, ok := final.(WatchModel); ok && wm.err != nil {
		return wm.err
	}
	return nil
}
