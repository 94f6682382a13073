package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/jpalmerr/navtags"
	"github.com/jpalmerr/navtags/config"
	"github.com/jpalmerr/navtags/internal/activity"
)

// watchCmd runs the terminal viewer.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show tags live in the terminal",
	Long: `Show tags live in the terminal instead of a browser.

Key presses, mouse motion, clicks and the wheel count as user activity:
they resume polling after it paused for inactivity. Press q to quit.

Logs go to --log-file, or nowhere, so they do not corrupt the screen.

Example:
  navtags watch -c navtags.yaml`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	watchCmd.Flags().String("log-file", "", "append JSON logs to this file")
	_ = watchCmd.MarkFlagRequired("config")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("watch needs an interactive terminal; use 'navtags tags' in scripts")
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logOut := io.Discard
	if path, _ := cmd.Flags().GetString("log-file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		logOut = f
	}
	logger := newLogger(cmd, logOut)

	opts, err := config.BuildOptions(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var nt *navtags.NavTags
	model := newWatchModel(cfg.Source.URL, cfg.Interval(), func(ev activity.Event) {
		nt.Hub().Emit(ev)
	})
	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithContext(ctx),
	)

	opts = append(opts,
		navtags.WithHeadless(),
		navtags.WithTagCallback(func(r navtags.TagResult) {
			program.Send(tagsMsg(r))
		}),
	)
	nt, err = navtags.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create navtags: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		// the viewer is useless without the poller
		defer program.Quit()
		if err := nt.Start(runCtx); err != nil {
			return fmt.Errorf("poller error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("terminal error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("watch stopped")
	return nil
}

// tagsMsg carries a fetch result into the bubbletea loop.
type tagsMsg navtags.TagResult

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	nameStyle   = lipgloss.NewStyle().Width(24)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	badgeStyles = map[string]lipgloss.Style{
		"important": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1")).Padding(0, 1),
		"warning":   lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("3")).Padding(0, 1),
		"success":   lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("2")).Padding(0, 1),
		"info":      lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6")).Padding(0, 1),
	}
	defaultBadge = lipgloss.NewStyle().Background(lipgloss.Color("238")).Padding(0, 1)
)

// watchKeys are the viewer's key bindings. Every other key counts as activity.
type watchKeys struct {
	Quit key.Binding
}

var defaultWatchKeys = watchKeys{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
}

// watchModel is the bubbletea model of the terminal viewer.
type watchModel struct {
	source   string
	interval time.Duration
	emit     func(activity.Event)
	keys     watchKeys
	spinner  spinner.Model

	result   navtags.TagResult
	fetched  bool
	fetches  int
	activity int
}

func newWatchModel(source string, interval time.Duration, emit func(activity.Event)) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle
	return watchModel{
		source:   source,
		interval: interval,
		emit:     emit,
		keys:     defaultWatchKeys,
		spinner:  s,
	}
}

func (m watchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tagsMsg:
		r := navtags.TagResult(msg)
		m.fetches++
		m.fetched = true
		if r.Error != nil {
			// keep showing the last good tags
			m.result.Error = r.Error
			m.result.FetchedAt = r.FetchedAt
		} else {
			m.result = r
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		m.report(activity.EventKeyPress)
		return m, nil

	case spinner.TickMsg:
		// stop ticking once there is something to show
		if m.fetched {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		if ev, ok := mouseEvent(msg); ok {
			m.report(ev)
		}
		return m, nil
	}
	return m, nil
}

// report forwards an input event to the poller.
func (m *watchModel) report(ev activity.Event) {
	m.activity++
	if m.emit != nil {
		m.emit(ev)
	}
}

// mouseEvent maps a terminal mouse report to the matching DOM event.
func mouseEvent(msg tea.MouseMsg) (activity.Event, bool) {
	if tea.MouseEvent(msg).IsWheel() {
		return activity.EventWheel, true
	}
	switch msg.Action {
	case tea.MouseActionMotion:
		return activity.EventPointerMove, true
	case tea.MouseActionPress:
		return activity.EventPointerDown, true
	default:
		return "", false
	}
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("navtags"))
	b.WriteString(statusStyle.Render(m.source))
	b.WriteString("\n\n")

	var body strings.Builder
	switch {
	case !m.fetched:
		body.WriteString(m.spinner.View() + statusStyle.Render(" waiting for first fetch"))
	case len(m.result.Tags) == 0:
		body.WriteString(statusStyle.Render("no tags"))
	default:
		for i, tag := range m.result.Tags {
			if i > 0 {
				body.WriteString("\n")
			}
			badge, ok := badgeStyles[tag.Style]
			if !ok {
				badge = defaultBadge
			}
			body.WriteString(nameStyle.Render(tag.Name))
			body.WriteString(badge.Render(tag.Value))
		}
	}
	b.WriteString(panelStyle.Render(body.String()))
	b.WriteString("\n")

	if m.result.Error != nil {
		b.WriteString(errorStyle.Render("last fetch failed: " + m.result.Error.Error()))
		b.WriteString("\n")
	}

	status := fmt.Sprintf("every %s while active · %d fetches · %d input events", m.interval, m.fetches, m.activity)
	if !m.result.FetchedAt.IsZero() {
		status += " · updated " + m.result.FetchedAt.Format("15:04:05")
	}
	b.WriteString(statusStyle.Render(status))
	b.WriteString("\n")
	help := m.keys.Quit.Help()
	b.WriteString(helpStyle.Render(help.Key + ": " + help.Desc))

	return b.String()
}
