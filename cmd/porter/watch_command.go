package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"porter/internal/api"
	"porter/internal/ipc"
	"porter/internal/textutil"
)

const watchPollInterval = 2 * time.Second

var (
	watchTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	watchErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	watchOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	watchWarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	watchPanelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	watchHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230"))
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live pipeline view",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stdinIsTTY() {
				return errors.New("watch requires an interactive terminal (TTY)")
			}
			model := newWatchModel(ctx.socketPath())
			program := tea.NewProgram(model, tea.WithAltScreen())
			final, err := program.Run()
			if err != nil {
				return err
			}
			if fm, ok := final.(watchModel); ok && fm.fatalErr != nil {
				return fm.fatalErr
			}
			return nil
		},
	}
}

func stdinIsTTY() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type watchModel struct {
	socketPath string
	spin       spinner.Model
	loaded     bool
	width      int
	height     int

	status   *ipc.StatusResponse
	projects []api.Project
	dialErr  string
	fatalErr error
}

type watchDataMsg struct {
	status   *ipc.StatusResponse
	projects []api.Project
	err      error
}

type watchTickMsg struct{}

func newWatchModel(socketPath string) watchModel {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = watchMutedStyle
	return watchModel{socketPath: socketPath, spin: spin}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, pollDaemonCmd(m.socketPath))
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			return m, pollDaemonCmd(m.socketPath)
		}
		return m, nil
	case watchDataMsg:
		m.loaded = true
		if msg.err != nil {
			m.dialErr = msg.err.Error()
			m.status = nil
			m.projects = nil
		} else {
			m.dialErr = ""
			m.status = msg.status
			m.projects = msg.projects
		}
		return m, scheduleWatchTick()
	case watchTickMsg:
		return m, pollDaemonCmd(m.socketPath)
	}

	var cmd tea.Cmd
	m.spin, cmd = m.spin.Update(msg)
	return m, cmd
}

func (m watchModel) View() string {
	if m.fatalErr != nil {
		return watchErrorStyle.Render("fatal: " + m.fatalErr.Error())
	}
	width := m.width
	if width <= 0 {
		width = 100
	}

	header := watchTitleStyle.Render("porter watch") + "\n" +
		watchMutedStyle.Render("r: refresh | q: quit")

	if !m.loaded {
		return lipgloss.JoinVertical(lipgloss.Left, header, m.spin.View()+" connecting...")
	}

	var body string
	switch {
	case m.dialErr != "":
		body = watchPanelStyle.Width(width - 2).Render(
			watchWarnStyle.Render("daemon unreachable") + "\n" + watchMutedStyle.Render(m.dialErr))
	default:
		body = lipgloss.JoinVertical(lipgloss.Left,
			m.renderSummaryPanel(width-2),
			m.renderProjectsPanel(width-2),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

func (m watchModel) renderSummaryPanel(width int) string {
	lines := make([]string, 0, 8)
	if m.status != nil && m.status.Running {
		lines = append(lines, watchOKStyle.Render(fmt.Sprintf("daemon running (pid %d)", m.status.PID)))
	} else {
		lines = append(lines, watchWarnStyle.Render("daemon idle (pipeline stopped)"))
	}
	if m.status != nil {
		counts := m.status.Projects
		lines = append(lines, fmt.Sprintf("projects: %d active, %d paused, %d failed, %d completed (%d total)",
			counts.Active, counts.Paused, counts.Failed, counts.Completed, counts.Total))
		for _, health := range m.status.StageHealth {
			marker := watchOKStyle.Render("ready")
			if !health.Ready {
				detail := health.Detail
				if detail == "" {
					detail = "not ready"
				}
				marker = watchWarnStyle.Render(detail)
			}
			lines = append(lines, fmt.Sprintf("  %-14s %s", textutil.DisplayTitle(health.Name, health.Name), marker))
		}
	}
	return watchPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m watchModel) renderProjectsPanel(width int) string {
	if len(m.projects) == 0 {
		return watchPanelStyle.Width(width).Render(watchMutedStyle.Render("no projects registered"))
	}
	maxRows := m.height - 14
	if maxRows < 4 {
		maxRows = 4
	}
	lines := make([]string, 0, maxRows+1)
	lines = append(lines, watchHeaderStyle.Render(fmt.Sprintf("%-5s %-34s %-14s %s", "ID", "PATH", "EXPERIENCE", "STATUS")))
	for i, p := range m.projects {
		if i >= maxRows {
			lines = append(lines, watchMutedStyle.Render(fmt.Sprintf("... %d more", len(m.projects)-maxRows)))
			break
		}
		status := textutil.StatusLabel(p.Status)
		rendered := status
		switch p.Status {
		case "completed":
			rendered = watchOKStyle.Render(status)
		case "failed":
			rendered = watchErrorStyle.Render(status)
		case "paused":
			rendered = watchWarnStyle.Render(status)
		}
		lines = append(lines, fmt.Sprintf("%-5d %-34s %-14s %s",
			p.ID,
			textutil.Truncate(p.ProjectPath, 34),
			textutil.Truncate(textutil.DisplayTitle(p.Experience, p.Experience), 14),
			rendered))
	}
	return watchPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func pollDaemonCmd(socketPath string) tea.Cmd {
	return func() tea.Msg {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			return watchDataMsg{err: err}
		}
		defer client.Close()
		status, err := client.Status()
		if err != nil {
			return watchDataMsg{err: err}
		}
		list, err := client.ProjectList(nil)
		if err != nil {
			return watchDataMsg{err: err}
		}
		return watchDataMsg{status: status, projects: list.Projects}
	}
}

func scheduleWatchTick() tea.Cmd {
	return tea.Tick(watchPollInterval, func(time.Time) tea.Msg {
		return watchTickMsg{}
	})
}
