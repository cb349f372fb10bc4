package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quarrylabs/quarry/internal/api"
	"github.com/quarrylabs/quarry/internal/models"
	"github.com/quarrylabs/quarry/internal/monitor"
	"github.com/quarrylabs/quarry/internal/runstate"
	"github.com/quarrylabs/quarry/internal/storage"
)

type View int

const (
	ViewRunList View = iota
	ViewMonitor
)

type App struct {
	client *api.Client
	store  *storage.Storage
	ctrl   *monitor.Controller

	view        View
	runs        []*models.Run
	selectedIdx int
	watchRunID  string

	spin spinner.Model
	bar  progress.Model

	width  int
	height int
	now    time.Time
	err    error
}

// NewApp builds the TUI. If watchRunID is non-empty the app opens
// directly on that run's monitor view.
func NewApp(client *api.Client, store *storage.Storage, ctrl *monitor.Controller, watchRunID string) *App {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = activeStyle

	return &App{
		client:     client,
		store:      store,
		ctrl:       ctrl,
		view:       ViewRunList,
		watchRunID: watchRunID,
		spin:       sp,
		bar:        progress.New(progress.WithDefaultGradient()),
		now:        time.Now(),
	}
}

func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.loadRuns, a.tickCmd(), a.waitMonitor, a.spin.Tick}
	if a.watchRunID != "" {
		a.view = ViewMonitor
		a.ctrl.Start(a.watchRunID)
	}
	return tea.Batch(cmds...)
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitMonitor blocks on the controller's coalescing update signal and
// wakes the program whenever the snapshot has new content.
func (a *App) waitMonitor() tea.Msg {
	<-a.ctrl.Updates()
	return monitorUpdatedMsg{}
}

type (
	tickMsg           time.Time
	monitorUpdatedMsg struct{}
)

type runsLoadedMsg struct {
	runs []*models.Run
	err  error
}

type runCancelledMsg struct {
	run *models.Run
	err error
}

type planApprovedMsg struct {
	runID string
	err   error
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.bar.Width = min(msg.Width-8, 50)
		return a, nil

	case tickMsg:
		a.now = time.Time(msg)
		return a, a.tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case monitorUpdatedMsg:
		snap := a.ctrl.Snapshot()
		if snap.Run != nil && !snap.Streaming && a.store != nil {
			// Cache the authoritative record so the run stays visible
			// when the server is unreachable.
			_ = a.store.SaveRun(snap.Run)
		}
		return a, a.waitMonitor

	case runsLoadedMsg:
		a.runs = msg.runs
		a.err = msg.err
		if a.selectedIdx >= len(a.runs) && a.selectedIdx > 0 {
			a.selectedIdx = len(a.runs) - 1
		}
		return a, nil

	case runCancelledMsg:
		a.err = msg.err
		if msg.err == nil && a.store != nil && msg.run != nil {
			_ = a.store.SaveRun(msg.run)
		}
		return a, nil

	case planApprovedMsg:
		a.err = msg.err
		if msg.err == nil {
			// Review accepted; the run resumes, so stream it again.
			a.ctrl.Start(msg.runID)
		}
		return a, nil
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewRunList:
		return a.handleRunListKey(msg)
	case ViewMonitor:
		return a.handleMonitorKey(msg)
	}
	return a, nil
}

func (a *App) handleRunListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		a.ctrl.Close()
		return a, tea.Quit

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.selectedIdx < len(a.runs)-1 {
			a.selectedIdx++
		}

	case "enter":
		if len(a.runs) > 0 && a.selectedIdx < len(a.runs) {
			a.view = ViewMonitor
			a.ctrl.Start(a.runs[a.selectedIdx].ID)
		}

	case "r":
		return a, a.loadRuns
	}

	return a, nil
}

func (a *App) handleMonitorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	snap := a.ctrl.Snapshot()

	switch msg.String() {
	case "ctrl+c":
		a.ctrl.Close()
		return a, tea.Quit

	case "q", "esc":
		a.ctrl.Stop()
		a.view = ViewRunList
		return a, a.loadRuns

	case "s":
		a.ctrl.Stop()

	case "r":
		if snap.RunID != "" {
			a.ctrl.Start(snap.RunID)
		}

	case "x":
		if snap.RunID != "" {
			return a, a.cancelRun(snap.RunID)
		}

	case "a":
		if snap.RunID != "" && snap.State.TerminalType == models.EventReviewReady {
			return a, a.approvePlan(snap.RunID)
		}
	}

	return a, nil
}

func (a *App) View() string {
	switch a.view {
	case ViewRunList:
		return a.viewRunList()
	case ViewMonitor:
		return a.viewMonitor()
	}
	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	completeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	reviewStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))

	bannerComplete = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).Bold(true)
	bannerError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).Bold(true)
	bannerReview = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func (a *App) viewRunList() string {
	s := titleStyle.Render("Quarry") + "\n\n"

	if a.err != nil {
		s += errorStyle.Render(fmt.Sprintf("Error: %v", a.err)) + "\n"
	}

	if len(a.runs) == 0 {
		s += "No runs yet. Start one with 'quarry submit'.\n"
	} else {
		s += "Recent Runs\n"
		s += "───────────\n"

		for i, run := range a.runs {
			line := a.formatRunLine(run)
			if i == a.selectedIdx {
				line = selectedStyle.Render("▶ " + line)
			} else if run.Finished() {
				line = "  " + dimStyle.Render(line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[enter] watch  [r] refresh  [q] quit")

	return s
}

func (a *App) formatRunLine(run *models.Run) string {
	status := a.formatRunStatus(run.Status)
	age := a.formatAge(run.CreatedAt)
	name := truncate(run.Name, 28)
	return fmt.Sprintf("%-10s %-28s %s  %-6s", shortID(run.ID), name, status, age)
}

func (a *App) formatAge(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func (a *App) formatRunStatus(status models.RunStatus) string {
	switch status {
	case models.RunStatusRunning:
		return activeStyle.Render("● running")
	case models.RunStatusComplete:
		return completeStyle.Render("✓ complete")
	case models.RunStatusFailed:
		return errorStyle.Render("✗ failed")
	case models.RunStatusAwaitingReview:
		return reviewStyle.Render("⏸ review")
	case models.RunStatusCancelled:
		return dimStyle.Render("∅ cancelled")
	default:
		return string(status)
	}
}

func (a *App) viewMonitor() string {
	snap := a.ctrl.Snapshot()

	header := "Run " + shortID(snap.RunID)
	if snap.Run != nil {
		if snap.Run.Name != "" {
			header += ": " + snap.Run.Name
		}
		header = titleStyle.Render(header) + "  " + a.formatRunStatus(snap.Run.Status)
	} else {
		header = titleStyle.Render(header)
	}
	s := header + "\n\n"

	s += a.renderPhases(snap) + "\n\n"
	s += a.renderProgress(snap)
	s += a.renderCounters(snap)

	if banner := a.renderBanner(snap); banner != "" {
		s += banner + "\n"
	}
	if snap.Err != "" {
		s += errorStyle.Render("Error: "+snap.Err) + "\n"
	}
	if snap.Notice != "" {
		s += reviewStyle.Render(snap.Notice) + "\n"
	}

	s += "\n" + "Events\n"
	s += "──────\n"
	s += a.renderEvents(snap)

	s += "\n" + helpStyle.Render("[s] stop  [r] restart  [x] cancel run  [a] approve  [esc] back  [q] quit")

	return s
}

func (a *App) renderPhases(snap monitor.Snapshot) string {
	chips := make([]string, 0, len(models.PhaseOrder))
	for _, chip := range runstate.PhaseChips(snap.State) {
		name := string(chip.Phase)
		switch chip.Status {
		case models.PhaseComplete:
			chips = append(chips, completeStyle.Render("✓ "+name))
		case models.PhaseActive:
			chips = append(chips, activeStyle.Render(a.spin.View()+" "+name))
		case models.PhaseError:
			chips = append(chips, errorStyle.Render("✗ "+name))
		default:
			chips = append(chips, pendingStyle.Render("○ "+name))
		}
	}
	return strings.Join(chips, "  ")
}

func (a *App) renderProgress(snap monitor.Snapshot) string {
	switch runstate.ProgressFor(snap.State, snap.Streaming) {
	case runstate.ProgressDeterminate:
		p := snap.State.Progress
		line := a.bar.ViewAs(float64(p.PercentComplete) / 100)
		line += fmt.Sprintf("  %d%%", p.PercentComplete)
		if p.Message != "" {
			line += "  " + dimStyle.Render(truncate(p.Message, 40))
		}
		return line + "\n"
	case runstate.ProgressIndeterminate:
		return a.spin.View() + " " + dimStyle.Render("waiting for progress...") + "\n"
	default:
		return ""
	}
}

func (a *App) renderCounters(snap monitor.Snapshot) string {
	var parts []string
	if snap.Streaming {
		parts = append(parts, labelStyle.Render("elapsed ")+runstate.ElapsedLabel(snap.StartedAt, a.now))
	}
	if t := snap.State.Tokens; t.Total > 0 {
		parts = append(parts, labelStyle.Render("tokens ")+
			fmt.Sprintf("%d (%d prompt / %d completion)", t.Total, t.Prompt, t.Completion))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "   ") + "\n"
}

// renderBanner shows the terminal outcome once the terminal event class
// is in the log, whether or not the stream is still marked live.
func (a *App) renderBanner(snap monitor.Snapshot) string {
	switch snap.State.TerminalType {
	case models.EventRunComplete:
		return bannerComplete.Render("✓ Run complete")
	case models.EventRunError:
		msg := "✗ Run failed"
		if detail := lastErrorText(snap.State.Events); detail != "" {
			msg += ": " + detail
		}
		return bannerError.Render(msg)
	case models.EventReviewReady:
		return bannerReview.Render("⏸ Plan ready for review, press [a] to approve")
	}
	return ""
}

func (a *App) renderEvents(snap monitor.Snapshot) string {
	recent := runstate.RecentEvents(snap.State)
	if len(recent) == 0 {
		return dimStyle.Render("(no events yet)") + "\n"
	}

	var b strings.Builder
	for _, ev := range recent {
		b.WriteString("  " + a.formatEvent(ev) + "\n")
	}
	return b.String()
}

func (a *App) formatEvent(ev models.Event) string {
	switch ev.Type {
	case models.EventPhaseComplete:
		return completeStyle.Render("✓") + " phase " + string(ev.Phase) + " complete"
	case models.EventFileStart:
		return "→ " + ev.File
	case models.EventFileComplete:
		return completeStyle.Render("✓") + " " + ev.File
	case models.EventTableStart:
		return "→ table " + ev.Table
	case models.EventTableComplete:
		return completeStyle.Render("✓") + " table " + ev.Table
	case models.EventMessage:
		return dimStyle.Render(truncate(ev.Message, 70))
	case models.EventWarning:
		return warnStyle.Render("⚠ " + truncate(ev.Message, 70))
	case models.EventRunComplete:
		return completeStyle.Render("run complete")
	case models.EventRunError:
		return errorStyle.Render("run error: " + truncate(ev.Error, 60))
	case models.EventReviewReady:
		return reviewStyle.Render("plan ready for review")
	default:
		return string(ev.Type)
	}
}

// Commands

func (a *App) loadRuns() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runs, err := a.client.ListRuns(ctx, 20)
	if err != nil && a.store != nil {
		// Server unreachable; fall back to the local cache but keep the
		// error visible.
		if cached, cacheErr := a.store.ListRuns(20); cacheErr == nil {
			return runsLoadedMsg{runs: cached, err: err}
		}
	}
	return runsLoadedMsg{runs: runs, err: err}
}

func (a *App) cancelRun(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		run, err := a.client.CancelRun(ctx, id)
		return runCancelledMsg{run: run, err: err}
	}
}

func (a *App) approvePlan(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := a.client.ApprovePlan(ctx, id, nil)
		return planApprovedMsg{runID: id, err: err}
	}
}

// lastErrorText finds the failure detail from the most recent run_error
// event, if any.
func lastErrorText(events []models.Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == models.EventRunError {
			return truncate(events[i].Error, 60)
		}
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
