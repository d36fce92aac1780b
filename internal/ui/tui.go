package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws progress with bubbletea. The final summary stays on
// screen after Stop.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	model   *ingestModel
	program *tea.Program
	done    chan struct{}
}

// NewTUIRenderer fails when the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a terminal")
	}
	model := newIngestModel(cfg.Title)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}
	return &TUIRenderer{cfg: cfg, model: model, done: make(chan struct{})}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.send(progressMsg(event))
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.send(completeMsg(stats))
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Stop implements Renderer. It waits up to two seconds for the program to
// draw its last frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return nil
	}

	p.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

var _ Renderer = (*TUIRenderer)(nil)

type (
	progressMsg ProgressEvent
	completeMsg CompletionStats
)

// ingestModel is the bubbletea model. All state changes happen in Update.
type ingestModel struct {
	title    string
	width    int
	event    ProgressEvent
	stats    CompletionStats
	complete bool
	quitting bool

	spinner spinner.Model
	bar     progress.Model
	styles  Styles
}

func newIngestModel(title string) *ingestModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	return &ingestModel{
		title:   title,
		width:   80,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
		styles: DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *ingestModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *ingestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(20, msg.Width-20)
	case progressMsg:
		m.event = ProgressEvent(msg)
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *ingestModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	width := max(40, m.width-4)
	sections := []string{
		m.renderStages(),
		m.styles.Border.Render(strings.Repeat("─", width)),
		m.renderProgress(),
	}
	if m.event.CurrentFile != "" {
		sections = append(sections, m.styles.Dim.Render(truncatePath(m.event.CurrentFile, width-2)))
	}

	title := "One-Desk ingest"
	if m.title != "" {
		title += " • " + m.title
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(strings.Join(sections, "\n")),
	) + "\n"
}

func (m *ingestModel) renderStages() string {
	current := m.event.Stage
	var parts []string
	for _, s := range []Stage{StageExtract, StageEmbed, StageSave} {
		switch {
		case s < current:
			parts = append(parts, m.styles.Success.Render("● "+s.String()))
		case s == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *ingestModel) renderProgress() string {
	e := m.event
	if e.Total == 0 {
		return fmt.Sprintf("%s %s...", m.spinner.View(), e.Stage)
	}
	percent := float64(e.Current) / float64(e.Total)
	return fmt.Sprintf("%s  %s\n%s",
		m.bar.ViewAs(percent),
		m.styles.Active.Render(fmt.Sprintf("%3.0f%%", percent*100)),
		m.styles.Label.Render(fmt.Sprintf("%d / %d %s", e.Current, e.Total, e.Stage.unit())))
}

func (m *ingestModel) renderComplete() string {
	lines := []string{
		m.styles.Success.Render("✓ Ingest complete"),
		"",
		m.styles.Label.Render("Files:    ") + m.styles.Active.Render(fmt.Sprint(m.stats.Files)),
		m.styles.Label.Render("Chunks:   ") + m.styles.Active.Render(fmt.Sprint(m.stats.Chunks)),
		m.styles.Label.Render("Indexed:  ") + m.styles.Active.Render(fmt.Sprint(m.stats.Total)),
		m.styles.Label.Render("Duration: ") + m.styles.Active.Render(formatDuration(m.stats.Duration)),
	}
	if m.stats.Embedder != "" {
		lines = append(lines, m.styles.Label.Render("Embedder: ")+m.stats.Embedder)
	}
	if m.stats.Skipped > 0 {
		lines = append(lines, "", m.styles.Warning.Render(fmt.Sprintf("⚠ %d files skipped", m.stats.Skipped)))
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAccent)).
		Padding(1, 2).
		Width(max(40, m.width-4))
	return panel.Render(strings.Join(lines, "\n")) + "\n"
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// truncatePath keeps the tail of path, which holds the file name.
func truncatePath(path string, maxLen int) string {
	runes := []rune(path)
	if len(runes) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return "..."
	}
	return "..." + string(runes[len(runes)-maxLen+3:])
}
