package display

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rewired-gh/kbmeter/internal/experiment"
)

var (
	colorText   = lipgloss.Color("#cdd6f4")
	colorMuted  = lipgloss.Color("#a6adc8")
	colorBorder = lipgloss.Color("#45475a")
	colorTitle  = lipgloss.Color("#74c7ec")
	colorGood   = lipgloss.Color("#a6e3a1")
	colorWarn   = lipgloss.Color("#fab387")

	titleStyle = lipgloss.NewStyle().Foreground(colorTitle).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	valueStyle = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	goodStyle  = lipgloss.NewStyle().Foreground(colorGood)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	paneStyle  = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)

const sparkRunes = "▁▂▃▄▅▆▇█"

type tickMsg time.Time

// Model is the bubbletea model of the live view. It polls snapshots on every tick.
type Model struct {
	snapshot func() experiment.Snapshot
	interval time.Duration

	snap     experiment.Snapshot
	width    int
	quitting bool
}

// NewModel creates a model polling snapshot every interval.
func NewModel(snapshot func() experiment.Snapshot, interval time.Duration) Model {
	if interval <= 0 {
		interval = time.Second
	}
	return Model{snapshot: snapshot, interval: interval, width: 80}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.snap = m.snapshot()
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			m.snap = m.snapshot()
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) View() string {
	s := m.snap
	title := titleStyle.Render("k_B time-of-flight") + "  " + mutedStyle.Render(s.Run.Model.String())

	if s.Latest == nil {
		body := mutedStyle.Render(fmt.Sprintf("Waiting for samples... (%d rejected)", s.Rejected))
		return lipgloss.JoinVertical(lipgloss.Left, title, paneStyle.Render(body), m.footer())
	}

	r := s.Latest
	latest := lipgloss.JoinVertical(lipgloss.Left,
		mutedStyle.Render("Latest sample"),
		fmt.Sprintf("time         %s", valueStyle.Render(fmt.Sprintf("%.1f s", r.Sample.Timestamp))),
		fmt.Sprintf("temperature  %s", valueStyle.Render(fmt.Sprintf("%.2f K (%.2f °C)", r.Sample.Temperature, r.Sample.Temperature-273.15))),
		fmt.Sprintf("speed        %s", valueStyle.Render(fmt.Sprintf("%.3f m/s", r.Measurement.SpeedOfSound))),
		fmt.Sprintf("k_B          %s", valueStyle.Render(fmt.Sprintf("%.5f ± %.5f", r.Measurement.Boltzmann, r.Measurement.AbsoluteError))),
		fmt.Sprintf("precision    %s", valueStyle.Render(fmt.Sprintf("%.3f %%", r.Measurement.RelativeError*100))),
	)

	dev := 0.0
	if s.Reference != 0 {
		dev = (s.All.Mean - s.Reference) / s.Reference * 100
	}
	devStyle := goodStyle
	if !s.All.Contains(s.Reference) {
		devStyle = warnStyle
	}
	lines := []string{
		mutedStyle.Render("Running statistics"),
		fmt.Sprintf("samples      %s", valueStyle.Render(fmt.Sprintf("%d (%d rejected)", s.All.Count, s.Rejected))),
		fmt.Sprintf("mean         %s", valueStyle.Render(fmt.Sprintf("%.5f ± %.5f", s.All.Mean, s.All.StdError))),
		fmt.Sprintf("%gσ band     %s", s.Band.K, valueStyle.Render(fmt.Sprintf("[%.5f, %.5f]", s.All.Low, s.All.High))),
		fmt.Sprintf("reference    %s", devStyle.Render(fmt.Sprintf("%.5f (%+.2f %%)", s.Reference, dev))),
	}
	if s.Boxcar != nil {
		lines = append(lines, fmt.Sprintf("boxcar %3gs  %s", s.BoxcarWindow,
			valueStyle.Render(fmt.Sprintf("%.5f ± %.5f (n=%d)", s.Boxcar.Mean, s.Boxcar.StdError, s.Boxcar.Count))))
	}
	running := lipgloss.JoinVertical(lipgloss.Left, lines...)

	panes := lipgloss.JoinHorizontal(lipgloss.Top, paneStyle.Render(latest), paneStyle.Render(running))

	values := make([]float64, len(s.Series))
	for i, p := range s.Series {
		values[i] = p.Value
	}
	spark := paneStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		mutedStyle.Render("Derived k_B"),
		goodStyle.Render(Sparkline(values, max(m.width-6, 10))),
		mutedStyle.Render("Temperature"),
		Sparkline(s.Temperatures, max(m.width-6, 10)),
	))

	return lipgloss.JoinVertical(lipgloss.Left, title, panes, spark, m.footer())
}

func (m Model) footer() string {
	if m.quitting {
		return warnStyle.Render("Stopping, saving collected data...")
	}
	return mutedStyle.Render("q / esc / ctrl+c: stop and save")
}

// Sparkline renders the last width values scaled between their minimum and maximum.
func Sparkline(values []float64, width int) string {
	if width <= 0 || len(values) == 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	runes := []rune(sparkRunes)
	var b strings.Builder
	for _, v := range values {
		idx := len(runes) / 2
		if hi > lo {
			idx = int(math.Round((v - lo) / (hi - lo) * float64(len(runes)-1)))
		}
		b.WriteRune(runes[idx])
	}
	return b.String()
}

// TUI runs the live view as a full-screen program.
type TUI struct {
	program *tea.Program
}

// NewTUI creates the program. It ends when ctx is cancelled or Quit is called.
func NewTUI(ctx context.Context, snapshot func() experiment.Snapshot, interval time.Duration, opts ...tea.ProgramOption) *TUI {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	return &TUI{program: tea.NewProgram(NewModel(snapshot, interval), opts...)}
}

// Run blocks until the user quits or the program is stopped. onQuit is called when the user
// pressed a quit key.
func (t *TUI) Run(onQuit func()) error {
	final, err := t.program.Run()
	if m, ok := final.(Model); ok && m.quitting && onQuit != nil {
		onQuit()
	}
	return err
}

// Quit stops the program from outside.
func (t *TUI) Quit() {
	t.program.Quit()
}
