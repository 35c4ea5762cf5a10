package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rewired-gh/kbmeter/internal/experiment"
	"github.com/rewired-gh/kbmeter/internal/logger"
	"github.com/rewired-gh/kbmeter/internal/models"
	"github.com/rewired-gh/kbmeter/internal/physics"
	"github.com/rewired-gh/kbmeter/internal/stats"
)

func testSnapshot() experiment.Snapshot {
	latest := models.Record{
		Seq:         3,
		Sample:      models.Sample{TransitTime: 0.0029, Temperature: 293.15, Timestamp: 2.5},
		Measurement: models.Measurement{SpeedOfSound: 344.83, Boltzmann: 1.38512, RelativeError: 0.01, AbsoluteError: 0.0138512},
	}
	boxcar := stats.Summary{Count: 2, Mean: 1.3851}
	return experiment.Snapshot{
		Run: models.Run{Model: physics.Model{Gas: physics.Air, EOS: physics.Ideal}},
		Series: []stats.Point{
			{Time: 0.5, Value: 1.37, Err: 0.01},
			{Time: 1.5, Value: 1.39, Err: 0.01},
			{Time: 2.5, Value: 1.38512, Err: 0.0138512},
		},
		Temperatures: []float64{293.1, 293.12, 293.15},
		All:          stats.Summary{Count: 3, Mean: 1.38171, StdError: 0.0146, Low: 1.33791, High: 1.42551},
		Boxcar:       &boxcar,
		BoxcarWindow: 30,
		Band:         stats.LiveBand,
		Reference:    physics.ReferenceBoltzmann,
		Rejected:     1,
		Latest:       &latest,
	}
}

func TestLine(t *testing.T) {
	line := Line(testSnapshot())
	for _, want := range []string{"n=3", "T=293.15K", "k_B=1.38512", "mean=1.38171", "3σ[1.33791, 1.42551]", "boxcar(30s)=1.38510", "rejected=1"} {
		if !strings.Contains(line, want) {
			t.Errorf("Line() missing %q: %s", want, line)
		}
	}

	if got := Line(experiment.Snapshot{Rejected: 2}); !strings.Contains(got, "waiting") {
		t.Errorf("Unexpected empty line: %s", got)
	}
}

func TestLogSkipsUnchangedSnapshots(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, "info", "json")
	defer logger.InitWriter(&bytes.Buffer{}, "error", "json")

	l := &Log{}
	snap := testSnapshot()
	l.Update(snap)
	l.Update(snap)

	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Errorf("Expected 1 log line, got %d: %s", n, buf.String())
	}
}

func TestSparkline(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		width  int
		want   string
	}{
		{"rising", []float64{1, 2, 3, 4, 5, 6, 7, 8}, 8, "▁▂▃▄▅▆▇█"},
		{"truncated to width", []float64{9, 1, 8}, 2, "▁█"},
		{"flat", []float64{2, 2, 2}, 5, "▅▅▅"},
		{"empty", nil, 5, ""},
		{"no width", []float64{1, 2}, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sparkline(tt.values, tt.width); got != tt.want {
				t.Errorf("Sparkline() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModelPollsOnTick(t *testing.T) {
	calls := 0
	m := NewModel(func() experiment.Snapshot {
		calls++
		return testSnapshot()
	}, 10*time.Millisecond)

	if m.Init() == nil {
		t.Fatal("Expected Init to schedule a tick")
	}

	updated, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Error("Expected the next tick to be scheduled")
	}
	if calls != 1 {
		t.Errorf("Expected 1 snapshot poll, got %d", calls)
	}

	view := updated.View()
	for _, want := range []string{"ideal/air", "1.38512 ± 0.01385", "3 (1 rejected)", "boxcar", "q / esc / ctrl+c"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestModelQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	} {
		t.Run(key.String(), func(t *testing.T) {
			m := NewModel(testSnapshot, time.Second)
			updated, cmd := m.Update(key)
			if cmd == nil {
				t.Fatal("Expected a quit command")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Errorf("Expected tea.QuitMsg, got %T", cmd())
			}
			if !updated.(Model).quitting {
				t.Error("Expected the model to be quitting")
			}
			if !strings.Contains(updated.View(), "saving collected data") {
				t.Errorf("Expected stopping footer, got:\n%s", updated.View())
			}
		})
	}
}

func TestModelWaitingView(t *testing.T) {
	m := NewModel(func() experiment.Snapshot { return experiment.Snapshot{Rejected: 4} }, time.Second)
	updated, _ := m.Update(tickMsg(time.Now()))
	if !strings.Contains(updated.View(), "Waiting for samples... (4 rejected)") {
		t.Errorf("Unexpected waiting view:\n%s", updated.View())
	}
}
