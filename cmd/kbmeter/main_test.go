package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rewired-gh/kbmeter/internal/experiment"
	"github.com/rewired-gh/kbmeter/internal/record"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"interrupted", experiment.ErrStoppedByUser, exitInterrupted},
		{"interrupted with persist failure", errors.Join(experiment.ErrStoppedByUser, errors.New("disk full")), exitInterrupted},
		{"failure", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, expected %d", tt.err, got, tt.want)
			}
		})
	}
}

// writeRun writes n samples of air at 343 m/s and 293.15 K over distance metres.
func writeRun(t *testing.T, name string, distance float64, n int) string {
	t.Helper()
	rows := make([]record.Row, n)
	for i := range rows {
		rows[i] = record.Row{
			Time:        float64(i),
			Distance:    distance,
			TransitTime: distance/343.0 + float64(i%3)*1e-6,
			Temperature: 293.15,
			Boltzmann:   1.379,
			Error:       0.014,
		}
	}
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create record: %v", err)
	}
	defer f.Close()
	if err := record.Write(f, rows, record.Options{}); err != nil {
		t.Fatalf("Failed to write record: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("KBMETER_LOGGING_LEVEL", "error")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReprocessCommand(t *testing.T) {
	path := writeRun(t, "run.csv", 1.0, 10)
	outPath := filepath.Join(t.TempDir(), "out", "reprocessed.csv")

	out, err := execute(t, "reprocess", path, "--gas", "air", "--eos", "ideal", "--offset-ms", "0.01", "-o", outPath)
	if err != nil {
		t.Fatalf("reprocess failed: %v", err)
	}
	for _, want := range []string{"ideal/air", "10 used", "k_B"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("Expected reprocessed record: %v", err)
	}
	defer f.Close()
	rows, _, err := record.Read(f)
	if err != nil {
		t.Fatalf("Failed to read reprocessed record: %v", err)
	}
	if len(rows) != 10 {
		t.Errorf("Expected 10 rows, got %d", len(rows))
	}
	if rows[0].TransitTime <= 1.0/343.0 {
		t.Errorf("Expected the offset to lengthen the transit time, got %g", rows[0].TransitTime)
	}
}

func TestReprocessCommandArguments(t *testing.T) {
	if _, err := execute(t, "reprocess"); err == nil {
		t.Error("Expected an error without a record or run")
	}
	path := writeRun(t, "run.csv", 1.0, 3)
	if _, err := execute(t, "reprocess", path, "--offset-ms", "5"); err == nil {
		t.Error("Expected an error for an offset beyond 1 ms")
	}
}

func TestCompareCommand(t *testing.T) {
	near := writeRun(t, "near.csv", 0.5, 5)
	far := writeRun(t, "far.csv", 1.5, 5)

	out, err := execute(t, "compare", far, near, "--gas", "air")
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	if strings.Index(out, "near.csv") > strings.Index(out, "far.csv") {
		t.Errorf("Expected runs ordered by distance, got:\n%s", out)
	}
	if !strings.Contains(out, "precision") {
		t.Errorf("Expected a precision line, got:\n%s", out)
	}
}
