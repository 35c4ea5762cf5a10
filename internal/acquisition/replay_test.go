package acquisition

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/kbmeter/internal/record"
)

func TestReplaySource(t *testing.T) {
	rows := []record.Row{
		{Time: 0.5, Distance: 1, TransitTime: 0.0029, Temperature: 293.15, Boltzmann: 1.38, Error: 0.01},
		{Time: 1.5, Distance: 1, TransitTime: 0.0030, Temperature: 293.2, Boltzmann: 1.37, Error: 0.01, Pressure: 101000},
	}
	src := NewReplaySource(rows, 0, "replay test")
	ctx := context.Background()

	if src.Distance() != 1 {
		t.Errorf("Expected distance 1, got %g", src.Distance())
	}

	for i, row := range rows {
		s, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next %d failed: %v", i, err)
		}
		if s != row.Sample() {
			t.Errorf("sample %d: expected %+v, got %+v", i, row.Sample(), s)
		}
	}
	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after last row, got %v", err)
	}
}

func TestReplaySource_PaceHonoursContext(t *testing.T) {
	rows := []record.Row{
		{Time: 0, Distance: 1, TransitTime: 0.003, Temperature: 293},
		{Time: 1, Distance: 1, TransitTime: 0.003, Temperature: 293},
	}
	src := NewReplaySource(rows, time.Hour, "slow")

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := src.Next(ctx); err != nil {
		t.Fatalf("first Next should not wait: %v", err)
	}
	cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestOpenReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	rows := []record.Row{{Time: 0.5, Distance: 2, TransitTime: 0.0058, Temperature: 294, Boltzmann: 1.38, Error: 0.01}}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := record.Write(f, rows, record.Options{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	f.Close()

	src, res, err := OpenReplay(path, 0)
	if err != nil {
		t.Fatalf("OpenReplay failed: %v", err)
	}
	if res.Total != 1 || res.Failed != 0 {
		t.Errorf("Unexpected read result: %+v", res)
	}
	if src.Distance() != 2 {
		t.Errorf("Expected distance 2, got %g", src.Distance())
	}

	if _, _, err := OpenReplay(filepath.Join(t.TempDir(), "missing.csv"), 0); err == nil {
		t.Error("Expected error for missing file")
	}
}
