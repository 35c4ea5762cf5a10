package acquisition

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantErr  bool
		wantTT   float64
		wantTemp float64
		wantPres float64
		wantRaw  float64
	}{
		{
			name:     "transit time and temperature",
			line:     `{"tt_us": 2915, "temp": 20}`,
			wantTT:   0.002915,
			wantTemp: 293.15,
		},
		{
			name:     "with pressure and raw",
			line:     `{"tt_us": 5830.5, "temp": 21.5, "pres": 100950.25, "raw": 172.4}`,
			wantTT:   0.0058305,
			wantTemp: 294.65,
			wantPres: 100950.25,
			wantRaw:  172.4,
		},
		{
			name:     "below freezing",
			line:     `{"tt_us": 3000, "temp": -5}`,
			wantTT:   0.003,
			wantTemp: 268.15,
		},
		{name: "zero time diff", line: `{"tt_us": 0, "temp": 20}`, wantErr: true},
		{name: "missing temperature", line: `{"tt_us": 2915}`, wantErr: true},
		{name: "missing transit time", line: `{"temp": 20}`, wantErr: true},
		{name: "not json", line: `tt=2915 temp=20`, wantErr: true},
		{name: "truncated", line: `{"tt_us": 29`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := DecodeFrame([]byte(tt.line))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedFrame) {
					t.Errorf("Expected ErrMalformedFrame, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeFrame failed: %v", err)
			}
			if math.Abs(s.TransitTime-tt.wantTT) > 1e-12 {
				t.Errorf("TransitTime = %g, want %g", s.TransitTime, tt.wantTT)
			}
			if math.Abs(s.Temperature-tt.wantTemp) > 1e-9 {
				t.Errorf("Temperature = %g, want %g", s.Temperature, tt.wantTemp)
			}
			if math.Abs(s.Pressure-tt.wantPres) > 1e-6 {
				t.Errorf("Pressure = %g, want %g", s.Pressure, tt.wantPres)
			}
			if s.Raw != tt.wantRaw {
				t.Errorf("Raw = %g, want %g", s.Raw, tt.wantRaw)
			}
		})
	}
}

func TestLineSource_SkipsMalformedAndEnds(t *testing.T) {
	in := strings.Join([]string{
		`{"tt_us": 2915, "temp": 20}`,
		``,
		`{"tt_us": 0, "temp": 20}`,
		`{"tt_us": 2920, "temp": 20.5}`,
	}, "\n")
	src := NewLineSource(strings.NewReader(in), "test")
	defer src.Close()
	ctx := context.Background()

	var got, malformed int
	var last float64
	for {
		s, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrMalformedFrame) {
			malformed++
			continue
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if s.Timestamp < last {
			t.Errorf("Timestamps went backwards: %g after %g", s.Timestamp, last)
		}
		last = s.Timestamp
		got++
	}

	if got != 2 || malformed != 1 {
		t.Errorf("Expected 2 samples and 1 malformed frame, got %d and %d", got, malformed)
	}
	if src.Describe() != "test" {
		t.Errorf("Unexpected description %q", src.Describe())
	}
}

func TestLineSource_Timestamp(t *testing.T) {
	src := NewLineSource(strings.NewReader(`{"tt_us": 2915, "temp": 20}`+"\n"), "clock")
	defer src.Close()
	src.now = func() time.Time { return src.start.Add(1500 * time.Millisecond) }

	s, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if s.Timestamp != 1.5 {
		t.Errorf("Expected timestamp 1.5 s, got %g", s.Timestamp)
	}
}

type pipeCloser struct {
	*io.PipeReader
	closed bool
}

func (p *pipeCloser) Close() error {
	p.closed = true
	return p.PipeReader.Close()
}

func TestLineSource_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	rc := &pipeCloser{PipeReader: pr}
	src := NewLineSource(rc, "pipe")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := src.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if !rc.closed {
		t.Error("Expected underlying reader to be closed")
	}
	// Closing twice is harmless.
	if err := src.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestLineSource_OverlongLineIsDiscarded(t *testing.T) {
	in := strings.Repeat("x", 70*1024) + "\n" +
		`{"tt_us":5831,"temp":21.5}` + "\n" +
		strings.Repeat("y", maxFrameSize+1)
	src := NewLineSource(strings.NewReader(in), "noise")
	defer src.Close()
	ctx := context.Background()

	if _, err := src.Next(ctx); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("Expected ErrMalformedFrame for the overlong line, got %v", err)
	}
	s, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Expected the frame after the overlong line, got %v", err)
	}
	if math.Abs(s.TransitTime-0.005831) > 1e-12 || math.Abs(s.Temperature-294.65) > 1e-9 {
		t.Errorf("Unexpected sample %+v", s)
	}
	if _, err := src.Next(ctx); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame for the unterminated overlong tail, got %v", err)
	}
	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF, got %v", err)
	}
}

func TestLineSource_CRLF(t *testing.T) {
	src := NewLineSource(strings.NewReader("{\"tt_us\": 2915, \"temp\": 20}\r\n"), "crlf")
	defer src.Close()

	s, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if math.Abs(s.TransitTime-0.002915) > 1e-12 {
		t.Errorf("Expected 0.002915 s, got %g", s.TransitTime)
	}
}

func TestMicrosecondsToSeconds(t *testing.T) {
	tests := []struct {
		name string
		us   float64
		want float64
	}{
		{"echo", 5831, 0.005831},
		{"sub-nanosecond", 0.0005, 5e-10},
		{"beyond int64 nanoseconds", 1e17, 1e11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MicrosecondsToSeconds(tt.us)
			if math.Abs(got-tt.want) > 1e-12*tt.want {
				t.Errorf("MicrosecondsToSeconds(%g) = %g, expected %g", tt.us, got, tt.want)
			}
		})
	}
}
