// Package display renders live experiment snapshots, either as log lines or as a terminal UI.
package display

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/kbmeter/internal/experiment"
	"github.com/rewired-gh/kbmeter/internal/logger"
)

// Line formats the latest state of a snapshot on one line.
func Line(s experiment.Snapshot) string {
	if s.Latest == nil {
		return fmt.Sprintf("waiting for samples (%d rejected)", s.Rejected)
	}
	m := s.Latest.Measurement
	var b strings.Builder
	fmt.Fprintf(&b, "t=%.1fs n=%d T=%.2fK c=%.3fm/s k_B=%.5f±%.5f (%.3f%%) mean=%.5f %gσ[%.5f, %.5f]",
		s.Latest.Sample.Timestamp,
		s.All.Count,
		s.Latest.Sample.Temperature,
		m.SpeedOfSound,
		m.Boltzmann,
		m.AbsoluteError,
		m.RelativeError*100,
		s.All.Mean,
		s.Band.K,
		s.All.Low,
		s.All.High,
	)
	if s.Boxcar != nil {
		fmt.Fprintf(&b, " boxcar(%gs)=%.5f", s.BoxcarWindow, s.Boxcar.Mean)
	}
	if s.Rejected > 0 {
		fmt.Fprintf(&b, " rejected=%d", s.Rejected)
	}
	return b.String()
}

// Log writes one log line per update, skipping updates with no new sample.
type Log struct {
	lastCount int
}

func (l *Log) Update(s experiment.Snapshot) {
	if s.All.Count == l.lastCount && s.All.Count > 0 {
		return
	}
	l.lastCount = s.All.Count
	logger.Info("%s", Line(s))
}
