package models

import (
	"time"

	"github.com/rewired-gh/kbmeter/internal/stats"
)

// RunSummary is what is reported when a run ends.
type RunSummary struct {
	Run       Run
	Summary   stats.Summary
	Rejected  int
	Elapsed   time.Duration
	Reference float64
	CSVPath   string
}

// Deviation is the relative difference between the run mean and the reference constant.
func (s RunSummary) Deviation() float64 {
	if s.Reference == 0 || s.Summary.Count == 0 {
		return 0
	}
	return (s.Summary.Mean - s.Reference) / s.Reference
}
