// Package experiment runs one acquisition session: it derives a measurement from every accepted
// sample under constants fixed at start, keeps the append-only record of the run with its
// running statistics, and persists everything when the run ends.
package experiment

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rewired-gh/kbmeter/internal/models"
	"github.com/rewired-gh/kbmeter/internal/physics"
	"github.com/rewired-gh/kbmeter/internal/stats"
	"github.com/rewired-gh/kbmeter/internal/uncertainty"
)

// ErrStoppedByUser is returned by Runner.Run after an interrupt has been handled and the run
// persisted.
var ErrStoppedByUser = errors.New("stopped by user")

// RejectError reports a sample that was not accepted. Session state is unchanged.
type RejectError struct {
	Sample models.Sample
	Err    error
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("sample at %.3fs rejected: %v", e.Sample.Timestamp, e.Err)
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

// Constants are fixed for the lifetime of a session.
type Constants struct {
	Distance float64 // m, path length travelled by the pulse
	Model    physics.Model
	Budget   uncertainty.Budget
}

// Validate checks the constants before a session starts.
func (c Constants) Validate() error {
	if !(c.Distance > 0) {
		return fmt.Errorf("distance must be positive, got %g m", c.Distance)
	}
	if _, err := physics.ParseModel(string(c.Model.Gas), string(c.Model.EOS)); err != nil {
		return err
	}
	return c.Budget.Validate()
}

// Derive computes the measurement of one sample.
func (c Constants) Derive(s models.Sample) (models.Measurement, error) {
	speed, err := physics.SpeedOfSound(s.TransitTime, c.Distance)
	if err != nil {
		return models.Measurement{}, err
	}
	kb, err := physics.Boltzmann(c.Model, physics.Input{
		TransitTime: s.TransitTime,
		Temperature: s.Temperature,
		Distance:    c.Distance,
		Pressure:    s.Pressure,
	})
	if err != nil {
		return models.Measurement{}, err
	}
	rel, err := uncertainty.RelativeError(s.TransitTime, s.Temperature, c.Distance, c.Budget)
	if err != nil {
		return models.Measurement{}, err
	}

	m := models.Measurement{
		SpeedOfSound:  speed,
		Boltzmann:     kb,
		RelativeError: rel,
		AbsoluteError: uncertainty.AbsoluteError(kb, rel),
	}
	if err := m.Validate(); err != nil {
		return models.Measurement{}, err
	}
	return m, nil
}

// Options tune the statistics a session keeps.
type Options struct {
	// Band is drawn around the all-time mean. Zero means stats.LiveBand.
	Band stats.Band
	// BoxcarWindow in seconds enables the trailing-window view when positive.
	BoxcarWindow float64
}

// Session is the state of one run. All methods are safe for concurrent use.
type Session struct {
	mu sync.RWMutex

	run       models.Run
	constants Constants
	band      stats.Band

	records  []models.Record
	all      *stats.AllTime
	boxcar   *stats.Boxcar
	rejected int
}

// NewSession starts an empty session for run.
func NewSession(run models.Run, c Constants, opts Options) (*Session, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid experiment constants: %w", err)
	}
	band := opts.Band
	if band.K == 0 {
		band = stats.LiveBand
	}

	s := &Session{
		run:       run,
		constants: c,
		band:      band,
		all:       stats.NewAllTime(band),
	}
	if opts.BoxcarWindow > 0 {
		bc, err := stats.NewBoxcar(opts.BoxcarWindow, band)
		if err != nil {
			return nil, err
		}
		s.boxcar = bc
	}
	return s, nil
}

// Run returns the run metadata.
func (s *Session) Run() models.Run {
	return s.run
}

// Constants returns the session constants.
func (s *Session) Constants() Constants {
	return s.constants
}

// Ingest derives and records one sample. Invalid samples return a *RejectError and leave the
// record and statistics untouched.
func (s *Session) Ingest(sample models.Sample) (models.Record, error) {
	if err := sample.Validate(); err != nil {
		s.reject()
		return models.Record{}, &RejectError{Sample: sample, Err: err}
	}
	m, err := s.constants.Derive(sample)
	if err != nil {
		s.reject()
		return models.Record{}, &RejectError{Sample: sample, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := models.Record{Seq: len(s.records) + 1, Sample: sample, Measurement: m}
	s.records = append(s.records, rec)

	p := stats.Point{Time: sample.Timestamp, Value: m.Boltzmann, Err: m.AbsoluteError}
	s.all.Add(p)
	if s.boxcar != nil {
		s.boxcar.Add(p)
	}
	return rec, nil
}

// Discard counts a frame the source dropped before it became a sample.
func (s *Session) Discard() {
	s.reject()
}

func (s *Session) reject() {
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()
}

// Count is the number of accepted samples.
func (s *Session) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Records returns a copy of the accepted records in acceptance order.
func (s *Session) Records() []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Record(nil), s.records...)
}

// Snapshot is an immutable view of a session at one instant.
type Snapshot struct {
	Run          models.Run
	Series       []stats.Point
	Temperatures []float64
	All          stats.Summary
	Boxcar       *stats.Summary
	BoxcarWindow float64
	Band         stats.Band
	Reference    float64
	Rejected     int
	Latest       *models.Record
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Run:          s.run,
		Series:       make([]stats.Point, len(s.records)),
		Temperatures: make([]float64, len(s.records)),
		All:          s.all.Summary(),
		Band:         s.band,
		Reference:    physics.ReferenceBoltzmann,
		Rejected:     s.rejected,
	}
	for i, r := range s.records {
		snap.Series[i] = stats.Point{Time: r.Sample.Timestamp, Value: r.Measurement.Boltzmann, Err: r.Measurement.AbsoluteError}
		snap.Temperatures[i] = r.Sample.Temperature
	}
	if n := len(s.records); n > 0 {
		latest := s.records[n-1]
		snap.Latest = &latest
	}
	if s.boxcar != nil {
		bs := s.boxcar.Summary()
		snap.Boxcar = &bs
		snap.BoxcarWindow = s.boxcar.Window()
	}
	return snap
}
