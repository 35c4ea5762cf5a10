// Package reprocess re-derives persisted runs under a different model, error budget or timing
// offset, optionally dropping outliers, and compares runs taken at different distances.
package reprocess

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/kbmeter/internal/experiment"
	"github.com/rewired-gh/kbmeter/internal/models"
	"github.com/rewired-gh/kbmeter/internal/physics"
	"github.com/rewired-gh/kbmeter/internal/record"
	"github.com/rewired-gh/kbmeter/internal/stats"
	"github.com/rewired-gh/kbmeter/internal/uncertainty"
)

// MaxOffsetMS bounds the timing offset in either direction.
const MaxOffsetMS = 1.0

// ErrOffsetOutOfRange is returned for an offset beyond ±MaxOffsetMS.
var ErrOffsetOutOfRange = errors.New("time offset out of range")

// Options select how rows are re-derived.
type Options struct {
	Model  physics.Model
	Budget uncertainty.Budget
	// OffsetMS is added to every transit time before derivation.
	OffsetMS float64
	// Gate drops points outside the band of the points admitted before them.
	Gate     bool
	GateBand stats.Band // zero means stats.GateBand
	// Band is reported around the mean of the admitted points. Zero means stats.LiveBand.
	Band stats.Band
	// BoxcarWindow in seconds adds a trailing-window summary when positive.
	BoxcarWindow float64
}

// Result is one re-derived run.
type Result struct {
	Records      []models.Record
	Summary      stats.Summary
	Boxcar       *stats.Summary
	Distance     float64 // m, of the first row
	Skipped      int     // rows that could not be derived under the options
	GateRejected int
	SkipErrors   []error
}

// Recompute re-derives rows in order. Rows that cannot be derived are skipped and counted.
func Recompute(rows []record.Row, opts Options) (*Result, error) {
	if opts.OffsetMS < -MaxOffsetMS || opts.OffsetMS > MaxOffsetMS || opts.OffsetMS != opts.OffsetMS {
		return nil, fmt.Errorf("%w: %g ms (must be within ±%g ms)", ErrOffsetOutOfRange, opts.OffsetMS, MaxOffsetMS)
	}
	if err := opts.Budget.Validate(); err != nil {
		return nil, err
	}
	if _, err := physics.ParseModel(string(opts.Model.Gas), string(opts.Model.EOS)); err != nil {
		return nil, err
	}

	band := opts.Band
	if band.K == 0 {
		band = stats.LiveBand
	}
	gateBand := opts.GateBand
	if gateBand.K == 0 {
		gateBand = stats.GateBand
	}

	all := stats.NewAllTime(band)
	var gate *stats.Gate
	if opts.Gate {
		gate = stats.NewGate(gateBand)
	}
	var boxcar *stats.Boxcar
	if opts.BoxcarWindow > 0 {
		bc, err := stats.NewBoxcar(opts.BoxcarWindow, band)
		if err != nil {
			return nil, err
		}
		boxcar = bc
	}

	res := &Result{}
	if len(rows) > 0 {
		res.Distance = rows[0].Distance
	}

	offset := opts.OffsetMS * 1e-3
	for i, row := range rows {
		s := row.Sample()
		s.TransitTime += offset

		c := experiment.Constants{Distance: row.Distance, Model: opts.Model, Budget: opts.Budget}
		if err := s.Validate(); err != nil {
			res.skip(i, err)
			continue
		}
		m, err := c.Derive(s)
		if err != nil {
			res.skip(i, err)
			continue
		}

		p := stats.Point{Time: s.Timestamp, Value: m.Boltzmann, Err: m.AbsoluteError}
		if gate != nil && !gate.Add(p) {
			res.GateRejected++
			continue
		}
		all.Add(p)
		if boxcar != nil {
			boxcar.Add(p)
		}
		res.Records = append(res.Records, models.Record{Seq: len(res.Records) + 1, Sample: s, Measurement: m})
	}

	res.Summary = all.Summary()
	if boxcar != nil {
		bs := boxcar.Summary()
		res.Boxcar = &bs
	}
	return res, nil
}

func (r *Result) skip(row int, err error) {
	r.Skipped++
	r.SkipErrors = append(r.SkipErrors, fmt.Errorf("row %d: %w", row+1, err))
}

// Rows flattens the result for writing as a record file.
func (r *Result) Rows() []record.Row {
	rows := make([]record.Row, len(r.Records))
	for i, rec := range r.Records {
		rows[i] = record.FromRecord(r.Distance, rec)
	}
	return rows
}
