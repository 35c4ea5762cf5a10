// Package stats keeps incremental statistics over the derived Boltzmann constant as samples
// stream in.
//
// The standard error reported here is the propagated one, sqrt(Σ err_i² / (n-1)), computed from
// the per-sample absolute errors. With a single sample the live display and the offline outlier
// gate disagree on what it should be, so the choice is an explicit Policy.
package stats

import "math"

// Policy decides the standard error of a one-sample aggregate.
type Policy int

const (
	// LivePolicy reports zero for a single sample.
	LivePolicy Policy = iota
	// GatePolicy reports the single sample's own absolute error, so the first admitted
	// point opens a band around itself instead of a zero-width one.
	GatePolicy
)

func (p Policy) String() string {
	switch p {
	case LivePolicy:
		return "live"
	case GatePolicy:
		return "gate"
	default:
		return "unknown"
	}
}

// Band is a sigma band configuration: mean ± K·StdError under Policy.
type Band struct {
	K      float64
	Policy Policy
}

var (
	// LiveBand is drawn around the running mean on the live display.
	LiveBand = Band{K: 3, Policy: LivePolicy}
	// GateBand admits or rejects points during offline reprocessing.
	GateBand = Band{K: 2, Policy: GatePolicy}
)

// Aggregate is the all-time running aggregate. The zero value is ready to use.
type Aggregate struct {
	count    int
	sum      float64
	sumSqErr float64
	firstErr float64

	// Welford accumulators for the spread of the values themselves.
	wMean float64
	wM2   float64
}

// Add incorporates one derived value and its absolute error.
func (a *Aggregate) Add(value, absErr float64) {
	if a.count == 0 {
		a.firstErr = math.Abs(absErr)
	}
	a.count++
	a.sum += value
	a.sumSqErr += absErr * absErr

	delta := value - a.wMean
	a.wMean += delta / float64(a.count)
	a.wM2 += delta * (value - a.wMean)
}

// Count is the number of values added.
func (a *Aggregate) Count() int {
	return a.count
}

// Mean is the arithmetic mean of every value added, or 0 when empty.
func (a *Aggregate) Mean() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

// SumSqErr is Σ err_i².
func (a *Aggregate) SumSqErr() float64 {
	return a.sumSqErr
}

// StdError is sqrt(Σ err_i² / (n-1)) for n >= 2; a single sample is resolved by p.
func (a *Aggregate) StdError(p Policy) float64 {
	switch {
	case a.count == 0:
		return 0
	case a.count == 1:
		if p == GatePolicy {
			return a.firstErr
		}
		return 0
	default:
		return math.Sqrt(a.sumSqErr / float64(a.count-1))
	}
}

// Band returns mean ± b.K·StdError(b.Policy).
func (a *Aggregate) Band(b Band) (low, high float64) {
	m := a.Mean()
	d := b.K * a.StdError(b.Policy)
	return m - d, m + d
}

// ValueSEM is the standard error of the mean estimated from the scatter of the values.
func (a *Aggregate) ValueSEM() float64 {
	if a.count < 2 {
		return 0
	}
	variance := a.wM2 / float64(a.count-1)
	return math.Sqrt(variance / float64(a.count))
}

// Summary is a point-in-time view of an aggregate.
type Summary struct {
	Count    int     `json:"count" yaml:"count"`
	Mean     float64 `json:"mean" yaml:"mean"`
	StdError float64 `json:"std_error" yaml:"std_error"`
	Low      float64 `json:"low" yaml:"low"`
	High     float64 `json:"high" yaml:"high"`
	ValueSEM float64 `json:"value_sem" yaml:"value_sem"`
}

// Summarize captures the aggregate under band b.
func (a *Aggregate) Summarize(b Band) Summary {
	low, high := a.Band(b)
	return Summary{
		Count:    a.count,
		Mean:     a.Mean(),
		StdError: a.StdError(b.Policy),
		Low:      low,
		High:     high,
		ValueSEM: a.ValueSEM(),
	}
}

// Contains reports whether v lies inside the band [Low, High].
func (s Summary) Contains(v float64) bool {
	return v >= s.Low && v <= s.High
}
