package stats

import "fmt"

// Point is one derived value on the experiment time axis.
type Point struct {
	Time  float64 `json:"time"`  // s since experiment start
	Value float64 `json:"value"` // ×10^-23 J/K
	Err   float64 `json:"err"`   // absolute error, same unit as Value
}

// Low is the bottom of the point's error bar.
func (p Point) Low() float64 { return p.Value - p.Err }

// High is the top of the point's error bar.
func (p Point) High() float64 { return p.Value + p.Err }

// Aggregator is an aggregation strategy over a stream of points.
type Aggregator interface {
	// Add offers a point. It returns false when the strategy refuses it.
	Add(p Point) bool
	// Summary describes the points the strategy currently aggregates.
	Summary() Summary
	// Count is the number of points admitted so far. It never decreases.
	Count() int
}

// AllTime averages every point ever admitted.
type AllTime struct {
	agg  Aggregate
	band Band
}

// NewAllTime creates an all-time aggregator reporting band b.
func NewAllTime(b Band) *AllTime {
	return &AllTime{band: b}
}

func (a *AllTime) Add(p Point) bool {
	a.agg.Add(p.Value, p.Err)
	return true
}

func (a *AllTime) Summary() Summary {
	return a.agg.Summarize(a.band)
}

func (a *AllTime) Count() int {
	return a.agg.Count()
}

// Boxcar averages only the points whose time lies within Window seconds of the newest point.
// It is a separate policy from AllTime; Summary().Count is the number of points in the window.
type Boxcar struct {
	window float64
	band   Band
	points []Point
	latest float64
	total  int
}

// NewBoxcar creates a trailing-window aggregator. window is in seconds and must be positive.
func NewBoxcar(window float64, b Band) (*Boxcar, error) {
	if !(window > 0) {
		return nil, fmt.Errorf("boxcar window must be positive, got %g s", window)
	}
	return &Boxcar{window: window, band: b}, nil
}

// Window returns the trailing window in seconds.
func (bc *Boxcar) Window() float64 {
	return bc.window
}

func (bc *Boxcar) Add(p Point) bool {
	if bc.total == 0 || p.Time > bc.latest {
		bc.latest = p.Time
	}
	bc.total++
	bc.points = append(bc.points, p)

	cutoff := bc.latest - bc.window
	kept := bc.points[:0]
	for _, q := range bc.points {
		if q.Time >= cutoff {
			kept = append(kept, q)
		}
	}
	bc.points = kept
	return true
}

func (bc *Boxcar) Summary() Summary {
	var agg Aggregate
	for _, p := range bc.points {
		agg.Add(p.Value, p.Err)
	}
	return agg.Summarize(bc.band)
}

func (bc *Boxcar) Count() int {
	return bc.total
}

// Gate admits a point only if it falls inside the band of the points admitted before it.
// The first point is always admitted. Admission depends on arrival order.
type Gate struct {
	agg      Aggregate
	band     Band
	rejected int
}

// NewGate creates an outlier gate using band b, normally GateBand.
func NewGate(b Band) *Gate {
	return &Gate{band: b}
}

func (g *Gate) Add(p Point) bool {
	if g.agg.Count() > 0 {
		low, high := g.agg.Band(g.band)
		if p.Value < low || p.Value > high {
			g.rejected++
			return false
		}
	}
	g.agg.Add(p.Value, p.Err)
	return true
}

func (g *Gate) Summary() Summary {
	return g.agg.Summarize(g.band)
}

func (g *Gate) Count() int {
	return g.agg.Count()
}

// Rejected is the number of points refused so far.
func (g *Gate) Rejected() int {
	return g.rejected
}
