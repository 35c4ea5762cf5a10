package reprocess

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/kbmeter/internal/physics"
	"github.com/rewired-gh/kbmeter/internal/record"
	"github.com/rewired-gh/kbmeter/internal/uncertainty"
)

// EquationsOfState are compared in this order.
var EquationsOfState = []physics.EOS{physics.Ideal, physics.VanDerWaals, physics.RedlichKwong}

// Run is one named record to compare.
type Run struct {
	Name string
	Rows []record.Row
}

// RunComparison holds one run's means under each equation of state that could be derived.
type RunComparison struct {
	Name      string
	Distance  float64
	Count     int
	Means     map[physics.EOS]float64
	MeanError float64 // mean absolute error of the ideal-gas values
}

// Fit is a least-squares line of mean k_B against distance.
type Fit struct {
	Intercept float64
	Slope     float64 // per metre
}

// Comparison is the outcome of comparing runs, ordered by distance.
type Comparison struct {
	Gas       physics.Gas
	OffsetMS  float64
	Runs      []RunComparison
	Mean      map[physics.EOS]float64
	StdDev    map[physics.EOS]float64
	Trend     map[physics.EOS]Fit // only with at least two distinct distances
	Precision float64             // percent, mean error over mean ideal value
	Reference float64
}

// Compare re-derives each run under every equation of state for gas.
func Compare(runs []Run, gas physics.Gas, budget uncertainty.Budget, offsetMS float64) (*Comparison, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs to compare")
	}

	cmp := &Comparison{
		Gas:       gas,
		OffsetMS:  offsetMS,
		Mean:      make(map[physics.EOS]float64),
		StdDev:    make(map[physics.EOS]float64),
		Trend:     make(map[physics.EOS]Fit),
		Reference: physics.ReferenceBoltzmann,
	}

	for _, run := range runs {
		rc := RunComparison{Name: run.Name, Means: make(map[physics.EOS]float64)}
		for _, eos := range EquationsOfState {
			res, err := Recompute(run.Rows, Options{
				Model:    physics.Model{Gas: gas, EOS: eos},
				Budget:   budget,
				OffsetMS: offsetMS,
			})
			if err != nil {
				return nil, fmt.Errorf("run %s: %w", run.Name, err)
			}
			if res.Summary.Count == 0 {
				continue
			}
			rc.Distance = res.Distance
			rc.Means[eos] = res.Summary.Mean
			if eos == physics.Ideal {
				rc.Count = res.Summary.Count
				errs := make([]float64, len(res.Records))
				for i, r := range res.Records {
					errs[i] = r.Measurement.AbsoluteError
				}
				rc.MeanError = stat.Mean(errs, nil)
			}
		}
		if len(rc.Means) == 0 {
			return nil, fmt.Errorf("run %s has no usable rows", run.Name)
		}
		cmp.Runs = append(cmp.Runs, rc)
	}

	sort.SliceStable(cmp.Runs, func(i, j int) bool {
		return cmp.Runs[i].Distance < cmp.Runs[j].Distance
	})

	for _, eos := range EquationsOfState {
		var xs, ys []float64
		for _, rc := range cmp.Runs {
			if v, ok := rc.Means[eos]; ok {
				xs = append(xs, rc.Distance)
				ys = append(ys, v)
			}
		}
		if len(ys) == 0 {
			continue
		}
		cmp.Mean[eos] = stat.Mean(ys, nil)
		if len(ys) > 1 {
			cmp.StdDev[eos] = stat.StdDev(ys, nil)
		}
		if distinct(xs) > 1 {
			alpha, beta := stat.LinearRegression(xs, ys, nil, false)
			cmp.Trend[eos] = Fit{Intercept: alpha, Slope: beta}
		}
	}

	var errs, ideals []float64
	for _, rc := range cmp.Runs {
		if v, ok := rc.Means[physics.Ideal]; ok {
			errs = append(errs, rc.MeanError)
			ideals = append(ideals, v)
		}
	}
	if len(ideals) > 0 {
		cmp.Precision = stat.Mean(errs, nil) * 100 / stat.Mean(ideals, nil)
	}
	return cmp, nil
}

func distinct(xs []float64) int {
	seen := make(map[float64]struct{}, len(xs))
	for _, x := range xs {
		seen[x] = struct{}{}
	}
	return len(seen)
}
