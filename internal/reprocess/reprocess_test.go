package reprocess

import (
	"errors"
	"math"
	"testing"

	"github.com/rewired-gh/kbmeter/internal/physics"
	"github.com/rewired-gh/kbmeter/internal/record"
	"github.com/rewired-gh/kbmeter/internal/uncertainty"
)

func rowsAt(distance float64, tts ...float64) []record.Row {
	rows := make([]record.Row, len(tts))
	for i, tt := range tts {
		rows[i] = record.Row{
			Time:        float64(i) + 0.5,
			Distance:    distance,
			TransitTime: tt,
			Temperature: 293.15,
			Pressure:    101325,
		}
	}
	return rows
}

func idealAir() Options {
	return Options{
		Model:  physics.Model{Gas: physics.Air, EOS: physics.Ideal},
		Budget: uncertainty.Presets["serial"],
	}
}

func TestRecompute(t *testing.T) {
	rows := rowsAt(1.0, 0.0029, 0.00291, 0.0029)
	res, err := Recompute(rows, idealAir())
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if len(res.Records) != 3 || res.Summary.Count != 3 || res.Skipped != 0 {
		t.Fatalf("Unexpected result: %d records, %d skipped", len(res.Records), res.Skipped)
	}
	for i, rec := range res.Records {
		want, _ := physics.BoltzmannIdeal(physics.Air, rows[i].TransitTime, 293.15, 1.0)
		if rec.Measurement.Boltzmann != want {
			t.Errorf("record %d: k_B = %g, want %g", i, rec.Measurement.Boltzmann, want)
		}
		if rec.Seq != i+1 {
			t.Errorf("record %d: seq %d", i, rec.Seq)
		}
	}
	if res.Distance != 1.0 {
		t.Errorf("Expected distance 1.0, got %g", res.Distance)
	}

	out := res.Rows()
	if len(out) != 3 || out[1].TransitTime != 0.00291 || out[1].Distance != 1.0 {
		t.Errorf("Unexpected rows: %+v", out)
	}
}

func TestRecomputeOffset(t *testing.T) {
	rows := rowsAt(1.0, 0.0029)
	opts := idealAir()
	opts.OffsetMS = 0.5

	res, err := Recompute(rows, opts)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	rec := res.Records[0]
	if math.Abs(rec.Sample.TransitTime-0.0034) > 1e-15 {
		t.Errorf("Expected offset transit time 0.0034, got %g", rec.Sample.TransitTime)
	}
	want, _ := physics.BoltzmannIdeal(physics.Air, 0.0029+0.0005, 293.15, 1.0)
	if math.Abs(rec.Measurement.Boltzmann-want) > 1e-12 {
		t.Errorf("k_B = %g, want %g", rec.Measurement.Boltzmann, want)
	}

	// The input rows are untouched.
	if rows[0].TransitTime != 0.0029 {
		t.Errorf("Recompute modified its input: %g", rows[0].TransitTime)
	}
}

func TestRecomputeOffsetRange(t *testing.T) {
	tests := []struct {
		offset  float64
		wantErr bool
	}{
		{-1, false},
		{1, false},
		{0, false},
		{1.01, true},
		{-2, true},
		{math.NaN(), true},
	}
	for _, tt := range tests {
		opts := idealAir()
		opts.OffsetMS = tt.offset
		_, err := Recompute(rowsAt(1.0, 0.0029), opts)
		if tt.wantErr != errors.Is(err, ErrOffsetOutOfRange) {
			t.Errorf("offset %g: error = %v, wantErr %v", tt.offset, err, tt.wantErr)
		}
	}
}

func TestRecomputeNegativeOffsetSkipsRows(t *testing.T) {
	opts := idealAir()
	opts.OffsetMS = -1
	// 0.8 ms minus 1 ms is not a valid transit time.
	res, err := Recompute(rowsAt(0.1, 0.0008, 0.0029), opts)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if res.Skipped != 1 || len(res.Records) != 1 || len(res.SkipErrors) != 1 {
		t.Errorf("Expected 1 skipped and 1 kept, got %d and %d", res.Skipped, len(res.Records))
	}
}

func TestRecomputeGate(t *testing.T) {
	rows := rowsAt(1.0, 0.0029, 0.00291, 0.0026, 0.0029)

	opts := idealAir()
	opts.Gate = true
	res, err := Recompute(rows, opts)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if res.GateRejected != 1 || len(res.Records) != 3 {
		t.Errorf("Expected the 2.6 ms outlier to be gated, got %d rejected / %d kept", res.GateRejected, len(res.Records))
	}
	for _, rec := range res.Records {
		if rec.Sample.TransitTime == 0.0026 {
			t.Error("Outlier was kept")
		}
	}

	ungated, err := Recompute(rows, idealAir())
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if len(ungated.Records) != 4 || ungated.Summary.Mean <= res.Summary.Mean {
		t.Errorf("Expected the outlier to raise the ungated mean: %g vs %g", ungated.Summary.Mean, res.Summary.Mean)
	}
}

func TestRecomputeRealGasNeedsPressure(t *testing.T) {
	rows := rowsAt(1.0, 0.0029, 0.0029)
	rows[1].Pressure = 0

	opts := idealAir()
	opts.Model.EOS = physics.RedlichKwong
	res, err := Recompute(rows, opts)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if res.Skipped != 1 || !errors.Is(res.SkipErrors[0], physics.ErrPressureRequired) {
		t.Errorf("Expected one row skipped for missing pressure, got %d: %v", res.Skipped, res.SkipErrors)
	}
}

func TestRecomputeBoxcar(t *testing.T) {
	opts := idealAir()
	opts.BoxcarWindow = 1
	res, err := Recompute(rowsAt(1.0, 0.0029, 0.0029, 0.0029, 0.0029), opts)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	// Times 2.5 and 3.5 are within 1 s of the newest.
	if res.Boxcar == nil || res.Boxcar.Count != 2 {
		t.Errorf("Unexpected boxcar summary: %+v", res.Boxcar)
	}
}

func TestRecomputeInvalidOptions(t *testing.T) {
	opts := idealAir()
	opts.Model.Gas = "helium"
	if _, err := Recompute(nil, opts); err == nil {
		t.Error("Expected error for unknown gas")
	}

	opts = idealAir()
	opts.Budget.TransitTime = -1
	if _, err := Recompute(nil, opts); err == nil {
		t.Error("Expected error for negative budget")
	}
}
