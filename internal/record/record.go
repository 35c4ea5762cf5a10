// Package record reads and writes the persisted tabular record of an experiment run: one CSV
// row per accepted sample, with the experiment distance repeated on every row.
package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rewired-gh/kbmeter/internal/models"
)

// Column headers, in file order. Pressure and Raw Signal are only written when the run has them.
const (
	ColTime        = "Time"
	ColDistance    = "Exp Distance"
	ColTransitTime = "Measured Time Diff"
	ColTemperature = "Temperature"
	ColBoltzmann   = "Derived k_B"
	ColError       = "Derived k_B Error"
	ColPressure    = "Pressure"
	ColRaw         = "Raw Signal"
)

var requiredColumns = []string{ColTime, ColDistance, ColTransitTime, ColTemperature, ColBoltzmann, ColError}

// ErrNonFinite is returned when a row would persist NaN or Inf.
var ErrNonFinite = errors.New("refusing to persist non-finite value")

// Row is one line of the persisted record.
type Row struct {
	Time        float64 // s since start
	Distance    float64 // m
	TransitTime float64 // s
	Temperature float64 // K
	Boltzmann   float64 // ×10^-23 J/K
	Error       float64 // absolute, ×10^-23 J/K
	Pressure    float64 // Pa, 0 when absent
	Raw         float64 // 0 when absent
}

// FromRecord flattens a session record for persistence.
func FromRecord(distance float64, r models.Record) Row {
	return Row{
		Time:        r.Sample.Timestamp,
		Distance:    distance,
		TransitTime: r.Sample.TransitTime,
		Temperature: r.Sample.Temperature,
		Boltzmann:   r.Measurement.Boltzmann,
		Error:       r.Measurement.AbsoluteError,
		Pressure:    r.Sample.Pressure,
		Raw:         r.Sample.Raw,
	}
}

// Sample recovers the raw sample a row was derived from.
func (r Row) Sample() models.Sample {
	return models.Sample{
		TransitTime: r.TransitTime,
		Temperature: r.Temperature,
		Pressure:    r.Pressure,
		Timestamp:   r.Time,
		Raw:         r.Raw,
	}
}

func (r Row) values() []float64 {
	return []float64{r.Time, r.Distance, r.TransitTime, r.Temperature, r.Boltzmann, r.Error, r.Pressure, r.Raw}
}

// Options selects the optional columns.
type Options struct {
	Pressure bool
	Raw      bool
}

// OptionsFor enables each optional column when at least one row carries it.
func OptionsFor(rows []Row) Options {
	var o Options
	for _, r := range rows {
		if r.Pressure != 0 {
			o.Pressure = true
		}
		if r.Raw != 0 {
			o.Raw = true
		}
	}
	return o
}

// Header returns the column names written under o.
func Header(o Options) []string {
	h := append([]string{}, requiredColumns...)
	if o.Pressure || o.Raw {
		h = append(h, ColPressure)
	}
	if o.Raw {
		h = append(h, ColRaw)
	}
	return h
}

// Write writes a header and one line per row. No row is written if any value is not finite.
func Write(w io.Writer, rows []Row, o Options) error {
	for i, r := range rows {
		for _, v := range r.values() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d", ErrNonFinite, i+1)
			}
		}
	}

	header := Header(o)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range rows {
		vals := r.values()[:len(header)]
		line := make([]string, len(vals))
		for j, v := range vals {
			line[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// Result reports how a read went. Lines that fail to parse are skipped and counted.
type Result struct {
	Total  int
	Failed int
	Errors []string
}

// Read parses a record written by Write (or by earlier tooling with the same headers).
func Read(r io.Reader) ([]Row, *Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	result := &Result{}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, result, nil
		}
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	headerMap := make(map[string]int)
	for i, h := range headers {
		headerMap[strings.ToLower(strings.TrimSpace(h))] = i
	}
	// Early HC-SR04 runs named the raw column after the sensor.
	if idx, ok := headerMap["hc-sro4 raw"]; ok {
		if _, exists := headerMap[strings.ToLower(ColRaw)]; !exists {
			headerMap[strings.ToLower(ColRaw)] = idx
		}
	}
	for _, req := range requiredColumns {
		if _, ok := headerMap[strings.ToLower(req)]; !ok {
			return nil, nil, fmt.Errorf("missing required csv header: %s", req)
		}
	}

	var rows []Row
	for {
		line, err := reader.Read()
		if err == io.EOF {
			break
		}
		result.Total++
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("csv read error at line %d: %v", result.Total+1, err))
			continue
		}

		row, err := parseRow(line, headerMap)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", result.Total+1, err))
			continue
		}
		rows = append(rows, row)
	}

	return rows, result, nil
}

func parseRow(line []string, headerMap map[string]int) (Row, error) {
	get := func(col string, required bool) (float64, error) {
		idx, ok := headerMap[strings.ToLower(col)]
		if !ok || idx >= len(line) || strings.TrimSpace(line[idx]) == "" {
			if required {
				return 0, fmt.Errorf("%s is empty", col)
			}
			return 0, nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(line[idx]), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", col, line[idx])
		}
		return v, nil
	}

	var row Row
	var err error
	fields := []struct {
		col      string
		dst      *float64
		required bool
	}{
		{ColTime, &row.Time, true},
		{ColDistance, &row.Distance, true},
		{ColTransitTime, &row.TransitTime, true},
		{ColTemperature, &row.Temperature, true},
		{ColBoltzmann, &row.Boltzmann, true},
		{ColError, &row.Error, true},
		{ColPressure, &row.Pressure, false},
		{ColRaw, &row.Raw, false},
	}
	for _, f := range fields {
		if *f.dst, err = get(f.col, f.required); err != nil {
			return Row{}, err
		}
	}
	return row, nil
}
