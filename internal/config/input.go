package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RangeError reports a value outside its accepted range.
type RangeError struct {
	Name     string
	Value    float64
	Min, Max float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %g out of range [%g, %g]", e.Name, e.Value, e.Min, e.Max)
}

// CheckRange returns a *RangeError when v is outside [min, max].
func CheckRange(name string, v, min, max float64) error {
	if v < min || v > max || v != v {
		return &RangeError{Name: name, Value: v, Min: min, Max: max}
	}
	return nil
}

// ParseInRange parses raw as a float and checks it against [min, max].
func ParseInRange(name, raw string, min, max float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", name, strings.TrimSpace(raw))
	}
	if err := CheckRange(name, v, min, max); err != nil {
		return 0, err
	}
	return v, nil
}

// ErrNoInput is returned by PromptFloat when the input ends before a valid value is read.
var ErrNoInput = errors.New("no valid input")

// PromptFloat asks for a value on out until a line from in parses inside [min, max].
func PromptFloat(in io.Reader, out io.Writer, name string, min, max float64) (float64, error) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "Please enter the value of %s [%g-%g]: ", name, min, max)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return 0, err
			}
			return 0, fmt.Errorf("%s: %w", name, ErrNoInput)
		}
		v, err := ParseInRange(name, scanner.Text(), min, max)
		if err != nil {
			fmt.Fprintf(out, "%v. Please try again.\n", err)
			continue
		}
		fmt.Fprintf(out, "%s is set as %g.\n", name, v)
		return v, nil
	}
}
