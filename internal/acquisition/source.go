// Package acquisition produces raw samples from the rig: JSON frames read line by line from a
// serial port or any other stream, or records replayed from an earlier run.
//
// Units are converted to SI here and nowhere else.
package acquisition

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rewired-gh/kbmeter/internal/models"
)

// ErrMalformedFrame marks a line that could not be turned into a sample. The line is
// discarded and acquisition continues.
var ErrMalformedFrame = errors.New("malformed frame")

// Source yields samples one at a time.
type Source interface {
	// Next blocks until a sample is available. It returns io.EOF when the source is exhausted
	// and an error wrapping ErrMalformedFrame for a discarded frame.
	Next(ctx context.Context) (models.Sample, error)
	Close() error
	// Describe names the source for logs and run metadata.
	Describe() string
}

// frame is the wire format sent by the rig firmware, one JSON object per line.
type frame struct {
	TransitTimeUS *float64 `json:"tt_us"`
	TempC         *float64 `json:"temp"`
	PressurePa    *float64 `json:"pres,omitempty"`
	Raw           *float64 `json:"raw,omitempty"`
}

// DecodeFrame converts one line into a sample with a zero timestamp.
func DecodeFrame(line []byte) (models.Sample, error) {
	var f frame
	if err := json.Unmarshal(line, &f); err != nil {
		return models.Sample{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.TransitTimeUS == nil || f.TempC == nil {
		return models.Sample{}, fmt.Errorf("%w: tt_us and temp are required", ErrMalformedFrame)
	}
	if *f.TransitTimeUS == 0 {
		return models.Sample{}, fmt.Errorf("%w: zero time diff", ErrMalformedFrame)
	}

	s := models.Sample{
		TransitTime: MicrosecondsToSeconds(*f.TransitTimeUS),
		Temperature: CelsiusToKelvin(*f.TempC),
	}
	if f.PressurePa != nil {
		s.Pressure = Pascals(*f.PressurePa)
	}
	if f.Raw != nil {
		s.Raw = *f.Raw
	}
	return s, nil
}

type lineResult struct {
	line []byte
	err  error
}

// LineSource decodes newline-delimited frames from a stream.
type LineSource struct {
	name   string
	closer io.Closer
	lines  chan lineResult
	done   chan struct{}
	start  time.Time
	now    func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// NewLineSource reads frames from r. If r is also an io.Closer it is closed by Close.
func NewLineSource(r io.Reader, name string) *LineSource {
	ls := &LineSource{
		name:  name,
		lines: make(chan lineResult),
		done:  make(chan struct{}),
		now:   time.Now,
	}
	if c, ok := r.(io.Closer); ok {
		ls.closer = c
	}
	ls.start = ls.now()
	go ls.read(r)
	return ls
}

// maxFrameSize bounds one line. Longer lines are dropped as malformed and reading resumes
// after the next newline.
const maxFrameSize = 64 * 1024

func (ls *LineSource) read(r io.Reader) {
	defer close(ls.lines)

	br := bufio.NewReader(r)
	var (
		line     []byte
		overlong bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		if !overlong {
			if len(line)+len(chunk) > maxFrameSize {
				overlong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		switch {
		case overlong:
			if !ls.send(lineResult{err: fmt.Errorf("%w: line longer than %d bytes", ErrMalformedFrame, maxFrameSize)}) {
				return
			}
		case len(line) > 0:
			if !ls.send(lineResult{line: bytes.TrimRight(line, "\r\n")}) {
				return
			}
		}
		line, overlong = nil, false

		if err != nil {
			if !errors.Is(err, io.EOF) {
				ls.send(lineResult{err: err})
			}
			return
		}
	}
}

func (ls *LineSource) send(res lineResult) bool {
	select {
	case ls.lines <- res:
		return true
	case <-ls.done:
		return false
	}
}

// Next returns the next decoded sample, stamped with the time since the source was opened.
func (ls *LineSource) Next(ctx context.Context) (models.Sample, error) {
	for {
		select {
		case <-ctx.Done():
			return models.Sample{}, ctx.Err()
		case res, ok := <-ls.lines:
			if !ok {
				return models.Sample{}, io.EOF
			}
			if errors.Is(res.err, ErrMalformedFrame) {
				return models.Sample{}, res.err
			}
			if res.err != nil {
				return models.Sample{}, fmt.Errorf("read %s: %w", ls.name, res.err)
			}
			if len(strings.TrimSpace(string(res.line))) == 0 {
				continue
			}
			s, err := DecodeFrame(res.line)
			if err != nil {
				return models.Sample{}, err
			}
			s.Timestamp = ls.now().Sub(ls.start).Seconds()
			return s, nil
		}
	}
}

// Close stops reading and closes the underlying stream.
func (ls *LineSource) Close() error {
	ls.closeOnce.Do(func() {
		close(ls.done)
		if ls.closer != nil {
			ls.closeErr = ls.closer.Close()
		}
	})
	return ls.closeErr
}

func (ls *LineSource) Describe() string {
	return ls.name
}
