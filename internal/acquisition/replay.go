package acquisition

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rewired-gh/kbmeter/internal/models"
	"github.com/rewired-gh/kbmeter/internal/record"
)

// ReplaySource feeds the samples of a persisted record back through acquisition. Timestamps
// are kept from the record.
type ReplaySource struct {
	name string
	rows []record.Row
	pace time.Duration
	next int
}

// NewReplaySource replays rows, waiting pace between samples (0 replays immediately).
func NewReplaySource(rows []record.Row, pace time.Duration, name string) *ReplaySource {
	return &ReplaySource{name: name, rows: rows, pace: pace}
}

// OpenReplay reads a record file for replay. Unparseable lines are reported in the result.
func OpenReplay(path string, pace time.Duration) (*ReplaySource, *record.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	rows, res, err := record.Read(f)
	if err != nil {
		return nil, nil, fmt.Errorf("read replay file %s: %w", path, err)
	}
	return NewReplaySource(rows, pace, "replay "+path), res, nil
}

// Distance returns the path length recorded in the first row, or 0 for an empty record.
func (rs *ReplaySource) Distance() float64 {
	if len(rs.rows) == 0 {
		return 0
	}
	return rs.rows[0].Distance
}

func (rs *ReplaySource) Next(ctx context.Context) (models.Sample, error) {
	if rs.next >= len(rs.rows) {
		return models.Sample{}, io.EOF
	}
	if rs.pace > 0 && rs.next > 0 {
		timer := time.NewTimer(rs.pace)
		select {
		case <-ctx.Done():
			timer.Stop()
			return models.Sample{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return models.Sample{}, err
	}
	s := rs.rows[rs.next].Sample()
	rs.next++
	return s, nil
}

func (rs *ReplaySource) Close() error {
	return nil
}

func (rs *ReplaySource) Describe() string {
	return rs.name
}
