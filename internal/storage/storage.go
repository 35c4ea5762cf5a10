// Package storage archives experiment runs and their records in a SQLite database so that
// earlier runs can be listed, reprocessed and compared without their CSV files.
//
// Writes are append-only: a run is saved once and its records are appended in batches.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rewired-gh/kbmeter/internal/models"
	"github.com/rewired-gh/kbmeter/internal/physics"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// MemoryPath opens a private in-memory archive.
const MemoryPath = ":memory:"

// Storage is the run archive. It is safe for concurrent use.
type Storage struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (or creates) the archive at path and ensures its schema.
func New(path string) (*Storage, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A second pooled connection to :memory: would see an empty database.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  distance REAL NOT NULL,
  gas TEXT NOT NULL,
  eos TEXT NOT NULL,
  budget_name TEXT,
  budget_distance REAL NOT NULL,
  budget_transit_time REAL NOT NULL,
  budget_temperature REAL NOT NULL,
  source TEXT
);
CREATE TABLE IF NOT EXISTS records (
  run_id TEXT NOT NULL REFERENCES runs(id),
  seq INTEGER NOT NULL,
  timestamp REAL NOT NULL,
  transit_time REAL NOT NULL,
  temperature REAL NOT NULL,
  pressure REAL NOT NULL,
  raw REAL NOT NULL,
  speed_of_sound REAL NOT NULL,
  boltzmann REAL NOT NULL,
  relative_error REAL NOT NULL,
  absolute_error REAL NOT NULL,
  PRIMARY KEY (run_id, seq)
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// SaveRun inserts the run metadata. Saving the same ID twice is an error.
func (s *Storage) SaveRun(ctx context.Context, run models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const stmt = `
INSERT INTO runs (id, started_at, distance, gas, eos, budget_name, budget_distance, budget_transit_time, budget_temperature, source)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	_, err := s.db.ExecContext(ctx, stmt,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Distance,
		string(run.Model.Gas),
		string(run.Model.EOS),
		run.BudgetName,
		run.Budget.Distance,
		run.Budget.TransitTime,
		run.Budget.Temperature,
		run.Source,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// AppendRecords stores records for a saved run in one transaction. Either all of them are
// stored or none are.
func (s *Storage) AppendRecords(ctx context.Context, runID string, records []models.Record) error {
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return fmt.Errorf("invalid record %d: %w", records[i].Seq, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return fmt.Errorf("look up run %s: %w", runID, err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO records (run_id, seq, timestamp, transit_time, temperature, pressure, raw, speed_of_sound, boltzmann, relative_error, absolute_error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			runID,
			r.Seq,
			r.Sample.Timestamp,
			r.Sample.TransitTime,
			r.Sample.Temperature,
			r.Sample.Pressure,
			r.Sample.Raw,
			r.Measurement.SpeedOfSound,
			r.Measurement.Boltzmann,
			r.Measurement.RelativeError,
			r.Measurement.AbsoluteError,
		)
		if err != nil {
			return fmt.Errorf("insert record %d: %w", r.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}

// Records returns the records of a run in sequence order.
func (s *Storage) Records(ctx context.Context, runID string) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
SELECT seq, timestamp, transit_time, temperature, pressure, raw, speed_of_sound, boltzmann, relative_error, absolute_error
FROM records WHERE run_id = ? ORDER BY seq
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var r models.Record
		if err := rows.Scan(
			&r.Seq,
			&r.Sample.Timestamp,
			&r.Sample.TransitTime,
			&r.Sample.Temperature,
			&r.Sample.Pressure,
			&r.Sample.Raw,
			&r.Measurement.SpeedOfSound,
			&r.Measurement.Boltzmann,
			&r.Measurement.RelativeError,
			&r.Measurement.AbsoluteError,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

const runColumns = `id, started_at, distance, gas, eos, budget_name, budget_distance, budget_transit_time, budget_temperature, source`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (models.Run, error) {
	var (
		run                models.Run
		started            string
		gas, eos           string
		budgetName, source sql.NullString
	)
	if err := sc.Scan(
		&run.ID,
		&started,
		&run.Distance,
		&gas,
		&eos,
		&budgetName,
		&run.Budget.Distance,
		&run.Budget.TransitTime,
		&run.Budget.Temperature,
		&source,
	); err != nil {
		return models.Run{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return models.Run{}, fmt.Errorf("parse started_at of run %s: %w", run.ID, err)
	}
	run.StartedAt = t
	run.Model = physics.Model{Gas: physics.Gas(gas), EOS: physics.EOS(eos)}
	run.BudgetName = budgetName.String
	run.Source = source.String
	return run, nil
}

// Run returns the metadata of one run.
func (s *Storage) Run(ctx context.Context, id string) (models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return models.Run{}, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}

// Runs lists every archived run, oldest first.
func (s *Storage) Runs(ctx context.Context) ([]models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	return s.db.Close()
}
