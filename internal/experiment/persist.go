package experiment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rewired-gh/kbmeter/internal/logger"
	"github.com/rewired-gh/kbmeter/internal/models"
	"github.com/rewired-gh/kbmeter/internal/record"
	"github.com/rewired-gh/kbmeter/internal/stats"
	"github.com/rewired-gh/kbmeter/internal/storage"
)

// Manifest is written next to the CSV record and holds what the record alone does not: the
// model, the error budget and the final statistics.
type Manifest struct {
	Run       models.Run     `yaml:"run"`
	Records   int            `yaml:"records"`
	Rejected  int            `yaml:"rejected"`
	Summary   stats.Summary  `yaml:"summary"`
	Boxcar    *stats.Summary `yaml:"boxcar,omitempty"`
	Reference float64        `yaml:"reference"`
	CSV       string         `yaml:"csv"`
}

// ReadManifest loads a manifest written by Persister.Save.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

// ManifestPath is the manifest that accompanies a CSV record.
func ManifestPath(csvPath string) string {
	return csvPath[:len(csvPath)-len(filepath.Ext(csvPath))] + ".yaml"
}

// Saved lists the files a Save produced.
type Saved struct {
	CSV      string
	Manifest string
}

// Persister writes a finished run to the data directory and, when Store is set, to the archive.
type Persister struct {
	DataDir string
	Store   *storage.Storage
}

// BaseName is the file name stem used for a run.
func BaseName(run models.Run) string {
	id := run.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("kb-%s-%s", run.StartedAt.Format("20060102-150405"), id)
}

// Save persists snap and records. Every target is attempted; failures are joined into the
// returned error and never modify the in-memory data.
func (p *Persister) Save(ctx context.Context, snap Snapshot, records []models.Record) (Saved, error) {
	if err := os.MkdirAll(p.DataDir, 0o755); err != nil {
		return Saved{}, fmt.Errorf("create data dir: %w", err)
	}

	base := filepath.Join(p.DataDir, BaseName(snap.Run))
	saved := Saved{CSV: base + ".csv", Manifest: base + ".yaml"}
	var errs []error

	rows := make([]record.Row, len(records))
	for i, r := range records {
		rows[i] = record.FromRecord(snap.Run.Distance, r)
	}
	if err := writeFileAtomic(saved.CSV, func(f *os.File) error {
		return record.Write(f, rows, record.OptionsFor(rows))
	}); err != nil {
		errs = append(errs, fmt.Errorf("write csv: %w", err))
		saved.CSV = ""
	} else {
		logger.Info("Data saved to %s", saved.CSV)
	}

	manifest := Manifest{
		Run:       snap.Run,
		Records:   len(records),
		Rejected:  snap.Rejected,
		Summary:   snap.All,
		Boxcar:    snap.Boxcar,
		Reference: snap.Reference,
		CSV:       filepath.Base(saved.CSV),
	}
	if err := writeFileAtomic(saved.Manifest, func(f *os.File) error {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(manifest); err != nil {
			return err
		}
		return enc.Close()
	}); err != nil {
		errs = append(errs, fmt.Errorf("write manifest: %w", err))
		saved.Manifest = ""
	}

	if p.Store != nil {
		if err := p.Store.SaveRun(ctx, snap.Run); err != nil {
			errs = append(errs, fmt.Errorf("archive run: %w", err))
		} else if err := p.Store.AppendRecords(ctx, snap.Run.ID, records); err != nil {
			errs = append(errs, fmt.Errorf("archive records: %w", err))
		} else {
			logger.Debug("Archived %d records for run %s", len(records), snap.Run.ID)
		}
	}

	return saved, errors.Join(errs...)
}

// writeFileAtomic writes through a temp file in the same directory and renames it into place.
func writeFileAtomic(path string, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
