package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rewired-gh/kbmeter/internal/acquisition"
	"github.com/rewired-gh/kbmeter/internal/logger"
	"github.com/rewired-gh/kbmeter/internal/models"
)

// drainTimeout bounds persistence after the run context has been cancelled.
const drainTimeout = 30 * time.Second

// Sink receives a snapshot on every display tick.
type Sink interface {
	Update(Snapshot)
}

// Notifier reports the outcome of a run. Both methods may be slow; failures are logged only.
type Notifier interface {
	SendSummary(models.RunSummary) error
	SendError(err error) error
}

// OpenFunc opens the sample source. It runs inside the acquisition goroutine, so a slow port
// discovery does not hold up the display.
type OpenFunc func(ctx context.Context) (acquisition.Source, error)

// Runner couples one acquisition goroutine feeding the session with one display loop reading it.
type Runner struct {
	Session   *Session
	Open      OpenFunc
	Sink      Sink          // optional
	Interval  time.Duration // display tick, defaults to 1s
	Persister *Persister    // optional
	Notifier  Notifier      // optional

	now func() time.Time
}

// Run acquires until the source is exhausted or ctx is cancelled, then persists the run.
// It returns nil when the source ended on its own and ErrStoppedByUser after a cancellation.
// When the source fails the display keeps running until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.Session == nil || r.Open == nil {
		return errors.New("runner needs a session and a source")
	}
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	now := r.now
	if now == nil {
		now = time.Now
	}
	started := now()

	acqCtx, stopAcq := context.WithCancel(ctx)
	defer stopAcq()

	acqDone := make(chan error, 1)
	go func() {
		acqDone <- r.acquire(acqCtx)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	stopped := false
	for !stopped {
		select {
		case <-ctx.Done():
			logger.Info("Stop requested, saving collected data...")
			stopAcq()
			if acqDone != nil {
				<-acqDone
			}
			stopped = true

		case err := <-acqDone:
			acqDone = nil
			if ctx.Err() != nil {
				stopped = true
				continue
			}
			if err == nil {
				logger.Info("Source exhausted after %d samples", r.Session.Count())
				r.update()
				return r.drain(ctx, now().Sub(started), nil)
			}
			logger.Error("Acquisition stopped: %v", err)
			r.notifyError(err)
			logger.Info("Collected data is kept; interrupt to save and exit")

		case <-ticker.C:
			r.update()
		}
	}

	r.update()
	return r.drain(ctx, now().Sub(started), ErrStoppedByUser)
}

func (r *Runner) acquire(ctx context.Context) error {
	src, err := r.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("Failed to close %s: %v", src.Describe(), err)
		}
	}()
	logger.Info("Acquiring from %s", src.Describe())

	for {
		sample, err := src.Next(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, acquisition.ErrMalformedFrame):
			r.Session.Discard()
			logger.Warn("Discarded frame: %v", err)
			continue
		case err != nil:
			return fmt.Errorf("read %s: %w", src.Describe(), err)
		}

		rec, err := r.Session.Ingest(sample)
		if err != nil {
			logger.Warn("%v", err)
			continue
		}
		logger.Debug("Sample %d: T=%.2f K, c=%.3f m/s, k_B=%.5f ± %.5f (%.3f%%)",
			rec.Seq,
			rec.Sample.Temperature,
			rec.Measurement.SpeedOfSound,
			rec.Measurement.Boltzmann,
			rec.Measurement.AbsoluteError,
			rec.Measurement.RelativeError*100,
		)
	}
}

func (r *Runner) update() {
	if r.Sink != nil {
		r.Sink.Update(r.Session.Snapshot())
	}
}

// drain persists the run and sends the summary. The run context may already be cancelled, so
// persistence gets its own deadline.
func (r *Runner) drain(ctx context.Context, elapsed time.Duration, result error) error {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	snap := r.Session.Snapshot()
	records := r.Session.Records()
	summary := models.RunSummary{
		Run:       snap.Run,
		Summary:   snap.All,
		Rejected:  snap.Rejected,
		Elapsed:   elapsed,
		Reference: snap.Reference,
	}

	var persistErr error
	if r.Persister != nil {
		saved, err := r.Persister.Save(dctx, snap, records)
		summary.CSVPath = saved.CSV
		if err != nil {
			logger.Error("Failed to persist run %s: %v", snap.Run.ID, err)
			persistErr = fmt.Errorf("persist run: %w", err)
		}
	}

	logger.Info("Run %s finished: %d samples, %d rejected, k_B = %.5f ± %.5f",
		snap.Run.ID, snap.All.Count, snap.Rejected, snap.All.Mean, snap.All.StdError)

	if r.Notifier != nil {
		if err := r.Notifier.SendSummary(summary); err != nil {
			logger.Warn("Failed to send run summary: %v", err)
		}
	}

	return errors.Join(result, persistErr)
}

func (r *Runner) notifyError(err error) {
	if r.Notifier == nil {
		return
	}
	if sendErr := r.Notifier.SendError(err); sendErr != nil {
		logger.Warn("Failed to send error notification: %v", sendErr)
	}
}
