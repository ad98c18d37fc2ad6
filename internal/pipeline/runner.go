package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/andrewnakas/nbm-to-zarr-data/internal/domain"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/observability"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/template"
	"github.com/jonboulle/clockwork"
)

// Saver persists a populated dataset into the array store.
type Saver interface {
	Save(ds *template.Dataset, path string) error
}

// RunReport summarizes one completed and persisted region run for
// downstream consumers (catalog and summary generators).
type RunReport struct {
	DatasetID     string    `json:"dataset_id"`
	InitTimeStart time.Time `json:"init_time_start"`
	InitTimeEnd   time.Time `json:"init_time_end"`
	Processed     int       `json:"processed"`
	Total         int       `json:"total"`
	StorePath     string    `json:"store_path"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Publisher announces completed runs. A nil Publisher disables announcements.
type Publisher interface {
	Publish(ctx context.Context, report RunReport) error
}

// Runner drives the processor on a schedule: one operational update per
// interval, each persisting into the store and optionally publishing a run
// report.
type Runner struct {
	processor *Processor
	saver     Saver
	publisher Publisher
	storePath string
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool

	lastReport atomic.Pointer[RunReport]
}

// NewRunner creates a Runner. publisher may be nil.
func NewRunner(processor *Processor, saver Saver, publisher Publisher, storePath string, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		processor: processor,
		saver:     saver,
		publisher: publisher,
		storePath: storePath,
		interval:  interval,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once at least one run has completed and
// persisted, or an error describing why the service is not yet ready.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no region run has completed yet")
	}
	return nil
}

// LastReport returns the report of the most recently completed run. The
// boolean is false before the first run completes.
func (r *Runner) LastReport() (RunReport, bool) {
	report := r.lastReport.Load()
	if report == nil {
		return RunReport{}, false
	}
	return *report, true
}

// Run executes an operational update immediately, then on every interval
// tick, until the context is cancelled. Individual run failures are logged
// and do not stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("runner started", "interval", r.interval, "store", r.storePath)

	if err := r.RunOnce(ctx, domain.OperationalRegion(r.clock)); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Error("operational update failed", "error", err)
	}

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			if err := r.RunOnce(ctx, domain.OperationalRegion(r.clock)); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("operational update failed", "error", err)
			}
		}
	}
}

// RunOnce processes one region, persists the result, and publishes a run
// report. Used directly for backfills.
func (r *Runner) RunOnce(ctx context.Context, region domain.ProcessingRegion) error {
	start := r.clock.Now()
	r.metrics.RunRunning.Set(1)
	defer r.metrics.RunRunning.Set(0)

	ds, summary, err := r.processor.Process(ctx, region)
	if err != nil {
		return err
	}

	if err := r.saver.Save(ds, r.storePath); err != nil {
		return err
	}

	r.metrics.RunsCompleted.Inc()
	r.metrics.RunDuration.Observe(r.clock.Since(start).Seconds())
	r.metrics.LastRunProcessed.Set(float64(summary.Processed))
	r.metrics.LastRunTotal.Set(float64(summary.Total))
	r.ready.Store(true)

	report := RunReport{
		DatasetID:     ds.Attrs.ID,
		InitTimeStart: region.InitTimeStart.UTC(),
		InitTimeEnd:   region.InitTimeEnd.UTC(),
		Processed:     summary.Processed,
		Total:         summary.Total,
		StorePath:     r.storePath,
		CompletedAt:   r.clock.Now().UTC(),
	}
	r.lastReport.Store(&report)

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, report); err != nil {
			// The data is already persisted; a failed announcement is not
			// worth failing the run over.
			r.logger.Warn("publish run report failed", "error", err)
		}
	}
	return nil
}
