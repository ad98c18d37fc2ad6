// Package pipeline orchestrates region runs: template construction, grid
// coordinate derivation, and the per-file fetch-extract-transform-write
// cycle that populates the output dataset.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/andrewnakas/nbm-to-zarr-data/internal/domain"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/extract"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/gridfile"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/observability"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/template"
)

// Fetcher downloads one source file and returns its local path.
type Fetcher interface {
	Fetch(ctx context.Context, coord domain.SourceCoordinate) (string, error)
}

// Extractor reads requested variables from a downloaded grid file.
type Extractor interface {
	Extract(path string, vars []domain.VariableConfig) (extract.Result, error)
}

// Event reports per-file progress to a subscribed caller.
type Event struct {
	Coord     domain.SourceCoordinate
	Index     int // 1-based position in the run
	Total     int
	Processed int // successes so far, including this file if Err is nil
	Err       error
}

// Summary is the terminal state of a region run. Partial success is a valid,
// expected outcome, not a failure of the run as a whole.
type Summary struct {
	Processed int
	Total     int
}

// Option configures a Processor.
type Option func(*Processor)

// WithProgress subscribes fn to per-file progress events.
func WithProgress(fn func(Event)) Option {
	return func(p *Processor) { p.onProgress = fn }
}

// WithRegionCode overrides the archive region code (default "co").
func WithRegionCode(code string) Option {
	return func(p *Processor) { p.regionCode = code }
}

// Processor runs the region-job state machine. Processing is strictly
// sequential: one coordinate is fully fetched, decoded, and written before
// the next begins, so the dataset needs no locking.
type Processor struct {
	cfg        template.Config
	fetcher    Fetcher
	extractor  Extractor
	regionCode string
	logger     *slog.Logger
	metrics    *observability.Metrics
	onProgress func(Event)
}

// New creates a Processor over the given collaborators.
func New(cfg template.Config, fetcher Fetcher, extractor Extractor, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Processor {
	p := &Processor{
		cfg:        cfg,
		fetcher:    fetcher,
		extractor:  extractor,
		regionCode: domain.DefaultRegionCode,
		logger:     logger,
		metrics:    metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the full region job and returns the populated dataset.
//
// Per-file failures (fetch, decode, index mapping) are logged and skipped;
// the run always reaches a terminal state with a Summary counting successes
// against the total. Only structural failures abort the run: an invalid
// region, template construction, grid-coordinate derivation, or context
// cancellation.
func (p *Processor) Process(ctx context.Context, region domain.ProcessingRegion) (*template.Dataset, Summary, error) {
	if err := region.Validate(); err != nil {
		return nil, Summary{}, err
	}

	coords := domain.GenerateSourceCoordinates(region, p.regionCode, p.cfg.MaxForecastHour)
	if len(coords) == 0 {
		return nil, Summary{}, fmt.Errorf("region yields no source coordinates")
	}
	p.logger.Info("starting region run",
		"init_time_start", region.InitTimeStart.UTC(),
		"init_time_end", region.InitTimeEnd.UTC(),
		"source_files", len(coords))

	ds, err := p.cfg.Build(region)
	if err != nil {
		return nil, Summary{}, err
	}

	spatial, err := p.deriveGridCoords(ctx, coords[0])
	if err != nil {
		return nil, Summary{}, fmt.Errorf("derive grid coordinates: %w", err)
	}
	xs, ys := spatial.ProjectionCoords()
	if err := ds.AssignProjectionCoords(xs, ys); err != nil {
		return nil, Summary{}, fmt.Errorf("derive grid coordinates: %w", err)
	}

	summary := Summary{Total: len(coords)}
	for i, coord := range coords {
		if err := ctx.Err(); err != nil {
			return ds, summary, err
		}

		if err := p.processCoordinate(ctx, ds, coord); err != nil {
			p.logger.Warn("skipping source file", "file", coord.Filename(), "error", err)
			p.metrics.FilesFailed.Inc()
			p.emit(Event{Coord: coord, Index: i + 1, Total: summary.Total, Processed: summary.Processed, Err: err})
			continue
		}

		summary.Processed++
		p.metrics.FilesProcessed.Inc()
		p.emit(Event{Coord: coord, Index: i + 1, Total: summary.Total, Processed: summary.Processed})
	}

	p.logger.Info("region run complete", "processed", summary.Processed, "total", summary.Total)
	return ds, summary, nil
}

// deriveGridCoords downloads and decodes the first source file purely for
// its spatial metadata. All files in a run share one fixed grid, so this
// happens once per run, before any data is written.
func (p *Processor) deriveGridCoords(ctx context.Context, coord domain.SourceCoordinate) (*gridfile.SpatialMeta, error) {
	path, err := p.fetcher.Fetch(ctx, coord)
	if err != nil {
		return nil, err
	}
	res, err := p.extractor.Extract(path, nil)
	if err != nil {
		return nil, err
	}
	if res.Spatial == nil {
		return nil, fmt.Errorf("no spatial metadata in %s", coord.Filename())
	}
	return res.Spatial, nil
}

// processCoordinate runs the per-file DOWNLOAD -> READ -> TRANSFORM ->
// LOCATE -> WRITE cycle for one source file.
func (p *Processor) processCoordinate(ctx context.Context, ds *template.Dataset, coord domain.SourceCoordinate) error {
	path, err := p.fetcher.Fetch(ctx, coord)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	res, err := p.extractor.Extract(path, p.cfg.Variables)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	initIdx, ok := ds.InitTimeIndex(coord.InitTime)
	if !ok {
		return fmt.Errorf("init time %s not materialized in dataset", coord.InitTime.UTC())
	}
	leadIdx, err := domain.LeadTimeIndex(coord.ForecastHour)
	if err != nil {
		return err
	}

	for _, vc := range p.cfg.Variables {
		grid, ok := res.Data[vc.Name]
		if !ok {
			// Absent from this file; the target slice stays NaN.
			continue
		}
		grid = domain.BitRound(grid, vc.Keepbits)
		if err := ds.Vars[vc.Name].SetSlice(initIdx, leadIdx, grid); err != nil {
			return fmt.Errorf("write %s: %w", vc.Name, err)
		}
	}
	return nil
}

func (p *Processor) emit(ev Event) {
	if p.onProgress != nil {
		p.onProgress(ev)
	}
}
