package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/andrewnakas/nbm-to-zarr-data/internal/domain"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/extract"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/gridfile"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/observability"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/pipeline"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHeight = 2
	testWidth  = 3
)

var testInitTime = time.Date(2024, 4, 26, 6, 0, 0, 0, time.UTC)

// --- stubs ---

// stubFetcher resolves every coordinate to a synthetic path without touching
// the network.
type stubFetcher struct {
	fetched []domain.SourceCoordinate
	failAll bool
}

func (f *stubFetcher) Fetch(_ context.Context, coord domain.SourceCoordinate) (string, error) {
	if f.failAll {
		return "", errors.New("archive unreachable")
	}
	f.fetched = append(f.fetched, coord)
	return "/cache/" + coord.Filename(), nil
}

// stubExtractor returns synthetic grids for the forecast hours listed in
// dataByHour, keyed off the path produced by stubFetcher.
type stubExtractor struct {
	dataByHour map[int]map[string][]float32
	spatial    gridfile.SpatialMeta
	failAll    bool
}

func (e *stubExtractor) Extract(path string, vars []domain.VariableConfig) (extract.Result, error) {
	if e.failAll {
		return extract.Result{}, errors.New("corrupt file")
	}
	spatial := e.spatial
	res := extract.Result{Data: map[string][]float32{}, Spatial: &spatial}
	for hour, data := range e.dataByHour {
		if pathHasHour(path, hour) {
			for name, grid := range data {
				res.Data[name] = append([]float32(nil), grid...)
			}
		}
	}
	return res, nil
}

func pathHasHour(path string, hour int) bool {
	return strings.Contains(path, fmt.Sprintf(".f%03d.", hour))
}

func testSpatial() gridfile.SpatialMeta {
	return gridfile.SpatialMeta{
		Transform: gridfile.AffineFromGeoTransform([6]float64{-3000, 2500, 0, 4000, 0, -2500}),
		Width:     testWidth,
		Height:    testHeight,
	}
}

func testConfig(vars ...domain.VariableConfig) template.Config {
	cfg := template.DefaultConfig()
	cfg.Height = testHeight
	cfg.Width = testWidth
	if len(vars) > 0 {
		cfg.Variables = vars
	}
	return cfg
}

func testVars() []domain.VariableConfig {
	return []domain.VariableConfig{
		{Name: "t2m", Element: "T", Level: "2-HTGL", Keepbits: 12},
		{Name: "vis", Element: "VIS", Level: "0-SFC", Keepbits: 10},
	}
}

func grid(v float32) []float32 {
	g := make([]float32, testHeight*testWidth)
	for i := range g {
		g[i] = v
	}
	return g
}

func singleCycleRegion() domain.ProcessingRegion {
	return domain.ProcessingRegion{InitTimeStart: testInitTime, InitTimeEnd: testInitTime}
}

func newProcessor(f pipeline.Fetcher, e pipeline.Extractor, cfg template.Config, opts ...pipeline.Option) *pipeline.Processor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return pipeline.New(cfg, f, e, logger, observability.NewMetricsForTesting(), opts...)
}

// --- tests ---

func TestProcess_PopulatesOnlySuppliedLeadTimes(t *testing.T) {
	// Source files exist for 2 of the 52 lead times.
	extractor := &stubExtractor{
		spatial: testSpatial(),
		dataByHour: map[int]map[string][]float32{
			1:  {"t2m": grid(280), "vis": grid(5000)},
			42: {"t2m": grid(285), "vis": grid(8000)},
		},
	}

	p := newProcessor(&stubFetcher{}, extractor, testConfig(testVars()...))
	ds, summary, err := p.Process(context.Background(), singleCycleRegion())
	require.NoError(t, err)

	assert.Equal(t, domain.LeadTimeCount, summary.Total)
	// Every file "succeeds" (fetch+extract are fine even when they carry no
	// bands), so the run is fully processed.
	assert.Equal(t, domain.LeadTimeCount, summary.Processed)

	lead42, err := domain.LeadTimeIndex(42)
	require.NoError(t, err)

	for name, arr := range ds.Vars {
		for lead := 0; lead < domain.LeadTimeCount; lead++ {
			v := float64(arr.At(0, lead, 0, 0))
			if lead == 0 || lead == lead42 {
				assert.False(t, math.IsNaN(v), "%s lead %d should have data", name, lead)
			} else {
				assert.True(t, math.IsNaN(v), "%s lead %d should stay NaN", name, lead)
			}
		}
	}
	assert.InDelta(t, 280, ds.Vars["t2m"].At(0, 0, 1, 2), 0.25)
	assert.InDelta(t, 285, ds.Vars["t2m"].At(0, lead42, 0, 0), 0.25)
}

func TestProcess_MissingVariableStaysNaN(t *testing.T) {
	extractor := &stubExtractor{
		spatial: testSpatial(),
		dataByHour: map[int]map[string][]float32{
			// vis is absent from this file.
			1: {"t2m": grid(280)},
		},
	}

	p := newProcessor(&stubFetcher{}, extractor, testConfig(testVars()...))
	ds, summary, err := p.Process(context.Background(), singleCycleRegion())
	require.NoError(t, err)

	// The coordinate completes without an error.
	assert.Equal(t, domain.LeadTimeCount, summary.Processed)
	assert.False(t, math.IsNaN(float64(ds.Vars["t2m"].At(0, 0, 0, 0))))
	assert.True(t, math.IsNaN(float64(ds.Vars["vis"].At(0, 0, 0, 0))))
}

func TestProcess_AssignsProjectionCoords(t *testing.T) {
	extractor := &stubExtractor{spatial: testSpatial()}

	p := newProcessor(&stubFetcher{}, extractor, testConfig(testVars()...))
	ds, _, err := p.Process(context.Background(), singleCycleRegion())
	require.NoError(t, err)

	// Pixel centers from the stub geotransform, not placeholder indices.
	assert.InDelta(t, -3000+2500/2.0, ds.XCoords[0], 1e-6)
	assert.InDelta(t, 4000-2500/2.0, ds.YCoords[0], 1e-6)
}

func TestProcess_ExtractionFailuresDoNotAbort(t *testing.T) {
	// Grid-coordinate derivation must succeed, then everything fails.
	extractor := &failAfterFirstExtractor{spatial: testSpatial()}

	var events []pipeline.Event
	p := newProcessor(&stubFetcher{}, extractor, testConfig(testVars()...),
		pipeline.WithProgress(func(ev pipeline.Event) { events = append(events, ev) }))

	ds, summary, err := p.Process(context.Background(), singleCycleRegion())
	require.NoError(t, err)
	require.NotNil(t, ds)

	assert.Equal(t, domain.LeadTimeCount, summary.Total)
	assert.Zero(t, summary.Processed)
	require.Len(t, events, domain.LeadTimeCount)
	for _, ev := range events {
		assert.Error(t, ev.Err)
	}
}

// failAfterFirstExtractor serves the spatial-metadata extraction, then
// fails every data extraction.
type failAfterFirstExtractor struct {
	spatial gridfile.SpatialMeta
	calls   int
}

func (e *failAfterFirstExtractor) Extract(string, []domain.VariableConfig) (extract.Result, error) {
	e.calls++
	if e.calls == 1 {
		spatial := e.spatial
		return extract.Result{Data: map[string][]float32{}, Spatial: &spatial}, nil
	}
	return extract.Result{}, errors.New("unexpected band layout")
}

func TestProcess_FetchFailureDuringGridCoordsAborts(t *testing.T) {
	p := newProcessor(&stubFetcher{failAll: true}, &stubExtractor{spatial: testSpatial()},
		testConfig(testVars()...))

	_, _, err := p.Process(context.Background(), singleCycleRegion())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "derive grid coordinates")
}

func TestProcess_InvalidRegionRejected(t *testing.T) {
	p := newProcessor(&stubFetcher{}, &stubExtractor{spatial: testSpatial()},
		testConfig(testVars()...))

	region := domain.ProcessingRegion{
		InitTimeStart: testInitTime,
		InitTimeEnd:   testInitTime.Add(-time.Hour),
	}
	_, _, err := p.Process(context.Background(), region)
	assert.Error(t, err)
}

func TestProcess_QuantizationApplied(t *testing.T) {
	raw := grid(282.417)
	extractor := &stubExtractor{
		spatial:    testSpatial(),
		dataByHour: map[int]map[string][]float32{1: {"t2m": raw}},
	}

	vars := []domain.VariableConfig{{Name: "t2m", Element: "T", Level: "2-HTGL", Keepbits: 10}}
	p := newProcessor(&stubFetcher{}, extractor, testConfig(vars...))

	ds, _, err := p.Process(context.Background(), singleCycleRegion())
	require.NoError(t, err)

	got := ds.Vars["t2m"].At(0, 0, 0, 0)
	want := domain.BitRound([]float32{282.417}, 10)[0]
	assert.Equal(t, want, got)
	assert.NotEqual(t, float32(282.417), got)
}

func TestProcess_ProgressEvents(t *testing.T) {
	extractor := &stubExtractor{spatial: testSpatial()}

	var events []pipeline.Event
	cfg := testConfig(testVars()...)
	cfg.MaxForecastHour = 3
	p := newProcessor(&stubFetcher{}, extractor, cfg,
		pipeline.WithProgress(func(ev pipeline.Event) { events = append(events, ev) }))

	_, summary, err := p.Process(context.Background(), singleCycleRegion())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	require.Len(t, events, 3)
	assert.Equal(t, 1, events[0].Index)
	assert.Equal(t, 3, events[2].Index)
	assert.Equal(t, 3, events[2].Processed)
}

func TestProcess_CancelledContextStopsIteration(t *testing.T) {
	extractor := &stubExtractor{spatial: testSpatial()}
	fetcher := &cancellingFetcher{}

	p := newProcessor(fetcher, extractor, testConfig(testVars()...))

	ctx, cancel := context.WithCancel(context.Background())
	fetcher.cancel = cancel

	_, _, err := p.Process(ctx, singleCycleRegion())
	assert.ErrorIs(t, err, context.Canceled)
}

// cancellingFetcher cancels the run after a few fetches.
type cancellingFetcher struct {
	cancel context.CancelFunc
	calls  int
}

func (f *cancellingFetcher) Fetch(_ context.Context, coord domain.SourceCoordinate) (string, error) {
	f.calls++
	if f.calls == 3 && f.cancel != nil {
		f.cancel()
	}
	return "/cache/" + coord.Filename(), nil
}
