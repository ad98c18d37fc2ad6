// Package extract reads requested variables out of decoded grid files,
// matching bands by GRIB element and level and deriving wind vector
// components from speed/direction pairs.
package extract

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/andrewnakas/nbm-to-zarr-data/internal/domain"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/gridfile"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/observability"
)

// Result carries one file's contribution. Spatial is always populated so a
// caller can derive grid coordinates without a second decode; Data holds
// only the variables actually present in the file; partial coverage is
// expected and non-fatal.
type Result struct {
	Data    map[string][]float32
	Spatial *gridfile.SpatialMeta
}

// Extractor matches requested variables against a grid file's bands.
type Extractor struct {
	reader  gridfile.Reader
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates an Extractor on the given grid-file reader.
func New(reader gridfile.Reader, logger *slog.Logger, metrics *observability.Metrics) *Extractor {
	return &Extractor{
		reader:  reader,
		logger:  logger,
		metrics: metrics,
	}
}

// windPair collects the speed and direction grids for one vertical level.
type windPair struct {
	speed     []float32
	direction []float32
}

// Extract opens path and returns the requested variables that could be
// matched. A missing band or wind half is logged as a warning and omitted;
// only failures to open or read the file itself are errors.
func (e *Extractor) Extract(path string, vars []domain.VariableConfig) (Result, error) {
	file, err := e.reader.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer file.Close()

	spatial := file.Spatial()
	bands := file.Bands()

	winds, err := e.collectWindPairs(file, bands, vars)
	if err != nil {
		return Result{}, err
	}

	data := make(map[string][]float32, len(vars))
	for _, vc := range vars {
		var grid []float32
		if vc.WindComponent != "" {
			grid = e.deriveWindComponent(vc, winds)
		} else {
			grid, err = e.readMatchingBand(file, bands, vc)
			if err != nil {
				return Result{}, err
			}
		}
		if grid == nil {
			e.metrics.VariablesMissing.WithLabelValues(vc.Name).Inc()
			continue
		}
		data[vc.Name] = grid
	}

	return Result{Data: data, Spatial: &spatial}, nil
}

// collectWindPairs reads the speed and direction bands for every level some
// requested wind component needs.
func (e *Extractor) collectWindPairs(file gridfile.File, bands []gridfile.BandMeta, vars []domain.VariableConfig) (map[string]*windPair, error) {
	wanted := make(map[string]bool)
	for _, vc := range vars {
		if vc.WindComponent != "" {
			wanted[vc.Level] = true
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	winds := make(map[string]*windPair)
	for _, b := range bands {
		if b.Element != domain.WindSpeedElement && b.Element != domain.WindDirectionElement {
			continue
		}
		var level string
		for lvl := range wanted {
			if strings.Contains(b.Level, lvl) {
				level = lvl
				break
			}
		}
		if level == "" {
			continue
		}

		grid, err := file.ReadBand(b.Index)
		if err != nil {
			return nil, fmt.Errorf("read wind band: %w", err)
		}
		pair := winds[level]
		if pair == nil {
			pair = &windPair{}
			winds[level] = pair
		}
		if b.Element == domain.WindSpeedElement {
			pair.speed = grid
		} else {
			pair.direction = grid
		}
	}
	return winds, nil
}

// deriveWindComponent returns the u or v grid for vc, or nil when either
// half of the pair is missing.
func (e *Extractor) deriveWindComponent(vc domain.VariableConfig, winds map[string]*windPair) []float32 {
	pair := winds[vc.Level]
	if pair == nil || pair.speed == nil || pair.direction == nil {
		e.logger.Warn("wind speed/direction pair incomplete",
			"variable", vc.Name, "level", vc.Level)
		return nil
	}
	u, v := domain.WindComponents(pair.speed, pair.direction)
	if vc.WindComponent == "u" {
		return u
	}
	return v
}

// readMatchingBand returns the first band matching vc's element and level,
// or nil when the file has no such band.
func (e *Extractor) readMatchingBand(file gridfile.File, bands []gridfile.BandMeta, vc domain.VariableConfig) ([]float32, error) {
	for _, b := range bands {
		if b.Element != vc.Element {
			continue
		}
		if vc.Level != "" {
			if vc.ExactLevel {
				if b.Level != vc.Level {
					continue
				}
			} else if !strings.Contains(b.Level, vc.Level) {
				continue
			}
		}
		grid, err := file.ReadBand(b.Index)
		if err != nil {
			return nil, fmt.Errorf("read band for %s: %w", vc.Name, err)
		}
		return grid, nil
	}
	e.logger.Warn("variable not found in grid file",
		"variable", vc.Name, "element", vc.Element, "level", vc.Level)
	return nil, nil
}
