// Package template builds the empty output dataset a region run fills in:
// an all-NaN four-dimensional structure (init_time, lead_time, y, x) with
// typed, attributed coordinate axes.
package template

import (
	"fmt"

	"github.com/andrewnakas/nbm-to-zarr-data/internal/domain"
)

// NBM CONUS 2.5 km grid extents.
const (
	GridHeight = 1597
	GridWidth  = 2345
)

// Config defines the dimensions, coordinates, and variables of the output
// dataset. Fixed at dataset-definition time.
type Config struct {
	Attrs      DatasetAttributes
	SpatialRef SpatialRef

	// MaxForecastHour truncates the lead_time axis, for partial runs and
	// tests. The full schedule runs to domain.MaxForecastHour.
	MaxForecastHour int

	Height int
	Width  int

	Variables []domain.VariableConfig
}

// DefaultConfig returns the NBM CONUS forecast dataset definition.
func DefaultConfig() Config {
	return Config{
		Attrs: DatasetAttributes{
			ID:    "noaa-nbm-conus-forecast",
			Title: "NOAA National Blend of Models (NBM) CONUS Forecast",
			Description: "Hourly forecast data from the National Blend of Models (NBM) for " +
				"the Continental United States (CONUS) on a 2.5 km Lambert Conformal grid",
			Version:  "4.3",
			Provider: "NOAA/NWS/NCEP",
			Model:    "NBM",
			Variant:  "CONUS",
		},
		SpatialRef: SpatialRef{
			GridMappingName:            "lambert_conformal_conic",
			StandardParallel:           [2]float64{25.0, 25.0},
			LongitudeOfCentralMeridian: -95.0,
			LatitudeOfProjectionOrigin: 25.0,
			EarthRadius:                6371200.0,
			Proj4: "+proj=lcc +lat_1=25 +lat_2=25 +lat_0=25 +lon_0=-95 " +
				"+x_0=0 +y_0=0 +R=6371200 +units=m +no_defs",
		},
		MaxForecastHour: domain.MaxForecastHour,
		Height:          GridHeight,
		Width:           GridWidth,
		Variables:       domain.Variables(),
	}
}

// Build creates the all-NaN dataset covering the region's init times. The
// x/y axes start as integer pixel indices; the processor overwrites them
// with real projection coordinates before any data lands.
func (c Config) Build(region domain.ProcessingRegion) (*Dataset, error) {
	if err := region.Validate(); err != nil {
		return nil, fmt.Errorf("build template: %w", err)
	}
	if c.Height <= 0 || c.Width <= 0 {
		return nil, fmt.Errorf("build template: invalid grid extents %dx%d", c.Height, c.Width)
	}
	if len(c.Variables) == 0 {
		return nil, fmt.Errorf("build template: no variables configured")
	}

	initTimes := region.InitTimes()
	leadTimes := domain.LeadTimes(c.MaxForecastHour)

	xs := make([]float64, c.Width)
	for i := range xs {
		xs[i] = float64(i)
	}
	ys := make([]float64, c.Height)
	for i := range ys {
		ys[i] = float64(i)
	}

	ds := &Dataset{
		Attrs:      c.Attrs,
		SpatialRef: c.SpatialRef,
		InitTimes:  initTimes,
		LeadTimes:  leadTimes,
		XCoords:    xs,
		YCoords:    ys,
		Variables:  c.Variables,
		Vars:       make(map[string]*Array, len(c.Variables)),
	}
	for _, vc := range c.Variables {
		ds.Vars[vc.Name] = newArray(len(initTimes), len(leadTimes), c.Height, c.Width)
	}
	return ds, nil
}
