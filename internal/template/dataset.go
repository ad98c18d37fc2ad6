package template

import (
	"fmt"
	"math"
	"time"

	"github.com/andrewnakas/nbm-to-zarr-data/internal/domain"
)

// Array backs one data variable in (init_time, lead_time, y, x) order.
// Cells start as NaN and stay NaN unless a source file supplies data.
type Array struct {
	data      []float32
	initCount int
	leadCount int
	height    int
	width     int
}

func newArray(initCount, leadCount, height, width int) *Array {
	data := make([]float32, initCount*leadCount*height*width)
	nan := float32(math.NaN())
	for i := range data {
		data[i] = nan
	}
	return &Array{
		data:      data,
		initCount: initCount,
		leadCount: leadCount,
		height:    height,
		width:     width,
	}
}

// Shape returns the array extents in dimension order.
func (a *Array) Shape() [4]int {
	return [4]int{a.initCount, a.leadCount, a.height, a.width}
}

// Slice returns the (initIdx, leadIdx, :, :) block as a row-major view into
// the backing storage.
func (a *Array) Slice(initIdx, leadIdx int) []float32 {
	plane := a.height * a.width
	off := (initIdx*a.leadCount + leadIdx) * plane
	return a.data[off : off+plane]
}

// SetSlice copies a full 2D grid into the (initIdx, leadIdx, :, :) block.
func (a *Array) SetSlice(initIdx, leadIdx int, values []float32) error {
	if initIdx < 0 || initIdx >= a.initCount {
		return fmt.Errorf("init_time index %d out of range [0,%d)", initIdx, a.initCount)
	}
	if leadIdx < 0 || leadIdx >= a.leadCount {
		return fmt.Errorf("lead_time index %d out of range [0,%d)", leadIdx, a.leadCount)
	}
	plane := a.height * a.width
	if len(values) != plane {
		return fmt.Errorf("grid has %d values, want %d (%dx%d)", len(values), plane, a.height, a.width)
	}
	copy(a.Slice(initIdx, leadIdx), values)
	return nil
}

// At returns one cell value.
func (a *Array) At(initIdx, leadIdx, y, x int) float32 {
	return a.Slice(initIdx, leadIdx)[y*a.width+x]
}

// Raw exposes the full backing storage in C order for the store writer.
func (a *Array) Raw() []float32 {
	return a.data
}

// DatasetAttributes is the dataset-level metadata block.
type DatasetAttributes struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Variant     string `json:"variant"`
}

// SpatialRef carries the grid's projection definition as CF grid-mapping
// attributes.
type SpatialRef struct {
	GridMappingName            string     `json:"grid_mapping_name"`
	StandardParallel           [2]float64 `json:"standard_parallel"`
	LongitudeOfCentralMeridian float64    `json:"longitude_of_central_meridian"`
	LatitudeOfProjectionOrigin float64    `json:"latitude_of_projection_origin"`
	FalseEasting               float64    `json:"false_easting"`
	FalseNorthing              float64    `json:"false_northing"`
	EarthRadius                float64    `json:"earth_radius"`
	Proj4                      string     `json:"proj4"`
}

// Dataset is the in-memory output structure of a region run: an all-NaN
// template progressively filled by writes keyed on (init_time_index,
// lead_time_index). A single run owns it exclusively; there are no
// concurrent writers.
type Dataset struct {
	Attrs      DatasetAttributes
	SpatialRef SpatialRef

	// InitTimes is the append axis: hourly, timezone-naive UTC instants.
	InitTimes []time.Time

	// LeadTimes follows the irregular forecast-hour schedule.
	LeadTimes []time.Duration

	// XCoords and YCoords hold projection coordinates of pixel centers,
	// integer placeholders until real values are derived from a source file.
	XCoords []float64
	YCoords []float64

	// Variables preserves the configured variable order; Vars indexes the
	// backing arrays by name.
	Variables []domain.VariableConfig
	Vars      map[string]*Array
}

// InitTimeIndex finds the exact position of t on the init_time axis after
// normalizing both sides to UTC instants. The boolean is false when t is not
// materialized in this dataset.
func (d *Dataset) InitTimeIndex(t time.Time) (int, bool) {
	want := t.UTC()
	for i, it := range d.InitTimes {
		if it.Equal(want) {
			return i, true
		}
	}
	return 0, false
}

// ValidTime returns init_time + lead_time for a cell, the derived
// valid_time coordinate.
func (d *Dataset) ValidTime(initIdx, leadIdx int) time.Time {
	return d.InitTimes[initIdx].Add(d.LeadTimes[leadIdx])
}

// AssignProjectionCoords overwrites the placeholder x/y axes with real
// projection coordinates derived from a source file's spatial metadata.
func (d *Dataset) AssignProjectionCoords(xs, ys []float64) error {
	if len(xs) != len(d.XCoords) || len(ys) != len(d.YCoords) {
		return fmt.Errorf("projection coords are %dx%d, dataset grid is %dx%d",
			len(xs), len(ys), len(d.XCoords), len(d.YCoords))
	}
	copy(d.XCoords, xs)
	copy(d.YCoords, ys)
	return nil
}
