// Package gridfile abstracts multi-band grid file access for the extractor.
// The pipeline only sees the Reader and File interfaces; the GDAL-backed
// implementation lives behind them so everything else stays cgo-free.
package gridfile

// BandMeta is the per-band metadata the extractor matches on.
type BandMeta struct {
	// Index is the band's 1-based position in the file.
	Index int

	// Element is the GRIB element identifier, e.g. "T" or "WindSpd".
	Element string

	// Level is the vertical-level identifier, e.g. "2-HTGL[-]".
	Level string

	// Comment is the band's descriptive text, if any.
	Comment string

	// Unit is the band's unit string, if any.
	Unit string

	// NoData is the missing-value sentinel when HasNoData is set.
	NoData    float64
	HasNoData bool
}

// File is one open grid file.
type File interface {
	// Bands returns metadata for every band, in band order.
	Bands() []BandMeta

	// ReadBand returns the band's values in row-major order with the
	// missing-value sentinel replaced by NaN.
	ReadBand(index int) ([]float32, error)

	// Spatial returns the file's grid geometry and projection.
	Spatial() SpatialMeta

	Close() error
}

// Reader opens local grid files.
type Reader interface {
	Open(path string) (File, error)
}
