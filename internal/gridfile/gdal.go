package gridfile

import (
	"fmt"
	"math"

	"github.com/lukeroth/gdal"
)

// GDALReader opens GRIB2 files through GDAL's GRIB driver, which exposes the
// element and level identifiers as per-band GRIB_ELEMENT and GRIB_SHORT_NAME
// metadata items.
type GDALReader struct{}

// Open opens path read-only.
func (GDALReader) Open(path string) (File, error) {
	ds, err := gdal.Open(path, gdal.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("open grid file %s: %w", path, err)
	}
	return &gdalFile{ds: ds, path: path}, nil
}

type gdalFile struct {
	ds   gdal.Dataset
	path string
}

func (f *gdalFile) Bands() []BandMeta {
	count := f.ds.RasterCount()
	bands := make([]BandMeta, 0, count)
	for i := 1; i <= count; i++ {
		band := f.ds.RasterBand(i)
		noData, hasNoData := band.NoDataValue()
		bands = append(bands, BandMeta{
			Index:     i,
			Element:   band.MetadataItem("GRIB_ELEMENT", ""),
			Level:     band.MetadataItem("GRIB_SHORT_NAME", ""),
			Comment:   band.MetadataItem("GRIB_COMMENT", ""),
			Unit:      band.MetadataItem("GRIB_UNIT", ""),
			NoData:    noData,
			HasNoData: hasNoData,
		})
	}
	return bands
}

func (f *gdalFile) ReadBand(index int) ([]float32, error) {
	band := f.ds.RasterBand(index)
	width := f.ds.RasterXSize()
	height := f.ds.RasterYSize()

	buf := make([]float32, width*height)
	if err := band.IO(gdal.Read, 0, 0, width, height, buf, width, height, 0, 0); err != nil {
		return nil, fmt.Errorf("read band %d of %s: %w", index, f.path, err)
	}

	if noData, ok := band.NoDataValue(); ok {
		nan := float32(math.NaN())
		sentinel := float32(noData)
		for i, v := range buf {
			if v == sentinel {
				buf[i] = nan
			}
		}
	}
	return buf, nil
}

func (f *gdalFile) Spatial() SpatialMeta {
	return SpatialMeta{
		Transform:  AffineFromGeoTransform(f.ds.GeoTransform()),
		Width:      f.ds.RasterXSize(),
		Height:     f.ds.RasterYSize(),
		Projection: f.ds.Projection(),
	}
}

func (f *gdalFile) Close() error {
	f.ds.Close()
	return nil
}
