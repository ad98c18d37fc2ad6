package domain

import (
	"fmt"
	"path/filepath"
	"time"
)

// SourceCoordinate identifies one remote NBM source file: a forecast cycle
// plus a forecast hour within it. Immutable once created.
type SourceCoordinate struct {
	InitTime     time.Time
	ForecastHour int
	Region       string
}

// Filename returns the archive file name, e.g. "blend.t06z.core.f012.co.grib2".
func (c SourceCoordinate) Filename() string {
	return fmt.Sprintf("blend.t%sz.core.f%03d.%s.grib2",
		c.InitTime.UTC().Format("15"), c.ForecastHour, c.Region)
}

// DownloadURL resolves the coordinate to its NOMADS archive URL:
// {base}/blend.{YYYYMMDD}/{HH}/core/blend.t{HH}z.core.f{FFF}.{region}.grib2
func (c SourceCoordinate) DownloadURL(baseURL string) string {
	t := c.InitTime.UTC()
	return fmt.Sprintf("%s/blend.%s/%s/core/%s",
		baseURL, t.Format("20060102"), t.Format("15"), c.Filename())
}

// IndexURL returns the URL of the companion .idx file.
func (c SourceCoordinate) IndexURL(baseURL string) string {
	return c.DownloadURL(baseURL) + ".idx"
}

// CachePath returns the coordinate's location relative to the download
// directory, keyed by init date and cycle: {YYYYMMDD}/{HH}/{filename}.
func (c SourceCoordinate) CachePath() string {
	t := c.InitTime.UTC()
	return filepath.Join(t.Format("20060102"), t.Format("15"), c.Filename())
}

func (c SourceCoordinate) String() string {
	return fmt.Sprintf("%s f%03d", c.InitTime.UTC().Format("2006-01-02T15Z"), c.ForecastHour)
}

// ProcessingRegion is a closed interval of forecast initialization times,
// both ends inclusive, defining which hourly cycles to process.
type ProcessingRegion struct {
	InitTimeStart time.Time
	InitTimeEnd   time.Time
}

// Validate checks the interval ordering invariant.
func (r ProcessingRegion) Validate() error {
	if r.InitTimeStart.IsZero() || r.InitTimeEnd.IsZero() {
		return fmt.Errorf("processing region has zero init time")
	}
	if r.InitTimeEnd.Before(r.InitTimeStart) {
		return fmt.Errorf("init_time_end %s is before init_time_start %s",
			r.InitTimeEnd.UTC().Format(time.RFC3339), r.InitTimeStart.UTC().Format(time.RFC3339))
	}
	return nil
}

// InitTimes returns every hourly initialization time in the region, inclusive
// of both endpoints, normalized to UTC.
func (r ProcessingRegion) InitTimes() []time.Time {
	var times []time.Time
	end := r.InitTimeEnd.UTC()
	for t := r.InitTimeStart.UTC(); !t.After(end); t = t.Add(time.Hour) {
		times = append(times, t)
	}
	return times
}
