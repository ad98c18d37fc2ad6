// Package domain models NOAA National Blend of Models (NBM) CONUS forecast
// data and the invariants of its archive layout.
//
// # Data Source
//
// NBM CONUS core files are published to the NOMADS archive at
// https://nomads.ncep.noaa.gov/pub/data/nccf/com/blend/prod/ under
//
//	blend.{YYYYMMDD}/{HH}/core/blend.t{HH}z.core.f{FFF}.co.grib2
//
// with an eight-digit date, two-digit cycle hour, and three-digit forecast
// hour. Each file holds one forecast hour of every variable as GRIB2 bands
// on a fixed 2.5 km Lambert conformal grid (2345 x 1597 cells).
//
// # Forecast Hour Schedule
//
// The lead-time axis is irregular:
//
//	Hours 1-36:  hourly            (36 entries)
//	Hours 39-84: every three hours (16 entries: 39, 42, ..., 84)
//
// for 52 lead times total. Hour 0 (the analysis) is not published, and
// hours 37 and 38 do not exist. [LeadTimeIndex] maps a forecast hour onto
// the axis and exactly inverts the [ForecastHours] ordering.
//
// Every hour brings a new forecast cycle, but only the major six-hourly
// cycles (00z, 06z, 12z, 18z) extend past 36 hours. Operational updates
// therefore target the latest major cycle, see [LatestMajorCycle].
//
// # Wind Encoding
//
// NBM files carry wind as speed ("WindSpd") and meteorological direction
// ("WindDir", the direction the wind blows from) band pairs per level.
// Vector components are derived by rotating the direction 180 degrees to
// the "blowing toward" convention:
//
//	theta = radians(direction + 180)
//	u     = speed * sin(theta)
//	v     = speed * cos(theta)
//
// # Quantization
//
// Variables are stored with per-variable mantissa rounding ([BitRound]) so
// that the zstd-compressed chunks stay small: keepbits bounds the relative
// error at roughly 2^-keepbits while zeroing the remaining mantissa bits.
package domain
