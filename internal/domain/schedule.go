package domain

import (
	"fmt"
	"time"
)

// NBM CONUS publishes forecast hours 1-36 at hourly resolution and 39-84
// every three hours. Hour 0 (analysis) is not published, so the lead_time
// axis starts at one hour.
const (
	hourlyMaxHour    = 36
	threeHourlyStart = 39
	threeHourlyStep  = 3

	// MaxForecastHour is the longest lead published by major cycles.
	MaxForecastHour = 84

	// LeadTimeCount is the size of the lead_time axis: 36 hourly + 16 three-hourly.
	LeadTimeCount = 52

	// DefaultRegionCode is the CONUS region code used in archive file names.
	DefaultRegionCode = "co"
)

// ForecastHours returns the scheduled forecast hours up to and including
// maxHour, in schedule order. Passing MaxForecastHour yields the full
// 52-entry schedule.
func ForecastHours(maxHour int) []int {
	var hours []int
	for h := 1; h <= hourlyMaxHour && h <= maxHour; h++ {
		hours = append(hours, h)
	}
	for h := threeHourlyStart; h <= MaxForecastHour && h <= maxHour; h += threeHourlyStep {
		hours = append(hours, h)
	}
	return hours
}

// LeadTimeIndex maps a forecast hour onto the lead_time axis. Hours 1-36 map
// to indices 0-35; hours 39, 42, ... 84 map to indices 36-51. This is the
// exact inverse of the ForecastHours ordering.
func LeadTimeIndex(forecastHour int) (int, error) {
	switch {
	case forecastHour >= 1 && forecastHour <= hourlyMaxHour:
		return forecastHour - 1, nil
	case forecastHour >= threeHourlyStart && forecastHour <= MaxForecastHour &&
		(forecastHour-threeHourlyStart)%threeHourlyStep == 0:
		return hourlyMaxHour + (forecastHour-threeHourlyStart)/threeHourlyStep, nil
	default:
		return 0, fmt.Errorf("forecast hour %d is not in the NBM schedule", forecastHour)
	}
}

// LeadTimes returns the lead_time coordinate values for the schedule
// truncated at maxHour.
func LeadTimes(maxHour int) []time.Duration {
	hours := ForecastHours(maxHour)
	leads := make([]time.Duration, len(hours))
	for i, h := range hours {
		leads[i] = time.Duration(h) * time.Hour
	}
	return leads
}

// GenerateSourceCoordinates enumerates the source files needed to cover the
// region: one coordinate per scheduled forecast hour for every hourly init
// time in the region, in init-major schedule order.
func GenerateSourceCoordinates(region ProcessingRegion, regionCode string, maxHour int) []SourceCoordinate {
	hours := ForecastHours(maxHour)
	initTimes := region.InitTimes()

	coords := make([]SourceCoordinate, 0, len(initTimes)*len(hours))
	for _, t := range initTimes {
		for _, h := range hours {
			coords = append(coords, SourceCoordinate{
				InitTime:     t,
				ForecastHour: h,
				Region:       regionCode,
			})
		}
	}
	return coords
}
