package domain

import "math"

// Band element names carried by NBM wind speed and direction bands.
const (
	WindSpeedElement     = "WindSpd"
	WindDirectionElement = "WindDir"
)

// WindComponents derives u/v vector components from paired speed and
// direction grids. Direction uses the meteorological "from" convention, so
// the vector points along direction+180 degrees. NaN in either input yields
// NaN in both outputs for that cell.
func WindComponents(speed, direction []float32) (u, v []float32) {
	u = make([]float32, len(speed))
	v = make([]float32, len(speed))
	for i := range speed {
		theta := (float64(direction[i]) + 180) * math.Pi / 180
		u[i] = speed[i] * float32(math.Sin(theta))
		v[i] = speed[i] * float32(math.Cos(theta))
	}
	return u, v
}
