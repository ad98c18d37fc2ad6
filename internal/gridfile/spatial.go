package gridfile

// Affine is a 2D affine geotransform mapping pixel (col, row) positions to
// projection coordinates:
//
//	x = C + A*col + B*row
//	y = F + D*col + E*row
type Affine struct {
	A, B, C, D, E, F float64
}

// AffineFromGeoTransform converts a GDAL-ordered geotransform
// [originX, pixelWidth, rowRotation, originY, colRotation, pixelHeight].
func AffineFromGeoTransform(gt [6]float64) Affine {
	return Affine{A: gt[1], B: gt[2], C: gt[0], D: gt[4], E: gt[5], F: gt[3]}
}

// Apply maps a pixel position to projection coordinates.
func (a Affine) Apply(col, row float64) (x, y float64) {
	return a.C + a.A*col + a.B*row, a.F + a.D*col + a.E*row
}

// SpatialMeta describes a file's projection grid. Every file in a region run
// shares one fixed grid, so the metadata derived from the first file applies
// to the whole run.
type SpatialMeta struct {
	Transform  Affine
	Width      int
	Height     int
	Projection string
}

// ProjectionCoords returns the x and y projection coordinates of pixel
// centers (offset 0.5 into each cell), in meters for projected grids.
func (m SpatialMeta) ProjectionCoords() (xs, ys []float64) {
	xs = make([]float64, m.Width)
	for col := range xs {
		x, _ := m.Transform.Apply(float64(col)+0.5, 0.5)
		xs[col] = x
	}
	ys = make([]float64, m.Height)
	for row := range ys {
		_, y := m.Transform.Apply(0.5, float64(row)+0.5)
		ys[row] = y
	}
	return xs, ys
}
