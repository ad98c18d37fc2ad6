package zarrstore

import "strconv"

// chunkGridSize returns the number of chunks along each dimension
// (ceil(shape/chunk) per dim).
func chunkGridSize(shape, chunks []int) []int {
	grid := make([]int, len(shape))
	for d := range shape {
		grid[d] = (shape[d] + chunks[d] - 1) / chunks[d]
	}
	return grid
}

// chunkKey renders zarr v2 chunk coordinates, e.g. [0 0 2 3] -> "0.0.2.3".
// A zero-dimensional array has the single chunk "0".
func chunkKey(coords []int) string {
	if len(coords) == 0 {
		return "0"
	}
	key := strconv.Itoa(coords[0])
	for _, c := range coords[1:] {
		key += "." + strconv.Itoa(c)
	}
	return key
}

// chunkBytes assembles the raw C-order bytes of one chunk from the whole
// array's C-order bytes, padding edge chunks with the fill element.
func chunkBytes(raw []byte, shape, chunks, coords []int, elemSize int, fillElem []byte) []byte {
	ndim := len(shape)

	chunkElems := 1
	for _, c := range chunks {
		chunkElems *= c
	}
	dst := make([]byte, chunkElems*elemSize)

	start := make([]int, ndim)
	count := make([]int, ndim)
	partial := false
	for d := range shape {
		start[d] = coords[d] * chunks[d]
		count[d] = chunks[d]
		if start[d]+count[d] > shape[d] {
			count[d] = shape[d] - start[d]
			partial = true
		}
	}
	if partial {
		for i := 0; i < chunkElems; i++ {
			copy(dst[i*elemSize:], fillElem)
		}
	}
	if ndim == 0 {
		copy(dst, raw)
		return dst
	}

	srcStride := make([]int, ndim)
	dstStride := make([]int, ndim)
	srcStride[ndim-1] = 1
	dstStride[ndim-1] = 1
	for d := ndim - 2; d >= 0; d-- {
		srcStride[d] = srcStride[d+1] * shape[d+1]
		dstStride[d] = dstStride[d+1] * chunks[d+1]
	}

	// Copy contiguous runs along the innermost dimension.
	var fill func(d, srcOff, dstOff int)
	fill = func(d, srcOff, dstOff int) {
		if d == ndim-1 {
			n := count[d] * elemSize
			src := (srcOff + start[d]) * elemSize
			copy(dst[dstOff*elemSize:dstOff*elemSize+n], raw[src:src+n])
			return
		}
		for i := 0; i < count[d]; i++ {
			fill(d+1, srcOff+(start[d]+i)*srcStride[d], dstOff+i*dstStride[d])
		}
	}
	fill(0, 0, 0)
	return dst
}

// eachChunk invokes fn for every chunk coordinate of the grid in row-major
// order.
func eachChunk(grid []int, fn func(coords []int) error) error {
	if len(grid) == 0 {
		return fn(nil)
	}
	coords := make([]int, len(grid))
	for {
		if err := fn(coords); err != nil {
			return err
		}
		d := len(grid) - 1
		for d >= 0 {
			coords[d]++
			if coords[d] < grid[d] {
				break
			}
			coords[d] = 0
			d--
		}
		if d < 0 {
			return nil
		}
	}
}
