package zarrstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/andrewnakas/nbm-to-zarr-data/internal/template"
)

const (
	zarrFormat = 2

	// compressionLevel matches zstandard level 3, the speed/ratio sweet
	// spot for float grids that have been bit-rounded first.
	compressionLevel = 3

	groupFile        = ".zgroup"
	attrsFile        = ".zattrs"
	arrayFile        = ".zarray"
	consolidatedFile = ".zmetadata"

	dimsKey = "_ARRAY_DIMENSIONS"
)

// compressorMeta is the numcodecs codec entry in .zarray.
type compressorMeta struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

// arrayMeta is the zarr v2 array descriptor.
type arrayMeta struct {
	Shape      []int           `json:"shape"`
	Chunks     []int           `json:"chunks"`
	Dtype      string          `json:"dtype"`
	Compressor *compressorMeta `json:"compressor"`
	FillValue  any             `json:"fill_value"`
	Order      string          `json:"order"`
	Filters    any             `json:"filters"`
	ZarrFormat int             `json:"zarr_format"`
}

// arrayDef is one array staged for writing: metadata plus the raw C-order
// element bytes.
type arrayDef struct {
	name     string
	shape    []int
	chunks   []int
	dtype    string
	fill     any
	fillElem []byte
	attrs    map[string]any
	raw      []byte
}

// Writer persists datasets as zarr v2 directory stores with
// zstd-compressed chunks. The first save of a store path lays down the
// full group; later saves append along init_time without rewriting
// existing chunks or their encoding.
type Writer struct {
	logger *slog.Logger
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

func NewWriter(logger *slog.Logger) (*Writer, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Writer{logger: logger, enc: enc, dec: dec}, nil
}

// Save writes ds to the store at path, creating a fresh store or appending
// to an existing one depending on what is already there.
func (w *Writer) Save(ds *template.Dataset, path string) error {
	if _, err := os.Stat(filepath.Join(path, groupFile)); err == nil {
		return w.appendStore(ds, path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("probe store %s: %w", path, err)
	}
	return w.createStore(ds, path)
}

func (w *Writer) createStore(ds *template.Dataset, path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	if err := writeJSON(filepath.Join(path, groupFile), map[string]int{"zarr_format": zarrFormat}); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(path, attrsFile), toAttrMap(ds.Attrs)); err != nil {
		return err
	}
	arrays, err := buildArrays(ds)
	if err != nil {
		return err
	}
	for _, arr := range arrays {
		if err := w.writeArray(path, arr, 0); err != nil {
			return err
		}
	}
	if err := w.consolidate(path); err != nil {
		return err
	}
	w.logger.Info("created store",
		slog.String("path", path),
		slog.Int("init_times", len(ds.InitTimes)),
		slog.Int("variables", len(ds.Variables)))
	return nil
}

// appendStore grows the init_time dimension. Only the appendable arrays
// (data variables, init_time, valid_time) gain chunks; static coordinate
// arrays and every existing array's encoding are left untouched.
func (w *Writer) appendStore(ds *template.Dataset, path string) error {
	oldLen, err := w.checkAppendable(ds, path)
	if err != nil {
		return err
	}
	added := len(ds.InitTimes)

	for _, arr := range appendableArrays(ds) {
		meta, err := readArrayMeta(filepath.Join(path, arr.name, arrayFile))
		if err != nil {
			return err
		}
		if meta.Chunks[0] != 1 {
			return fmt.Errorf("array %s has init_time chunk size %d, append requires 1", arr.name, meta.Chunks[0])
		}
		// Append honors the on-disk chunk layout, not the in-memory one.
		arr.chunks = meta.Chunks
		if err := w.writeChunks(path, arr, oldLen); err != nil {
			return err
		}
		meta.Shape[0] = oldLen + added
		if err := writeJSON(filepath.Join(path, arr.name, arrayFile), meta); err != nil {
			return err
		}
	}
	if err := w.consolidate(path); err != nil {
		return err
	}
	w.logger.Info("appended to store",
		slog.String("path", path),
		slog.Int("init_times_added", added),
		slog.Int("init_times_total", oldLen+added))
	return nil
}

// checkAppendable verifies the incoming dataset is layout-compatible with
// the existing store and that the new init times extend it strictly
// forward. It returns the current init_time length.
func (w *Writer) checkAppendable(ds *template.Dataset, path string) (int, error) {
	initMeta, err := readArrayMeta(filepath.Join(path, "init_time", arrayFile))
	if err != nil {
		return 0, fmt.Errorf("existing store is missing init_time: %w", err)
	}
	oldLen := initMeta.Shape[0]

	for _, v := range ds.Variables {
		meta, err := readArrayMeta(filepath.Join(path, v.Name, arrayFile))
		if err != nil {
			return 0, fmt.Errorf("existing store is missing variable %s: %w", v.Name, err)
		}
		shape := ds.Vars[v.Name].Shape()
		if len(meta.Shape) != 4 || meta.Shape[1] != shape[1] || meta.Shape[2] != shape[2] || meta.Shape[3] != shape[3] {
			return 0, fmt.Errorf("variable %s has store shape %v, dataset is %v", v.Name, meta.Shape, shape[:])
		}
	}

	if oldLen > 0 && len(ds.InitTimes) > 0 {
		last, err := w.readLastInitTime(path, initMeta, oldLen)
		if err != nil {
			return 0, err
		}
		first := ds.InitTimes[0].UTC().UnixNano()
		if first <= last {
			return 0, fmt.Errorf("init_time %s does not extend the store (last stored %s)",
				ds.InitTimes[0].UTC().Format("2006-01-02T15Z"), nanosToLabel(last))
		}
	}
	return oldLen, nil
}

func (w *Writer) readLastInitTime(path string, meta *arrayMeta, length int) (int64, error) {
	chunk := (length - 1) / meta.Chunks[0]
	name := filepath.Join(path, "init_time", chunkKey([]int{chunk}))
	compressed, err := os.ReadFile(name)
	if err != nil {
		return 0, fmt.Errorf("read init_time chunk: %w", err)
	}
	raw, err := w.dec.DecodeAll(compressed, nil)
	if err != nil {
		return 0, fmt.Errorf("decompress init_time chunk: %w", err)
	}
	offset := ((length - 1) % meta.Chunks[0]) * 8
	if offset+8 > len(raw) {
		return 0, fmt.Errorf("init_time chunk %s is truncated", name)
	}
	return int64(binary.LittleEndian.Uint64(raw[offset:])), nil
}

func (w *Writer) writeArray(path string, arr *arrayDef, chunkOffset int) error {
	dir := filepath.Join(path, arr.name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create array dir %s: %w", arr.name, err)
	}
	meta := &arrayMeta{
		Shape:      arr.shape,
		Chunks:     arr.chunks,
		Dtype:      arr.dtype,
		Compressor: &compressorMeta{ID: "zstd", Level: compressionLevel},
		FillValue:  arr.fill,
		Order:      "C",
		Filters:    nil,
		ZarrFormat: zarrFormat,
	}
	if err := writeJSON(filepath.Join(dir, arrayFile), meta); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, attrsFile), arr.attrs); err != nil {
		return err
	}
	return w.writeChunks(path, arr, chunkOffset)
}

// writeChunks compresses and writes every chunk of arr, shifting chunk
// coordinates along the first dimension by chunkOffset (used on append,
// where the first dimension's chunk extent is 1).
func (w *Writer) writeChunks(path string, arr *arrayDef, chunkOffset int) error {
	dir := filepath.Join(path, arr.name)
	elemSize := dtypeSize(arr.dtype)
	grid := chunkGridSize(arr.shape, arr.chunks)
	return eachChunk(grid, func(coords []int) error {
		raw := chunkBytes(arr.raw, arr.shape, arr.chunks, coords, elemSize, arr.fillElem)
		compressed := w.enc.EncodeAll(raw, nil)

		key := coords
		if chunkOffset > 0 && len(coords) > 0 {
			key = append([]int{coords[0] + chunkOffset}, coords[1:]...)
		}
		name := filepath.Join(dir, chunkKey(key))
		if err := os.WriteFile(name, compressed, 0o644); err != nil {
			return fmt.Errorf("write chunk %s/%s: %w", arr.name, chunkKey(key), err)
		}
		return nil
	})
}

// consolidate rebuilds .zmetadata from the store's metadata files so
// readers can open the group with a single fetch.
func (w *Writer) consolidate(path string) error {
	metadata := map[string]json.RawMessage{}

	addFile := func(key, file string) error {
		data, err := os.ReadFile(file)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("consolidate %s: %w", key, err)
		}
		metadata[key] = json.RawMessage(data)
		return nil
	}

	if err := addFile(groupFile, filepath.Join(path, groupFile)); err != nil {
		return err
	}
	if err := addFile(attrsFile, filepath.Join(path, attrsFile)); err != nil {
		return err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("scan store: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if err := addFile(name+"/"+arrayFile, filepath.Join(path, name, arrayFile)); err != nil {
			return err
		}
		if err := addFile(name+"/"+attrsFile, filepath.Join(path, name, attrsFile)); err != nil {
			return err
		}
	}
	doc := map[string]any{
		"zarr_consolidated_format": 1,
		"metadata":                 metadata,
	}
	return writeJSON(filepath.Join(path, consolidatedFile), doc)
}

// buildArrays stages every array of the store: coordinate axes, the
// spatial reference scalar, derived valid_time, and the data variables.
func buildArrays(ds *template.Dataset) ([]*arrayDef, error) {
	leadLen := len(ds.LeadTimes)

	arrays := []*arrayDef{
		int64Axis("init_time", timesToNanos(ds.InitTimes), []int{1}, map[string]any{
			dimsKey:         []string{"init_time"},
			"standard_name": "forecast_reference_time",
			"long_name":     "Initialization time",
			"units":         "nanoseconds since 1970-01-01",
			"calendar":      "proleptic_gregorian",
		}),
		int64Axis("lead_time", durationsToNanos(ds.LeadTimes), []int{leadLen}, map[string]any{
			dimsKey:         []string{"lead_time"},
			"standard_name": "forecast_period",
			"long_name":     "Forecast lead time",
			"units":         "nanoseconds",
		}),
		float64Axis("y", ds.YCoords, map[string]any{
			dimsKey:         []string{"y"},
			"standard_name": "projection_y_coordinate",
			"units":         "m",
		}),
		float64Axis("x", ds.XCoords, map[string]any{
			dimsKey:         []string{"x"},
			"standard_name": "projection_x_coordinate",
			"units":         "m",
		}),
		spatialRefArray(ds.SpatialRef),
		validTimeArray(ds),
	}

	for _, v := range ds.Variables {
		arr, ok := ds.Vars[v.Name]
		if !ok {
			return nil, fmt.Errorf("dataset has no array for variable %s", v.Name)
		}
		shape := arr.Shape()
		chunks := []int{
			v.Chunks["init_time"],
			v.Chunks["lead_time"],
			v.Chunks["y"],
			v.Chunks["x"],
		}
		for d, c := range chunks {
			if c <= 0 {
				return nil, fmt.Errorf("variable %s has chunk %d along dimension %d", v.Name, c, d)
			}
		}
		arrays = append(arrays, &arrayDef{
			name:     v.Name,
			shape:    shape[:],
			chunks:   chunks,
			dtype:    "<f4",
			fill:     "NaN",
			fillElem: float32Bytes([]float32{float32(math.NaN())}),
			attrs: map[string]any{
				dimsKey:        []string{"init_time", "lead_time", "y", "x"},
				"units":        v.Units,
				"long_name":    v.LongName,
				"grid_mapping": "spatial_ref",
				"coordinates":  "valid_time spatial_ref",
			},
			raw: float32Bytes(arr.Raw()),
		})
	}
	return arrays, nil
}

// appendableArrays returns the arrays that grow along init_time, with the
// incoming dataset's values as the new tail.
func appendableArrays(ds *template.Dataset) []*arrayDef {
	arrays := []*arrayDef{
		int64Axis("init_time", timesToNanos(ds.InitTimes), []int{1}, nil),
		validTimeArray(ds),
	}
	for _, v := range ds.Variables {
		arr := ds.Vars[v.Name]
		shape := arr.Shape()
		arrays = append(arrays, &arrayDef{
			name:     v.Name,
			shape:    shape[:],
			dtype:    "<f4",
			fillElem: float32Bytes([]float32{float32(math.NaN())}),
			raw:      float32Bytes(arr.Raw()),
		})
	}
	return arrays
}

func validTimeArray(ds *template.Dataset) *arrayDef {
	initLen := len(ds.InitTimes)
	leadLen := len(ds.LeadTimes)
	values := make([]int64, 0, initLen*leadLen)
	for i := 0; i < initLen; i++ {
		for j := 0; j < leadLen; j++ {
			values = append(values, ds.ValidTime(i, j).UnixNano())
		}
	}
	return &arrayDef{
		name:     "valid_time",
		shape:    []int{initLen, leadLen},
		chunks:   []int{1, leadLen},
		dtype:    "<i8",
		fill:     nil,
		fillElem: make([]byte, 8),
		attrs: map[string]any{
			dimsKey:         []string{"init_time", "lead_time"},
			"standard_name": "time",
			"long_name":     "Valid time",
			"units":         "nanoseconds since 1970-01-01",
			"calendar":      "proleptic_gregorian",
		},
		raw: int64Bytes(values),
	}
}

func spatialRefArray(ref template.SpatialRef) *arrayDef {
	attrs := toAttrMap(ref)
	attrs[dimsKey] = []string{}
	return &arrayDef{
		name:     "spatial_ref",
		shape:    []int{},
		chunks:   []int{},
		dtype:    "<i4",
		fill:     nil,
		fillElem: make([]byte, 4),
		attrs:    attrs,
		raw:      make([]byte, 4),
	}
}

func int64Axis(name string, values []int64, chunks []int, attrs map[string]any) *arrayDef {
	if len(chunks) == 1 && chunks[0] <= 0 {
		chunks[0] = 1
	}
	return &arrayDef{
		name:     name,
		shape:    []int{len(values)},
		chunks:   chunks,
		dtype:    "<i8",
		fill:     nil,
		fillElem: make([]byte, 8),
		attrs:    attrs,
		raw:      int64Bytes(values),
	}
}

func float64Axis(name string, values []float64, attrs map[string]any) *arrayDef {
	n := len(values)
	chunk := n
	if chunk == 0 {
		chunk = 1
	}
	return &arrayDef{
		name:     name,
		shape:    []int{n},
		chunks:   []int{chunk},
		dtype:    "<f8",
		fill:     nil,
		fillElem: make([]byte, 8),
		attrs:    attrs,
		raw:      float64Bytes(values),
	}
}

func timesToNanos(ts []time.Time) []int64 {
	out := make([]int64, len(ts))
	for i, t := range ts {
		out[i] = t.UTC().UnixNano()
	}
	return out
}

func durationsToNanos(ds []time.Duration) []int64 {
	out := make([]int64, len(ds))
	for i, d := range ds {
		out[i] = d.Nanoseconds()
	}
	return out
}

func float32Bytes(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func float64Bytes(values []float64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func int64Bytes(values []int64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
	}
	return out
}

func dtypeSize(dtype string) int {
	switch strings.TrimLeft(dtype, "<>|") {
	case "f4", "i4", "u4":
		return 4
	case "f8", "i8", "u8":
		return 8
	default:
		return 1
	}
}

// toAttrMap converts a struct with json tags into a plain attribute map.
func toAttrMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readArrayMeta(path string) (*arrayMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	meta := &arrayMeta{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return meta, nil
}

func nanosToLabel(nanos int64) string {
	return time.Unix(0, nanos).UTC().Format("2006-01-02T15Z")
}
