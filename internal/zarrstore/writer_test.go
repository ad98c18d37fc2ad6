package zarrstore

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewnakas/nbm-to-zarr-data/internal/domain"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/template"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig shrinks the dataset to a 3x4 grid with two lead times so a
// store round trip stays readable by hand.
func testConfig() template.Config {
	cfg := template.DefaultConfig()
	cfg.MaxForecastHour = 2
	cfg.Height = 3
	cfg.Width = 4
	cfg.Variables = []domain.VariableConfig{
		{
			Name: "t2m", Element: "T", Level: "2-HTGL", Keepbits: 12,
			Chunks: map[string]int{"init_time": 1, "lead_time": 2, "y": 2, "x": 3},
			Units:  "K", LongName: "2-meter temperature",
		},
	}
	return cfg
}

func buildDataset(t *testing.T, start, end time.Time) *template.Dataset {
	t.Helper()
	ds, err := testConfig().Build(domain.ProcessingRegion{InitTimeStart: start, InitTimeEnd: end})
	require.NoError(t, err)
	return ds
}

func readMeta(t *testing.T, path string) *arrayMeta {
	t.Helper()
	meta, err := readArrayMeta(path)
	require.NoError(t, err)
	return meta
}

func readChunkFloat32(t *testing.T, path string) []float32 {
	t.Helper()
	compressed, err := os.ReadFile(path)
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	require.NoError(t, err)
	values := make([]float32, len(raw)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return values
}

func readChunkInt64(t *testing.T, path string) []int64 {
	t.Helper()
	compressed, err := os.ReadFile(path)
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	require.NoError(t, err)
	values := make([]int64, len(raw)/8)
	for i := range values {
		values[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return values
}

func TestSaveCreatesStore(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := buildDataset(t, start, start.Add(time.Hour))

	w, err := NewWriter(testLogger())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "store.zarr")
	require.NoError(t, w.Save(ds, path))

	var group map[string]int
	data, err := os.ReadFile(filepath.Join(path, ".zgroup"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &group))
	assert.Equal(t, 2, group["zarr_format"])

	var attrs map[string]any
	data, err = os.ReadFile(filepath.Join(path, ".zattrs"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &attrs))
	assert.Equal(t, "noaa-nbm-conus-forecast", attrs["id"])

	meta := readMeta(t, filepath.Join(path, "t2m", ".zarray"))
	want := &arrayMeta{
		Shape:      []int{2, 2, 3, 4},
		Chunks:     []int{1, 2, 2, 3},
		Dtype:      "<f4",
		Compressor: &compressorMeta{ID: "zstd", Level: 3},
		FillValue:  "NaN",
		Order:      "C",
		ZarrFormat: 2,
	}
	if diff := cmp.Diff(want, meta); diff != "" {
		t.Errorf("t2m .zarray mismatch (-want +got):\n%s", diff)
	}

	initMeta := readMeta(t, filepath.Join(path, "init_time", ".zarray"))
	assert.Equal(t, []int{2}, initMeta.Shape)
	assert.Equal(t, []int{1}, initMeta.Chunks)
	assert.Equal(t, "<i8", initMeta.Dtype)

	nanos := readChunkInt64(t, filepath.Join(path, "init_time", "0"))
	assert.Equal(t, []int64{start.UnixNano()}, nanos)
	nanos = readChunkInt64(t, filepath.Join(path, "init_time", "1"))
	assert.Equal(t, []int64{start.Add(time.Hour).UnixNano()}, nanos)

	leads := readChunkInt64(t, filepath.Join(path, "lead_time", "0"))
	assert.Equal(t, []int64{int64(time.Hour), int64(2 * time.Hour)}, leads)

	valid := readChunkInt64(t, filepath.Join(path, "valid_time", "0.0"))
	assert.Equal(t, []int64{
		start.Add(time.Hour).UnixNano(),
		start.Add(2 * time.Hour).UnixNano(),
	}, valid)

	// 3x4 grid with 2x3 chunks: two chunk columns, two chunk rows.
	for _, key := range []string{"0.0.0.0", "0.0.0.1", "0.0.1.0", "0.0.1.1", "1.0.0.0", "1.0.1.1"} {
		_, err := os.Stat(filepath.Join(path, "t2m", key))
		assert.NoError(t, err, "chunk %s", key)
	}

	var spatialAttrs map[string]any
	data, err = os.ReadFile(filepath.Join(path, "spatial_ref", ".zattrs"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &spatialAttrs))
	assert.Equal(t, "lambert_conformal_conic", spatialAttrs["grid_mapping_name"])
	assert.Contains(t, spatialAttrs["proj4"], "+proj=lcc")
}

func TestSaveRoundTripsValues(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := buildDataset(t, start, start)

	grid := []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
	}
	require.NoError(t, ds.Vars["t2m"].SetSlice(0, 0, grid))

	w, err := NewWriter(testLogger())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "store.zarr")
	require.NoError(t, w.Save(ds, path))

	// Chunk (0,0): lead times 0-1 of rows 0-1, columns 0-2. Lead 1 was
	// never written and stays NaN.
	chunk := readChunkFloat32(t, filepath.Join(path, "t2m", "0.0.0.0"))
	require.Len(t, chunk, 1*2*2*3)
	assert.Equal(t, []float32{1, 2, 3, 5, 6, 7}, chunk[:6])
	for _, v := range chunk[6:] {
		assert.True(t, math.IsNaN(float64(v)))
	}

	// Edge chunk (1,1) covers row 2 and column 3 only; the padding cells
	// are fill NaN.
	edge := readChunkFloat32(t, filepath.Join(path, "t2m", "0.0.1.1"))
	require.Len(t, edge, 1*2*2*3)
	assert.Equal(t, float32(12), edge[0])
	assert.True(t, math.IsNaN(float64(edge[1])))
	assert.True(t, math.IsNaN(float64(edge[3])))
}

func TestSaveWritesConsolidatedMetadata(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := buildDataset(t, start, start)

	w, err := NewWriter(testLogger())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "store.zarr")
	require.NoError(t, w.Save(ds, path))

	data, err := os.ReadFile(filepath.Join(path, ".zmetadata"))
	require.NoError(t, err)
	var doc struct {
		Format   int                        `json:"zarr_consolidated_format"`
		Metadata map[string]json.RawMessage `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 1, doc.Format)
	for _, key := range []string{
		".zgroup", ".zattrs",
		"t2m/.zarray", "t2m/.zattrs",
		"init_time/.zarray", "lead_time/.zarray",
		"x/.zarray", "y/.zarray",
		"valid_time/.zarray", "spatial_ref/.zattrs",
	} {
		assert.Contains(t, doc.Metadata, key)
	}
}

func TestSaveAppendsAlongInitTime(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	first := buildDataset(t, start, start.Add(time.Hour))
	require.NoError(t, first.Vars["t2m"].SetSlice(0, 0, make([]float32, 12)))

	w, err := NewWriter(testLogger())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "store.zarr")
	require.NoError(t, w.Save(first, path))

	existingChunk, err := os.ReadFile(filepath.Join(path, "t2m", "0.0.0.0"))
	require.NoError(t, err)

	second := buildDataset(t, start.Add(2*time.Hour), start.Add(2*time.Hour))
	grid := make([]float32, 12)
	for i := range grid {
		grid[i] = float32(100 + i)
	}
	require.NoError(t, second.Vars["t2m"].SetSlice(0, 0, grid))
	require.NoError(t, w.Save(second, path))

	initMeta := readMeta(t, filepath.Join(path, "init_time", ".zarray"))
	assert.Equal(t, []int{3}, initMeta.Shape)
	assert.Equal(t, []int{1}, initMeta.Chunks)

	nanos := readChunkInt64(t, filepath.Join(path, "init_time", "2"))
	assert.Equal(t, []int64{start.Add(2 * time.Hour).UnixNano()}, nanos)

	dataMeta := readMeta(t, filepath.Join(path, "t2m", ".zarray"))
	assert.Equal(t, []int{3, 2, 3, 4}, dataMeta.Shape)
	assert.Equal(t, "zstd", dataMeta.Compressor.ID)
	assert.Equal(t, 3, dataMeta.Compressor.Level)

	appended := readChunkFloat32(t, filepath.Join(path, "t2m", "2.0.0.0"))
	assert.Equal(t, []float32{100, 101, 102, 104, 105, 106}, appended[:6])

	// Existing chunks are not rewritten.
	after, err := os.ReadFile(filepath.Join(path, "t2m", "0.0.0.0"))
	require.NoError(t, err)
	assert.Equal(t, existingChunk, after)

	valid := readChunkInt64(t, filepath.Join(path, "valid_time", "2.0"))
	assert.Equal(t, []int64{
		start.Add(3 * time.Hour).UnixNano(),
		start.Add(4 * time.Hour).UnixNano(),
	}, valid)
}

func TestSaveAppendRejectsOverlap(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	first := buildDataset(t, start, start.Add(time.Hour))

	w, err := NewWriter(testLogger())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "store.zarr")
	require.NoError(t, w.Save(first, path))

	overlap := buildDataset(t, start.Add(time.Hour), start.Add(2*time.Hour))
	err = w.Save(overlap, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not extend the store")
}

func TestSaveAppendRejectsShapeMismatch(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	first := buildDataset(t, start, start)

	w, err := NewWriter(testLogger())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "store.zarr")
	require.NoError(t, w.Save(first, path))

	cfg := testConfig()
	cfg.Width = 5
	wider, err := cfg.Build(domain.ProcessingRegion{
		InitTimeStart: start.Add(time.Hour),
		InitTimeEnd:   start.Add(time.Hour),
	})
	require.NoError(t, err)

	err = w.Save(wider, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store shape")
}

func TestChunkKey(t *testing.T) {
	assert.Equal(t, "0", chunkKey(nil))
	assert.Equal(t, "3", chunkKey([]int{3}))
	assert.Equal(t, "0.1.2.3", chunkKey([]int{0, 1, 2, 3}))
}

func TestChunkGridSize(t *testing.T) {
	assert.Equal(t, []int{2, 1, 2, 2}, chunkGridSize([]int{2, 2, 3, 4}, []int{1, 2, 2, 3}))
	assert.Equal(t, []int{1}, chunkGridSize([]int{1}, []int{52}))
}
