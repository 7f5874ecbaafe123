package raster

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/model"
)

// 0.01° pixels anchored at (-118.5, 34.5).
var laTransform = geo.Transform{OriginX: -118.5, OriginY: 34.5, PixelWidth: 0.01, PixelHeight: -0.01}

// countingReader records the number of bytes read through it.
type countingReader struct {
	r *bytes.Reader
	n atomic.Int64
}

func (c *countingReader) ReadAt(p []byte, off int64) (int, error) {
	n, err := c.r.ReadAt(p, off)
	c.n.Add(int64(n))
	return n, err
}

func encode(t *testing.T, s *model.Stack, opts WriteOptions) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteGeoTIFF(&buf, s, laTransform, opts))
	return buf.Bytes()
}

func TestGeoTIFF_RoundTripLayouts(t *testing.T) {
	stack := rampStack(3, 40, 37)
	tests := []struct {
		name string
		opts WriteOptions
	}{
		{"single strip", WriteOptions{}},
		{"strips", WriteOptions{RowsPerStrip: 7}},
		{"planar strips", WriteOptions{RowsPerStrip: 5, Planar: true}},
		{"deflate", WriteOptions{Compression: CompressionDeflate, RowsPerStrip: 16}},
		{"tiles", WriteOptions{TileSize: 16}},
		{"planar deflate tiles", WriteOptions{TileSize: 16, Planar: true, Compression: CompressionDeflate}},
		{"uint16 predictor", WriteOptions{SampleFormat: SampleUint, Bits: 16, Predictor: PredictorHorizontal, Compression: CompressionDeflate, RowsPerStrip: 9}},
		{"int32 predictor tiles", WriteOptions{SampleFormat: SampleInt, Bits: 32, Predictor: PredictorHorizontal, TileSize: 32}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGeoTIFFReader(bytes.NewReader(encode(t, stack, tt.opts)))
			require.NoError(t, err)

			info := g.Info()
			assert.Equal(t, 37, info.Cols)
			assert.Equal(t, 40, info.Rows)
			assert.Equal(t, 3, info.Bands)
			assert.Equal(t, "EPSG:4326", info.CRS)
			assert.InDelta(t, laTransform.OriginX, info.Transform.OriginX, 1e-12)
			assert.InDelta(t, laTransform.PixelHeight, info.Transform.PixelHeight, 1e-12)

			w, err := g.ReadWindow(context.Background(), info.Extent())
			require.NoError(t, err)
			assert.Equal(t, stack.Data, w.Data.Data)
		})
	}
}

func TestGeoTIFF_ReadWindowSubset(t *testing.T) {
	stack := rampStack(2, 40, 40)
	g, err := NewGeoTIFFReader(bytes.NewReader(encode(t, stack, WriteOptions{TileSize: 16})))
	require.NoError(t, err)

	// Columns 10..24, rows 5..19: spans tiles in both directions.
	box := laTransform.WindowBounds(geo.Window{ColOff: 10, RowOff: 5, Width: 15, Height: 15})
	w, err := g.ReadWindow(context.Background(), box)
	require.NoError(t, err)

	assert.Equal(t, geo.Window{ColOff: 10, RowOff: 5, Width: 15, Height: 15}, w.Pixels)
	mem, err := NewMemory(laTransform, stack)
	require.NoError(t, err)
	want, err := mem.ReadWindow(context.Background(), box)
	require.NoError(t, err)
	assert.Equal(t, want.Data.Data, w.Data.Data)
	assert.Equal(t, want.Transform, w.Transform)
}

func TestGeoTIFF_ReadsOnlyIntersectingStrips(t *testing.T) {
	stack := rampStack(1, 64, 64)
	data := encode(t, stack, WriteOptions{RowsPerStrip: 8})
	cr := &countingReader{r: bytes.NewReader(data)}

	g, err := NewGeoTIFFReader(cr)
	require.NoError(t, err)
	cr.n.Store(0)

	box := laTransform.WindowBounds(geo.Window{ColOff: 0, RowOff: 0, Width: 10, Height: 8})
	w, err := g.ReadWindow(context.Background(), box)
	require.NoError(t, err)
	assert.Equal(t, model.Shape{Rows: 8, Cols: 10}, w.Data.Shape())

	// One strip: 8 rows × 64 cols × 4 bytes.
	assert.Equal(t, int64(8*64*4), cr.n.Load())
	assert.Less(t, cr.n.Load(), int64(len(data)/4))
}

func TestGeoTIFF_NoData(t *testing.T) {
	stack := rampStack(1, 4, 4)
	stack.Data[5] = math.NaN()
	nd := -9999.0

	for _, opts := range []WriteOptions{
		{NoData: &nd},
		{NoData: &nd, SampleFormat: SampleInt, Bits: 16},
		{},
	} {
		g, err := NewGeoTIFFReader(bytes.NewReader(encode(t, stack, opts)))
		require.NoError(t, err)
		w, err := g.ReadWindow(context.Background(), g.Info().Extent())
		require.NoError(t, err)
		assert.True(t, math.IsNaN(w.Data.Data[5]))
		assert.Equal(t, 6.0, w.Data.Data[6])
	}
}

func TestGeoTIFF_OutsideExtent(t *testing.T) {
	g, err := NewGeoTIFFReader(bytes.NewReader(encode(t, rampStack(1, 10, 10), WriteOptions{})))
	require.NoError(t, err)

	_, err = g.ReadWindow(context.Background(), model.BoundingBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1})
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
}

func TestGeoTIFF_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.tif")
	stack := rampStack(2, 12, 9)
	require.NoError(t, WriteGeoTIFFFile(path, stack, laTransform, WriteOptions{RowsPerStrip: 4}))

	g, err := OpenGeoTIFF(path)
	require.NoError(t, err)
	defer g.Close() //nolint:errcheck

	w, err := g.ReadWindow(context.Background(), g.Info().Extent())
	require.NoError(t, err)
	assert.Equal(t, stack.Data, w.Data.Data)
}

func TestOpenGeoTIFF_Errors(t *testing.T) {
	_, err := OpenGeoTIFF(filepath.Join(t.TempDir(), "missing.tif"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "junk.tif")
	require.NoError(t, os.WriteFile(path, []byte("not a tiff at all"), 0o644))
	_, err = OpenGeoTIFF(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a tiff")
}

func TestWriteGeoTIFF_InvalidOptions(t *testing.T) {
	s := rampStack(1, 2, 2)
	var buf bytes.Buffer
	assert.Error(t, WriteGeoTIFF(&buf, s, laTransform, WriteOptions{Predictor: PredictorHorizontal}))
	assert.Error(t, WriteGeoTIFF(&buf, s, laTransform, WriteOptions{TileSize: 10}))
	assert.Error(t, WriteGeoTIFF(&buf, s, laTransform, WriteOptions{Compression: CompressionLZW}))
	assert.Error(t, WriteGeoTIFF(&buf, s, geo.Transform{PixelWidth: 1, PixelHeight: 1}, WriteOptions{}))
	assert.Error(t, WriteGeoTIFF(&buf, nil, laTransform, WriteOptions{}))
}

// encodeFloatingPoint applies TIFF predictor 3 to a row of float32 samples
// stored in bo order.
func encodeFloatingPoint(row []byte, bo binary.ByteOrder, spc int) {
	const bps = 4
	n := len(row) / bps
	tmp := make([]byte, len(row))
	for i := 0; i < n; i++ {
		be := make([]byte, bps)
		binary.BigEndian.PutUint32(be, bo.Uint32(row[i*bps:]))
		for b := 0; b < bps; b++ {
			tmp[b*n+i] = be[b]
		}
	}
	for i := len(tmp) - 1; i >= spc; i-- {
		tmp[i] -= tmp[i-spc]
	}
	copy(row, tmp)
}

func TestUndoFloatingPoint(t *testing.T) {
	values := []float32{300.25, 301.5, -2.75, 0, 1e-3, 299.125}
	for _, bo := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		row := make([]byte, 4*len(values))
		for i, v := range values {
			bo.PutUint32(row[4*i:], math.Float32bits(v))
		}
		encodeFloatingPoint(row, bo, 2)
		undoFloatingPoint(row, make([]byte, len(row)), bo, 4, 2)
		for i, v := range values {
			assert.Equal(t, v, math.Float32frombits(bo.Uint32(row[4*i:])))
		}
	}
}

func TestUndoHorizontal(t *testing.T) {
	bo := binary.LittleEndian
	row := make([]byte, 8)
	for i, v := range []uint16{10, 12, 11, 40} {
		bo.PutUint16(row[2*i:], v)
	}
	applyHorizontal(row, bo, 2, 1)
	assert.Equal(t, uint16(2), bo.Uint16(row[2:]))
	undoHorizontal(row, bo, 2, 1)
	assert.Equal(t, uint16(40), bo.Uint16(row[6:]))
	assert.Equal(t, uint16(11), bo.Uint16(row[4:]))
}

func TestGeoTIFF_RejectsOtherCRS(t *testing.T) {
	data := encode(t, rampStack(1, 4, 4), WriteOptions{EPSG: 32611})
	_, err := NewGeoTIFFReader(bytes.NewReader(data))
	require.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Contains(t, err.Error(), "EPSG:32611")

	path := filepath.Join(t.TempDir(), "utm.tif")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	_, err = OpenGeoTIFF(path)
	require.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Contains(t, err.Error(), "EPSG:32611")
}
