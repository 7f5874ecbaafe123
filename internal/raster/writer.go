package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/model"
)

// WriteOptions controls the layout of a written GeoTIFF. The zero value
// writes an uncompressed, single-strip, pixel-interleaved float32 file.
type WriteOptions struct {
	SampleFormat int  // SampleFloat (default), SampleInt or SampleUint
	Bits         int  // 32 (default), 16 or 8 for integer formats
	Compression  int  // CompressionNone (default) or CompressionDeflate
	Predictor    int  // PredictorNone (default) or PredictorHorizontal for integers
	RowsPerStrip int  // strip height; 0 = whole image
	TileSize     int  // square tile edge (multiple of 16); 0 = strips
	Planar       bool // band-sequential layout
	NoData       *float64
	EPSG         int // defaults to 4326
}

func (o *WriteOptions) defaults() {
	if o.SampleFormat == 0 {
		o.SampleFormat = SampleFloat
	}
	if o.Bits == 0 {
		o.Bits = 32
	}
	if o.Compression == 0 {
		o.Compression = CompressionNone
	}
	if o.Predictor == 0 {
		o.Predictor = PredictorNone
	}
	if o.EPSG == 0 {
		o.EPSG = epsgWGS84
	}
}

func (o *WriteOptions) validate() error {
	switch o.SampleFormat {
	case SampleFloat:
		if o.Bits != 32 {
			return eris.New("raster: float output must be 32-bit")
		}
		if o.Predictor != PredictorNone {
			return eris.New("raster: predictor is only supported for integer output")
		}
	case SampleInt, SampleUint:
		if o.Bits != 8 && o.Bits != 16 && o.Bits != 32 {
			return eris.Errorf("raster: unsupported integer width %d", o.Bits)
		}
	default:
		return eris.Errorf("raster: unsupported sample format %d", o.SampleFormat)
	}
	if o.Compression != CompressionNone && o.Compression != CompressionDeflate {
		return eris.Errorf("raster: unsupported output compression %d", o.Compression)
	}
	if o.Predictor != PredictorNone && o.Predictor != PredictorHorizontal {
		return eris.Errorf("raster: unsupported output predictor %d", o.Predictor)
	}
	if o.TileSize < 0 || o.TileSize%16 != 0 {
		return eris.New("raster: tile size must be a positive multiple of 16")
	}
	return nil
}

// WriteGeoTIFFFile writes stack to path as a GeoTIFF.
func WriteGeoTIFFFile(path string, stack *model.Stack, tr geo.Transform, opts WriteOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "raster: create %s", path)
	}
	if err := WriteGeoTIFF(f, stack, tr, opts); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "raster: close %s", path)
}

// WriteGeoTIFF encodes stack as a little-endian GeoTIFF georeferenced by tr.
// NaN samples are written as the nodata value when one is set.
func WriteGeoTIFF(w io.Writer, stack *model.Stack, tr geo.Transform, opts WriteOptions) error {
	opts.defaults()
	if err := opts.validate(); err != nil {
		return err
	}
	if stack == nil || stack.Bands <= 0 || stack.Rows <= 0 || stack.Cols <= 0 {
		return eris.New("raster: nothing to write")
	}
	if !tr.Valid() {
		return eris.Errorf("raster: cannot write geotransform %+v", tr)
	}

	bo := binary.LittleEndian
	bps := opts.Bits / 8
	spp := stack.Bands
	planes, spc := 1, spp
	if opts.Planar {
		planes, spc = spp, 1
	}

	chunkW, chunkH := stack.Cols, stack.Rows
	tiled := opts.TileSize > 0
	if tiled {
		chunkW, chunkH = opts.TileSize, opts.TileSize
	} else if opts.RowsPerStrip > 0 && opts.RowsPerStrip < stack.Rows {
		chunkH = opts.RowsPerStrip
	}
	across := (stack.Cols + chunkW - 1) / chunkW
	down := (stack.Rows + chunkH - 1) / chunkH

	fill := 0.0
	if opts.SampleFormat == SampleFloat {
		fill = math.NaN()
	}
	if opts.NoData != nil {
		fill = *opts.NoData
	}
	planarConfig := 1
	if opts.Planar {
		planarConfig = 2
	}

	var buf bytes.Buffer
	buf.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})

	var offsets, counts []uint32
	for p := 0; p < planes; p++ {
		for d := 0; d < down; d++ {
			for a := 0; a < across; a++ {
				rows := chunkH
				if !tiled && (d+1)*chunkH > stack.Rows {
					rows = stack.Rows - d*chunkH
				}
				rowBytes := chunkW * spc * bps
				chunk := make([]byte, rows*rowBytes)
				for lr := 0; lr < rows; lr++ {
					r := d*chunkH + lr
					for lc := 0; lc < chunkW; lc++ {
						c := a*chunkW + lc
						for s := 0; s < spc; s++ {
							band := s
							if opts.Planar {
								band = p
							}
							v := fill
							if r < stack.Rows && c < stack.Cols {
								if x := stack.Band(band)[r*stack.Cols+c]; !math.IsNaN(x) {
									v = x
								}
							}
							putSample(chunk[lr*rowBytes+(lc*spc+s)*bps:], bo, opts.SampleFormat, opts.Bits, v)
						}
					}
					if opts.Predictor == PredictorHorizontal {
						applyHorizontal(chunk[lr*rowBytes:(lr+1)*rowBytes], bo, bps, spc)
					}
				}
				if opts.Compression == CompressionDeflate {
					var zb bytes.Buffer
					zw := zlib.NewWriter(&zb)
					if _, err := zw.Write(chunk); err != nil {
						return eris.Wrap(err, "raster: deflate chunk")
					}
					if err := zw.Close(); err != nil {
						return eris.Wrap(err, "raster: deflate chunk")
					}
					chunk = zb.Bytes()
				}
				offsets = append(offsets, uint32(buf.Len()))
				counts = append(counts, uint32(len(chunk)))
				buf.Write(chunk)
			}
		}
	}

	shorts := func(vs ...int) []uint16 {
		out := make([]uint16, len(vs))
		for i, v := range vs {
			out[i] = uint16(v)
		}
		return out
	}
	repeat := func(v, n int) []uint16 {
		out := make([]uint16, n)
		for i := range out {
			out[i] = uint16(v)
		}
		return out
	}

	fields := []field{
		{tagImageWidth, dtLong, []uint32{uint32(stack.Cols)}},
		{tagImageLength, dtLong, []uint32{uint32(stack.Rows)}},
		{tagBitsPerSample, dtShort, repeat(opts.Bits, spp)},
		{tagCompression, dtShort, shorts(opts.Compression)},
		{tagPhotometricInterpretation, dtShort, shorts(1)},
		{tagSamplesPerPixel, dtShort, shorts(spp)},
		{tagPlanarConfiguration, dtShort, shorts(planarConfig)},
		{tagSampleFormat, dtShort, repeat(opts.SampleFormat, spp)},
		{tagModelPixelScale, dtDouble, []float64{tr.PixelWidth, -tr.PixelHeight, 0}},
		{tagModelTiepoint, dtDouble, []float64{0, 0, 0, tr.OriginX, tr.OriginY, 0}},
		{tagGeoKeyDirectory, dtShort, geoKeyDirectory(opts.EPSG)},
	}
	if tiled {
		fields = append(fields,
			field{tagTileWidth, dtLong, []uint32{uint32(chunkW)}},
			field{tagTileLength, dtLong, []uint32{uint32(chunkH)}},
			field{tagTileOffsets, dtLong, offsets},
			field{tagTileByteCounts, dtLong, counts},
		)
	} else {
		fields = append(fields,
			field{tagStripOffsets, dtLong, offsets},
			field{tagRowsPerStrip, dtLong, []uint32{uint32(chunkH)}},
			field{tagStripByteCounts, dtLong, counts},
		)
	}
	if opts.Predictor != PredictorNone {
		fields = append(fields, field{tagPredictor, dtShort, shorts(opts.Predictor)})
	}
	if opts.NoData != nil {
		fields = append(fields, field{tagGDALNoData, dtASCII, strconv.FormatFloat(*opts.NoData, 'g', -1, 64)})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].tag < fields[j].tag })

	// Out-of-line values precede the IFD so their offsets are known.
	encoded := make([][]byte, len(fields))
	valueOffsets := make([]uint32, len(fields))
	for i, f := range fields {
		encoded[i] = f.encode(bo)
		if len(encoded[i]) > 4 {
			if buf.Len()%2 == 1 {
				buf.WriteByte(0)
			}
			valueOffsets[i] = uint32(buf.Len())
			buf.Write(encoded[i])
		}
	}
	if buf.Len()%2 == 1 {
		buf.WriteByte(0)
	}
	ifdOffset := uint32(buf.Len())

	var u16 [2]byte
	var u32 [4]byte
	bo.PutUint16(u16[:], uint16(len(fields)))
	buf.Write(u16[:])
	for i, f := range fields {
		bo.PutUint16(u16[:], f.tag)
		buf.Write(u16[:])
		bo.PutUint16(u16[:], f.typ)
		buf.Write(u16[:])
		bo.PutUint32(u32[:], f.count())
		buf.Write(u32[:])
		if len(encoded[i]) > 4 {
			bo.PutUint32(u32[:], valueOffsets[i])
			buf.Write(u32[:])
		} else {
			var inline [4]byte
			copy(inline[:], encoded[i])
			buf.Write(inline[:])
		}
	}
	buf.Write([]byte{0, 0, 0, 0})

	out := buf.Bytes()
	bo.PutUint32(out[4:8], ifdOffset)
	_, err := w.Write(out)
	return eris.Wrap(err, "raster: write geotiff")
}

type field struct {
	tag   uint16
	typ   uint16
	value any
}

func (f field) count() uint32 {
	switch v := f.value.(type) {
	case []uint16:
		return uint32(len(v))
	case []uint32:
		return uint32(len(v))
	case []float64:
		return uint32(len(v))
	case string:
		return uint32(len(v) + 1)
	}
	return 0
}

func (f field) encode(bo binary.ByteOrder) []byte {
	switch v := f.value.(type) {
	case []uint16:
		b := make([]byte, 2*len(v))
		for i, x := range v {
			bo.PutUint16(b[2*i:], x)
		}
		return b
	case []uint32:
		b := make([]byte, 4*len(v))
		for i, x := range v {
			bo.PutUint32(b[4*i:], x)
		}
		return b
	case []float64:
		b := make([]byte, 8*len(v))
		for i, x := range v {
			bo.PutUint64(b[8*i:], math.Float64bits(x))
		}
		return b
	case string:
		return append([]byte(v), 0)
	}
	return nil
}

func geoKeyDirectory(epsg int) []uint16 {
	if epsg == epsgWGS84 {
		return []uint16{
			1, 1, 0, 3,
			keyGTModelType, 0, 1, modelTypeGeographic,
			keyGTRasterType, 0, 1, rasterPixelIsArea,
			keyGeographicType, 0, 1, epsgWGS84,
		}
	}
	return []uint16{
		1, 1, 0, 3,
		keyGTModelType, 0, 1, 1,
		keyGTRasterType, 0, 1, rasterPixelIsArea,
		keyProjectedCSType, 0, 1, uint16(epsg),
	}
}

func putSample(b []byte, bo binary.ByteOrder, format, bits int, v float64) {
	switch format {
	case SampleFloat:
		bo.PutUint32(b, math.Float32bits(float32(v)))
	case SampleInt:
		x := int64(math.Round(v))
		switch bits {
		case 8:
			b[0] = byte(int8(x))
		case 16:
			bo.PutUint16(b, uint16(int16(x)))
		case 32:
			bo.PutUint32(b, uint32(int32(x)))
		}
	default:
		x := uint64(math.Max(0, math.Round(v)))
		switch bits {
		case 8:
			b[0] = byte(x)
		case 16:
			bo.PutUint16(b, uint16(x))
		case 32:
			bo.PutUint32(b, uint32(x))
		}
	}
}

// applyHorizontal applies TIFF predictor 2 to one row, last sample first.
func applyHorizontal(row []byte, bo binary.ByteOrder, bps, spc int) {
	n := len(row) / bps
	switch bps {
	case 1:
		for i := n - 1; i >= spc; i-- {
			row[i] -= row[i-spc]
		}
	case 2:
		for i := n - 1; i >= spc; i-- {
			bo.PutUint16(row[2*i:], bo.Uint16(row[2*i:])-bo.Uint16(row[2*(i-spc):]))
		}
	case 4:
		for i := n - 1; i >= spc; i-- {
			bo.PutUint32(row[4*i:], bo.Uint32(row[4*i:])-bo.Uint32(row[4*(i-spc):]))
		}
	}
}
