package raster

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/image/tiff/lzw"

	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/model"
)

// GeoTIFF is a windowed reader over a classic (non-Big) GeoTIFF file. Only
// the chunks (strips or tiles) intersecting a requested window are read and
// decoded. It is safe for concurrent use.
type GeoTIFF struct {
	path string
	r    io.ReaderAt
	c    io.Closer
	bo   binary.ByteOrder
	info Info

	bits         int
	sampleFormat int
	compression  int
	predictor    int
	planar       bool
	chunkW       int
	chunkH       int
	tiled        bool
	offsets      []uint64
	counts       []uint64
	nodata       float64
	hasNodata    bool
}

// OpenGeoTIFF opens the GeoTIFF at path.
func OpenGeoTIFF(path string) (*GeoTIFF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	g, err := newGeoTIFF(f)
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "raster: parse %s", path)
	}
	g.path = path
	g.c = f
	zap.L().Debug("raster: opened geotiff",
		zap.String("path", path),
		zap.Int("cols", g.info.Cols),
		zap.Int("rows", g.info.Rows),
		zap.Int("bands", g.info.Bands),
		zap.String("crs", g.info.CRS),
	)
	return g, nil
}

// NewGeoTIFFReader parses a GeoTIFF held by r.
func NewGeoTIFFReader(r io.ReaderAt) (*GeoTIFF, error) {
	return newGeoTIFF(r)
}

func newGeoTIFF(r io.ReaderAt) (*GeoTIFF, error) {
	bo, ifd, err := readIFD(r)
	if err != nil {
		return nil, err
	}
	g := &GeoTIFF{r: r, bo: bo}

	width := firstUint(bo, ifd, tagImageWidth, 0)
	height := firstUint(bo, ifd, tagImageLength, 0)
	if width == 0 || height == 0 {
		return nil, eris.New("raster: missing image dimensions")
	}
	spp := firstUint(bo, ifd, tagSamplesPerPixel, 1)
	g.bits = firstUint(bo, ifd, tagBitsPerSample, 1)
	g.sampleFormat = firstUint(bo, ifd, tagSampleFormat, SampleUint)
	g.compression = firstUint(bo, ifd, tagCompression, CompressionNone)
	g.predictor = firstUint(bo, ifd, tagPredictor, PredictorNone)
	g.planar = firstUint(bo, ifd, tagPlanarConfiguration, 1) == 2

	if err := g.checkSupported(); err != nil {
		return nil, err
	}

	if _, ok := ifd[tagTileWidth]; ok {
		g.tiled = true
		g.chunkW = firstUint(bo, ifd, tagTileWidth, 0)
		g.chunkH = firstUint(bo, ifd, tagTileLength, 0)
		g.offsets = ifd[tagTileOffsets].uints(bo)
		g.counts = ifd[tagTileByteCounts].uints(bo)
	} else {
		g.chunkW = width
		g.chunkH = firstUint(bo, ifd, tagRowsPerStrip, height)
		if g.chunkH > height {
			g.chunkH = height
		}
		g.offsets = ifd[tagStripOffsets].uints(bo)
		g.counts = ifd[tagStripByteCounts].uints(bo)
	}
	if g.chunkW <= 0 || g.chunkH <= 0 {
		return nil, eris.New("raster: invalid strip or tile size")
	}

	g.info = Info{Cols: width, Rows: height, Bands: spp}
	planes := 1
	if g.planar {
		planes = spp
	}
	want := planes * g.chunksAcross() * g.chunksDown()
	if len(g.offsets) != want || len(g.counts) != want {
		return nil, eris.Errorf("raster: expected %d chunks, found %d offsets and %d byte counts",
			want, len(g.offsets), len(g.counts))
	}

	tr, crs, err := geoReference(bo, ifd)
	if err != nil {
		return nil, err
	}
	if err := checkCRS(crs, "geotiff"); err != nil {
		return nil, err
	}
	g.info.Transform = tr
	g.info.CRS = crs

	if e, ok := ifd[tagGDALNoData]; ok {
		s := strings.TrimSpace(e.ascii())
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: parse GDAL_NODATA %q", s)
		}
		g.nodata = v
		g.hasNodata = true
	}
	return g, nil
}

func (g *GeoTIFF) checkSupported() error {
	switch g.compression {
	case CompressionNone, CompressionLZW, CompressionDeflate, compressionDeflateOld:
	default:
		return eris.Errorf("raster: unsupported compression %d", g.compression)
	}
	switch g.predictor {
	case PredictorNone, PredictorFloatingPoint:
	case PredictorHorizontal:
		if g.sampleFormat == SampleFloat {
			return eris.New("raster: horizontal predictor on float samples is not supported")
		}
	default:
		return eris.Errorf("raster: unsupported predictor %d", g.predictor)
	}
	switch {
	case g.sampleFormat == SampleFloat && (g.bits == 32 || g.bits == 64):
	case (g.sampleFormat == SampleUint || g.sampleFormat == SampleInt) &&
		(g.bits == 8 || g.bits == 16 || g.bits == 32):
	default:
		return eris.Errorf("raster: unsupported sample format %d with %d bits", g.sampleFormat, g.bits)
	}
	return nil
}

// geoReference derives the north-up transform and CRS from the GeoTIFF tags.
func geoReference(bo binary.ByteOrder, ifd map[uint16]ifdEntry) (geo.Transform, string, error) {
	var tr geo.Transform
	if e, ok := ifd[tagModelTransformation]; ok {
		m := e.floats(bo)
		if len(m) < 16 {
			return tr, "", eris.New("raster: short ModelTransformation tag")
		}
		if m[1] != 0 || m[4] != 0 {
			return tr, "", eris.New("raster: rotated rasters are not supported")
		}
		tr = geo.Transform{OriginX: m[3], OriginY: m[7], PixelWidth: m[0], PixelHeight: m[5]}
	} else {
		scale, okS := ifd[tagModelPixelScale]
		tie, okT := ifd[tagModelTiepoint]
		if !okS || !okT {
			return tr, "", eris.New("raster: file is not georeferenced")
		}
		s := scale.floats(bo)
		tp := tie.floats(bo)
		if len(s) < 2 || len(tp) < 6 {
			return tr, "", eris.New("raster: short PixelScale or Tiepoint tag")
		}
		tr = geo.Transform{
			OriginX:     tp[3] - tp[0]*s[0],
			OriginY:     tp[4] + tp[1]*s[1],
			PixelWidth:  s[0],
			PixelHeight: -s[1],
		}
	}

	keys := geoKeys(bo, ifd)
	if keys[keyGTRasterType] == rasterPixelIsPoint {
		tr.OriginX -= tr.PixelWidth / 2
		tr.OriginY -= tr.PixelHeight / 2
	}
	crs := ""
	if code, ok := keys[keyProjectedCSType]; ok && code != userDefinedGeoKeyValue {
		crs = fmt.Sprintf("EPSG:%d", code)
	} else if code, ok := keys[keyGeographicType]; ok && code != userDefinedGeoKeyValue {
		crs = fmt.Sprintf("EPSG:%d", code)
	}
	if !tr.Valid() {
		return tr, "", eris.Errorf("raster: unsupported geotransform %+v", tr)
	}
	return tr, crs, nil
}

// geoKeys returns the short-valued keys of the GeoKeyDirectory.
func geoKeys(bo binary.ByteOrder, ifd map[uint16]ifdEntry) map[int]int {
	out := make(map[int]int)
	e, ok := ifd[tagGeoKeyDirectory]
	if !ok {
		return out
	}
	d := e.uints(bo)
	if len(d) < 4 {
		return out
	}
	n := int(d[3])
	for i := 0; i < n && 4+4*i+3 < len(d); i++ {
		k := d[4+4*i:]
		if k[1] == 0 {
			out[int(k[0])] = int(k[3])
		}
	}
	return out
}

func firstUint(bo binary.ByteOrder, ifd map[uint16]ifdEntry, tag uint16, def int) int {
	e, ok := ifd[tag]
	if !ok {
		return def
	}
	v := e.uints(bo)
	if len(v) == 0 {
		return def
	}
	return int(v[0])
}

// Info implements Source.
func (g *GeoTIFF) Info() Info { return g.info }

// Close implements Source.
func (g *GeoTIFF) Close() error {
	if g.c == nil {
		return nil
	}
	return g.c.Close()
}

func (g *GeoTIFF) chunksAcross() int { return (g.info.Cols + g.chunkW - 1) / g.chunkW }
func (g *GeoTIFF) chunksDown() int   { return (g.info.Rows + g.chunkH - 1) / g.chunkH }

// ReadWindow implements Source.
func (g *GeoTIFF) ReadWindow(ctx context.Context, bbox model.BoundingBox) (*Window, error) {
	w, err := PlanWindow(g.info, bbox)
	if err != nil {
		return nil, err
	}
	out := model.NewStack(g.info.Bands, w.Height, w.Width)

	planes, spc := 1, g.info.Bands
	if g.planar {
		planes, spc = g.info.Bands, 1
	}
	across, down := g.chunksAcross(), g.chunksDown()
	d0, d1 := w.RowOff/g.chunkH, (w.RowOff+w.Height-1)/g.chunkH
	a0, a1 := w.ColOff/g.chunkW, (w.ColOff+w.Width-1)/g.chunkW
	bps := g.bits / 8
	plane := w.Height * w.Width

	for p := 0; p < planes; p++ {
		for d := d0; d <= d1; d++ {
			for a := a0; a <= a1; a++ {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				idx := p*across*down + d*across + a
				rows := g.chunkH
				if !g.tiled && (d+1)*g.chunkH > g.info.Rows {
					rows = g.info.Rows - d*g.chunkH
				}
				buf, err := g.readChunk(idx, rows, spc)
				if err != nil {
					return nil, err
				}

				r0 := max(w.RowOff, d*g.chunkH)
				r1 := min(w.RowOff+w.Height, d*g.chunkH+rows)
				c0 := max(w.ColOff, a*g.chunkW)
				c1 := min(w.ColOff+w.Width, (a+1)*g.chunkW)
				for r := r0; r < r1; r++ {
					lr := r - d*g.chunkH
					for c := c0; c < c1; c++ {
						lc := c - a*g.chunkW
						base := (lr*g.chunkW + lc) * spc
						dst := (r-w.RowOff)*w.Width + (c - w.ColOff)
						for s := 0; s < spc; s++ {
							band := s
							if g.planar {
								band = p
							}
							out.Data[band*plane+dst] = g.sample(buf[(base+s)*bps:])
						}
					}
				}
			}
		}
	}
	return newWindow(g.info, w, out), nil
}

// readChunk reads, decompresses and un-predicts one strip or tile.
func (g *GeoTIFF) readChunk(idx, rows, spc int) ([]byte, error) {
	raw := make([]byte, g.counts[idx])
	if _, err := g.r.ReadAt(raw, int64(g.offsets[idx])); err != nil && err != io.EOF {
		return nil, eris.Wrapf(err, "raster: read chunk %d", idx)
	}

	bps := g.bits / 8
	rowBytes := g.chunkW * spc * bps
	want := rows * rowBytes

	var data []byte
	switch g.compression {
	case CompressionNone:
		data = raw
	case CompressionDeflate, compressionDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, eris.Wrapf(err, "raster: inflate chunk %d", idx)
		}
		data, err = io.ReadAll(zr)
		zr.Close() //nolint:errcheck
		if err != nil {
			return nil, eris.Wrapf(err, "raster: inflate chunk %d", idx)
		}
	case CompressionLZW:
		lr := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		var err error
		data, err = io.ReadAll(lr)
		lr.Close() //nolint:errcheck
		if err != nil {
			return nil, eris.Wrapf(err, "raster: lzw decode chunk %d", idx)
		}
	}
	if len(data) < want {
		return nil, eris.Errorf("raster: chunk %d holds %d bytes, want %d", idx, len(data), want)
	}
	data = data[:want]

	switch g.predictor {
	case PredictorHorizontal:
		for r := 0; r < rows; r++ {
			undoHorizontal(data[r*rowBytes:(r+1)*rowBytes], g.bo, bps, spc)
		}
	case PredictorFloatingPoint:
		tmp := make([]byte, rowBytes)
		for r := 0; r < rows; r++ {
			undoFloatingPoint(data[r*rowBytes:(r+1)*rowBytes], tmp, g.bo, bps, spc)
		}
	}
	return data, nil
}

// undoHorizontal reverses TIFF predictor 2 on one row of integer samples.
func undoHorizontal(row []byte, bo binary.ByteOrder, bps, spc int) {
	n := len(row) / bps
	switch bps {
	case 1:
		for i := spc; i < n; i++ {
			row[i] += row[i-spc]
		}
	case 2:
		for i := spc; i < n; i++ {
			bo.PutUint16(row[2*i:], bo.Uint16(row[2*i:])+bo.Uint16(row[2*(i-spc):]))
		}
	case 4:
		for i := spc; i < n; i++ {
			bo.PutUint32(row[4*i:], bo.Uint32(row[4*i:])+bo.Uint32(row[4*(i-spc):]))
		}
	}
}

// undoFloatingPoint reverses TIFF predictor 3: byte-wise differencing over the
// row followed by de-interleaving of the most-significant-first byte planes.
// The samples are rewritten in the file's byte order.
func undoFloatingPoint(row, tmp []byte, bo binary.ByteOrder, bps, spc int) {
	for i := spc; i < len(row); i++ {
		row[i] += row[i-spc]
	}
	copy(tmp, row)
	n := len(row) / bps
	little := bo == binary.LittleEndian
	for i := 0; i < n; i++ {
		for b := 0; b < bps; b++ {
			v := tmp[b*n+i]
			if little {
				row[i*bps+bps-1-b] = v
			} else {
				row[i*bps+b] = v
			}
		}
	}
}

// sample decodes the sample at the start of b, mapping nodata to NaN.
func (g *GeoTIFF) sample(b []byte) float64 {
	var v float64
	switch g.sampleFormat {
	case SampleFloat:
		if g.bits == 32 {
			f := math.Float32frombits(g.bo.Uint32(b))
			if g.hasNodata && f == float32(g.nodata) {
				return math.NaN()
			}
			v = float64(f)
		} else {
			v = math.Float64frombits(g.bo.Uint64(b))
		}
	case SampleInt:
		switch g.bits {
		case 8:
			v = float64(int8(b[0]))
		case 16:
			v = float64(int16(g.bo.Uint16(b)))
		case 32:
			v = float64(int32(g.bo.Uint32(b)))
		}
	default:
		switch g.bits {
		case 8:
			v = float64(b[0])
		case 16:
			v = float64(g.bo.Uint16(b))
		case 32:
			v = float64(g.bo.Uint32(b))
		}
	}
	if g.hasNodata && v == g.nodata {
		return math.NaN()
	}
	return v
}
