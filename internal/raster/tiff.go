package raster

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/rotisserie/eris"
)

// TIFF tags used by the GeoTIFF reader and writer.
const (
	tagImageWidth                = 256
	tagImageLength               = 257
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagStripOffsets              = 273
	tagSamplesPerPixel           = 277
	tagRowsPerStrip              = 278
	tagStripByteCounts           = 279
	tagPlanarConfiguration       = 284
	tagPredictor                 = 317
	tagTileWidth                 = 322
	tagTileLength                = 323
	tagTileOffsets               = 324
	tagTileByteCounts            = 325
	tagSampleFormat              = 339
	tagModelPixelScale           = 33550
	tagModelTiepoint             = 33922
	tagModelTransformation       = 34264
	tagGeoKeyDirectory           = 34735
	tagGDALNoData                = 42113
)

// TIFF field types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndefined = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
)

var typeSizes = map[uint16]int{
	dtByte: 1, dtASCII: 1, dtShort: 2, dtLong: 4, dtRational: 8,
	dtSByte: 1, dtUndefined: 1, dtSShort: 2, dtSLong: 4, dtSRational: 8,
	dtFloat: 4, dtDouble: 8,
}

// Compression schemes.
const (
	CompressionNone        = 1
	CompressionLZW         = 5
	CompressionDeflate     = 8
	compressionDeflateOld  = 32946
	PredictorNone          = 1
	PredictorHorizontal    = 2
	PredictorFloatingPoint = 3
)

// Sample formats.
const (
	SampleUint  = 1
	SampleInt   = 2
	SampleFloat = 3
)

// GeoKeys.
const (
	keyGTModelType         = 1024
	keyGTRasterType        = 1025
	keyGeographicType      = 2048
	keyProjectedCSType     = 3072
	rasterPixelIsArea      = 1
	rasterPixelIsPoint     = 2
	modelTypeGeographic    = 2
	epsgWGS84              = 4326
	userDefinedGeoKeyValue = 32767
)

// ifdEntry is one decoded IFD field.
type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	raw   []byte
}

// readIFD decodes the first image file directory of a classic TIFF.
func readIFD(r io.ReaderAt) (binary.ByteOrder, map[uint16]ifdEntry, error) {
	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, nil, eris.Wrap(err, "raster: read tiff header")
	}
	var bo binary.ByteOrder
	switch string(hdr[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, nil, eris.New("raster: not a tiff file")
	}
	switch bo.Uint16(hdr[2:4]) {
	case 42:
	case 43:
		return nil, nil, eris.New("raster: BigTIFF is not supported")
	default:
		return nil, nil, eris.New("raster: bad tiff magic number")
	}

	off := int64(bo.Uint32(hdr[4:8]))
	var cnt [2]byte
	if _, err := r.ReadAt(cnt[:], off); err != nil {
		return nil, nil, eris.Wrap(err, "raster: read ifd count")
	}
	n := int(bo.Uint16(cnt[:]))
	buf := make([]byte, 12*n)
	if _, err := r.ReadAt(buf, off+2); err != nil {
		return nil, nil, eris.Wrap(err, "raster: read ifd entries")
	}

	entries := make(map[uint16]ifdEntry, n)
	for i := 0; i < n; i++ {
		e := buf[i*12 : (i+1)*12]
		ent := ifdEntry{tag: bo.Uint16(e[0:2]), typ: bo.Uint16(e[2:4]), count: bo.Uint32(e[4:8])}
		size, ok := typeSizes[ent.typ]
		if !ok {
			continue
		}
		total := int64(size) * int64(ent.count)
		if total <= 4 {
			ent.raw = append([]byte(nil), e[8:8+total]...)
		} else {
			ent.raw = make([]byte, total)
			if _, err := r.ReadAt(ent.raw, int64(bo.Uint32(e[8:12]))); err != nil {
				return nil, nil, eris.Wrapf(err, "raster: read tag %d", ent.tag)
			}
		}
		entries[ent.tag] = ent
	}
	return bo, entries, nil
}

// uints decodes an integer-typed field.
func (e ifdEntry) uints(bo binary.ByteOrder) []uint64 {
	out := make([]uint64, 0, e.count)
	for i := 0; i < int(e.count); i++ {
		switch e.typ {
		case dtByte, dtUndefined:
			out = append(out, uint64(e.raw[i]))
		case dtShort:
			out = append(out, uint64(bo.Uint16(e.raw[2*i:])))
		case dtLong:
			out = append(out, uint64(bo.Uint32(e.raw[4*i:])))
		default:
			return nil
		}
	}
	return out
}

// floats decodes a floating point field.
func (e ifdEntry) floats(bo binary.ByteOrder) []float64 {
	out := make([]float64, 0, e.count)
	for i := 0; i < int(e.count); i++ {
		switch e.typ {
		case dtDouble:
			out = append(out, math.Float64frombits(bo.Uint64(e.raw[8*i:])))
		case dtFloat:
			out = append(out, float64(math.Float32frombits(bo.Uint32(e.raw[4*i:]))))
		default:
			return nil
		}
	}
	return out
}

func (e ifdEntry) ascii() string {
	b := e.raw
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}
