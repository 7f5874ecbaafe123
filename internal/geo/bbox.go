package geo

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/mayuresh141/urbanhcf/internal/model"
)

// KMPerDegree is the fixed kilometres-per-degree-of-latitude approximation.
const KMPerDegree = 111.0

// DefaultBufferKM is the half-width of the analysis box around a point.
const DefaultBufferKM = 5.0

// DefaultMaxAbsLatitude bounds the latitudes accepted by BBoxBuilder. The
// longitude buffer grows as 1/cos(lat) and diverges at the poles.
const DefaultMaxAbsLatitude = 85.0

// BBoxBuilder converts a point and a buffer radius into a bounding box.
type BBoxBuilder struct {
	MaxAbsLatitude float64
}

// NewBBoxBuilder returns a builder that rejects points poleward of maxAbsLat.
// A non-positive maxAbsLat selects DefaultMaxAbsLatitude.
func NewBBoxBuilder(maxAbsLat float64) *BBoxBuilder {
	if maxAbsLat <= 0 || maxAbsLat >= 90 {
		maxAbsLat = DefaultMaxAbsLatitude
	}
	return &BBoxBuilder{MaxAbsLatitude: maxAbsLat}
}

// BBox returns the box centred on (lat, lon) with a latitude half-width of
// bufferKM/111 degrees and a longitude half-width of bufferKM/(111·cos(lat))
// degrees.
func (b *BBoxBuilder) BBox(lat, lon, bufferKM float64) (model.BoundingBox, error) {
	if math.IsNaN(bufferKM) || math.IsInf(bufferKM, 0) || bufferKM <= 0 {
		return model.BoundingBox{}, model.NewError(model.KindInvalidInput,
			"buffer_km must be a positive finite number", "buffer_km", bufferKM)
	}
	if err := (model.GeoPoint{Lat: lat, Lon: lon}).Validate(); err != nil {
		return model.BoundingBox{}, err
	}
	if math.Abs(lat) > b.MaxAbsLatitude {
		return model.BoundingBox{}, model.NewError(model.KindInvalidInput,
			"latitude too close to the pole", "lat", lat, "max_abs_latitude", b.MaxAbsLatitude)
	}

	latBuffer := bufferKM / KMPerDegree
	lonBuffer := bufferKM / (KMPerDegree * math.Cos(lat*math.Pi/180))

	box := model.BoundingBox{
		MinLon: lon - lonBuffer,
		MinLat: lat - latBuffer,
		MaxLon: lon + lonBuffer,
		MaxLat: lat + latBuffer,
	}
	if !finite(box.MinLon, box.MaxLon, box.MinLat, box.MaxLat) || !box.Valid() {
		return model.BoundingBox{}, model.NewError(model.KindInvalidInput,
			"buffer produces a degenerate bounding box", "lat", lat, "lon", lon, "buffer_km", bufferKM)
	}
	if box.MinLon < -180 || box.MaxLon > 180 || box.MinLat < -90 || box.MaxLat > 90 {
		return model.BoundingBox{}, model.NewError(model.KindInvalidInput,
			"bounding box crosses the antimeridian or a pole", "bbox", box)
	}
	return box, nil
}

// BBoxFromPoint builds a box with the default latitude limit.
func BBoxFromPoint(lat, lon, bufferKM float64) (model.BoundingBox, error) {
	return NewBBoxBuilder(DefaultMaxAbsLatitude).BBox(lat, lon, bufferKM)
}

// Bounds converts a bounding box to go-geom bounds in lon/lat order.
func Bounds(b model.BoundingBox) *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// FromBounds converts go-geom XY bounds to a bounding box.
func FromBounds(b *geom.Bounds) model.BoundingBox {
	return model.BoundingBox{MinLon: b.Min(0), MinLat: b.Min(1), MaxLon: b.Max(0), MaxLat: b.Max(1)}
}

// Polygon returns the box as a closed, counter-clockwise EPSG:4326 polygon.
func Polygon(b model.BoundingBox) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		b.MinLon, b.MinLat,
		b.MaxLon, b.MinLat,
		b.MaxLon, b.MaxLat,
		b.MinLon, b.MaxLat,
		b.MinLon, b.MinLat,
	}, []int{10}).SetSRID(4326)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
