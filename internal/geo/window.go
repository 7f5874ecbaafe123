package geo

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/mayuresh141/urbanhcf/internal/model"
)

// windowEpsilon absorbs floating error when snapping fractional pixel offsets
// to whole pixels.
const windowEpsilon = 1e-9

// Transform is a north-up affine geotransform: pixel (col, row) has its
// upper-left corner at (OriginX + col*PixelWidth, OriginY + row*PixelHeight).
// PixelHeight is negative for north-up rasters.
type Transform struct {
	OriginX     float64 `json:"origin_x"`
	OriginY     float64 `json:"origin_y"`
	PixelWidth  float64 `json:"pixel_width"`
	PixelHeight float64 `json:"pixel_height"`
}

// TransformFromBounds returns the transform that maps a cols×rows grid onto b.
func TransformFromBounds(b model.BoundingBox, cols, rows int) Transform {
	return Transform{
		OriginX:     b.MinLon,
		OriginY:     b.MaxLat,
		PixelWidth:  (b.MaxLon - b.MinLon) / float64(cols),
		PixelHeight: -(b.MaxLat - b.MinLat) / float64(rows),
	}
}

// Valid reports whether the transform is usable for window arithmetic.
func (t Transform) Valid() bool {
	return finite(t.OriginX, t.OriginY, t.PixelWidth, t.PixelHeight) &&
		t.PixelWidth > 0 && t.PixelHeight < 0
}

// Window is a pixel-space rectangle of a raster.
type Window struct {
	ColOff int `json:"col_off"`
	RowOff int `json:"row_off"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Shape returns the (rows, cols) extent of the window.
func (w Window) Shape() model.Shape { return model.Shape{Rows: w.Height, Cols: w.Width} }

// Empty reports whether the window covers no pixels.
func (w Window) Empty() bool { return w.Width <= 0 || w.Height <= 0 }

// Extent returns the geographic extent of a cols×rows raster under t.
func (t Transform) Extent(cols, rows int) model.BoundingBox {
	return t.WindowBounds(Window{Width: cols, Height: rows})
}

// WindowBounds returns the geographic extent covered by w.
func (t Transform) WindowBounds(w Window) model.BoundingBox {
	return model.BoundingBox{
		MinLon: t.OriginX + float64(w.ColOff)*t.PixelWidth,
		MaxLon: t.OriginX + float64(w.ColOff+w.Width)*t.PixelWidth,
		MaxLat: t.OriginY + float64(w.RowOff)*t.PixelHeight,
		MinLat: t.OriginY + float64(w.RowOff+w.Height)*t.PixelHeight,
	}
}

// WindowTransform returns the transform of the sub-grid selected by w.
func (t Transform) WindowTransform(w Window) Transform {
	return Transform{
		OriginX:     t.OriginX + float64(w.ColOff)*t.PixelWidth,
		OriginY:     t.OriginY + float64(w.RowOff)*t.PixelHeight,
		PixelWidth:  t.PixelWidth,
		PixelHeight: t.PixelHeight,
	}
}

// WindowFromBounds returns the pixel window of a cols×rows raster that covers
// bbox. Every pixel the box touches is included, and the window is clipped to
// the raster. A box that does not intersect the raster fails with
// DataUnavailable.
func (t Transform) WindowFromBounds(bbox model.BoundingBox, cols, rows int) (Window, error) {
	if !t.Valid() {
		return Window{}, model.NewError(model.KindDataUnavailable,
			"raster has no usable north-up geotransform", "transform", t)
	}
	if !bbox.Valid() {
		return Window{}, model.NewError(model.KindInvalidInput, "bounding box is empty", "bbox", bbox)
	}

	extent := t.Extent(cols, rows)
	if !overlaps(Bounds(extent), Bounds(bbox)) {
		return Window{}, model.NewError(model.KindDataUnavailable,
			"bounding box is outside the raster extent", "bbox", bbox, "extent", extent)
	}

	colStart := math.Floor((bbox.MinLon-t.OriginX)/t.PixelWidth + windowEpsilon)
	colEnd := math.Ceil((bbox.MaxLon-t.OriginX)/t.PixelWidth - windowEpsilon)
	rowStart := math.Floor((bbox.MaxLat-t.OriginY)/t.PixelHeight + windowEpsilon)
	rowEnd := math.Ceil((bbox.MinLat-t.OriginY)/t.PixelHeight - windowEpsilon)

	c0 := clamp(colStart, 0, cols)
	c1 := clamp(colEnd, 0, cols)
	r0 := clamp(rowStart, 0, rows)
	r1 := clamp(rowEnd, 0, rows)

	w := Window{ColOff: c0, RowOff: r0, Width: c1 - c0, Height: r1 - r0}
	if w.Empty() {
		return Window{}, model.NewError(model.KindDataUnavailable,
			"bounding box covers no whole pixel of the raster", "bbox", bbox, "extent", extent)
	}
	return w, nil
}

// overlaps reports a strict (positive-area) intersection of two bounds.
func overlaps(a, b *geom.Bounds) bool {
	if !a.Overlaps(geom.XY, b) {
		return false
	}
	return a.Min(0) < b.Max(0) && b.Min(0) < a.Max(0) &&
		a.Min(1) < b.Max(1) && b.Min(1) < a.Max(1)
}

func clamp(v float64, lo, hi int) int {
	if v < float64(lo) {
		return lo
	}
	if v > float64(hi) {
		return hi
	}
	return int(v)
}
