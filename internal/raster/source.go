// Package raster reads windowed multi-band grids from GeoTIFF files, PostGIS
// rasters and memory, and writes single- or multi-band GeoTIFFs.
package raster

import (
	"context"

	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/model"
)

// Info describes a raster dataset.
type Info struct {
	Cols      int           `json:"cols"`
	Rows      int           `json:"rows"`
	Bands     int           `json:"bands"`
	Transform geo.Transform `json:"transform"`
	CRS       string        `json:"crs,omitempty"`
}

// CRSWGS84 is the coordinate system every source must be stored in; bounding
// boxes are lon/lat degrees and are never reprojected.
const CRSWGS84 = "EPSG:4326"

// checkCRS rejects a raster declared in another CRS. An undeclared CRS is
// read as lon/lat.
func checkCRS(crs, raster string) error {
	if crs == "" || crs == CRSWGS84 {
		return nil
	}
	return model.NewError(model.KindInvalidInput, "raster CRS must be "+CRSWGS84,
		"crs", crs, "raster", raster)
}

// Extent returns the geographic extent of the dataset.
func (i Info) Extent() model.BoundingBox {
	return i.Transform.Extent(i.Cols, i.Rows)
}

// Window is the result of a windowed read: the band stack plus the pixel
// window and transform it was read with.
type Window struct {
	Pixels    geo.Window        `json:"pixels"`
	Bounds    model.BoundingBox `json:"bounds"`
	Transform geo.Transform     `json:"transform"`
	Data      *model.Stack      `json:"-"`
}

// Source is a multi-band raster that supports windowed reads. Implementations
// are safe for concurrent reads.
type Source interface {
	Info() Info
	// ReadWindow reads every band over the pixels covered by bbox. Only the
	// window is read; a bbox outside the raster fails with DataUnavailable.
	ReadWindow(ctx context.Context, bbox model.BoundingBox) (*Window, error)
	Close() error
}

// PlanWindow resolves bbox against info into a pixel window.
func PlanWindow(info Info, bbox model.BoundingBox) (geo.Window, error) {
	return info.Transform.WindowFromBounds(bbox, info.Cols, info.Rows)
}

func newWindow(info Info, w geo.Window, data *model.Stack) *Window {
	return &Window{
		Pixels:    w,
		Bounds:    info.Transform.WindowBounds(w),
		Transform: info.Transform.WindowTransform(w),
		Data:      data,
	}
}
