// Package export renders stored analysis results as GeoJSON, ESRI
// shapefiles, XLSX workbooks and GeoTIFFs.
package export

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/model"
)

// Layer names, also used as GeoJSON property and sheet names.
const (
	LayerLST               = "lst"
	LayerUHI               = "uhi"
	LayerCounterfactualUHI = "counterfactual_uhi"
	LayerDeltaUHI          = "delta_uhi"
)

// AllLayers lists every layer in output order.
var AllLayers = []string{LayerLST, LayerUHI, LayerCounterfactualUHI, LayerDeltaUHI}

// layer is one named grid of a result. Grid is nil for layers the result
// does not carry.
type layer struct {
	name string
	grid *model.Grid
}

func layers(r *model.AnalysisResult) []layer {
	return []layer{
		{LayerLST, r.LST},
		{LayerUHI, r.UHI},
		{LayerCounterfactualUHI, r.CounterfactualUHI},
		{LayerDeltaUHI, r.DeltaUHI},
	}
}

// Layer returns the named grid of r.
func Layer(r *model.AnalysisResult, name string) (*model.Grid, error) {
	for _, l := range layers(r) {
		if l.name != name {
			continue
		}
		if l.grid == nil {
			return nil, model.NewError(model.KindDataUnavailable, "result has no such layer", "layer", name)
		}
		return l.grid, nil
	}
	return nil, model.NewError(model.KindInvalidInput, "unknown layer", "layer", name)
}

// grid is the pixel geometry of a result: the bbox split evenly into the
// grid's rows and columns, row 0 at the north edge.
type grid struct {
	shape     model.Shape
	transform geo.Transform
}

func gridOf(r *model.AnalysisResult) (grid, error) {
	if r == nil || r.UHI == nil {
		return grid{}, eris.New("export: result has no UHI grid")
	}
	shape := r.UHI.Shape()
	if shape.Rows <= 0 || shape.Cols <= 0 {
		return grid{}, eris.New("export: result grid is empty")
	}
	for _, l := range layers(r) {
		if l.grid != nil && l.grid.Shape() != shape {
			return grid{}, model.NewError(model.KindShapeMismatch, "result layers differ in shape",
				"layer", l.name, "shape", l.grid.Shape(), "uhi", shape)
		}
	}
	if !r.BBox.Valid() {
		return grid{}, model.NewError(model.KindInvalidInput, "result bounding box is empty", "bbox", r.BBox)
	}
	return grid{shape: shape, transform: geo.TransformFromBounds(r.BBox, shape.Cols, shape.Rows)}, nil
}

// cell returns the extent of pixel (row, col).
func (g grid) cell(row, col int) model.BoundingBox {
	return g.transform.WindowBounds(geo.Window{ColOff: col, RowOff: row, Width: 1, Height: 1})
}

// value returns the pixel of l, or nil when absent or NaN.
func (l layer) value(row, col int) *float64 {
	if l.grid == nil {
		return nil
	}
	v := l.grid.At(row, col)
	if isMissing(v) {
		return nil
	}
	return &v
}

func isMissing(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }
