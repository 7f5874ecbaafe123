package export

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/model"
)

// FeatureCollection renders r as one polygon feature per pixel carrying
// every layer's value. Absent or NaN values are null.
func FeatureCollection(r *model.AnalysisResult) (*geojson.FeatureCollection, error) {
	g, err := gridOf(r)
	if err != nil {
		return nil, err
	}
	ls := layers(r)

	fc := &geojson.FeatureCollection{
		BBox:     geo.Bounds(r.BBox),
		Features: make([]*geojson.Feature, 0, g.shape.Rows*g.shape.Cols),
	}
	for row := 0; row < g.shape.Rows; row++ {
		for col := 0; col < g.shape.Cols; col++ {
			props := make(map[string]interface{}, len(ls)+2)
			props["row"] = row
			props["col"] = col
			for _, l := range ls {
				if v := l.value(row, col); v != nil {
					props[l.name] = *v
				} else {
					props[l.name] = nil
				}
			}
			fc.Features = append(fc.Features, &geojson.Feature{
				Geometry:   geo.Polygon(g.cell(row, col)),
				Properties: props,
			})
		}
	}
	return fc, nil
}

// WriteGeoJSON encodes the FeatureCollection of r to w.
func WriteGeoJSON(w io.Writer, r *model.AnalysisResult) error {
	fc, err := FeatureCollection(r)
	if err != nil {
		return err
	}
	b, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	_, err = w.Write(b)
	return eris.Wrap(err, "export: write geojson")
}
