package export

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/mayuresh141/urbanhcf/internal/model"
)

// wgs84PRJ is the ESRI WKT of EPSG:4326.
const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// DBF field names are limited to 10 characters.
var dbfNames = map[string]string{
	LayerLST:               "lst",
	LayerUHI:               "uhi",
	LayerCounterfactualUHI: "cf_uhi",
	LayerDeltaUHI:          "delta_uhi",
}

// WriteShapefile writes r as a polygon shapefile at path (.shp, .shx, .dbf
// and .prj side by side). Each pixel is one record with a numeric attribute
// per layer; absent or NaN values are left blank.
func WriteShapefile(path string, r *model.AnalysisResult) error {
	g, err := gridOf(r)
	if err != nil {
		return err
	}
	path = strings.TrimSuffix(path, filepath.Ext(path)) + ".shp"

	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}

	ls := layers(r)
	fields := []shp.Field{shp.NumberField("row", 6), shp.NumberField("col", 6)}
	for _, l := range ls {
		fields = append(fields, shp.FloatField(dbfNames[l.name], 18, 6))
	}
	if err := w.SetFields(fields); err != nil {
		w.Close()
		return eris.Wrap(err, "export: set dbf fields")
	}

	for row := 0; row < g.shape.Rows; row++ {
		for col := 0; col < g.shape.Cols; col++ {
			c := g.cell(row, col)
			// Outer rings run clockwise.
			ring := []shp.Point{
				{X: c.MinLon, Y: c.MaxLat},
				{X: c.MaxLon, Y: c.MaxLat},
				{X: c.MaxLon, Y: c.MinLat},
				{X: c.MinLon, Y: c.MinLat},
				{X: c.MinLon, Y: c.MaxLat},
			}
			poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring}))
			idx := int(w.Write(&poly))

			if err := w.WriteAttribute(idx, 0, row); err != nil {
				w.Close()
				return eris.Wrap(err, "export: write row attribute")
			}
			if err := w.WriteAttribute(idx, 1, col); err != nil {
				w.Close()
				return eris.Wrap(err, "export: write col attribute")
			}
			for i, l := range ls {
				var v interface{} = ""
				if p := l.value(row, col); p != nil {
					v = *p
				}
				if err := w.WriteAttribute(idx, i+2, v); err != nil {
					w.Close()
					return eris.Wrapf(err, "export: write %s attribute", l.name)
				}
			}
		}
	}
	w.Close()

	prj := strings.TrimSuffix(path, ".shp") + ".prj"
	return eris.Wrap(os.WriteFile(prj, []byte(wgs84PRJ), 0o644), "export: write prj")
}
