package export

import (
	"io"

	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/raster"
)

// WriteGeoTIFF writes one layer of r as a single-band float32 GeoTIFF
// georeferenced to the result's bbox. NaN pixels stay NaN.
func WriteGeoTIFF(w io.Writer, r *model.AnalysisResult, layerName string) error {
	g, err := gridOf(r)
	if err != nil {
		return err
	}
	grid, err := Layer(r, layerName)
	if err != nil {
		return err
	}
	stack := &model.Stack{Bands: 1, Rows: grid.Rows, Cols: grid.Cols, Data: grid.Data}
	return raster.WriteGeoTIFF(w, stack, g.transform, raster.WriteOptions{
		Compression:  raster.CompressionDeflate,
		RowsPerStrip: 16,
	})
}
