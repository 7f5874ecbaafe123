package export

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mayuresh141/urbanhcf/internal/model"
)

// Format is an output file format.
type Format string

// Supported formats.
const (
	FormatGeoJSON   Format = "geojson"
	FormatShapefile Format = "shapefile"
	FormatXLSX      Format = "xlsx"
	FormatGeoTIFF   Format = "geotiff"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	case ".shp":
		return FormatShapefile, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".tif", ".tiff":
		return FormatGeoTIFF, nil
	}
	return "", eris.Errorf("export: cannot infer format from %q", path)
}

// WriteFile writes r to path in format. layerName selects the layer of a
// GeoTIFF and is ignored by the multi-layer formats.
func WriteFile(path string, format Format, r *model.AnalysisResult, layerName string) error {
	if format == "" {
		var err error
		if format, err = FormatFromPath(path); err != nil {
			return err
		}
	}
	if format == FormatShapefile {
		return WriteShapefile(path, r)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	switch format {
	case FormatGeoJSON:
		err = WriteGeoJSON(f, r)
	case FormatXLSX:
		err = WriteXLSX(f, r)
	case FormatGeoTIFF:
		if layerName == "" {
			layerName = LayerUHI
		}
		err = WriteGeoTIFF(f, r, layerName)
	default:
		err = eris.Errorf("export: unknown format %q", format)
	}
	if err != nil {
		f.Close()       //nolint:errcheck
		os.Remove(path) //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}
