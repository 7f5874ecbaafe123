// Package model holds the domain types shared by the UHI analysis pipeline.
package model

// Band names of the feature raster.
const (
	BandNDVI             = "NDVI"
	BandEVI              = "EVI"
	BandSpecificHumidity = "sph"
	BandPrecipitation    = "pr"
	BandImpervious       = "impervious_descriptor"
	BandLandcover        = "landcover"
	BandForecastAlbedo   = "forecast_albedo"
	BandBuiltHeight      = "built_height"
	BandElevation        = "elevation"
	BandLST1KM           = "LST_1KM"
)

// BandReference is the ground-truth LST band; it is excluded from model input.
const BandReference = BandLST1KM

// NumBands is the number of bands in the feature raster.
const NumBands = 10

// BandOrder is the fixed band order of the feature raster. The last band is
// the reference LST and is never a model input. Every component indexes bands
// through this table.
var BandOrder = [NumBands]string{
	BandNDVI,
	BandEVI,
	BandSpecificHumidity,
	BandPrecipitation,
	BandImpervious,
	BandLandcover,
	BandForecastAlbedo,
	BandBuiltHeight,
	BandElevation,
	BandLST1KM,
}

// BandIndex returns the position of name in BandOrder.
func BandIndex(name string) (int, bool) {
	for i, b := range BandOrder {
		if b == name {
			return i, true
		}
	}
	return -1, false
}

// ModelInputBands returns the bands consumed by the regression model, in
// raster order (BandOrder without the reference band).
func ModelInputBands() []string {
	out := make([]string, 0, NumBands-1)
	for _, b := range BandOrder {
		if b != BandReference {
			out = append(out, b)
		}
	}
	return out
}
