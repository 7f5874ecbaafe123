package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mayuresh141/urbanhcf/internal/features"
	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/lst"
	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/raster"
	"github.com/mayuresh141/urbanhcf/internal/regressor"
	"github.com/mayuresh141/urbanhcf/internal/uhi"
)

// A 10×10 raster of 0.01° pixels whose centre is (34.05, -118.25).
var (
	testTransform = geo.Transform{OriginX: -118.30, OriginY: 34.10, PixelWidth: 0.01, PixelHeight: -0.01}
	testLat       = 34.05
	testLon       = -118.25
)

const testBufferKM = 10

// constantBands holds the per-band constant of the fixture; elevation varies
// per pixel instead.
var constantBands = map[string]float64{
	model.BandNDVI:             0.5,
	model.BandEVI:              0.3,
	model.BandSpecificHumidity: 0.01,
	model.BandPrecipitation:    2,
	model.BandImpervious:       40,
	model.BandLandcover:        13,
	model.BandForecastAlbedo:   0.15,
	model.BandBuiltHeight:      8,
	model.BandLST1KM:           300,
}

// newFeatureSource returns the fixture raster: elevation at (r, c) is
// r*10+c, every other band is constant.
func newFeatureSource(t *testing.T) *raster.MemorySource {
	t.Helper()
	s := model.NewStack(model.NumBands, 10, 10)
	for b, name := range model.BandOrder {
		band := s.Band(b)
		for i := range band {
			if name == model.BandElevation {
				band[i] = float64(i)
			} else {
				band[i] = constantBands[name]
			}
		}
	}
	src, err := raster.NewMemory(testTransform, s)
	require.NoError(t, err)
	return src
}

// newMaskSource returns a mask whose top five rows are urban (0) and bottom
// five rural (1).
func newMaskSource(t *testing.T, tr geo.Transform, rows, cols int, fill func(r, c int) float64) *raster.MemorySource {
	t.Helper()
	s := model.NewStack(1, rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			s.Data[r*cols+c] = fill(r, c)
		}
	}
	src, err := raster.NewMemory(tr, s)
	require.NoError(t, err)
	return src
}

func halfUrban(r, _ int) float64 {
	if r < 5 {
		return 0
	}
	return 1
}

// sumModel predicts the sum of all model input bands.
func sumModel(t *testing.T) regressor.Regressor {
	t.Helper()
	names := model.ModelInputBands()
	terms := make([]regressor.LinearTerm, len(names))
	for i, n := range names {
		terms[i] = regressor.LinearTerm{Name: n, Coefficient: 1}
	}
	lin, err := regressor.NewLinear(0, terms)
	require.NoError(t, err)
	return lin
}

func newTestAnalyzer(t *testing.T, mask raster.Source, policy uhi.Policy, opts ...AnalyzerOption) *Analyzer {
	t.Helper()
	ex, err := features.NewExtractor(newFeatureSource(t))
	require.NoError(t, err)
	p, err := lst.NewPredictor(sumModel(t))
	require.NoError(t, err)
	u, err := uhi.NewComputer(mask, policy)
	require.NoError(t, err)
	opts = append([]AnalyzerOption{WithBufferKM(testBufferKM)}, opts...)
	return NewAnalyzer(geo.NewBBoxBuilder(0), ex, p, u, opts...)
}

func defaultAnalyzer(t *testing.T, opts ...AnalyzerOption) *Analyzer {
	t.Helper()
	return newTestAnalyzer(t, newMaskSource(t, testTransform, 10, 10, halfUrban), uhi.DefaultPolicy(), opts...)
}

func baseRequest() Request {
	return Request{Lat: testLat, Lon: testLon}
}

func ndviTimesTwo() Request {
	req := baseRequest()
	req.Feature = model.BandNDVI
	req.Change = &model.Change{Operation: model.OpMultiply, Value: 2}
	return req
}

func ptr[T any](v T) *T { return &v }
