package features

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/raster"
)

var testTransform = geo.Transform{OriginX: -118.3, OriginY: 34.1, PixelWidth: 0.01, PixelHeight: -0.01}

// newTestSource returns a 20×20 source with model.NumBands bands where band b
// holds b+1 everywhere except a NaN at pixel (0, 0).
func newTestSource(t *testing.T, bands int) *raster.MemorySource {
	t.Helper()
	s := model.NewStack(bands, 20, 20)
	for b := 0; b < bands; b++ {
		band := s.Band(b)
		for i := range band {
			band[i] = float64(b + 1)
		}
		band[0] = nan
	}
	src, err := raster.NewMemory(testTransform, s)
	require.NoError(t, err)
	return src
}

func newTestTensor() *model.FeatureTensor {
	s := model.NewStack(model.NumBands, 3, 4)
	for i := range s.Data {
		s.Data[i] = float64(i) * 0.25
	}
	return &model.FeatureTensor{Names: model.BandOrder[:], Stack: s}
}
