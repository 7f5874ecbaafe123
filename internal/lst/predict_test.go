package lst

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/regressor"
)

// stubModel returns fn(row) for every row of the design matrix.
type stubModel struct {
	names []string
	fn    func(row []float64) float64
	err   error
	short bool
}

func (s *stubModel) FeatureNames() []string { return s.names }

func (s *stubModel) Predict(x mat.Matrix) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	r, c := x.Dims()
	out := make([]float64, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, x)
		out[i] = s.fn(row)
	}
	if s.short {
		return out[:r-1], nil
	}
	return out, nil
}

func sumModel() regressor.Regressor {
	lin, err := regressor.NewLinear(0, terms(model.ModelInputBands(), 1))
	if err != nil {
		panic(err)
	}
	return lin
}

func terms(names []string, coef float64) []regressor.LinearTerm {
	out := make([]regressor.LinearTerm, len(names))
	for i, n := range names {
		out[i] = regressor.LinearTerm{Name: n, Coefficient: coef}
	}
	return out
}

func fullTensor(h, w int) *model.FeatureTensor {
	return &model.FeatureTensor{Names: model.BandOrder[:], Stack: model.NewStack(model.NumBands, h, w)}
}

func TestPredict_Shape(t *testing.T) {
	p, err := NewPredictor(sumModel())
	require.NoError(t, err)

	for _, dims := range [][2]int{{10, 10}, {3, 7}, {7, 3}, {1, 1}} {
		pm, err := p.Predict(fullTensor(dims[0], dims[1]))
		require.NoError(t, err)
		assert.Equal(t, model.Shape{Rows: dims[0], Cols: dims[1]}, pm.Grid.Shape())
		assert.Equal(t, CRS, pm.CRS)
		assert.Equal(t, Units, pm.Units)
	}
}

func TestPredict_SpatialIdentity(t *testing.T) {
	p, err := NewPredictor(sumModel())
	require.NoError(t, err)

	// A non-square grid makes a row/column transposition visible. Each pixel
	// carries a unique marker r*100+c in every band.
	const h, w = 4, 6
	tensor := fullTensor(h, w)
	for b := 0; b < tensor.Bands; b++ {
		band := tensor.Band(b)
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				band[r*w+c] = float64(r*100 + c)
			}
		}
	}
	// The reference band must not contribute.
	ref := tensor.Band(model.NumBands - 1)
	for i := range ref {
		ref[i] = 1e9
	}

	pm, err := p.Predict(tensor)
	require.NoError(t, err)
	inputs := float64(model.NumBands - 1)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			assert.Equal(t, inputs*float64(r*100+c), pm.Grid.At(r, c), "pixel (%d,%d)", r, c)
		}
	}
}

func TestPredict_ColumnOrderFollowsModel(t *testing.T) {
	// Model declares elevation before NDVI; returns 1000*elevation + NDVI.
	m := &stubModel{
		names: []string{model.BandElevation, model.BandNDVI},
		fn:    func(row []float64) float64 { return 1000*row[0] + row[1] },
	}
	p, err := NewPredictor(m)
	require.NoError(t, err)

	tensor := fullTensor(1, 2)
	ndvi, _ := tensor.Index(model.BandNDVI)
	elev, _ := tensor.Index(model.BandElevation)
	copy(tensor.Band(ndvi), []float64{0.25, 0.5})
	copy(tensor.Band(elev), []float64{3, 4})

	pm, err := p.Predict(tensor)
	require.NoError(t, err)
	assert.Equal(t, []float64{3000.25, 4000.5}, pm.Grid.Data)
}

func TestPredict_MissingFeature(t *testing.T) {
	p, err := NewPredictor(sumModel())
	require.NoError(t, err)

	tensor := &model.FeatureTensor{Names: model.BandOrder[:3], Stack: model.NewStack(3, 2, 2)}
	_, err = p.Predict(tensor)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrMissingFeature)
	assert.Contains(t, err.Error(), model.BandPrecipitation)
}

func TestPredict_ModelErrors(t *testing.T) {
	names := []string{model.BandNDVI}
	p, err := NewPredictor(&stubModel{names: names, err: errors.New("boom")})
	require.NoError(t, err)
	_, err = p.Predict(fullTensor(2, 2))
	assert.ErrorContains(t, err, "boom")

	p, err = NewPredictor(&stubModel{names: names, fn: func([]float64) float64 { return 0 }, short: true})
	require.NoError(t, err)
	_, err = p.Predict(fullTensor(2, 2))
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestNewPredictor_Invalid(t *testing.T) {
	_, err := NewPredictor(&stubModel{})
	assert.Error(t, err)

	_, err = NewPredictor(&stubModel{names: []string{model.BandLST1KM}})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = NewPredictor(&stubModel{names: []string{"albedo"}})
	assert.ErrorIs(t, err, model.ErrMissingFeature)
	assert.Equal(t, model.KindMissingFeature, model.KindOf(err))
}
