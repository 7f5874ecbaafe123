package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoPoint_Validate(t *testing.T) {
	tests := []struct {
		name string
		p    GeoPoint
		ok   bool
	}{
		{"valid", GeoPoint{Lat: 34.05, Lon: -118.25}, true},
		{"poles", GeoPoint{Lat: 90, Lon: 180}, true},
		{"lat too high", GeoPoint{Lat: 91, Lon: 0}, false},
		{"lon too low", GeoPoint{Lat: 0, Lon: -181}, false},
		{"nan", GeoPoint{Lat: math.NaN(), Lon: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestBoundingBox_ArrayAndCenter(t *testing.T) {
	b := BoundingBox{MinLon: -1, MinLat: 2, MaxLon: 3, MaxLat: 4}
	assert.Equal(t, [4]float64{-1, 2, 3, 4}, b.Array())
	assert.Equal(t, GeoPoint{Lat: 3, Lon: 1}, b.Center())
	assert.True(t, b.Valid())
	assert.False(t, BoundingBox{}.Valid())
}

func TestFeatureTensor_CloneSharesNothing(t *testing.T) {
	ft := &FeatureTensor{Names: []string{BandNDVI, BandEVI}, Stack: NewStack(2, 1, 1)}
	c := ft.Clone()
	c.Data[0] = 5
	c.Names[0] = "x"

	assert.Equal(t, 0.0, ft.Data[0])
	assert.Equal(t, BandNDVI, ft.Names[0])

	idx, ok := ft.Index(BandEVI)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	_, ok = ft.Index("nope")
	assert.False(t, ok)
}

func TestFloat_JSON(t *testing.T) {
	b, err := json.Marshal(Summary{LSTMean: Float(math.NaN()), UHIMean: 1.5})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"lst_mean":null`)
	assert.Contains(t, string(b), `"uhi_mean":1.5`)

	var s Summary
	require.NoError(t, json.Unmarshal(b, &s))
	assert.True(t, math.IsNaN(float64(s.LSTMean)))
	assert.Equal(t, Float(1.5), s.UHIMean)
}

func TestBandOrder(t *testing.T) {
	assert.Equal(t, BandLST1KM, BandOrder[NumBands-1])
	idx, ok := BandIndex(BandNDVI)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	in := ModelInputBands()
	assert.Len(t, in, NumBands-1)
	assert.NotContains(t, in, BandReference)
}

func TestError_MessageAndKind(t *testing.T) {
	err := NewError(KindShapeMismatch, "mask does not match", "pred", Shape{10, 10}, "mask", Shape{9, 10})
	assert.Equal(t, "shape_mismatch: mask does not match (mask=(9,10), pred=(10,10))", err.Error())

	wrapped := eris.Wrap(err, "uhi: compute")
	assert.True(t, errors.Is(wrapped, ErrShapeMismatch))
	assert.False(t, errors.Is(wrapped, ErrEmptyClass))
	assert.Equal(t, KindShapeMismatch, KindOf(wrapped))
	assert.Equal(t, ErrorKind(""), KindOf(fmt.Errorf("plain")))
}
