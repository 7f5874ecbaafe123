package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid_MarshalJSON_NaNIsNull(t *testing.T) {
	g, err := NewGridFrom(2, 2, []float64{1, math.NaN(), math.Inf(1), 4.5})
	require.NoError(t, err)

	b, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `[[1,null],[null,4.5]]`, string(b))
}

func TestGrid_UnmarshalJSON(t *testing.T) {
	var g Grid
	require.NoError(t, json.Unmarshal([]byte(`[[1,null,3],[4,5,6]]`), &g))

	assert.Equal(t, Shape{Rows: 2, Cols: 3}, g.Shape())
	assert.True(t, math.IsNaN(g.At(0, 1)))
	assert.Equal(t, 6.0, g.At(1, 2))
}

func TestGrid_UnmarshalJSON_Ragged(t *testing.T) {
	var g Grid
	err := json.Unmarshal([]byte(`[[1,2],[3]]`), &g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
}

func TestNewGridFrom_LengthMismatch(t *testing.T) {
	_, err := NewGridFrom(3, 3, make([]float64, 8))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestGrid_CloneIsIndependent(t *testing.T) {
	g := NewGrid(2, 2)
	c := g.Clone()
	c.Set(0, 0, 9)
	assert.Equal(t, 0.0, g.At(0, 0))
	assert.Equal(t, 9.0, c.At(0, 0))
}

func TestStack_BandAndSqueeze(t *testing.T) {
	s := NewStack(2, 2, 3)
	for i := range s.Data {
		s.Data[i] = float64(i)
	}
	assert.Equal(t, []float64{6, 7, 8, 9, 10, 11}, s.Band(1))

	_, err := s.Squeeze()
	assert.ErrorIs(t, err, ErrShapeMismatch)

	one := NewStack(1, 2, 2)
	one.Data[3] = 7
	g, err := one.Squeeze()
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 2}, g.Shape())
	assert.Equal(t, 7.0, g.At(1, 1))
}

func TestShape_String(t *testing.T) {
	assert.Equal(t, "(10,9)", Shape{Rows: 10, Cols: 9}.String())
}
