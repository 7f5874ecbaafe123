package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Shape is the (rows, cols) extent of a 2D grid.
type Shape struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d)", s.Rows, s.Cols)
}

// Grid is a row-major H×W grid of values. NaN marks "no data".
type Grid struct {
	Rows int
	Cols int
	Data []float64
}

// NewGrid allocates a zeroed rows×cols grid.
func NewGrid(rows, cols int) *Grid {
	return &Grid{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// NewGridFrom wraps data (row-major) as a rows×cols grid.
func NewGridFrom(rows, cols int, data []float64) (*Grid, error) {
	if rows*cols != len(data) {
		return nil, NewError(KindShapeMismatch, "grid data length does not match shape",
			"shape", Shape{rows, cols}, "len", len(data))
	}
	return &Grid{Rows: rows, Cols: cols, Data: data}, nil
}

// Shape returns the grid shape.
func (g *Grid) Shape() Shape { return Shape{Rows: g.Rows, Cols: g.Cols} }

// At returns the value at row r, column c.
func (g *Grid) At(r, c int) float64 { return g.Data[r*g.Cols+c] }

// Set stores v at row r, column c.
func (g *Grid) Set(r, c int, v float64) { g.Data[r*g.Cols+c] = v }

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	data := make([]float64, len(g.Data))
	copy(data, g.Data)
	return &Grid{Rows: g.Rows, Cols: g.Cols, Data: data}
}

// MarshalJSON encodes the grid as nested rows; NaN and ±Inf become null.
func (g *Grid) MarshalJSON() ([]byte, error) {
	rows := make([][]*float64, g.Rows)
	for r := 0; r < g.Rows; r++ {
		row := make([]*float64, g.Cols)
		for c := 0; c < g.Cols; c++ {
			v := g.At(r, c)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			row[c] = &v
		}
		rows[r] = row
	}
	return json.Marshal(rows)
}

// UnmarshalJSON decodes nested rows; null becomes NaN.
func (g *Grid) UnmarshalJSON(b []byte) error {
	var rows [][]*float64
	if err := json.Unmarshal(b, &rows); err != nil {
		return err
	}
	g.Rows = len(rows)
	g.Cols = 0
	if g.Rows > 0 {
		g.Cols = len(rows[0])
	}
	g.Data = make([]float64, 0, g.Rows*g.Cols)
	for r, row := range rows {
		if len(row) != g.Cols {
			return fmt.Errorf("grid: row %d has %d columns, want %d", r, len(row), g.Cols)
		}
		for _, v := range row {
			if v == nil {
				g.Data = append(g.Data, math.NaN())
				continue
			}
			g.Data = append(g.Data, *v)
		}
	}
	return nil
}

// Stack is a band-major F×H×W block of raster values.
type Stack struct {
	Bands int
	Rows  int
	Cols  int
	Data  []float64
}

// NewStack allocates a zeroed bands×rows×cols stack.
func NewStack(bands, rows, cols int) *Stack {
	return &Stack{Bands: bands, Rows: rows, Cols: cols, Data: make([]float64, bands*rows*cols)}
}

// Shape returns the spatial shape of each band.
func (s *Stack) Shape() Shape { return Shape{Rows: s.Rows, Cols: s.Cols} }

// Band returns band i as a slice aliasing the stack's storage.
func (s *Stack) Band(i int) []float64 {
	n := s.Rows * s.Cols
	return s.Data[i*n : (i+1)*n]
}

// BandGrid returns a copy of band i as a Grid.
func (s *Stack) BandGrid(i int) *Grid {
	data := make([]float64, s.Rows*s.Cols)
	copy(data, s.Band(i))
	return &Grid{Rows: s.Rows, Cols: s.Cols, Data: data}
}

// Squeeze drops a singleton leading dimension, returning the single band as a
// grid. A stack with more than one band cannot be squeezed.
func (s *Stack) Squeeze() (*Grid, error) {
	if s.Bands != 1 {
		return nil, NewError(KindShapeMismatch, "cannot squeeze multi-band stack",
			"bands", s.Bands, "shape", s.Shape())
	}
	return s.BandGrid(0), nil
}

// Clone returns a deep copy.
func (s *Stack) Clone() *Stack {
	data := make([]float64, len(s.Data))
	copy(data, s.Data)
	return &Stack{Bands: s.Bands, Rows: s.Rows, Cols: s.Cols, Data: data}
}
