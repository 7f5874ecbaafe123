package raster

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/model"
)

// MemorySource serves windows from an in-memory band stack.
type MemorySource struct {
	info  Info
	stack *model.Stack
}

// NewMemory wraps stack, georeferenced by transform, as a Source.
func NewMemory(transform geo.Transform, stack *model.Stack) (*MemorySource, error) {
	if stack == nil || stack.Bands <= 0 || stack.Rows <= 0 || stack.Cols <= 0 {
		return nil, eris.New("raster: memory source needs a non-empty stack")
	}
	if len(stack.Data) != stack.Bands*stack.Rows*stack.Cols {
		return nil, model.NewError(model.KindShapeMismatch, "stack data does not match its shape",
			"bands", stack.Bands, "shape", stack.Shape(), "len", len(stack.Data))
	}
	return &MemorySource{
		info: Info{
			Cols:      stack.Cols,
			Rows:      stack.Rows,
			Bands:     stack.Bands,
			Transform: transform,
			CRS:       "EPSG:4326",
		},
		stack: stack,
	}, nil
}

// Info implements Source.
func (m *MemorySource) Info() Info { return m.info }

// ReadWindow implements Source.
func (m *MemorySource) ReadWindow(ctx context.Context, bbox model.BoundingBox) (*Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, err := PlanWindow(m.info, bbox)
	if err != nil {
		return nil, err
	}
	return newWindow(m.info, w, subStack(m.stack, w)), nil
}

// Close implements Source.
func (m *MemorySource) Close() error { return nil }

func subStack(s *model.Stack, w geo.Window) *model.Stack {
	out := model.NewStack(s.Bands, w.Height, w.Width)
	for b := 0; b < s.Bands; b++ {
		src := s.Band(b)
		dst := out.Band(b)
		for r := 0; r < w.Height; r++ {
			start := (w.RowOff+r)*s.Cols + w.ColOff
			copy(dst[r*w.Width:(r+1)*w.Width], src[start:start+w.Width])
		}
	}
	return out
}
