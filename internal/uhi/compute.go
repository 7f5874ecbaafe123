package uhi

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/raster"
)

// Computer reads classification masks and turns predictions into UHI maps.
type Computer struct {
	mask   raster.Source
	policy Policy
}

// NewComputer creates a Computer reading masks from mask (band 1).
func NewComputer(mask raster.Source, policy Policy) (*Computer, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if mask != nil && mask.Info().Bands < 1 {
		return nil, eris.New("uhi: mask raster has no bands")
	}
	return &Computer{mask: mask, policy: policy}, nil
}

// Policy returns the active reference policy.
func (c *Computer) Policy() Policy { return c.policy }

// ReadMask reads the classification mask over bbox as an H×W grid.
func (c *Computer) ReadMask(ctx context.Context, bbox model.BoundingBox) (*model.Grid, error) {
	if c.mask == nil {
		return nil, eris.New("uhi: no mask source configured")
	}
	w, err := c.mask.ReadWindow(ctx, bbox)
	if err != nil {
		return nil, eris.Wrap(err, "uhi: read mask window")
	}
	stack := w.Data
	if stack.Bands > 1 {
		stack = &model.Stack{Bands: 1, Rows: stack.Rows, Cols: stack.Cols, Data: stack.Band(0)}
	}
	return stack.Squeeze()
}

// Reference computes the policy's statistic over the predictions of the
// policy's class. The mask must have the prediction's shape.
func (c *Computer) Reference(pred *model.Grid, mask *model.Grid) (float64, error) {
	if pred.Shape() != mask.Shape() {
		return math.NaN(), model.NewError(model.KindShapeMismatch, "mask shape differs from prediction shape",
			"prediction", pred.Shape(), "mask", mask.Shape())
	}

	values := make([]float64, 0, len(pred.Data))
	classified := 0
	for i, m := range mask.Data {
		if geo.Classify(m) != c.policy.Class {
			continue
		}
		classified++
		values = append(values, pred.Data[i])
	}
	if classified == 0 {
		return math.NaN(), model.NewError(model.KindEmptyClass, "no mask pixels in the reference class",
			"class", c.policy.Class, "shape", mask.Shape())
	}
	ref := c.policy.reduce(values)
	if math.IsNaN(ref) {
		return math.NaN(), model.NewError(model.KindEmptyClass, "reference class has no valid predictions",
			"class", c.policy.Class, "pixels", classified)
	}
	return ref, nil
}

// Compute returns pred minus the reference statistic, elementwise.
func (c *Computer) Compute(pred *model.PredictionMap, mask *model.Grid) (*model.UHIMap, error) {
	ref, err := c.Reference(pred.Grid, mask)
	if err != nil {
		return nil, err
	}
	out := pred.Grid.Clone()
	for i := range out.Data {
		out.Data[i] -= ref
	}
	zap.L().Debug("uhi: computed map",
		zap.Stringer("policy", c.policy),
		zap.Float64("reference", ref),
		zap.Stringer("shape", out.Shape()),
	)
	return &model.UHIMap{Grid: out, Reference: ref}, nil
}

// ComputeStack is Compute for a prediction held as a (1, H, W) stack.
func (c *Computer) ComputeStack(pred *model.Stack, mask *model.Grid) (*model.UHIMap, error) {
	g, err := pred.Squeeze()
	if err != nil {
		return nil, err
	}
	return c.Compute(&model.PredictionMap{Grid: g}, mask)
}
