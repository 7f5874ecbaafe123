package features

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/mayuresh141/urbanhcf/internal/model"
)

// Validate checks a counterfactual spec against the band table and the
// tensor's registry without touching any data.
func Validate(t *model.FeatureTensor, spec model.CounterfactualSpec) (int, error) {
	if _, ok := model.BandIndex(spec.Feature); !ok {
		return -1, model.NewError(model.KindUnknownFeature, "unknown feature", "feature", spec.Feature)
	}
	idx, ok := t.Index(spec.Feature)
	if !ok {
		return -1, model.NewError(model.KindUnknownFeature, "feature is not present in the raster",
			"feature", spec.Feature, "registry", t.Names)
	}
	switch spec.Operation {
	case model.OpMultiply, model.OpDivide:
	default:
		return -1, model.NewError(model.KindUnsupportedOperation, "unsupported operation",
			"operation", spec.Operation, "feature", spec.Feature)
	}
	if math.IsNaN(spec.Value) || math.IsInf(spec.Value, 0) {
		return -1, model.NewError(model.KindInvalidInput, "counterfactual value must be finite",
			"value", spec.Value, "feature", spec.Feature)
	}
	if spec.Value == 0 {
		if spec.Operation == model.OpDivide {
			return -1, model.NewError(model.KindDivisionByZero, "cannot divide a feature by zero",
				"feature", spec.Feature)
		}
		return -1, model.NewError(model.KindInvalidInput, "counterfactual value must be nonzero",
			"feature", spec.Feature, "operation", spec.Operation)
	}
	return idx, nil
}

// Apply returns a copy of t with one band transformed by spec. The input is
// never modified and the result shares no storage with it; every other band
// is bit-identical to the input.
func Apply(t *model.FeatureTensor, spec model.CounterfactualSpec) (*model.FeatureTensor, error) {
	idx, err := Validate(t, spec)
	if err != nil {
		return nil, err
	}

	out := t.Clone()
	band := out.Band(idx)
	switch spec.Operation {
	case model.OpMultiply:
		floats.Scale(spec.Value, band)
	case model.OpDivide:
		for i := range band {
			band[i] /= spec.Value
		}
	}
	return out, nil
}
