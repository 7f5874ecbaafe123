package pipeline

import (
	"math"
	"strings"

	"github.com/mayuresh141/urbanhcf/internal/model"
)

var nan = math.NaN()

// Request is one analysis query. When Place is set the Runner geocodes it
// and overwrites Lat/Lon. A nil BufferKM means the analyzer's default; an
// explicit value, zero included, is validated as given.
type Request struct {
	Lat      float64       `json:"lat"`
	Lon      float64       `json:"lon"`
	BufferKM *float64      `json:"buffer_km,omitempty"`
	Place    string        `json:"place,omitempty"`
	Feature  string        `json:"feature_name,omitempty"`
	Change   *model.Change `json:"change,omitempty"`
}

// Buffer returns the requested buffer, or def when none was given.
func (r Request) Buffer(def float64) float64 {
	if r.BufferKM == nil {
		return def
	}
	return *r.BufferKM
}

// Counterfactual returns the requested counterfactual, or nil when none was
// asked for. Feature and Change must be given together.
func (r Request) Counterfactual() (*model.CounterfactualSpec, error) {
	feature := strings.TrimSpace(r.Feature)
	switch {
	case feature == "" && r.Change == nil:
		return nil, nil
	case feature == "":
		return nil, model.NewError(model.KindInvalidRequest, "change given without feature_name",
			"operation", r.Change.Operation)
	case r.Change == nil:
		return nil, model.NewError(model.KindInvalidRequest, "feature_name given without change",
			"feature", feature)
	}
	return &model.CounterfactualSpec{
		Feature:   feature,
		Operation: model.Operation(strings.ToLower(string(r.Change.Operation))),
		Value:     r.Change.Value,
	}, nil
}
