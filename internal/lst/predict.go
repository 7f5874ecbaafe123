// Package lst turns feature tensors into land surface temperature maps.
package lst

import (
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/regressor"
)

// Prediction metadata.
const (
	CRS   = "EPSG:4326"
	Units = "Kelvin"
)

// Predictor applies a pretrained regressor to every pixel of a tensor.
type Predictor struct {
	model    regressor.Regressor
	required []string
}

// NewPredictor wraps m. The model's feature names decide which bands are
// fed to it and in which column order; the reference band is never an input.
func NewPredictor(m regressor.Regressor) (*Predictor, error) {
	names := m.FeatureNames()
	if len(names) == 0 {
		return nil, eris.New("lst: model declares no features")
	}
	for _, n := range names {
		if n == model.BandReference {
			return nil, model.NewError(model.KindInvalidInput, "model uses the reference band as an input",
				"feature", n)
		}
		if _, ok := model.BandIndex(n); !ok {
			return nil, model.NewError(model.KindMissingFeature, "model feature is not a raster band", "feature", n)
		}
	}
	return &Predictor{model: m, required: names}, nil
}

// Required returns the band names the model consumes, in column order.
func (p *Predictor) Required() []string {
	out := make([]string, len(p.required))
	copy(out, p.required)
	return out
}

// Predict flattens the model's bands of t from (F-1, H, W) into a per-pixel
// design matrix of shape (H·W, F-1), runs the model, and reshapes the
// predictions back to (H, W) in row-major order.
func (p *Predictor) Predict(t *model.FeatureTensor) (*model.PredictionMap, error) {
	h, w := t.Rows, t.Cols
	if h <= 0 || w <= 0 {
		return nil, model.NewError(model.KindShapeMismatch, "empty feature tensor", "shape", t.Shape())
	}
	pixels := h * w

	// Band-major storage: row j holds band j over all pixels. Its transpose
	// is the pixel-major design matrix.
	bandMajor := mat.NewDense(len(p.required), pixels, nil)
	for j, name := range p.required {
		idx, ok := t.Index(name)
		if !ok || name == model.BandReference {
			return nil, model.NewError(model.KindMissingFeature, "model input band is missing from the tensor",
				"feature", name, "registry", t.Names)
		}
		bandMajor.SetRow(j, t.Band(idx))
	}

	preds, err := p.model.Predict(bandMajor.T())
	if err != nil {
		return nil, eris.Wrap(err, "lst: model predict")
	}
	if len(preds) != pixels {
		return nil, model.NewError(model.KindShapeMismatch, "model returned the wrong number of predictions",
			"want", pixels, "got", len(preds))
	}

	g, err := model.NewGridFrom(h, w, preds)
	if err != nil {
		return nil, err
	}
	return &model.PredictionMap{Grid: g, CRS: CRS, Units: Units}, nil
}
