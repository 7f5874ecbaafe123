package regressor

import (
	"io"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// LinearTerm is one coefficient of a linear model.
type LinearTerm struct {
	Name        string  `yaml:"name"`
	Coefficient float64 `yaml:"coefficient"`
}

// linearFile is the YAML layout of a linear model.
type linearFile struct {
	Intercept float64      `yaml:"intercept"`
	Features  []LinearTerm `yaml:"features"`
}

// Linear is an affine model: intercept + Σ coefficient·feature.
type Linear struct {
	intercept float64
	names     []string
	beta      *mat.VecDense
}

// NewLinear builds a linear model from ordered terms.
func NewLinear(intercept float64, terms []LinearTerm) (*Linear, error) {
	if len(terms) == 0 {
		return nil, eris.New("regressor: linear model has no features")
	}
	seen := make(map[string]bool, len(terms))
	names := make([]string, len(terms))
	coef := make([]float64, len(terms))
	for i, t := range terms {
		if t.Name == "" {
			return nil, eris.Errorf("regressor: linear term %d has no name", i)
		}
		if seen[t.Name] {
			return nil, eris.Errorf("regressor: duplicate linear term %q", t.Name)
		}
		seen[t.Name] = true
		names[i] = t.Name
		coef[i] = t.Coefficient
	}
	return &Linear{intercept: intercept, names: names, beta: mat.NewVecDense(len(coef), coef)}, nil
}

// ParseLinear decodes a YAML linear model.
func ParseLinear(r io.Reader) (*Linear, error) {
	var lf linearFile
	if err := yaml.NewDecoder(r).Decode(&lf); err != nil {
		return nil, eris.Wrap(err, "regressor: decode linear model")
	}
	return NewLinear(lf.Intercept, lf.Features)
}

// FeatureNames implements Regressor.
func (l *Linear) FeatureNames() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Predict implements Regressor.
func (l *Linear) Predict(x mat.Matrix) ([]float64, error) {
	n, err := checkColumns(x, l.names)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []float64{}, nil
	}
	var y mat.VecDense
	y.MulVec(x, l.beta)
	out := make([]float64, n)
	for i := range out {
		out[i] = y.AtVec(i) + l.intercept
	}
	return out, nil
}
