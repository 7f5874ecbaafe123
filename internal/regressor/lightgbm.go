package regressor

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"strings"

	"github.com/dmitryikh/leaves"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// LightGBM is a gradient-boosted tree ensemble loaded from LightGBM's text
// model format. Tree evaluation is done by leaves; only single-output
// regression objectives are accepted.
type LightGBM struct {
	names     []string
	ensemble  *leaves.Ensemble
	transform func(float64) float64
}

// ParseLightGBM reads a LightGBM text model.
func ParseLightGBM(r io.Reader) (*LightGBM, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "regressor: read lightgbm model")
	}

	header := lightGBMHeader(data)
	if header["version"] == "" {
		return nil, eris.New("regressor: not a lightgbm text model")
	}
	if n := header["num_class"]; n != "" && n != "1" {
		return nil, eris.Errorf("regressor: multi-class lightgbm models are not supported (num_class=%s)", n)
	}
	names := strings.Fields(header["feature_names"])
	if len(names) == 0 {
		return nil, eris.New("regressor: lightgbm model has no feature_names")
	}
	tf, err := objectiveTransform(header["objective"])
	if err != nil {
		return nil, err
	}

	// Raw scores; the objective transform above is applied per row.
	ens, err := leaves.LGEnsembleFromReader(bufio.NewReader(bytes.NewReader(data)), false)
	if err != nil {
		return nil, eris.Wrap(err, "regressor: parse lightgbm model")
	}
	if ens.NEstimators() == 0 {
		return nil, eris.New("regressor: lightgbm model has no trees")
	}
	if ens.NOutputGroups() != 1 {
		return nil, eris.Errorf("regressor: lightgbm model has %d outputs, want 1", ens.NOutputGroups())
	}
	if ens.NFeatures() != len(names) {
		return nil, eris.Errorf("regressor: model uses %d features but names %d", ens.NFeatures(), len(names))
	}
	return &LightGBM{names: names, ensemble: ens, transform: tf}, nil
}

// lightGBMHeader returns the key=value lines before the first tree.
func lightGBMHeader(data []byte) map[string]string {
	header := map[string]string{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "Tree=") || line == "end of trees" {
			break
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			header[k] = v
		}
	}
	return header
}

// objectiveTransform maps the raw ensemble score to the prediction scale.
func objectiveTransform(objective string) (func(float64) float64, error) {
	fields := strings.Fields(objective)
	if len(fields) == 0 {
		return identity, nil
	}
	sqrt := false
	for _, f := range fields[1:] {
		if f == "sqrt" {
			sqrt = true
		}
	}
	switch fields[0] {
	case "regression", "regression_l2", "regression_l1", "l2", "l1", "mse", "mae",
		"huber", "fair", "quantile", "mape", "rmse":
		if sqrt {
			return func(v float64) float64 { return math.Copysign(v*v, v) }, nil
		}
		return identity, nil
	case "poisson", "gamma", "tweedie":
		return math.Exp, nil
	default:
		return nil, eris.Errorf("regressor: unsupported lightgbm objective %q", fields[0])
	}
}

func identity(v float64) float64 { return v }

// FeatureNames implements Regressor.
func (m *LightGBM) FeatureNames() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// NumTrees returns the number of trees in the ensemble.
func (m *LightGBM) NumTrees() int { return m.ensemble.NEstimators() }

// Predict implements Regressor.
func (m *LightGBM) Predict(x mat.Matrix) ([]float64, error) {
	n, err := checkColumns(x, m.names)
	if err != nil {
		return nil, err
	}
	cols := len(m.names)
	vals := make([]float64, n*cols)
	for i := 0; i < n; i++ {
		mat.Row(vals[i*cols:(i+1)*cols], i, x)
	}

	out := make([]float64, n)
	if err := m.ensemble.PredictDense(vals, n, cols, out, 0, 1); err != nil {
		return nil, eris.Wrap(err, "regressor: lightgbm predict")
	}
	for i, v := range out {
		out[i] = m.transform(v)
	}
	return out, nil
}
