// Package regressor loads pretrained LST regression models and evaluates them
// over per-pixel design matrices.
package regressor

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Model formats.
const (
	FormatLightGBM = "lightgbm"
	FormatLinear   = "linear"
)

// Regressor is a pretrained, immutable model. Predict takes a (pixels ×
// features) matrix whose columns follow FeatureNames and returns one
// prediction per row. Implementations are safe for concurrent use.
type Regressor interface {
	FeatureNames() []string
	Predict(x mat.Matrix) ([]float64, error)
}

// Load reads a model file. An empty format is inferred from the extension:
// .txt is a LightGBM text model, .yaml/.yml a linear model.
func Load(path, format string) (Regressor, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt":
			format = FormatLightGBM
		case ".yaml", ".yml":
			format = FormatLinear
		default:
			return nil, eris.Errorf("regressor: cannot infer model format of %s", path)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "regressor: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var m Regressor
	switch format {
	case FormatLightGBM:
		m, err = ParseLightGBM(f)
	case FormatLinear:
		m, err = ParseLinear(f)
	default:
		return nil, eris.Errorf("regressor: unknown model format %q", format)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "regressor: load %s", path)
	}
	zap.L().Info("regressor: model loaded",
		zap.String("path", path),
		zap.String("format", format),
		zap.Strings("features", m.FeatureNames()),
	)
	return m, nil
}

func checkColumns(x mat.Matrix, names []string) (int, error) {
	r, c := x.Dims()
	if c != len(names) {
		return 0, eris.Errorf("regressor: design matrix has %d columns, model expects %d", c, len(names))
	}
	return r, nil
}
