// Package features assembles feature tensors from the multi-band raster and
// applies counterfactual perturbations to them.
package features

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/raster"
)

// Extraction is the output of Extract: the feature tensor for a bbox, the
// per-band NaN-ignoring means, and the raster window the tensor was read from.
type Extraction struct {
	BandMeans map[string]float64
	Tensor    *model.FeatureTensor
	Window    *raster.Window
}

// Extractor reads feature tensors from a raster source.
type Extractor struct {
	src raster.Source
}

// NewExtractor creates an Extractor over src. The source's bands are labelled
// with the leading names of model.BandOrder; a source with more bands than
// that table cannot be labelled and is rejected.
func NewExtractor(src raster.Source) (*Extractor, error) {
	info := src.Info()
	if info.Bands > model.NumBands {
		return nil, model.NewError(model.KindShapeMismatch, "feature raster has more bands than the band table",
			"bands", info.Bands, "known", model.NumBands)
	}
	if info.Bands == 0 {
		return nil, eris.New("features: raster has no bands")
	}
	return &Extractor{src: src}, nil
}

// Registry returns the band names of the source in band order.
func (e *Extractor) Registry() []string {
	n := e.src.Info().Bands
	out := make([]string, n)
	copy(out, model.BandOrder[:n])
	return out
}

// Extract reads the window covering bbox and summarises each band.
func (e *Extractor) Extract(ctx context.Context, bbox model.BoundingBox) (*Extraction, error) {
	w, err := e.src.ReadWindow(ctx, bbox)
	if err != nil {
		return nil, eris.Wrap(err, "features: read window")
	}

	names := e.Registry()
	if w.Data.Bands != len(names) {
		return nil, model.NewError(model.KindShapeMismatch, "window band count differs from the raster",
			"bands", w.Data.Bands, "want", len(names), "bbox", bbox)
	}

	means := make(map[string]float64, len(names))
	for i, name := range names {
		means[name] = raster.NaNMean(w.Data.Band(i))
	}

	zap.L().Debug("features: extracted window",
		zap.Stringer("bbox", bbox),
		zap.Stringer("shape", w.Data.Shape()),
		zap.Int("bands", w.Data.Bands),
	)
	return &Extraction{
		BandMeans: means,
		Tensor:    &model.FeatureTensor{Names: names, Stack: w.Data},
		Window:    w,
	}, nil
}
