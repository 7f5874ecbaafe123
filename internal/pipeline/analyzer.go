// Package pipeline sequences feature extraction, LST inference, UHI
// computation and the optional counterfactual run into one analysis.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/mayuresh141/urbanhcf/internal/features"
	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/lst"
	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/raster"
	"github.com/mayuresh141/urbanhcf/internal/uhi"
)

// Stage names one step of an analysis.
type Stage string

// Analysis stages, in execution order.
const (
	StageExtract             Stage = "EXTRACT"
	StagePredictBaseline     Stage = "PREDICT_BASELINE"
	StageUHIBaseline         Stage = "UHI_BASELINE"
	StageApplyCounterfactual Stage = "APPLY_COUNTERFACTUAL"
	StagePredictCF           Stage = "PREDICT_CF"
	StageUHICF               Stage = "UHI_CF"
	StageDelta               Stage = "DELTA"
	StageDone                Stage = "DONE"
)

// StageObserver is notified after every stage with its duration and outcome.
type StageObserver func(stage Stage, d time.Duration, err error)

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithBufferKM sets the buffer used when a request does not carry one.
func WithBufferKM(km float64) AnalyzerOption {
	return func(a *Analyzer) {
		if km > 0 {
			a.bufferKM = km
		}
	}
}

// WithStageObserver registers fn to be called after each stage.
func WithStageObserver(fn StageObserver) AnalyzerOption {
	return func(a *Analyzer) {
		a.observer = fn
	}
}

// Analyzer runs analyses. It holds only read-only collaborators and is safe
// for concurrent use.
type Analyzer struct {
	bboxes    *geo.BBoxBuilder
	extractor *features.Extractor
	predictor *lst.Predictor
	uhi       *uhi.Computer
	bufferKM  float64
	observer  StageObserver
}

// NewAnalyzer wires the pipeline components together.
func NewAnalyzer(bboxes *geo.BBoxBuilder, ex *features.Extractor, p *lst.Predictor, u *uhi.Computer, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		bboxes:    bboxes,
		extractor: ex,
		predictor: p,
		uhi:       u,
		bufferKM:  geo.DefaultBufferKM,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the baseline and, when requested, the counterfactual path.
// Any stage failure aborts the run and is returned with its kind intact.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*model.AnalysisResult, error) {
	spec, err := req.Counterfactual()
	if err != nil {
		return nil, err
	}
	bbox, err := a.bboxes.BBox(req.Lat, req.Lon, req.Buffer(a.bufferKM))
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.Stringer("bbox", bbox))
	if spec != nil {
		log = log.With(zap.String("feature", spec.Feature), zap.String("operation", string(spec.Operation)))
	}

	var (
		ex   *features.Extraction
		mask *model.Grid
		base *model.PredictionMap
		bu   *model.UHIMap
	)

	if err := a.track(ctx, log, StageExtract, func() error {
		var err error
		if ex, err = a.extractor.Extract(ctx, bbox); err != nil {
			return err
		}
		if mask, err = a.uhi.ReadMask(ctx, bbox); err != nil {
			return err
		}
		if mask.Shape() != ex.Tensor.Shape() {
			return model.NewError(model.KindShapeMismatch, "mask window differs from feature window",
				"bbox", bbox, "features", ex.Tensor.Shape(), "mask", mask.Shape())
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := a.track(ctx, log, StagePredictBaseline, func() error {
		var err error
		base, err = a.predictor.Predict(ex.Tensor)
		return err
	}); err != nil {
		return nil, err
	}

	if err := a.track(ctx, log, StageUHIBaseline, func() error {
		var err error
		bu, err = a.uhi.Compute(base, mask)
		return err
	}); err != nil {
		return nil, err
	}

	result := &model.AnalysisResult{
		BBox:  bbox,
		CRS:   base.CRS,
		Units: base.Units,
		LST:   base.Grid,
		UHI:   bu.Grid,
	}
	result.Summary = summarize(ex, base, bu, nil, nil)

	if spec == nil {
		a.finish(log, result)
		return result, nil
	}

	var (
		cfTensor *model.FeatureTensor
		cfPred   *model.PredictionMap
		cfUHI    *model.UHIMap
		delta    *model.Grid
	)

	if err := a.track(ctx, log, StageApplyCounterfactual, func() error {
		var err error
		cfTensor, err = features.Apply(ex.Tensor, *spec)
		return err
	}); err != nil {
		return nil, err
	}

	if err := a.track(ctx, log, StagePredictCF, func() error {
		var err error
		cfPred, err = a.predictor.Predict(cfTensor)
		return err
	}); err != nil {
		return nil, err
	}

	if err := a.track(ctx, log, StageUHICF, func() error {
		var err error
		cfUHI, err = a.uhi.Compute(cfPred, mask)
		return err
	}); err != nil {
		return nil, err
	}

	if err := a.track(ctx, log, StageDelta, func() error {
		var err error
		delta, err = Delta(cfUHI.Grid, bu.Grid)
		return err
	}); err != nil {
		return nil, err
	}

	result.CounterfactualUHI = cfUHI.Grid
	result.DeltaUHI = delta
	result.Counterfactual = spec
	result.Summary = summarize(ex, base, bu, cfUHI, delta)
	a.finish(log, result)
	return result, nil
}

// Delta returns cf - base elementwise.
func Delta(cf, base *model.Grid) (*model.Grid, error) {
	if cf.Shape() != base.Shape() {
		return nil, model.NewError(model.KindShapeMismatch, "counterfactual and baseline grids differ",
			"counterfactual", cf.Shape(), "baseline", base.Shape())
	}
	out := model.NewGrid(cf.Rows, cf.Cols)
	floats.SubTo(out.Data, cf.Data, base.Data)
	return out, nil
}

func (a *Analyzer) track(ctx context.Context, log *zap.Logger, stage Stage, fn func() error) error {
	if err := ctx.Err(); err != nil {
		err = eris.Wrapf(err, "pipeline: %s not started", stage)
		a.observe(stage, 0, err)
		return err
	}

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	a.observe(stage, elapsed, err)

	if err != nil {
		log.Error("pipeline: stage failed",
			zap.String("stage", string(stage)),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
			zap.String("kind", string(model.KindOf(err))),
			zap.Error(err),
		)
		return err
	}
	log.Debug("pipeline: stage complete",
		zap.String("stage", string(stage)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	)
	return nil
}

func (a *Analyzer) observe(stage Stage, d time.Duration, err error) {
	if a.observer != nil {
		a.observer(stage, d, err)
	}
}

func (a *Analyzer) finish(log *zap.Logger, r *model.AnalysisResult) {
	a.observe(StageDone, 0, nil)
	log.Info("pipeline: analysis complete",
		zap.Stringer("shape", r.LST.Shape()),
		zap.Float64("reference", float64(r.Summary.Reference)),
		zap.Bool("counterfactual", r.HasCounterfactual()),
	)
}

func summarize(ex *features.Extraction, base *model.PredictionMap, bu, cf *model.UHIMap, delta *model.Grid) model.Summary {
	s := model.Summary{
		BandMeans:               make(map[string]model.Float, len(ex.BandMeans)),
		LSTMean:                 model.Float(raster.NaNMean(base.Grid.Data)),
		UHIMean:                 model.Float(raster.NaNMean(bu.Grid.Data)),
		Reference:               model.Float(bu.Reference),
		CounterfactualUHIMean:   model.Float(nan),
		CounterfactualReference: model.Float(nan),
		DeltaUHIMean:            model.Float(nan),
	}
	for name, v := range ex.BandMeans {
		s.BandMeans[name] = model.Float(v)
	}
	if cf != nil {
		s.CounterfactualUHIMean = model.Float(raster.NaNMean(cf.Grid.Data))
		s.CounterfactualReference = model.Float(cf.Reference)
	}
	if delta != nil {
		s.DeltaUHIMean = model.Float(raster.NaNMean(delta.Data))
	}
	return s
}
