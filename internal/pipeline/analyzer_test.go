package pipeline

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/uhi"
)

// Sum of the constant model inputs of the fixture.
const fixtureConstant = 0.5 + 0.3 + 0.01 + 2 + 40 + 13 + 0.15 + 8

func TestAnalyze_Baseline(t *testing.T) {
	res, err := defaultAnalyzer(t).Analyze(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, model.Shape{Rows: 10, Cols: 10}, res.LST.Shape())
	assert.Equal(t, "EPSG:4326", res.CRS)
	assert.Equal(t, "Kelvin", res.Units)
	assert.False(t, res.HasCounterfactual())
	assert.Nil(t, res.DeltaUHI)
	assert.Nil(t, res.Counterfactual)

	// Urban pixels carry elevations 0..49; their 25th percentile is 12.25.
	ref := fixtureConstant + 12.25
	assert.InDelta(t, ref, float64(res.Summary.Reference), 1e-9)
	assert.InDelta(t, fixtureConstant+23, res.LST.At(2, 3), 1e-9)
	assert.InDelta(t, -12.25, res.UHI.At(0, 0), 1e-9)
	assert.InDelta(t, 86.75, res.UHI.At(9, 9), 1e-9)

	assert.InDelta(t, fixtureConstant+49.5, float64(res.Summary.LSTMean), 1e-9)
	assert.InDelta(t, 37.25, float64(res.Summary.UHIMean), 1e-9)
	assert.True(t, math.IsNaN(float64(res.Summary.DeltaUHIMean)))
	assert.InDelta(t, 0.5, float64(res.Summary.BandMeans[model.BandNDVI]), 1e-12)
	assert.InDelta(t, 49.5, float64(res.Summary.BandMeans[model.BandElevation]), 1e-12)
}

func TestAnalyze_CounterfactualDoublesNDVI(t *testing.T) {
	res, err := defaultAnalyzer(t).Analyze(context.Background(), ndviTimesTwo())
	require.NoError(t, err)
	require.True(t, res.HasCounterfactual())
	assert.Equal(t, &model.CounterfactualSpec{Feature: model.BandNDVI, Operation: model.OpMultiply, Value: 2}, res.Counterfactual)

	ref := float64(res.Summary.Reference)
	cfRef := float64(res.Summary.CounterfactualReference)
	// NDVI goes from 0.5 to 1.0, so every prediction and the reference shift by 0.5.
	assert.InDelta(t, 0.5, cfRef-ref, 1e-9)

	for r := 0; r < 10; r++ {
		for c := 0; c < 10; c++ {
			baseLST := res.UHI.At(r, c) + ref
			cfLST := res.CounterfactualUHI.At(r, c) + cfRef
			assert.InDelta(t, 0.5, cfLST-baseLST, 1e-9)

			// delta = (ref_base - ref_cf) + shift
			assert.InDelta(t, (ref-cfRef)+0.5, res.DeltaUHI.At(r, c), 1e-9)
			assert.InDelta(t, res.CounterfactualUHI.At(r, c)-res.UHI.At(r, c), res.DeltaUHI.At(r, c), 0)
		}
	}
	assert.InDelta(t, 0, float64(res.Summary.DeltaUHIMean), 1e-9)
}

func TestAnalyze_Idempotent(t *testing.T) {
	a := defaultAnalyzer(t)
	first, err := a.Analyze(context.Background(), baseRequest())
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), baseRequest())
	require.NoError(t, err)

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestAnalyze_DoesNotMutateAcrossRuns(t *testing.T) {
	a := defaultAnalyzer(t)
	cf, err := a.Analyze(context.Background(), ndviTimesTwo())
	require.NoError(t, err)
	base, err := a.Analyze(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, float64(base.Summary.BandMeans[model.BandNDVI]), 1e-12)
	assert.InDelta(t, float64(cf.Summary.Reference), float64(base.Summary.Reference), 1e-12)
}

func TestAnalyze_RuralMeanPolicy(t *testing.T) {
	policy := uhi.Policy{Class: geo.ClassRural, Statistic: uhi.StatisticMean}
	a := newTestAnalyzer(t, newMaskSource(t, testTransform, 10, 10, halfUrban), policy)

	res, err := a.Analyze(context.Background(), baseRequest())
	require.NoError(t, err)
	// Rural pixels carry elevations 50..99.
	assert.InDelta(t, fixtureConstant+74.5, float64(res.Summary.Reference), 1e-9)
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  func() Request
		kind model.ErrorKind
	}{
		{"feature without change", func() Request {
			r := baseRequest()
			r.Feature = model.BandNDVI
			return r
		}, model.KindInvalidRequest},
		{"change without feature", func() Request {
			r := baseRequest()
			r.Change = &model.Change{Operation: model.OpMultiply, Value: 2}
			return r
		}, model.KindInvalidRequest},
		{"unknown feature", func() Request {
			r := ndviTimesTwo()
			r.Feature = "albedo_v2"
			return r
		}, model.KindUnknownFeature},
		{"unsupported operation", func() Request {
			r := ndviTimesTwo()
			r.Change.Operation = "add"
			return r
		}, model.KindUnsupportedOperation},
		{"divide by zero", func() Request {
			r := ndviTimesTwo()
			r.Change = &model.Change{Operation: model.OpDivide, Value: 0}
			return r
		}, model.KindDivisionByZero},
		{"negative buffer", func() Request {
			r := baseRequest()
			r.BufferKM = ptr(-1.0)
			return r
		}, model.KindInvalidInput},
		{"explicit zero buffer", func() Request {
			r := baseRequest()
			r.BufferKM = ptr(0.0)
			return r
		}, model.KindInvalidInput},
		{"latitude out of range", func() Request {
			return Request{Lat: 91, Lon: 0}
		}, model.KindInvalidInput},
		{"outside coverage", func() Request {
			return Request{Lat: 48.85, Lon: 2.35}
		}, model.KindDataUnavailable},
	}
	a := defaultAnalyzer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Analyze(context.Background(), tt.req())
			require.Error(t, err)
			assert.Equal(t, tt.kind, model.KindOf(err), err.Error())
		})
	}
}

func TestAnalyze_MaskShapeMismatch(t *testing.T) {
	// Coarser mask pixels give a 5×5 window over the same bbox.
	coarse := geo.Transform{OriginX: -118.30, OriginY: 34.10, PixelWidth: 0.02, PixelHeight: -0.02}
	a := newTestAnalyzer(t, newMaskSource(t, coarse, 5, 5, func(int, int) float64 { return 0 }), uhi.DefaultPolicy())

	_, err := a.Analyze(context.Background(), baseRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
	assert.Contains(t, err.Error(), "mask=(5,5)")
}

func TestAnalyze_EmptyClass(t *testing.T) {
	allRural := newMaskSource(t, testTransform, 10, 10, func(int, int) float64 { return 1 })
	a := newTestAnalyzer(t, allRural, uhi.DefaultPolicy())

	_, err := a.Analyze(context.Background(), baseRequest())
	assert.ErrorIs(t, err, model.ErrEmptyClass)
}

func TestAnalyze_StageOrder(t *testing.T) {
	var (
		mu     sync.Mutex
		stages []Stage
	)
	observe := func(s Stage, _ time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, err)
		stages = append(stages, s)
	}

	a := defaultAnalyzer(t, WithStageObserver(observe))
	_, err := a.Analyze(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageExtract, StagePredictBaseline, StageUHIBaseline, StageDone}, stages)

	stages = nil
	_, err = a.Analyze(context.Background(), ndviTimesTwo())
	require.NoError(t, err)
	assert.Equal(t, []Stage{
		StageExtract, StagePredictBaseline, StageUHIBaseline,
		StageApplyCounterfactual, StagePredictCF, StageUHICF, StageDelta, StageDone,
	}, stages)
}

func TestAnalyze_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := defaultAnalyzer(t).Analyze(ctx, baseRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelta(t *testing.T) {
	cf, _ := model.NewGridFrom(1, 3, []float64{3, 2, math.NaN()})
	base, _ := model.NewGridFrom(1, 3, []float64{1, 2, 0})
	d, err := Delta(cf, base)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0}, d.Data[:2])
	assert.True(t, math.IsNaN(d.Data[2]))

	_, err = Delta(cf, model.NewGrid(3, 1))
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
}
