package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mayuresh141/urbanhcf/internal/db"
	"github.com/mayuresh141/urbanhcf/internal/features"
	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/lst"
	"github.com/mayuresh141/urbanhcf/internal/pipeline"
	"github.com/mayuresh141/urbanhcf/internal/raster"
	"github.com/mayuresh141/urbanhcf/internal/regressor"
	"github.com/mayuresh141/urbanhcf/internal/store"
	"github.com/mayuresh141/urbanhcf/internal/uhi"
	"github.com/mayuresh141/urbanhcf/pkg/geocode"
)

// pipelineEnv holds the opened rasters, store and the wired pipeline needed
// by the analyze/batch/serve commands.
type pipelineEnv struct {
	Store    store.ResultStore
	Features raster.Source
	Mask     raster.Source
	Analyzer *pipeline.Analyzer
	Runner   *pipeline.Runner
	Geocoder geocode.Client
}

// Close releases the rasters and the store.
func (pe *pipelineEnv) Close() {
	if pe.Features != nil {
		_ = pe.Features.Close()
	}
	if pe.Mask != nil {
		_ = pe.Mask.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured result store and applies its migration.
func initStore(ctx context.Context) (store.ResultStore, error) {
	pool := cfg.Store.Pool
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &pool)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store", cfg.Store.Driver)
	}
	return st, nil
}

// initGeocoder builds the place-name geocoder from config.
func initGeocoder() geocode.Client {
	g := cfg.Geocode
	opts := []geocode.Option{
		geocode.WithLanguage(g.Language),
		geocode.WithCache(g.CacheSize, time.Duration(g.CacheTTLMins)*time.Minute),
		geocode.WithRetry(g.Backoff()),
	}
	if g.BaseURL != "" {
		opts = append(opts, geocode.WithBaseURL(g.BaseURL))
	}
	if g.RateLimit > 0 {
		opts = append(opts, geocode.WithRateLimit(g.RateLimit))
	}
	return geocode.NewClient(opts...)
}

// initRasters opens the feature and mask rasters. With the postgis driver
// both share one pool, owned by the feature source.
func initRasters(ctx context.Context) (feat, mask raster.Source, err error) {
	switch cfg.Raster.Driver {
	case "geotiff", "":
		f, err := raster.OpenGeoTIFF(cfg.Raster.FeaturesPath)
		if err != nil {
			return nil, nil, eris.Wrap(err, "open feature raster")
		}
		m, err := raster.OpenGeoTIFF(cfg.Raster.MaskPath)
		if err != nil {
			_ = f.Close()
			return nil, nil, eris.Wrap(err, "open mask raster")
		}
		return f, m, nil

	case "postgis":
		pool, err := db.Connect(ctx, cfg.Raster.DatabaseURL, nil)
		if err != nil {
			return nil, nil, eris.Wrap(err, "connect raster database")
		}
		f, err := raster.NewPostGIS(ctx, pool, cfg.Raster.Table, cfg.Raster.FeaturesName, raster.WithPoolOwnership())
		if err != nil {
			pool.Close()
			return nil, nil, eris.Wrap(err, "open feature raster")
		}
		m, err := raster.NewPostGIS(ctx, pool, cfg.Raster.Table, cfg.Raster.MaskName)
		if err != nil {
			_ = f.Close()
			return nil, nil, eris.Wrap(err, "open mask raster")
		}
		return f, m, nil

	default:
		return nil, nil, eris.Errorf("unsupported raster driver: %s", cfg.Raster.Driver)
	}
}

// initPipeline validates config for mode, opens every collaborator and wires
// the Analyzer and Runner. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string, opts ...pipeline.AnalyzerOption) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	reg, err := regressor.Load(cfg.Model.Path, cfg.Model.Format)
	if err != nil {
		return nil, eris.Wrap(err, "load model")
	}
	predictor, err := lst.NewPredictor(reg)
	if err != nil {
		return nil, eris.Wrap(err, "init predictor")
	}

	env := &pipelineEnv{}
	env.Features, env.Mask, err = initRasters(ctx)
	if err != nil {
		return nil, err
	}

	extractor, err := features.NewExtractor(env.Features)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init extractor")
	}
	computer, err := uhi.NewComputer(env.Mask, cfg.Analysis.Policy())
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init uhi computer")
	}

	env.Store, err = initStore(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Geocoder = initGeocoder()

	opts = append([]pipeline.AnalyzerOption{pipeline.WithBufferKM(cfg.Analysis.BufferKM)}, opts...)
	env.Analyzer = pipeline.NewAnalyzer(geo.NewBBoxBuilder(cfg.Analysis.MaxAbsLatitude), extractor, predictor, computer, opts...)
	env.Runner = pipeline.NewRunner(env.Analyzer, env.Store,
		pipeline.WithGeocoder(env.Geocoder),
		pipeline.WithResultTTL(cfg.ResultTTL()),
		pipeline.WithKeyPrefix(cfg.Store.KeyPrefix),
	)

	zap.L().Info("pipeline ready",
		zap.String("raster_driver", cfg.Raster.Driver),
		zap.Strings("bands", extractor.Registry()),
		zap.Strings("model_features", predictor.Required()),
		zap.String("policy", computer.Policy().String()),
		zap.String("store", cfg.Store.Driver),
	)
	return env, nil
}

// initResults opens just the store and a Runner able to load stored runs.
func initResults(ctx context.Context) (*pipeline.Runner, store.ResultStore, error) {
	if err := cfg.Validate("results"); err != nil {
		return nil, nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	r := pipeline.NewRunner(nil, st,
		pipeline.WithResultTTL(cfg.ResultTTL()),
		pipeline.WithKeyPrefix(cfg.Store.KeyPrefix),
	)
	return r, st, nil
}
