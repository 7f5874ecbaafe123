package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/store"
	"github.com/mayuresh141/urbanhcf/pkg/geocode"
)

// Result persistence defaults.
const (
	DefaultResultTTL = 900 * time.Second
	DefaultKeyPrefix = "uhi:"
)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithGeocoder enables place-name requests.
func WithGeocoder(g geocode.Client) RunnerOption {
	return func(r *Runner) {
		r.geocoder = g
	}
}

// WithResultTTL sets how long persisted results live.
func WithResultTTL(ttl time.Duration) RunnerOption {
	return func(r *Runner) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithKeyPrefix sets the store key prefix for run identifiers.
func WithKeyPrefix(prefix string) RunnerOption {
	return func(r *Runner) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// Runner resolves requests, runs the Analyzer and persists each successful
// result exactly once under a fresh run identifier.
type Runner struct {
	analyzer *Analyzer
	store    store.ResultStore
	geocoder geocode.Client
	ttl      time.Duration
	prefix   string
	newID    func() string
}

// NewRunner creates a Runner persisting to st.
func NewRunner(a *Analyzer, st store.ResultStore, opts ...RunnerOption) *Runner {
	r := &Runner{
		analyzer: a,
		store:    st,
		ttl:      DefaultResultTTL,
		prefix:   DefaultKeyPrefix,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve geocodes req.Place, if set, into req.Lat/Lon.
func (r *Runner) Resolve(ctx context.Context, req Request) (Request, error) {
	if req.Place == "" {
		return req, nil
	}
	if r.geocoder == nil {
		return req, model.NewError(model.KindInvalidRequest, "place lookup is not configured", "place", req.Place)
	}
	res, err := r.geocoder.Geocode(ctx, req.Place)
	if err != nil {
		return req, eris.Wrapf(err, "pipeline: geocode %q", req.Place)
	}
	if !res.Matched {
		return req, model.NewError(model.KindInvalidInput, "place not found", "place", req.Place)
	}
	req.Lat, req.Lon = res.Latitude, res.Longitude
	zap.L().Debug("pipeline: resolved place",
		zap.String("place", req.Place),
		zap.String("match", res.Name),
		zap.Float64("lat", req.Lat),
		zap.Float64("lon", req.Lon),
	)
	return req, nil
}

// Run analyzes req and stores the result. Nothing is kept when the
// analysis fails or ctx is done before Set returns.
func (r *Runner) Run(ctx context.Context, req Request) (string, *model.AnalysisResult, error) {
	req, err := r.Resolve(ctx, req)
	if err != nil {
		return "", nil, err
	}

	result, err := r.analyzer.Analyze(ctx, req)
	if err != nil {
		return "", nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", nil, eris.Wrap(err, "pipeline: marshal result")
	}
	if err := ctx.Err(); err != nil {
		return "", nil, eris.Wrap(err, "pipeline: discarded result")
	}

	runID := r.newID()
	key := r.prefix + runID
	if err := r.store.Set(ctx, key, payload, r.ttl); err != nil {
		return "", nil, eris.Wrapf(err, "pipeline: persist run %s", runID)
	}
	// The deadline may pass while Set is in flight; the caller then never
	// learns the run id, so the entry is withdrawn.
	if err := ctx.Err(); err != nil {
		r.withdraw(ctx, key)
		return "", nil, eris.Wrap(err, "pipeline: discarded result")
	}

	zap.L().Info("pipeline: run stored",
		zap.String("run_id", runID),
		zap.Int("bytes", len(payload)),
		zap.Duration("ttl", r.ttl),
	)
	return runID, result, nil
}

func (r *Runner) withdraw(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.store.Delete(ctx, key); err != nil {
		zap.L().Warn("pipeline: withdraw late result", zap.String("key", key), zap.Error(err))
	}
}

// Load returns a stored result. Unknown and expired runs are DataUnavailable.
func (r *Runner) Load(ctx context.Context, runID string) (*model.AnalysisResult, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, model.NewError(model.KindInvalidInput, "malformed run id", "run_id", runID)
	}
	payload, err := r.store.Get(ctx, r.prefix+runID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.NewError(model.KindDataUnavailable, "run not found or expired", "run_id", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load run %s", runID)
	}

	var result model.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, eris.Wrapf(err, "pipeline: decode run %s", runID)
	}
	return &result, nil
}
