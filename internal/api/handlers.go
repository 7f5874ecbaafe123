package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/mayuresh141/urbanhcf/internal/export"
	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/pipeline"
)

// maxBodyBytes caps POST /analyze bodies.
const maxBodyBytes = 1 << 20

// analyzeRequest is the body of POST /analyze. Either a place or both
// coordinates must be given.
type analyzeRequest struct {
	Lat      *float64      `json:"lat"`
	Lon      *float64      `json:"lon"`
	Place    string        `json:"place"`
	BufferKM *float64      `json:"buffer_km"`
	Feature  string        `json:"feature_name"`
	Change   *model.Change `json:"change"`
}

func (a analyzeRequest) toPipeline() (pipeline.Request, error) {
	req := pipeline.Request{
		Place:    strings.TrimSpace(a.Place),
		BufferKM: a.BufferKM,
		Feature:  a.Feature,
		Change:   a.Change,
	}
	if req.Place != "" {
		return req, nil
	}
	if a.Lat == nil || a.Lon == nil {
		return req, model.NewError(model.KindInvalidInput, "lat and lon, or place, are required")
	}
	req.Lat, req.Lon = *a.Lat, *a.Lon
	return req, nil
}

// analyzeResponse carries the run identifier and the region-level outcome;
// the full grids are served by GET /results/{run_id}.
type analyzeResponse struct {
	Status   string       `json:"status"`
	RunID    string       `json:"run_id"`
	Analysis analysisView `json:"analysis"`
}

type analysisView struct {
	BBox           model.BoundingBox         `json:"bbox"`
	Shape          string                    `json:"shape"`
	CRS            string                    `json:"crs"`
	Units          string                    `json:"units"`
	Counterfactual *model.CounterfactualSpec `json:"counterfactual,omitempty"`
	Summary        model.Summary             `json:"summary"`
}

type resultsResponse struct {
	Status  string                     `json:"status"`
	RunID   string                     `json:"run_id"`
	GeoJSON *geojson.FeatureCollection `json:"geojson"`
}

type geocodeResponse struct {
	Status  string   `json:"status"`
	Query   string   `json:"query"`
	Matched bool     `json:"matched"`
	Name    string   `json:"name,omitempty"`
	Country string   `json:"country,omitempty"`
	Admin1  string   `json:"admin1,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStoreHealth(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeFailure(w, http.StatusServiceUnavailable, kindUnavailable, "no result store configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		zap.L().Warn("api: store ping failed", zap.Error(err))
		writeFailure(w, http.StatusServiceUnavailable, kindUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeFailure(w, http.StatusBadRequest, kindBadRequest, "invalid request body: "+err.Error())
		return
	}
	req, err := body.toPipeline()
	if err != nil {
		s.recordAnalyze(err)
		writeError(w, r, err)
		return
	}

	runID, result, err := s.analyze(r.Context(), req)
	s.recordAnalyze(err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		Status: "ok",
		RunID:  runID,
		Analysis: analysisView{
			BBox:           result.BBox,
			Shape:          result.UHI.Shape().String(),
			CRS:            result.CRS,
			Units:          result.Units,
			Counterfactual: result.Counterfactual,
			Summary:        result.Summary,
		},
	})
}

// analyze runs req in a worker slot under the per-call timeout. When the
// deadline passes the run's context is cancelled and nothing is persisted.
func (s *Server) analyze(parent context.Context, req pipeline.Request) (string, *model.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return "", nil, eris.Wrap(err, "api: wait for analysis slot")
	}
	if s.metrics != nil {
		s.metrics.SlotsInUse.Inc()
	}

	type outcome struct {
		runID  string
		result *model.AnalysisResult
		err    error
	}
	// The slot is held until the run returns, even when the caller has
	// already been answered with a timeout.
	done := make(chan outcome, 1)
	go func() {
		defer s.slots.Release(1)
		if s.metrics != nil {
			defer s.metrics.SlotsInUse.Dec()
		}
		runID, result, err := s.runs.Run(ctx, req)
		done <- outcome{runID, result, err}
	}()

	select {
	case o := <-done:
		return o.runID, o.result, o.err
	case <-ctx.Done():
		select {
		case o := <-done:
			return o.runID, o.result, o.err
		default:
		}
		return "", nil, eris.Wrap(ctx.Err(), "api: analysis abandoned")
	}
}

func (s *Server) recordAnalyze(err error) {
	if s.metrics != nil {
		s.metrics.RecordAnalyze(err)
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	result, err := s.runs.Load(r.Context(), runID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fc, err := export.FeatureCollection(result)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultsResponse{Status: "ok", RunID: runID, GeoJSON: fc})
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if s.geocoder == nil {
		writeFailure(w, http.StatusServiceUnavailable, kindUnavailable, "geocoding is not configured")
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, r, model.NewError(model.KindInvalidInput, "name is required"))
		return
	}

	res, err := s.geocoder.Geocode(r.Context(), name)
	if s.metrics != nil {
		switch {
		case err != nil:
			s.metrics.GeocodeTotal.WithLabelValues("error").Inc()
		case res.Matched:
			s.metrics.GeocodeTotal.WithLabelValues("matched").Inc()
		default:
			s.metrics.GeocodeTotal.WithLabelValues("unmatched").Inc()
		}
	}
	if err != nil {
		if model.KindOf(err) == "" && !errors.Is(err, context.Canceled) {
			zap.L().Warn("api: geocode failed", zap.String("name", name), zap.Error(err))
			writeFailure(w, http.StatusBadGateway, kindUnavailable, "geocoding service failed")
			return
		}
		writeError(w, r, err)
		return
	}

	resp := geocodeResponse{Status: "ok", Query: name, Matched: res.Matched}
	if res.Matched {
		lat, lon := res.Latitude, res.Longitude
		resp.Name, resp.Country, resp.Admin1 = res.Name, res.Country, res.Admin1
		resp.Lat, resp.Lon = &lat, &lon
	}
	writeJSON(w, http.StatusOK, resp)
}
