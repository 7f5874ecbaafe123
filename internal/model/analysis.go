package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks the coordinate ranges.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return NewError(KindInvalidInput, "latitude out of range [-90, 90]", "lat", p.Lat)
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return NewError(KindInvalidInput, "longitude out of range [-180, 180]", "lon", p.Lon)
	}
	return nil
}

// BoundingBox is a geographic extent in degrees.
type BoundingBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Array returns the box as [min_lon, min_lat, max_lon, max_lat].
func (b BoundingBox) Array() [4]float64 {
	return [4]float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() GeoPoint {
	return GeoPoint{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Valid reports whether min < max on both axes.
func (b BoundingBox) Valid() bool {
	return b.MinLon < b.MaxLon && b.MinLat < b.MaxLat
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%.6f, %.6f, %.6f, %.6f]", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// FeatureTensor is the ordered feature stack extracted for a region. Names is
// the band registry: Names[i] labels band i of the stack.
type FeatureTensor struct {
	Names []string
	*Stack
}

// Index returns the band index of name in the registry.
func (t *FeatureTensor) Index(name string) (int, bool) {
	for i, n := range t.Names {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// Clone returns a deep copy that shares no storage with t.
func (t *FeatureTensor) Clone() *FeatureTensor {
	names := make([]string, len(t.Names))
	copy(names, t.Names)
	return &FeatureTensor{Names: names, Stack: t.Stack.Clone()}
}

// PredictionMap is a predicted land surface temperature grid.
type PredictionMap struct {
	Grid  *Grid
	CRS   string
	Units string
}

// UHIMap is a prediction grid expressed relative to the region's reference
// statistic.
type UHIMap struct {
	Grid      *Grid
	Reference float64
}

// Operation is a counterfactual transform.
type Operation string

// Supported counterfactual operations.
const (
	OpMultiply Operation = "multiply"
	OpDivide   Operation = "divide"
)

// Change is the caller-facing perturbation request: an operation and its operand.
type Change struct {
	Operation Operation `json:"operation"`
	Value     float64   `json:"value"`
}

// CounterfactualSpec perturbs one feature band.
type CounterfactualSpec struct {
	Feature   string    `json:"feature_name"`
	Operation Operation `json:"operation"`
	Value     float64   `json:"value"`
}

// Float is a float64 that encodes NaN and ±Inf as JSON null.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Summary holds region-level aggregates of an analysis.
type Summary struct {
	BandMeans               map[string]Float `json:"band_means"`
	LSTMean                 Float            `json:"lst_mean"`
	UHIMean                 Float            `json:"uhi_mean"`
	Reference               Float            `json:"reference"`
	CounterfactualUHIMean   Float            `json:"counterfactual_uhi_mean"`
	CounterfactualReference Float            `json:"counterfactual_reference"`
	DeltaUHIMean            Float            `json:"delta_uhi_mean"`
}

// AnalysisResult is the immutable outcome of one analysis run.
type AnalysisResult struct {
	BBox              BoundingBox         `json:"bbox"`
	CRS               string              `json:"crs"`
	Units             string              `json:"units"`
	LST               *Grid               `json:"lst"`
	UHI               *Grid               `json:"uhi"`
	CounterfactualUHI *Grid               `json:"counterfactual_uhi"`
	DeltaUHI          *Grid               `json:"delta_uhi"`
	Counterfactual    *CounterfactualSpec `json:"counterfactual,omitempty"`
	Summary           Summary             `json:"summary"`
}

// HasCounterfactual reports whether the result carries a counterfactual run.
func (r *AnalysisResult) HasCounterfactual() bool {
	return r.CounterfactualUHI != nil
}
