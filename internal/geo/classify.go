// Package geo provides the geographic primitives of the UHI pipeline: bounding
// boxes, affine geotransforms, pixel windows and urban/rural mask classes.
package geo

import "math"

// Mask classification constants.
const (
	ClassUrban        = "urban"
	ClassRural        = "rural"
	ClassUnclassified = "unclassified"
)

// Classify returns the class of a mask pixel.
// Rules:
//   - rural: value > 0
//   - urban: value == 0
//   - unclassified: NaN (no data) or negative
func Classify(v float64) string {
	switch {
	case math.IsNaN(v):
		return ClassUnclassified
	case v > 0:
		return ClassRural
	case v == 0:
		return ClassUrban
	default:
		return ClassUnclassified
	}
}

// ValidClass reports whether class is a reference class a statistic can be
// computed over.
func ValidClass(class string) bool {
	return class == ClassUrban || class == ClassRural
}
