// Package twoview implements robust two-view geometric verification of
// candidate feature matches: adaptive RANSAC over fundamental-matrix and
// planar-homography models, plus model-guided re-matching.
package twoview

import (
	"sfm-features/internal/feature"
	"sfm-features/pkg/geometry"
)

// ModelKind identifies the geometric model relating two views.
type ModelKind int

const (
	// KindUndetermined means no model could be estimated.
	KindUndetermined ModelKind = iota
	// KindDegenerate means the candidate matches cannot support a minimal
	// sample (too few distinct points).
	KindDegenerate
	// KindUncalibrated is a fundamental matrix relating uncalibrated views.
	KindUncalibrated
	// KindPlanar is a planar homography.
	KindPlanar
)

func (k ModelKind) String() string {
	switch k {
	case KindUncalibrated:
		return "uncalibrated"
	case KindPlanar:
		return "planar"
	case KindDegenerate:
		return "degenerate"
	default:
		return "undetermined"
	}
}

// TwoViewGeometry is the result of geometric verification: the winning
// model, its inlier mask over the candidate match set, the surviving
// inlier matches, and a validity flag. Valid is false when the inlier
// count falls below MinNumInliers or the input was degenerate.
type TwoViewGeometry struct {
	Kind          ModelKind
	Model         geometry.Matrix3
	InlierMask    []bool
	InlierMatches []feature.Match
	NumInliers    int
	// NumTrials is the number of RANSAC trials the winning model consumed.
	NumTrials int
	Valid     bool
}

// residualFunc returns the squared residual of a correspondence under a
// model, in squared pixels.
type residualFunc func(p1, p2 geometry.Point2D) float64

// residualForModel builds the residual function for a model kind:
// squared Sampson distance for fundamental matrices, squared symmetric
// transfer error for homographies.
func residualForModel(kind ModelKind, model geometry.Matrix3) (residualFunc, bool) {
	switch kind {
	case KindUncalibrated:
		return model.SampsonDistanceSq, true
	case KindPlanar:
		inv, ok := model.Inverse3()
		if !ok {
			return nil, false
		}
		return func(p1, p2 geometry.Point2D) float64 {
			return model.SymmetricTransferErrorSq(inv, p1, p2)
		}, true
	default:
		return nil, false
	}
}

// matchPoints gathers the keypoint positions of a candidate match set.
func matchPoints(keypoints1, keypoints2 []feature.Keypoint, matches []feature.Match) ([]geometry.Point2D, []geometry.Point2D) {
	pts1 := make([]geometry.Point2D, len(matches))
	pts2 := make([]geometry.Point2D, len(matches))
	for i, m := range matches {
		pts1[i] = keypoints1[m.Idx1].Point()
		pts2[i] = keypoints2[m.Idx2].Point()
	}
	return pts1, pts2
}

// countDistinct returns the number of distinct points, quantized to a
// fine grid so coincident detections collapse.
func countDistinct(points []geometry.Point2D) int {
	type cell struct{ x, y int64 }
	seen := make(map[cell]struct{}, len(points))
	for _, p := range points {
		seen[cell{int64(p.X * 1024), int64(p.Y * 1024)}] = struct{}{}
	}
	return len(seen)
}
