package twoview

import (
	"fmt"
	"math"

	"sfm-features/internal/feature"
	"sfm-features/internal/match"
	"sfm-features/pkg/geometry"
)

// MatchGuided re-matches descriptors under the constraint of an already
// fitted geometry: for each keypoint of set 1, only keypoints of set 2
// whose residual under the model is within MaxError compete, replacing
// the blind ratio test with a model-constrained search. The final match
// set is the union of the geometry's previous inlier matches and the
// guided matches, so the inlier count never decreases. The returned
// geometry keeps the model and is re-scored (not re-sampled) over the
// final set.
func MatchGuided(
	geom TwoViewGeometry,
	keypoints1, keypoints2 []feature.Keypoint,
	descriptors1, descriptors2 *feature.Descriptors,
	opts feature.MatchingOptions,
) ([]feature.Match, TwoViewGeometry, error) {
	if err := opts.Check(); err != nil {
		return nil, geom, fmt.Errorf("invalid matching options: %w", err)
	}
	if !geom.Valid {
		return nil, geom, fmt.Errorf("guided matching requires a valid geometry, got %s", geom.Kind)
	}
	if len(keypoints1) != descriptors1.Count() || len(keypoints2) != descriptors2.Count() {
		return nil, geom, fmt.Errorf("keypoint/descriptor count mismatch: %d vs %d and %d vs %d",
			len(keypoints1), descriptors1.Count(), len(keypoints2), descriptors2.Count())
	}

	residual, ok := residualForModel(geom.Kind, geom.Model)
	if !ok {
		return nil, geom, fmt.Errorf("geometry kind %s has no residual", geom.Kind)
	}

	pts1 := make([]geometry.Point2D, len(keypoints1))
	for i, kp := range keypoints1 {
		pts1[i] = kp.Point()
	}
	pts2 := make([]geometry.Point2D, len(keypoints2))
	for i, kp := range keypoints2 {
		pts2[i] = kp.Point()
	}

	maxErrorSq := opts.MaxError * opts.MaxError
	allowed := func(i, j int) bool {
		return residual(pts1[i], pts2[j]) <= maxErrorSq
	}

	forward := nearestConstrained(descriptors1, descriptors2, allowed, false)
	var guided []feature.Match
	if opts.CrossCheck {
		backward := nearestConstrained(descriptors2, descriptors1, allowed, true)
		for i, n := range forward {
			if !acceptNearest(n, opts) {
				continue
			}
			rev := backward[n.idx]
			if rev.idx != i || !acceptNearest(rev, opts) {
				continue
			}
			guided = append(guided, feature.Match{Idx1: i, Idx2: n.idx, Distance: float32(n.dist)})
		}
	} else {
		for i, n := range forward {
			if acceptNearest(n, opts) {
				guided = append(guided, feature.Match{Idx1: i, Idx2: n.idx, Distance: float32(n.dist)})
			}
		}
	}

	// Union with the previous inlier matches; guided matches win on Idx1
	// collisions since they are descriptor-best under the same constraint.
	seen := make(map[int]struct{}, len(guided))
	for _, m := range guided {
		seen[m.Idx1] = struct{}{}
	}
	final := guided
	for _, m := range geom.InlierMatches {
		if _, dup := seen[m.Idx1]; !dup {
			final = append(final, m)
		}
	}

	fp1, fp2 := matchPoints(keypoints1, keypoints2, final)
	updated := geom
	updated.InlierMatches = nil
	scoreGeometry(&updated, fp1, fp2, final, opts)
	return final, updated, nil
}

// guidedNearest mirrors the matcher's nearest-neighbor bookkeeping.
type guidedNearest struct {
	idx       int
	dist      float64
	secondIdx int
	second    float64
}

// nearestConstrained finds best and second-best candidates among the
// geometrically admissible pairs. For the reverse direction the allowed
// predicate is evaluated with swapped indices.
func nearestConstrained(query, train *feature.Descriptors, allowed func(i, j int) bool, reverse bool) []guidedNearest {
	out := make([]guidedNearest, query.Count())
	for i := range out {
		out[i] = guidedNearest{idx: -1, dist: math.Inf(1), secondIdx: -1, second: math.Inf(1)}
		q := query.Row(i)
		for j := 0; j < train.Count(); j++ {
			ok := false
			if reverse {
				ok = allowed(j, i)
			} else {
				ok = allowed(i, j)
			}
			if !ok {
				continue
			}
			d := match.AngularDistance(q, train.Row(j))
			if d < out[i].dist {
				out[i].second = out[i].dist
				out[i].secondIdx = out[i].idx
				out[i].dist = d
				out[i].idx = j
			} else if d < out[i].second {
				out[i].second = d
				out[i].secondIdx = j
			}
		}
	}
	return out
}

func acceptNearest(n guidedNearest, opts feature.MatchingOptions) bool {
	if n.idx < 0 || n.dist > opts.MaxDistance {
		return false
	}
	if n.secondIdx >= 0 {
		if n.second <= 0 {
			return false
		}
		if n.dist/n.second > opts.MaxRatio {
			return false
		}
	}
	return true
}
