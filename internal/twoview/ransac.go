package twoview

import (
	"fmt"
	"math"
	"math/rand"

	"sfm-features/internal/feature"
	"sfm-features/pkg/geometry"
)

// ransacSeed fixes the sampling sequence so estimation is deterministic
// for identical inputs. Parallelism across image pairs is the caller's
// concern; each call owns its generator.
const ransacSeed = 42

// modelSpec binds a model kind to its minimal sample size and fitter.
type modelSpec struct {
	kind       ModelKind
	sampleSize int
	fit        func(pts1, pts2 []geometry.Point2D) (geometry.Matrix3, bool)
}

var (
	fundamentalSpec = modelSpec{kind: KindUncalibrated, sampleSize: 8, fit: fitFundamental}
	homographySpec  = modelSpec{kind: KindPlanar, sampleSize: 4, fit: fitHomography}
)

// Estimate robustly fits a two-view model to the candidate matches and
// returns the best-supported model with its inlier set. With
// MultipleModels set, both the fundamental and homography models are
// tried and the one with more inliers wins; otherwise only the
// fundamental model is estimated. Degenerate inputs and below-threshold
// inlier counts yield an invalid geometry, not an error.
func Estimate(keypoints1, keypoints2 []feature.Keypoint, matches []feature.Match, opts feature.MatchingOptions) (TwoViewGeometry, error) {
	if err := opts.Check(); err != nil {
		return TwoViewGeometry{}, fmt.Errorf("invalid matching options: %w", err)
	}

	pts1, pts2 := matchPoints(keypoints1, keypoints2, matches)

	specs := []modelSpec{fundamentalSpec}
	if opts.MultipleModels {
		specs = append(specs, homographySpec)
	}

	best := estimateModel(specs[0], pts1, pts2, matches, opts)
	for _, spec := range specs[1:] {
		geom := estimateModel(spec, pts1, pts2, matches, opts)
		// Strictly-greater keeps the first-tried model on ties.
		if geom.NumInliers > best.NumInliers {
			best = geom
		}
	}

	return best, nil
}

// estimateModel runs the adaptive RANSAC loop for one model kind.
func estimateModel(spec modelSpec, pts1, pts2 []geometry.Point2D, matches []feature.Match, opts feature.MatchingOptions) TwoViewGeometry {
	n := len(matches)

	// Degeneracy check before any sampling: the minimal sample needs
	// enough distinct points on both sides.
	if countDistinct(pts1) < spec.sampleSize || countDistinct(pts2) < spec.sampleSize {
		return TwoViewGeometry{Kind: KindDegenerate}
	}

	maxErrorSq := opts.MaxError * opts.MaxError
	rng := rand.New(rand.NewSource(ransacSeed))

	var bestModel geometry.Matrix3
	bestInliers := -1

	// The a priori inlier ratio seeds the trial budget before any model
	// has been scored.
	maxTrials := clampTrials(ransacTrials(opts.MinInlierRatio, opts.Confidence, spec.sampleSize), opts)

	trial := 0
	for ; trial < maxTrials; trial++ {
		sample := rng.Perm(n)[:spec.sampleSize]
		s1 := make([]geometry.Point2D, spec.sampleSize)
		s2 := make([]geometry.Point2D, spec.sampleSize)
		for i, idx := range sample {
			s1[i] = pts1[idx]
			s2[i] = pts2[idx]
		}

		model, ok := spec.fit(s1, s2)
		if !ok {
			continue
		}
		residual, ok := residualForModel(spec.kind, model)
		if !ok {
			continue
		}

		inliers := 0
		for i := range pts1 {
			if residual(pts1[i], pts2[i]) <= maxErrorSq {
				inliers++
			}
		}

		// Strictly-greater keeps the first-found model on score ties.
		if inliers > bestInliers {
			bestInliers = inliers
			bestModel = model

			ratio := float64(inliers) / float64(n)
			maxTrials = clampTrials(ransacTrials(ratio, opts.Confidence, spec.sampleSize), opts)
		}
	}

	if bestInliers < 0 {
		return TwoViewGeometry{Kind: KindUndetermined, NumTrials: trial}
	}

	geom := TwoViewGeometry{Kind: spec.kind, Model: bestModel, NumTrials: trial}
	scoreGeometry(&geom, pts1, pts2, matches, opts)
	return geom
}

// scoreGeometry recomputes the inlier mask, inlier matches, and validity
// of a geometry over a candidate match set, without re-sampling.
func scoreGeometry(geom *TwoViewGeometry, pts1, pts2 []geometry.Point2D, matches []feature.Match, opts feature.MatchingOptions) {
	residual, ok := residualForModel(geom.Kind, geom.Model)
	if !ok {
		geom.Valid = false
		return
	}

	maxErrorSq := opts.MaxError * opts.MaxError
	geom.InlierMask = make([]bool, len(matches))
	geom.InlierMatches = geom.InlierMatches[:0]
	geom.NumInliers = 0
	for i := range matches {
		if residual(pts1[i], pts2[i]) <= maxErrorSq {
			geom.InlierMask[i] = true
			geom.InlierMatches = append(geom.InlierMatches, matches[i])
			geom.NumInliers++
		}
	}
	geom.Valid = geom.NumInliers >= opts.MinNumInliers
}

// ransacTrials returns the number of trials needed to sample at least one
// all-inlier minimal set with the given confidence, assuming the inlier
// ratio.
func ransacTrials(inlierRatio, confidence float64, sampleSize int) int {
	if inlierRatio >= 1 {
		return 1
	}
	if inlierRatio <= 0 {
		return math.MaxInt32
	}
	pOutlierSample := 1 - math.Pow(inlierRatio, float64(sampleSize))
	if pOutlierSample <= 0 {
		return 1
	}
	if pOutlierSample >= 1 {
		return math.MaxInt32
	}
	trials := math.Log(1-confidence) / math.Log(pOutlierSample)
	if trials < 0 || trials > float64(math.MaxInt32) {
		return math.MaxInt32
	}
	return int(math.Ceil(trials))
}

// clampTrials bounds the adaptive estimate to the configured range.
func clampTrials(trials int, opts feature.MatchingOptions) int {
	if trials < opts.MinNumTrials {
		return opts.MinNumTrials
	}
	if trials > opts.MaxNumTrials {
		return opts.MaxNumTrials
	}
	return trials
}
