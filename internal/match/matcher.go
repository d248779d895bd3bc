// Package match implements nearest-neighbor descriptor matching with
// ratio-test, absolute-distance, and cross-check filtering.
package match

import (
	"fmt"
	"math"
	"sort"

	"sfm-features/internal/feature"
)

// AngularDistance returns the angle in radians between two descriptor
// vectors. Zero-norm descriptors are maximally distant.
func AngularDistance(a, b []uint8) float64 {
	var dot, na, nb int64
	for i := range a {
		av := int64(a[i])
		bv := int64(b[i])
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return math.Pi
	}
	cos := float64(dot) / (math.Sqrt(float64(na)) * math.Sqrt(float64(nb)))
	if cos > 1 {
		cos = 1
	}
	return math.Acos(cos)
}

// nearest holds the best and second-best candidate for one query row.
type nearest struct {
	idx       int
	dist      float64
	secondIdx int
	second    float64
}

// findNearest computes, for every row of query, the nearest and
// second-nearest row of train by angular distance. When border > 0, rows
// on opposite sides of the border split are never paired.
func findNearest(query, train *feature.Descriptors, border int) []nearest {
	out := make([]nearest, query.Count())
	for i := range out {
		out[i] = nearest{idx: -1, dist: math.Inf(1), secondIdx: -1, second: math.Inf(1)}
		q := query.Row(i)
		for j := 0; j < train.Count(); j++ {
			if border > 0 && (i < border) != (j < border) {
				continue
			}
			d := AngularDistance(q, train.Row(j))
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

// accept applies the absolute-distance cap and the ratio test.
func accept(n nearest, opts feature.MatchingOptions) bool {
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

// Match computes nearest-neighbor matches from descriptors1 into
// descriptors2 under the configured policy. The result is ordered by Idx1
// and contains no duplicate Idx1 values.
func Match(descriptors1, descriptors2 *feature.Descriptors, opts feature.MatchingOptions) ([]feature.Match, error) {
	if err := opts.Check(); err != nil {
		return nil, fmt.Errorf("invalid matching options: %w", err)
	}
	if descriptors1.Count() == 0 || descriptors2.Count() == 0 {
		return nil, nil
	}
	if descriptors1.Dim != descriptors2.Dim {
		return nil, fmt.Errorf("descriptor dimension mismatch: %d vs %d",
			descriptors1.Dim, descriptors2.Dim)
	}

	forward := findNearest(descriptors1, descriptors2, opts.Border)

	var backward []nearest
	if opts.CrossCheck {
		backward = findNearest(descriptors2, descriptors1, opts.Border)
	}

	var matches []feature.Match
	for i, n := range forward {
		if !accept(n, opts) {
			continue
		}
		if opts.CrossCheck {
			rev := backward[n.idx]
			if rev.idx != i || !accept(rev, opts) {
				continue
			}
		}
		matches = append(matches, feature.Match{
			Idx1:     i,
			Idx2:     n.idx,
			Distance: float32(n.dist),
		})
	}

	return Truncate(matches, opts.MaxNumMatches), nil
}

// Truncate keeps the maxNum lowest-distance matches and restores Idx1
// ordering.
func Truncate(matches []feature.Match, maxNum int) []feature.Match {
	if len(matches) <= maxNum {
		return matches
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Distance < matches[b].Distance
	})
	matches = matches[:maxNum]
	sort.Slice(matches, func(a, b int) bool {
		return matches[a].Idx1 < matches[b].Idx1
	})
	return matches
}
