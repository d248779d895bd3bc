package accel

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"sfm-features/internal/feature"
	"sfm-features/internal/match"
)

// Matcher is the accelerated descriptor matcher. It caches uploaded
// descriptor sets, so repeated calls against the same side can pass nil
// to skip the upload. Not safe for concurrent use.
type Matcher struct {
	opts feature.MatchingOptions
	bf   gocv.BFMatcher

	mat1, mat2     gocv.Mat
	norms1, norms2 []float64
	has1, has2     bool
}

// NewMatcher creates the accelerated matcher. Failure to validate the
// options or to create the matcher affects this call only.
func NewMatcher(opts feature.MatchingOptions) (*Matcher, error) {
	if err := opts.Check(); err != nil {
		return nil, fmt.Errorf("invalid matching options: %w", err)
	}
	return &Matcher{opts: opts, bf: gocv.NewBFMatcher()}, nil
}

// Close releases the matcher context and any cached descriptors.
func (m *Matcher) Close() error {
	if m.has1 {
		m.mat1.Close()
	}
	if m.has2 {
		m.mat2.Close()
	}
	return m.bf.Close()
}

// upload converts a byte descriptor set to a float Mat and caches it with
// per-row norms.
func uploadDescriptors(descriptors *feature.Descriptors) (gocv.Mat, []float64) {
	n := descriptors.Count()
	mat := gocv.NewMatWithSize(n, descriptors.Dim, gocv.MatTypeCV32F)
	norms := make([]float64, n)
	for i := 0; i < n; i++ {
		row := descriptors.Row(i)
		var sum float64
		for j, v := range row {
			f := float64(v)
			sum += f * f
			mat.SetFloatAt(i, j, float32(f))
		}
		norms[i] = math.Sqrt(sum)
	}
	return mat, norms
}

// Match matches the given descriptor sets under the configured policy.
// A nil set reuses the previously uploaded descriptors for that side;
// this avoids redundant upload cost and does not change semantics.
func (m *Matcher) Match(descriptors1, descriptors2 *feature.Descriptors) ([]feature.Match, error) {
	if descriptors1 != nil {
		if m.has1 {
			m.mat1.Close()
		}
		m.mat1, m.norms1 = uploadDescriptors(descriptors1)
		m.has1 = true
	}
	if descriptors2 != nil {
		if m.has2 {
			m.mat2.Close()
		}
		m.mat2, m.norms2 = uploadDescriptors(descriptors2)
		m.has2 = true
	}
	if !m.has1 || !m.has2 {
		return nil, fmt.Errorf("no descriptors uploaded for one side")
	}
	if len(m.norms1) == 0 || len(m.norms2) == 0 {
		return nil, nil
	}

	forward := m.knnNearest(m.mat1, m.mat2, m.norms1, m.norms2)

	var backward []knnCandidate
	if m.opts.CrossCheck {
		backward = m.knnNearest(m.mat2, m.mat1, m.norms2, m.norms1)
	}

	var matches []feature.Match
	for i, n := range forward {
		if !m.acceptCandidate(n) {
			continue
		}
		if m.opts.CrossCheck {
			rev := backward[n.idx]
			if rev.idx != i || !m.acceptCandidate(rev) {
				continue
			}
		}
		matches = append(matches, feature.Match{Idx1: i, Idx2: n.idx, Distance: float32(n.dist)})
	}

	return match.Truncate(matches, m.opts.MaxNumMatches), nil
}

// knnCandidate mirrors the CPU matcher's nearest-neighbor bookkeeping,
// with distances converted to the angular metric.
type knnCandidate struct {
	idx       int
	dist      float64
	secondIdx int
	second    float64
}

// knnNearest runs a 2-NN brute-force search and converts the Euclidean
// distances to angular ones so both strategies agree on thresholds.
func (m *Matcher) knnNearest(query, train gocv.Mat, queryNorms, trainNorms []float64) []knnCandidate {
	knn := m.bf.KnnMatch(query, train, 2)

	out := make([]knnCandidate, len(queryNorms))
	for i := range out {
		out[i] = knnCandidate{idx: -1, dist: math.Inf(1), secondIdx: -1, second: math.Inf(1)}
		if i >= len(knn) {
			continue
		}
		for rank, dm := range knn[i] {
			if dm.TrainIdx < 0 || dm.TrainIdx >= len(trainNorms) {
				continue
			}
			if m.opts.Border > 0 && (i < m.opts.Border) != (dm.TrainIdx < m.opts.Border) {
				continue
			}
			d := angularFromEuclidean(dm.Distance, queryNorms[i], trainNorms[dm.TrainIdx])
			if rank == 0 || d < out[i].dist {
				out[i].second = out[i].dist
				out[i].secondIdx = out[i].idx
				out[i].dist = d
				out[i].idx = dm.TrainIdx
			} else if d < out[i].second {
				out[i].second = d
				out[i].secondIdx = dm.TrainIdx
			}
		}
	}
	return out
}

// angularFromEuclidean recovers the angle between two vectors from their
// Euclidean distance and norms.
func angularFromEuclidean(dist, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return math.Pi
	}
	cos := (na*na + nb*nb - dist*dist) / (2 * na * nb)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos)
}

func (m *Matcher) acceptCandidate(n knnCandidate) bool {
	if n.idx < 0 || n.dist > m.opts.MaxDistance {
		return false
	}
	if n.secondIdx >= 0 {
		if n.second <= 0 {
			return false
		}
		if n.dist/n.second > m.opts.MaxRatio {
			return false
		}
	}
	return true
}
