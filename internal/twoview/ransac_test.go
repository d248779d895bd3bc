package twoview

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfm-features/internal/feature"
	"sfm-features/pkg/geometry"
)

// testCamera projects 3D points through two views sharing intrinsics
// f=800, c=(400, 300): view 1 at the origin, view 2 rotated about Y and
// translated sideways.
type testCamera struct {
	angle float64
	tx    float64
}

func (c testCamera) project1(x, y, z float64) geometry.Point2D {
	return geometry.Point2D{X: 800*x/z + 400, Y: 800*y/z + 300}
}

func (c testCamera) project2(x, y, z float64) geometry.Point2D {
	ca, sa := math.Cos(c.angle), math.Sin(c.angle)
	x2 := ca*x + sa*z + c.tx
	y2 := y
	z2 := -sa*x + ca*z
	return geometry.Point2D{X: 800*x2/z2 + 400, Y: 800*y2/z2 + 300}
}

// syntheticScene builds index-aligned keypoint sets from a random 3D
// scene: the first numInliers matches are exact projections of the same
// 3D points, the rest pair unrelated random image points.
func syntheticScene(rng *rand.Rand, numInliers, numOutliers int) ([]feature.Keypoint, []feature.Keypoint, []feature.Match) {
	cam := testCamera{angle: 0.05, tx: -0.5}

	n := numInliers + numOutliers
	kps1 := make([]feature.Keypoint, n)
	kps2 := make([]feature.Keypoint, n)
	matches := make([]feature.Match, n)

	for i := 0; i < numInliers; i++ {
		x := rng.Float64()*4 - 2
		y := rng.Float64()*3 - 1.5
		z := rng.Float64()*4 + 4
		p1 := cam.project1(x, y, z)
		p2 := cam.project2(x, y, z)
		kps1[i] = feature.Keypoint{X: float32(p1.X), Y: float32(p1.Y), Scale: 2}
		kps2[i] = feature.Keypoint{X: float32(p2.X), Y: float32(p2.Y), Scale: 2}
	}
	for i := numInliers; i < n; i++ {
		kps1[i] = feature.Keypoint{X: float32(rng.Float64() * 800), Y: float32(rng.Float64() * 600), Scale: 2}
		kps2[i] = feature.Keypoint{X: float32(rng.Float64() * 800), Y: float32(rng.Float64() * 600), Scale: 2}
	}
	for i := range matches {
		matches[i] = feature.Match{Idx1: i, Idx2: i}
	}
	return kps1, kps2, matches
}

func TestEstimateRecoversEpipolarGeometry(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	kps1, kps2, matches := syntheticScene(rng, 100, 30)

	opts := feature.DefaultMatchingOptions()
	geom, err := Estimate(kps1, kps2, matches, opts)
	require.NoError(t, err)

	assert.Equal(t, KindUncalibrated, geom.Kind)
	assert.True(t, geom.Valid)
	assert.GreaterOrEqual(t, geom.NumInliers, 100, "all true correspondences must be inliers")
	assert.Len(t, geom.InlierMask, len(matches))
	assert.Len(t, geom.InlierMatches, geom.NumInliers)

	// The noise-free correspondences all satisfy the recovered model.
	for i := 0; i < 100; i++ {
		assert.True(t, geom.InlierMask[i], "true correspondence %d marked outlier", i)
	}
}

func TestEstimateTrialCountWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	kps1, kps2, matches := syntheticScene(rng, 100, 30)

	opts := feature.DefaultMatchingOptions()
	geom, err := Estimate(kps1, kps2, matches, opts)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, geom.NumTrials, opts.MinNumTrials)
	assert.LessOrEqual(t, geom.NumTrials, opts.MaxNumTrials)
}

func TestEstimateDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	kps1, kps2, matches := syntheticScene(rng, 60, 20)

	opts := feature.DefaultMatchingOptions()
	first, err := Estimate(kps1, kps2, matches, opts)
	require.NoError(t, err)
	second, err := Estimate(kps1, kps2, matches, opts)
	require.NoError(t, err)

	assert.Equal(t, first.NumInliers, second.NumInliers)
	assert.Equal(t, first.NumTrials, second.NumTrials)
	assert.Equal(t, first.Model, second.Model)
	assert.Equal(t, first.InlierMask, second.InlierMask)
}

func TestEstimateTooFewInliersInvalid(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	kps1, kps2, matches := syntheticScene(rng, 10, 50)

	// Ten true correspondences cannot reach the default threshold of 15.
	geom, err := Estimate(kps1, kps2, matches, feature.DefaultMatchingOptions())
	require.NoError(t, err)
	assert.False(t, geom.Valid)
}

func TestEstimateDegenerateInput(t *testing.T) {
	kps1 := make([]feature.Keypoint, 20)
	kps2 := make([]feature.Keypoint, 20)
	matches := make([]feature.Match, 20)
	for i := range matches {
		// Every match lands on the same point pair.
		kps1[i] = feature.Keypoint{X: 100, Y: 100}
		kps2[i] = feature.Keypoint{X: 200, Y: 150}
		matches[i] = feature.Match{Idx1: i, Idx2: i}
	}

	geom, err := Estimate(kps1, kps2, matches, feature.DefaultMatchingOptions())
	require.NoError(t, err)
	assert.Equal(t, KindDegenerate, geom.Kind)
	assert.False(t, geom.Valid)
}

func TestEstimateMultipleModels(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	kps1, kps2, matches := syntheticScene(rng, 100, 30)

	single := feature.DefaultMatchingOptions()
	singleGeom, err := Estimate(kps1, kps2, matches, single)
	require.NoError(t, err)

	multi := single
	multi.MultipleModels = true
	multiGeom, err := Estimate(kps1, kps2, matches, multi)
	require.NoError(t, err)

	// A homography cannot out-score the epipolar model on a non-planar
	// scene with parallax.
	assert.Equal(t, KindUncalibrated, multiGeom.Kind)
	assert.GreaterOrEqual(t, multiGeom.NumInliers, singleGeom.NumInliers)
}

func TestEstimateRejectsInvalidOptions(t *testing.T) {
	opts := feature.DefaultMatchingOptions()
	opts.MaxError = -1
	_, err := Estimate(nil, nil, nil, opts)
	assert.Error(t, err)
}

func TestRansacTrials(t *testing.T) {
	assert.Equal(t, 1, ransacTrials(1, 0.999, 8))
	assert.Equal(t, math.MaxInt32, ransacTrials(0, 0.999, 8))

	// Higher inlier ratios need fewer trials.
	low := ransacTrials(0.3, 0.999, 8)
	high := ransacTrials(0.9, 0.999, 8)
	assert.Greater(t, low, high)
	assert.Positive(t, high)
}

func TestClampTrials(t *testing.T) {
	opts := feature.DefaultMatchingOptions()
	assert.Equal(t, opts.MinNumTrials, clampTrials(1, opts))
	assert.Equal(t, opts.MaxNumTrials, clampTrials(math.MaxInt32, opts))
	assert.Equal(t, 500, clampTrials(500, opts))
}
