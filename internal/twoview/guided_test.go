package twoview

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfm-features/internal/feature"
)

// sceneDescriptors builds descriptors where true correspondences carry
// identical random vectors and everything else is independent noise.
func sceneDescriptors(rng *rand.Rand, numInliers, total int) (*feature.Descriptors, *feature.Descriptors) {
	d1 := feature.NewDescriptors(total, feature.DescriptorDim)
	d2 := feature.NewDescriptors(total, feature.DescriptorDim)
	for i := range d1.Data {
		d1.Data[i] = uint8(rng.Intn(256))
	}
	for i := range d2.Data {
		d2.Data[i] = uint8(rng.Intn(256))
	}
	for i := 0; i < numInliers; i++ {
		copy(d2.Row(i), d1.Row(i))
	}
	return d1, d2
}

func TestMatchGuidedRecoversDroppedMatches(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	const numInliers, numOutliers, dropped = 80, 20, 10

	kps1, kps2, matches := syntheticScene(rng, numInliers, numOutliers)
	d1, d2 := sceneDescriptors(rng, numInliers, numInliers+numOutliers)

	// Estimate the geometry without the first ten true correspondences.
	opts := feature.DefaultMatchingOptions()
	geom, err := Estimate(kps1, kps2, matches[dropped:], opts)
	require.NoError(t, err)
	require.True(t, geom.Valid)

	final, updated, err := MatchGuided(geom, kps1, kps2, d1, d2, opts)
	require.NoError(t, err)

	got := make(map[int]int, len(final))
	for _, m := range final {
		got[m.Idx1] = m.Idx2
	}
	for i := 0; i < dropped; i++ {
		idx2, present := got[i]
		assert.True(t, present, "dropped correspondence %d not recovered", i)
		assert.Equal(t, i, idx2)
	}

	assert.GreaterOrEqual(t, updated.NumInliers, geom.NumInliers,
		"guided matching must not lose inliers")
	assert.True(t, updated.Valid)
	assert.Equal(t, geom.Kind, updated.Kind)
	assert.Equal(t, geom.Model, updated.Model)
}

func TestMatchGuidedInlierCountNeverDecreases(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	kps1, kps2, matches := syntheticScene(rng, 60, 40)
	d1, d2 := sceneDescriptors(rng, 60, 100)

	opts := feature.DefaultMatchingOptions()
	geom, err := Estimate(kps1, kps2, matches, opts)
	require.NoError(t, err)
	require.True(t, geom.Valid)

	for _, crossCheck := range []bool{true, false} {
		opts.CrossCheck = crossCheck
		_, updated, err := MatchGuided(geom, kps1, kps2, d1, d2, opts)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, updated.NumInliers, geom.NumInliers)
	}
}

func TestMatchGuidedRequiresValidGeometry(t *testing.T) {
	d := feature.NewDescriptors(0, feature.DescriptorDim)
	geom := TwoViewGeometry{Kind: KindUndetermined}
	_, _, err := MatchGuided(geom, nil, nil, d, d, feature.DefaultMatchingOptions())
	assert.Error(t, err)
}

func TestMatchGuidedRejectsCountMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	kps1, kps2, matches := syntheticScene(rng, 60, 10)
	d1, d2 := sceneDescriptors(rng, 60, 70)

	opts := feature.DefaultMatchingOptions()
	geom, err := Estimate(kps1, kps2, matches, opts)
	require.NoError(t, err)
	require.True(t, geom.Valid)

	_, _, err = MatchGuided(geom, kps1[:10], kps2, d1, d2, opts)
	assert.Error(t, err)
}
