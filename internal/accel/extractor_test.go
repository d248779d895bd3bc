package accel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"sfm-features/internal/feature"
)

func TestNewExtractorRejectsUnsupportedOptions(t *testing.T) {
	opts := feature.DefaultExtractionOptions()
	opts.EstimateAffineShape = true
	_, err := NewExtractor(opts)
	assert.Error(t, err)

	opts = feature.DefaultExtractionOptions()
	opts.DomainSizePooling = true
	_, err = NewExtractor(opts)
	assert.Error(t, err)

	opts = feature.DefaultExtractionOptions()
	opts.NumOctaves = 0
	_, err = NewExtractor(opts)
	assert.Error(t, err)
}

func TestSelectKeypointsResponseThreshold(t *testing.T) {
	kps := []gocv.KeyPoint{
		{X: 10, Y: 10, Size: 4, Response: 0.002},
		{X: 20, Y: 20, Size: 6, Response: 0.05},
		{X: 30, Y: 30, Size: 8, Response: 0.01},
	}

	opts := feature.DefaultExtractionOptions()
	opts.PeakThreshold = 0.008
	order := selectKeypoints(kps, opts)

	// The weak detection is dropped; the rest come largest scale first.
	require.Equal(t, []int{2, 1}, order)

	opts.PeakThreshold = 0.1
	assert.Empty(t, selectKeypoints(kps, opts))
}

func TestSelectKeypointsCapsByScale(t *testing.T) {
	kps := []gocv.KeyPoint{
		{X: 1, Y: 1, Size: 2, Response: 0.05},
		{X: 2, Y: 2, Size: 10, Response: 0.05},
		{X: 3, Y: 3, Size: 6, Response: 0.05},
		{X: 4, Y: 4, Size: 8, Response: 0.05},
	}

	opts := feature.DefaultExtractionOptions()
	opts.MaxNumFeatures = 2
	order := selectKeypoints(kps, opts)

	assert.Equal(t, []int{1, 3}, order)
}

func TestSelectKeypointsUprightCollapsesOrientations(t *testing.T) {
	// OpenCV emits one keypoint per dominant orientation at the same site.
	kps := []gocv.KeyPoint{
		{X: 10, Y: 10, Size: 4, Angle: 30, Response: 0.05},
		{X: 10, Y: 10, Size: 4, Angle: 210, Response: 0.05},
		{X: 50, Y: 50, Size: 4, Angle: 90, Response: 0.05},
	}

	opts := feature.DefaultExtractionOptions()
	opts.Upright = true
	order := selectKeypoints(kps, opts)
	require.Len(t, order, 2)
	assert.Equal(t, []int{0, 2}, order)

	opts.Upright = false
	assert.Len(t, selectKeypoints(kps, opts), 3)
}
