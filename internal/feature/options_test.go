package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultExtractionOptionsPassCheck(t *testing.T) {
	require.NoError(t, DefaultExtractionOptions().Check())
}

func TestDefaultMatchingOptionsPassCheck(t *testing.T) {
	require.NoError(t, DefaultMatchingOptions().Check())
}

func TestExtractionOptionsCheckRejectsInvalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ExtractionOptions)
	}{
		{"zero max_image_size", func(o *ExtractionOptions) { o.MaxImageSize = 0 }},
		{"zero max_num_features", func(o *ExtractionOptions) { o.MaxNumFeatures = 0 }},
		{"zero num_octaves", func(o *ExtractionOptions) { o.NumOctaves = 0 }},
		{"negative num_octaves", func(o *ExtractionOptions) { o.NumOctaves = -2 }},
		{"zero octave_resolution", func(o *ExtractionOptions) { o.OctaveResolution = 0 }},
		{"negative peak_threshold", func(o *ExtractionOptions) { o.PeakThreshold = -0.01 }},
		{"negative edge_threshold", func(o *ExtractionOptions) { o.EdgeThreshold = -1 }},
		{"zero max_num_orientations", func(o *ExtractionOptions) { o.MaxNumOrientations = 0 }},
		{"dsp_num_scales below one", func(o *ExtractionOptions) { o.DSPNumScales = 0 }},
		{"zero dsp_min_scale", func(o *ExtractionOptions) { o.DSPMinScale = 0 }},
		{"dsp_max below dsp_min", func(o *ExtractionOptions) { o.DSPMinScale = 2; o.DSPMaxScale = 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultExtractionOptions()
			tc.mutate(&opts)
			assert.Error(t, opts.Check())
		})
	}
}

func TestMatchingOptionsCheckRejectsInvalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*MatchingOptions)
	}{
		{"zero max_ratio", func(o *MatchingOptions) { o.MaxRatio = 0 }},
		{"max_ratio above one", func(o *MatchingOptions) { o.MaxRatio = 1.5 }},
		{"negative max_distance", func(o *MatchingOptions) { o.MaxDistance = -0.1 }},
		{"zero max_num_matches", func(o *MatchingOptions) { o.MaxNumMatches = 0 }},
		{"zero max_error", func(o *MatchingOptions) { o.MaxError = 0 }},
		{"zero confidence", func(o *MatchingOptions) { o.Confidence = 0 }},
		{"confidence above one", func(o *MatchingOptions) { o.Confidence = 1.01 }},
		{"zero min_num_trials", func(o *MatchingOptions) { o.MinNumTrials = 0 }},
		{"max trials below min", func(o *MatchingOptions) { o.MinNumTrials = 100; o.MaxNumTrials = 10 }},
		{"zero min_inlier_ratio", func(o *MatchingOptions) { o.MinInlierRatio = 0 }},
		{"negative min_num_inliers", func(o *MatchingOptions) { o.MinNumInliers = -1 }},
		{"negative border", func(o *MatchingOptions) { o.Border = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultMatchingOptions()
			tc.mutate(&opts)
			assert.Error(t, opts.Check())
		})
	}
}

func TestKeypointRescale(t *testing.T) {
	kp := Keypoint{X: 10, Y: 20, Scale: 2, Orientation: 1}
	scaled := kp.Rescale(2, 2)
	assert.InDelta(t, 20, scaled.X, 1e-6)
	assert.InDelta(t, 40, scaled.Y, 1e-6)
	assert.InDelta(t, 4, scaled.Scale, 1e-6)
	assert.InDelta(t, 1, scaled.Orientation, 1e-6)
}

func TestOptionsJSONRoundTrip(t *testing.T) {
	path := t.TempDir() + "/options.json"

	saved := OptionsFile{
		Extraction: DefaultExtractionOptions(),
		Matching:   DefaultMatchingOptions(),
	}
	saved.Extraction.MaxNumFeatures = 1234
	saved.Matching.MaxRatio = 0.5
	require.NoError(t, SaveOptions(path, saved))

	loaded, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, saved.Extraction, loaded.Extraction)
	assert.Equal(t, saved.Matching, loaded.Matching)
}
