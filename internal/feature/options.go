package feature

import (
	"fmt"
)

// Normalization selects how raw descriptors are normalized before byte
// conversion.
type Normalization int

const (
	// NormalizationL1Root L1-normalizes each descriptor followed by
	// element-wise square rooting. Usually matches better than plain L2.
	NormalizationL1Root Normalization = iota
	// NormalizationL2 L2-normalizes each descriptor.
	NormalizationL2
)

// ExtractionOptions configures descriptor extraction. Values are never
// mutated mid-call; validate with Check before use.
type ExtractionOptions struct {
	// Number of worker threads for batch extraction. -1 uses all cores.
	NumThreads int `json:"num_threads"`

	// Maximum image size; larger images are downsampled before extraction.
	MaxImageSize int `json:"max_image_size"`

	// Maximum number of features to detect, keeping larger-scale features.
	MaxNumFeatures int `json:"max_num_features"`

	// First octave in the pyramid, i.e. -1 upsamples the image by one level.
	FirstOctave int `json:"first_octave"`

	// Number of octaves.
	NumOctaves int `json:"num_octaves"`

	// Number of levels per octave.
	OctaveResolution int `json:"octave_resolution"`

	// Peak threshold for detection.
	PeakThreshold float64 `json:"peak_threshold"`

	// Edge threshold for detection.
	EdgeThreshold float64 `json:"edge_threshold"`

	// Estimate affine shape in the form of oriented ellipses as opposed to
	// oriented disks.
	EstimateAffineShape bool `json:"estimate_affine_shape"`

	// Maximum number of orientations per keypoint if not EstimateAffineShape.
	MaxNumOrientations int `json:"max_num_orientations"`

	// Fix the orientation to 0 for upright features.
	Upright bool `json:"upright"`

	// Whether to adapt detection to image darkness. Only available in the
	// accelerated extractor.
	DarknessAdaptivity bool `json:"darkness_adaptivity"`

	// Domain-size pooling averages descriptors over multiple window scales
	// around the detected scale.
	DomainSizePooling bool    `json:"domain_size_pooling"`
	DSPMinScale       float64 `json:"dsp_min_scale"`
	DSPMaxScale       float64 `json:"dsp_max_scale"`
	DSPNumScales      int     `json:"dsp_num_scales"`

	Normalization Normalization `json:"normalization"`
}

// DefaultExtractionOptions returns extraction defaults.
func DefaultExtractionOptions() ExtractionOptions {
	return ExtractionOptions{
		NumThreads:         -1,
		MaxImageSize:       3200,
		MaxNumFeatures:     8192,
		FirstOctave:        -1,
		NumOctaves:         4,
		OctaveResolution:   3,
		PeakThreshold:      0.02 / 3,
		EdgeThreshold:      10.0,
		MaxNumOrientations: 2,
		DSPMinScale:        1.0 / 6.0,
		DSPMaxScale:        3.0,
		DSPNumScales:       10,
		Normalization:      NormalizationL1Root,
	}
}

// Check validates the options. Violations are configuration errors; the
// caller must not run extraction with options that fail Check.
func (o ExtractionOptions) Check() error {
	if o.MaxImageSize <= 0 {
		return fmt.Errorf("max_image_size must be positive, got %d", o.MaxImageSize)
	}
	if o.MaxNumFeatures <= 0 {
		return fmt.Errorf("max_num_features must be positive, got %d", o.MaxNumFeatures)
	}
	if o.NumOctaves <= 0 {
		return fmt.Errorf("num_octaves must be positive, got %d", o.NumOctaves)
	}
	if o.OctaveResolution <= 0 {
		return fmt.Errorf("octave_resolution must be positive, got %d", o.OctaveResolution)
	}
	if o.PeakThreshold < 0 {
		return fmt.Errorf("peak_threshold must be non-negative, got %g", o.PeakThreshold)
	}
	if o.EdgeThreshold < 0 {
		return fmt.Errorf("edge_threshold must be non-negative, got %g", o.EdgeThreshold)
	}
	if o.MaxNumOrientations <= 0 {
		return fmt.Errorf("max_num_orientations must be positive, got %d", o.MaxNumOrientations)
	}
	if o.DSPNumScales < 1 {
		return fmt.Errorf("dsp_num_scales must be at least 1, got %d", o.DSPNumScales)
	}
	if o.DSPMinScale <= 0 {
		return fmt.Errorf("dsp_min_scale must be positive, got %g", o.DSPMinScale)
	}
	if o.DSPMaxScale < o.DSPMinScale {
		return fmt.Errorf("dsp_max_scale (%g) must not be below dsp_min_scale (%g)",
			o.DSPMaxScale, o.DSPMinScale)
	}
	if o.Normalization != NormalizationL1Root && o.Normalization != NormalizationL2 {
		return fmt.Errorf("unknown normalization %d", o.Normalization)
	}
	return nil
}

// MatchingOptions configures descriptor matching and geometric
// verification. Values are never mutated mid-call; validate with Check
// before use.
type MatchingOptions struct {
	// Number of worker threads for matching across pairs. -1 uses all cores.
	NumThreads int `json:"num_threads"`

	// Maximum distance ratio between first and second best match.
	MaxRatio float64 `json:"max_ratio"`

	// Maximum distance to best match.
	MaxDistance float64 `json:"max_distance"`

	// Whether to enable cross checking in matching.
	CrossCheck bool `json:"cross_check"`

	// Maximum number of matches.
	MaxNumMatches int `json:"max_num_matches"`

	// Maximum epipolar/transfer error in pixels for geometric verification.
	MaxError float64 `json:"max_error"`

	// Confidence threshold for geometric verification.
	Confidence float64 `json:"confidence"`

	// Minimum/maximum number of RANSAC trials. These bounds overrule the
	// estimate derived from MinInlierRatio.
	MinNumTrials int `json:"min_num_trials"`
	MaxNumTrials int `json:"max_num_trials"`

	// A priori assumed minimum inlier ratio, which seeds the adaptive
	// trial-count estimate.
	MinInlierRatio float64 `json:"min_inlier_ratio"`

	// Minimum number of inliers for a pair to be considered verified.
	MinNumInliers int `json:"min_num_inliers"`

	// Whether to attempt to estimate multiple geometric models per pair.
	MultipleModels bool `json:"multiple_models"`

	// Whether to perform guided matching when verification succeeds.
	GuidedMatching bool `json:"guided_matching"`

	// Border between two logical sub-regions of a combined descriptor set.
	// Matches must not pair across the border split.
	Border int `json:"border"`
}

// DefaultMatchingOptions returns matching defaults.
func DefaultMatchingOptions() MatchingOptions {
	return MatchingOptions{
		NumThreads:     -1,
		MaxRatio:       0.8,
		MaxDistance:    0.7,
		CrossCheck:     true,
		MaxNumMatches:  32768,
		MaxError:       4.0,
		Confidence:     0.999,
		MinNumTrials:   30,
		MaxNumTrials:   10000,
		MinInlierRatio: 0.25,
		MinNumInliers:  15,
	}
}

// Check validates the options. Violations are configuration errors; the
// caller must not run matching with options that fail Check.
func (o MatchingOptions) Check() error {
	if o.MaxRatio <= 0 || o.MaxRatio > 1 {
		return fmt.Errorf("max_ratio must be in (0, 1], got %g", o.MaxRatio)
	}
	if o.MaxDistance < 0 {
		return fmt.Errorf("max_distance must be non-negative, got %g", o.MaxDistance)
	}
	if o.MaxNumMatches <= 0 {
		return fmt.Errorf("max_num_matches must be positive, got %d", o.MaxNumMatches)
	}
	if o.MaxError <= 0 {
		return fmt.Errorf("max_error must be positive, got %g", o.MaxError)
	}
	if o.Confidence <= 0 || o.Confidence > 1 {
		return fmt.Errorf("confidence must be in (0, 1], got %g", o.Confidence)
	}
	if o.MinNumTrials <= 0 {
		return fmt.Errorf("min_num_trials must be positive, got %d", o.MinNumTrials)
	}
	if o.MaxNumTrials < o.MinNumTrials {
		return fmt.Errorf("max_num_trials (%d) must not be below min_num_trials (%d)",
			o.MaxNumTrials, o.MinNumTrials)
	}
	if o.MinInlierRatio <= 0 || o.MinInlierRatio > 1 {
		return fmt.Errorf("min_inlier_ratio must be in (0, 1], got %g", o.MinInlierRatio)
	}
	if o.MinNumInliers < 0 {
		return fmt.Errorf("min_num_inliers must be non-negative, got %d", o.MinNumInliers)
	}
	if o.Border < 0 {
		return fmt.Errorf("border must be non-negative, got %d", o.Border)
	}
	return nil
}
