// Package accel implements the OpenCV-backed execution strategy for
// descriptor extraction and matching. It produces the same keypoint and
// descriptor format as the CPU packages within small numerical tolerance.
// Documented divergences: darkness adaptivity is a behavioral extra of
// this path, and the pyramid shape (first octave, octave count and
// resolution, edge threshold) follows the fixed OpenCV detector
// configuration rather than the configured values. Options without an
// OpenCV counterpart are rejected at construction.
//
// An Extractor or Matcher owns a live OpenCV context and must be used by
// one goroutine at a time; callers keep one instance per worker.
package accel

import (
	"fmt"
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"

	"sfm-features/internal/feature"
	"sfm-features/internal/imgio"
	"sfm-features/internal/sift"
)

// Darkness adaptivity boosts images whose mean intensity falls below the
// target so faint structure clears the detection threshold.
const (
	darknessMeanTarget = 90.0
	darknessMaxGain    = 3.0
)

// Extractor is the accelerated descriptor extractor. Not safe for
// concurrent use.
type Extractor struct {
	opts feature.ExtractionOptions
	sift gocv.SIFT
}

// NewExtractor creates the accelerated extractor. Failure to validate the
// options or to create the detector affects this call only. Affine-shape
// estimation and domain-size pooling have no OpenCV counterpart and are
// rejected here rather than silently ignored; use the CPU extractor for
// those.
func NewExtractor(opts feature.ExtractionOptions) (*Extractor, error) {
	if err := opts.Check(); err != nil {
		return nil, fmt.Errorf("invalid extraction options: %w", err)
	}
	if opts.EstimateAffineShape {
		return nil, fmt.Errorf("affine shape estimation is not supported by the accelerated extractor")
	}
	if opts.DomainSizePooling {
		return nil, fmt.Errorf("domain-size pooling is not supported by the accelerated extractor")
	}
	return &Extractor{opts: opts, sift: gocv.NewSIFT()}, nil
}

// Close releases the detector context.
func (e *Extractor) Close() error {
	return e.sift.Close()
}

// Extract detects keypoints and computes descriptors for one image.
// Coordinates are reported in the original image frame.
func (e *Extractor) Extract(img image.Image) ([]feature.Keypoint, *feature.Descriptors, error) {
	mat, err := imgio.ToGrayMat(img)
	if err != nil {
		return nil, nil, fmt.Errorf("image preprocessing failed: %w", err)
	}
	defer mat.Close()

	scaleX, scaleY := 1.0, 1.0
	cols, rows := mat.Cols(), mat.Rows()
	maxDim := cols
	if rows > maxDim {
		maxDim = rows
	}
	if maxDim > e.opts.MaxImageSize {
		f := float64(e.opts.MaxImageSize) / float64(maxDim)
		newCols := int(math.Round(float64(cols) * f))
		newRows := int(math.Round(float64(rows) * f))
		resized := gocv.NewMat()
		gocv.Resize(mat, &resized, image.Point{X: newCols, Y: newRows}, 0, 0, gocv.InterpolationArea)
		mat.Close()
		mat = resized
		defer mat.Close()
		scaleX = float64(cols) / float64(newCols)
		scaleY = float64(rows) / float64(newRows)
	}

	if e.opts.DarknessAdaptivity {
		mean := mat.Mean()
		if mean.Val1 > 0 && mean.Val1 < darknessMeanTarget {
			gain := darknessMeanTarget / mean.Val1
			if gain > darknessMaxGain {
				gain = darknessMaxGain
			}
			boosted := gocv.NewMat()
			mat.ConvertToWithParams(&boosted, gocv.MatTypeCV8U, float32(gain), 0)
			mat.Close()
			mat = boosted
			defer mat.Close()
		}
	}

	mask := gocv.NewMat()
	defer mask.Close()
	kps, descMat := e.sift.DetectAndCompute(mat, mask)
	defer descMat.Close()

	order := selectKeypoints(kps, e.opts)
	if len(order) == 0 {
		return nil, feature.NewDescriptors(0, feature.DescriptorDim), nil
	}

	keypoints := make([]feature.Keypoint, len(order))
	descriptors := feature.NewDescriptors(len(order), feature.DescriptorDim)
	raw := make([]float32, feature.DescriptorDim)
	for i, idx := range order {
		kp := kps[idx]
		orientation := kp.Angle * math.Pi / 180
		if e.opts.Upright {
			orientation = 0
		}
		keypoints[i] = feature.Keypoint{
			X: float32(kp.X * scaleX),
			Y: float32(kp.Y * scaleY),
			// OpenCV reports the diameter of the support region.
			Scale:       float32(kp.Size / 2 * math.Sqrt(scaleX*scaleY)),
			Orientation: float32(orientation),
		}
		for j := 0; j < feature.DescriptorDim; j++ {
			raw[j] = descMat.GetFloatAt(idx, j)
		}
		sift.FinalizeDescriptor(raw, e.opts.Normalization, descriptors.Row(i))
	}

	return keypoints, descriptors, nil
}

// selectKeypoints returns the indices of the detections to keep: responses
// below the peak threshold are dropped, the rest are ordered largest scale
// first and capped at MaxNumFeatures. With Upright set, the per-orientation
// duplicates OpenCV emits for multi-peak keypoints collapse to one.
func selectKeypoints(kps []gocv.KeyPoint, opts feature.ExtractionOptions) []int {
	order := make([]int, 0, len(kps))
	for i, kp := range kps {
		if kp.Response < opts.PeakThreshold {
			continue
		}
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return kps[order[a]].Size > kps[order[b]].Size
	})

	if opts.Upright {
		type site struct{ x, y, size float64 }
		seen := make(map[site]struct{}, len(order))
		dedup := order[:0]
		for _, idx := range order {
			s := site{x: kps[idx].X, y: kps[idx].Y, size: kps[idx].Size}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			dedup = append(dedup, idx)
		}
		order = dedup
	}

	if len(order) > opts.MaxNumFeatures {
		order = order[:opts.MaxNumFeatures]
	}
	return order
}
