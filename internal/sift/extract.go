package sift

import (
	"context"
	"fmt"
	"image"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"sfm-features/internal/feature"
)

// Extract detects keypoints and computes descriptors on the CPU. The two
// returned sets are index-aligned and of equal length; both are empty when
// nothing is detected. Keypoint coordinates are reported in the original
// image frame even when the image is downsampled to MaxImageSize first.
func Extract(img image.Image, opts feature.ExtractionOptions) ([]feature.Keypoint, *feature.Descriptors, error) {
	return extract(img, opts, true)
}

// DetectKeypoints runs detection only, skipping descriptor computation.
func DetectKeypoints(img image.Image, opts feature.ExtractionOptions) ([]feature.Keypoint, error) {
	keypoints, _, err := extract(img, opts, false)
	return keypoints, err
}

func extract(img image.Image, opts feature.ExtractionOptions, withDescriptors bool) ([]feature.Keypoint, *feature.Descriptors, error) {
	if err := opts.Check(); err != nil {
		return nil, nil, fmt.Errorf("invalid extraction options: %w", err)
	}
	if img == nil {
		return nil, nil, fmt.Errorf("nil image")
	}

	gray := toGray(img)
	origWidth := gray.Bounds().Dx()
	origHeight := gray.Bounds().Dy()
	if origWidth == 0 || origHeight == 0 {
		return nil, nil, fmt.Errorf("empty image")
	}

	// Downsample oversized images, remembering the factors to map
	// detections back into the original frame.
	scaleX, scaleY := 1.0, 1.0
	maxDim := origWidth
	if origHeight > maxDim {
		maxDim = origHeight
	}
	if maxDim > opts.MaxImageSize {
		f := float64(opts.MaxImageSize) / float64(maxDim)
		newWidth := int(math.Round(float64(origWidth) * f))
		newHeight := int(math.Round(float64(origHeight) * f))
		gray = resizeGray(gray, newWidth, newHeight)
		scaleX = float64(origWidth) / float64(newWidth)
		scaleY = float64(origHeight) / float64(newHeight)
	}

	p := buildPyramid(grayToFloat(gray), opts)
	candidates := detectExtrema(p, opts)

	var keypoints []feature.Keypoint
	var raws [][feature.DescriptorDim]float32

	for _, c := range candidates {
		step := c.oct.step()

		switch {
		case opts.Upright:
			kp := feature.Keypoint{
				X:     float32(c.x * step),
				Y:     float32(c.y * step),
				Scale: float32(c.sigma * step),
			}
			keypoints = append(keypoints, kp)
			if withDescriptors {
				u := [4]float64{1, 0, 0, 1}
				raws = append(raws, computeDescriptor(c, opts, u))
			}

		case opts.EstimateAffineShape:
			// One oriented ellipse per keypoint; the orientation cap does
			// not apply to affine frames.
			theta := 0.0
			if peaks := computeOrientations(c, opts.OctaveResolution, 1); len(peaks) > 0 {
				theta = peaks[0]
			}
			shape := estimateAffineShape(c, opts.OctaveResolution, theta)
			kp := feature.Keypoint{
				X:           float32(c.x * step),
				Y:           float32(c.y * step),
				Scale:       float32(c.sigma * step),
				Orientation: float32(theta),
			}
			u := [4]float64{
				math.Cos(theta), math.Sin(theta),
				-math.Sin(theta), math.Cos(theta),
			}
			if shape.ok {
				kp.HasAffine = true
				imgScale := c.sigma * step
				kp.A11 = float32(shape.m[0] * imgScale)
				kp.A12 = float32(shape.m[1] * imgScale)
				kp.A21 = float32(shape.m[2] * imgScale)
				kp.A22 = float32(shape.m[3] * imgScale)
				u = shape.invert()
			}
			keypoints = append(keypoints, kp)
			if withDescriptors {
				raws = append(raws, computeDescriptor(c, opts, u))
			}

		default:
			for _, theta := range computeOrientations(c, opts.OctaveResolution, opts.MaxNumOrientations) {
				kp := feature.Keypoint{
					X:           float32(c.x * step),
					Y:           float32(c.y * step),
					Scale:       float32(c.sigma * step),
					Orientation: float32(theta),
				}
				keypoints = append(keypoints, kp)
				if withDescriptors {
					u := [4]float64{
						math.Cos(theta), math.Sin(theta),
						-math.Sin(theta), math.Cos(theta),
					}
					raws = append(raws, computeDescriptor(c, opts, u))
				}
			}
		}
	}

	keypoints, raws = topScaleFeatures(keypoints, raws, opts.MaxNumFeatures)

	if scaleX != 1 || scaleY != 1 {
		for i := range keypoints {
			keypoints[i] = keypoints[i].Rescale(scaleX, scaleY)
		}
	}

	if !withDescriptors {
		return keypoints, nil, nil
	}

	descriptors := feature.NewDescriptors(len(keypoints), feature.DescriptorDim)
	for i := range keypoints {
		FinalizeDescriptor(raws[i][:], opts.Normalization, descriptors.Row(i))
	}
	return keypoints, descriptors, nil
}

// topScaleFeatures keeps the maxNum largest-scale features, which are
// assumed more stable than fine-scale detections. The sort is stable, so
// equal scales keep their detection order, and keypoint/descriptor rows
// are reordered together.
func topScaleFeatures(keypoints []feature.Keypoint, raws [][feature.DescriptorDim]float32, maxNum int) ([]feature.Keypoint, [][feature.DescriptorDim]float32) {
	if len(keypoints) <= maxNum {
		return keypoints, raws
	}

	order := make([]int, len(keypoints))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return keypoints[order[a]].Scale > keypoints[order[b]].Scale
	})
	order = order[:maxNum]

	outKeypoints := make([]feature.Keypoint, maxNum)
	var outRaws [][feature.DescriptorDim]float32
	if raws != nil {
		outRaws = make([][feature.DescriptorDim]float32, maxNum)
	}
	for i, idx := range order {
		outKeypoints[i] = keypoints[idx]
		if raws != nil {
			outRaws[i] = raws[idx]
		}
	}
	return outKeypoints, outRaws
}

// BatchResult is the extraction outcome for one image of a batch.
type BatchResult struct {
	Keypoints   []feature.Keypoint
	Descriptors *feature.Descriptors
	Err         error
}

// ExtractBatch extracts features from independent images in parallel,
// using up to NumThreads workers (-1 uses all cores). Per-image failures
// are reported in the corresponding BatchResult.
func ExtractBatch(ctx context.Context, images []image.Image, opts feature.ExtractionOptions) ([]BatchResult, error) {
	if err := opts.Check(); err != nil {
		return nil, fmt.Errorf("invalid extraction options: %w", err)
	}

	workers := opts.NumThreads
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]BatchResult, len(images))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			kps, descs, err := Extract(img, opts)
			results[i] = BatchResult{Keypoints: kps, Descriptors: descs, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
