package sift

import (
	"math"

	"sfm-features/internal/feature"
)

const (
	// numSpatialBins x numSpatialBins spatial grid with numAngleBins
	// orientation bins per cell: 4*4*8 = 128 values.
	numSpatialBins = 4
	numAngleBins   = 8

	// magnif relates the descriptor cell size to the keypoint scale.
	magnif = 3.0

	// clampThreshold limits single-bin dominance before renormalization.
	clampThreshold = 0.2
)

// computeRawDescriptor accumulates the gradient-orientation histogram of
// one keypoint. The window is aligned via u, the inverse unit shape
// (rotation for disk keypoints, full affine map for ellipses), and sized
// by sbp, the spatial bin width in octave pixels. The result is
// L2-normalized with the standard 0.2 clamp.
func computeRawDescriptor(c candidate, resolution int, u [4]float64, sbp float64) [feature.DescriptorDim]float32 {
	var desc [feature.DescriptorDim]float32
	grads := c.oct.gradientsAt(clampLevel(c.level, resolution))

	// The sqrt(2) covers the corners of the rotated bin grid.
	winRadius := sbp * float64(numSpatialBins+1) / 2 * math.Sqrt2
	binSigma := float64(numSpatialBins) / 2

	x0 := int(math.Max(0, math.Floor(c.x-winRadius)))
	x1 := int(math.Min(float64(grads.width-1), math.Ceil(c.x+winRadius)))
	y0 := int(math.Max(0, math.Floor(c.y-winRadius)))
	y1 := int(math.Min(float64(grads.height-1), math.Ceil(c.y+winRadius)))

	for py := y0; py <= y1; py++ {
		for px := x0; px <= x1; px++ {
			dx := float64(px) - c.x
			dy := float64(py) - c.y

			// Offset in normalized bin units.
			nx := (u[0]*dx + u[1]*dy) / sbp
			ny := (u[2]*dx + u[3]*dy) / sbp
			if math.Abs(nx) >= binSigma+0.5 || math.Abs(ny) >= binSigma+0.5 {
				continue
			}

			gx, gy := grads.at(px, py)
			rgx := u[0]*float64(gx) + u[1]*float64(gy)
			rgy := u[2]*float64(gx) + u[3]*float64(gy)
			mag := math.Hypot(rgx, rgy)
			if mag == 0 {
				continue
			}
			angle := math.Atan2(rgy, rgx)
			if angle < 0 {
				angle += 2 * math.Pi
			}

			weight := math.Exp(-(nx*nx + ny*ny) / (2 * binSigma * binSigma))

			rbin := ny + float64(numSpatialBins)/2 - 0.5
			cbin := nx + float64(numSpatialBins)/2 - 0.5
			obin := angle / (2 * math.Pi) * numAngleBins

			trilinearAccumulate(&desc, rbin, cbin, obin, weight*mag)
		}
	}

	normalizeClamped(&desc)
	return desc
}

// trilinearAccumulate scatters a weighted sample into the eight
// neighboring histogram bins, wrapping the orientation dimension.
func trilinearAccumulate(desc *[feature.DescriptorDim]float32, rbin, cbin, obin, value float64) {
	r0 := int(math.Floor(rbin))
	c0 := int(math.Floor(cbin))
	o0 := int(math.Floor(obin))
	fr := rbin - float64(r0)
	fc := cbin - float64(c0)
	fo := obin - float64(o0)

	for dr := 0; dr <= 1; dr++ {
		r := r0 + dr
		if r < 0 || r >= numSpatialBins {
			continue
		}
		wr := value * lerpWeight(fr, dr)
		for dc := 0; dc <= 1; dc++ {
			c := c0 + dc
			if c < 0 || c >= numSpatialBins {
				continue
			}
			wc := wr * lerpWeight(fc, dc)
			for do := 0; do <= 1; do++ {
				o := (o0 + do) % numAngleBins
				if o < 0 {
					o += numAngleBins
				}
				desc[(r*numSpatialBins+c)*numAngleBins+o] += float32(wc * lerpWeight(fo, do))
			}
		}
	}
}

func lerpWeight(frac float64, side int) float64 {
	if side == 1 {
		return frac
	}
	return 1 - frac
}

// normalizeClamped L2-normalizes the descriptor, clamps each bin at
// clampThreshold, and renormalizes. Reduces the influence of single
// strong gradients.
func normalizeClamped(desc *[feature.DescriptorDim]float32) {
	normalizeL2(desc)
	for i, v := range desc {
		if v > clampThreshold {
			desc[i] = clampThreshold
		}
	}
	normalizeL2(desc)
}

func normalizeL2(desc *[feature.DescriptorDim]float32) {
	var sum float64
	for _, v := range desc {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range desc {
		desc[i] *= inv
	}
}

// dspScales returns the logarithmically spaced domain-size-pooling scale
// factors in [min, max].
func dspScales(min, max float64, num int) []float64 {
	if num == 1 {
		return []float64{min}
	}
	out := make([]float64, num)
	ratio := math.Pow(max/min, 1/float64(num-1))
	f := min
	for i := 0; i < num; i++ {
		out[i] = f
		f *= ratio
	}
	return out
}

// computeDescriptor computes the final raw descriptor of one oriented
// candidate, averaging over domain-size-pooling scales when enabled.
func computeDescriptor(c candidate, opts feature.ExtractionOptions, u [4]float64) [feature.DescriptorDim]float32 {
	baseSBP := magnif * c.sigma

	if !opts.DomainSizePooling {
		return computeRawDescriptor(c, opts.OctaveResolution, u, baseSBP)
	}

	var pooled [feature.DescriptorDim]float32
	scales := dspScales(opts.DSPMinScale, opts.DSPMaxScale, opts.DSPNumScales)
	for _, s := range scales {
		d := computeRawDescriptor(c, opts.OctaveResolution, u, baseSBP*s)
		for i := range pooled {
			pooled[i] += d[i]
		}
	}
	inv := float32(1 / float64(len(scales)))
	for i := range pooled {
		pooled[i] *= inv
	}
	return pooled
}

// FinalizeDescriptor converts a raw float descriptor to bytes under the
// configured normalization: L1-root (L1-normalize then element-wise
// square root) or plain L2. Bytes are 512*v clamped to [0, 255].
func FinalizeDescriptor(raw []float32, norm feature.Normalization, out []uint8) {
	switch norm {
	case feature.NormalizationL1Root:
		var sum float64
		for _, v := range raw {
			sum += float64(v)
		}
		if sum == 0 {
			sum = 1
		}
		for i, v := range raw {
			out[i] = toDescriptorByte(math.Sqrt(float64(v) / sum))
		}
	default:
		var sum float64
		for _, v := range raw {
			sum += float64(v) * float64(v)
		}
		if sum == 0 {
			sum = 1
		}
		inv := 1 / math.Sqrt(sum)
		for i, v := range raw {
			out[i] = toDescriptorByte(float64(v) * inv)
		}
	}
}

func toDescriptorByte(v float64) uint8 {
	scaled := math.Round(512 * v)
	if scaled > 255 {
		return 255
	}
	if scaled < 0 {
		return 0
	}
	return uint8(scaled)
}
