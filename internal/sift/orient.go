package sift

import (
	"math"
	"sort"
)

const numOrientationBins = 36

// orientationPeak is a dominant gradient direction of a keypoint window.
type orientationPeak struct {
	angle float64
	value float64
}

// computeOrientations builds a Gaussian-weighted gradient-orientation
// histogram around the candidate and returns its dominant peaks, strongest
// first. Peaks below 80% of the maximum are discarded.
func computeOrientations(c candidate, resolution, maxPeaks int) []float64 {
	grads := c.oct.gradientsAt(clampLevel(c.level, resolution))

	winSigma := 1.5 * c.sigma
	radius := int(math.Round(3 * winSigma))
	if radius < 1 {
		radius = 1
	}

	cx := int(math.Round(c.x))
	cy := int(math.Round(c.y))

	var hist [numOrientationBins]float64
	for dy := -radius; dy <= radius; dy++ {
		py := cy + dy
		if py < 0 || py >= grads.height {
			continue
		}
		for dx := -radius; dx <= radius; dx++ {
			px := cx + dx
			if px < 0 || px >= grads.width {
				continue
			}
			r2 := float64(dx*dx + dy*dy)
			if r2 > float64(radius*radius) {
				continue
			}
			gx, gy := grads.at(px, py)
			mag := math.Hypot(float64(gx), float64(gy))
			if mag == 0 {
				continue
			}
			angle := math.Atan2(float64(gy), float64(gx))
			if angle < 0 {
				angle += 2 * math.Pi
			}
			weight := math.Exp(-r2 / (2 * winSigma * winSigma))
			bin := int(float64(numOrientationBins)*angle/(2*math.Pi)) % numOrientationBins
			hist[bin] += weight * mag
		}
	}

	smoothHistogram(hist[:], 6)

	var maxVal float64
	for _, v := range hist {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal == 0 {
		return nil
	}

	var peaks []orientationPeak
	for i := 0; i < numOrientationBins; i++ {
		prev := hist[(i+numOrientationBins-1)%numOrientationBins]
		next := hist[(i+1)%numOrientationBins]
		v := hist[i]
		if v <= prev || v <= next || v < 0.8*maxVal {
			continue
		}
		// Parabolic refinement of the peak position.
		offset := 0.5 * (prev - next) / (prev - 2*v + next)
		angle := 2 * math.Pi * (float64(i) + offset + 0.5) / numOrientationBins
		if angle >= 2*math.Pi {
			angle -= 2 * math.Pi
		} else if angle < 0 {
			angle += 2 * math.Pi
		}
		peaks = append(peaks, orientationPeak{angle: angle, value: v})
	}

	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].value > peaks[j].value })
	if len(peaks) > maxPeaks {
		peaks = peaks[:maxPeaks]
	}

	out := make([]float64, len(peaks))
	for i, p := range peaks {
		out[i] = p.angle
	}
	return out
}

// smoothHistogram applies repeated circular box smoothing in place.
func smoothHistogram(hist []float64, passes int) {
	n := len(hist)
	tmp := make([]float64, n)
	for p := 0; p < passes; p++ {
		for i := 0; i < n; i++ {
			tmp[i] = (hist[(i+n-1)%n] + hist[i] + hist[(i+1)%n]) / 3
		}
		copy(hist, tmp)
	}
}

// affineShape is a unit-determinant 2x2 map describing the oriented
// ellipse of an affine-adapted keypoint, in row-major order.
type affineShape struct {
	m  [4]float64
	ok bool
}

// estimateAffineShape computes the second-moment matrix of the candidate
// window and derives the ellipse that normalizes it to an isotropic
// response, combined with the dominant orientation in the normalized
// frame. Falls back to a disk shape when the moment matrix is degenerate.
func estimateAffineShape(c candidate, resolution int, orientation float64) affineShape {
	grads := c.oct.gradientsAt(clampLevel(c.level, resolution))

	radius := int(math.Round(3 * c.sigma))
	if radius < 1 {
		radius = 1
	}
	cx := int(math.Round(c.x))
	cy := int(math.Round(c.y))

	var mxx, mxy, myy float64
	for dy := -radius; dy <= radius; dy++ {
		py := cy + dy
		if py < 0 || py >= grads.height {
			continue
		}
		for dx := -radius; dx <= radius; dx++ {
			px := cx + dx
			if px < 0 || px >= grads.width {
				continue
			}
			r2 := float64(dx*dx + dy*dy)
			if r2 > float64(radius*radius) {
				continue
			}
			weight := math.Exp(-r2 / (2 * c.sigma * c.sigma))
			gx, gy := grads.at(px, py)
			fx, fy := float64(gx), float64(gy)
			mxx += weight * fx * fx
			mxy += weight * fx * fy
			myy += weight * fy * fy
		}
	}

	// Eigen decomposition of the symmetric moment matrix.
	trace := mxx + myy
	det := mxx*myy - mxy*mxy
	if det <= 1e-18 || trace <= 0 {
		return affineShape{}
	}
	disc := math.Sqrt(math.Max(0, trace*trace/4-det))
	l1 := trace/2 + disc
	l2 := trace/2 - disc
	if l2 <= 1e-18 {
		return affineShape{}
	}

	// Eigenvector for l1.
	var ex, ey float64
	if math.Abs(mxy) > 1e-18 {
		ex, ey = mxy, l1-mxx
	} else if mxx >= myy {
		ex, ey = 1, 0
	} else {
		ex, ey = 0, 1
	}
	norm := math.Hypot(ex, ey)
	ex /= norm
	ey /= norm

	// Unit-determinant inverse square root: the axis with the stronger
	// gradient response is shrunk, the weaker one stretched.
	a := math.Pow(l2/l1, 0.25)
	b := math.Pow(l1/l2, 0.25)

	// V * diag(a, b) * V^T
	n11 := a*ex*ex + b*ey*ey
	n12 := (a - b) * ex * ey
	n22 := a*ey*ey + b*ex*ex

	// Fold in the dominant orientation: shape = N * R(theta).
	cos := math.Cos(orientation)
	sin := math.Sin(orientation)
	return affineShape{
		m: [4]float64{
			n11*cos + n12*sin, -n11*sin + n12*cos,
			n12*cos + n22*sin, -n12*sin + n22*cos,
		},
		ok: true,
	}
}

// invert returns the inverse of the unit-determinant shape.
func (s affineShape) invert() [4]float64 {
	det := s.m[0]*s.m[3] - s.m[1]*s.m[2]
	return [4]float64{s.m[3] / det, -s.m[1] / det, -s.m[2] / det, s.m[0] / det}
}

// clampLevel picks the Gaussian level nearest to the continuous DoG level.
func clampLevel(level float64, resolution int) int {
	l := int(math.Round(level))
	if l < 1 {
		l = 1
	}
	if l > resolution {
		l = resolution
	}
	return l
}
