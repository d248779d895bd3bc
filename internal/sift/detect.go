package sift

import (
	"math"

	"sfm-features/internal/feature"
)

// candidate is a refined scale-space extremum in octave coordinates.
type candidate struct {
	oct *octave
	// x, y are sub-pixel coordinates in octave pixels; level is the
	// continuous DoG level of the refined extremum.
	x, y  float64
	level float64
	// sigma is the blur of the extremum in octave pixel units.
	sigma float64
}

const maxRefineSteps = 5

// detectExtrema scans the DoG stacks of all octaves for local 3x3x3
// extrema, refines them to sub-pixel accuracy, and filters low-contrast
// and edge-like responses.
func detectExtrema(p *pyramid, opts feature.ExtractionOptions) []candidate {
	var out []candidate

	// The pre-refinement check uses a relaxed threshold so borderline
	// extrema survive until the interpolated value is known.
	preThreshold := float32(0.8 * opts.PeakThreshold)

	for _, oct := range p.octaves {
		for l := 1; l <= p.resolution; l++ {
			w := oct.dog[l].width
			h := oct.dog[l].height
			for y := 1; y < h-1; y++ {
				for x := 1; x < w-1; x++ {
					v := oct.dog[l].at(x, y)
					if v > -preThreshold && v < preThreshold {
						continue
					}
					if !isExtremum(oct, l, x, y, v) {
						continue
					}
					if c, ok := refineExtremum(p, oct, l, x, y, opts); ok {
						out = append(out, c)
					}
				}
			}
		}
	}
	return out
}

// isExtremum reports whether the DoG value v at (x, y, l) is strictly
// larger or strictly smaller than all 26 neighbors.
func isExtremum(oct *octave, l, x, y int, v float32) bool {
	isMax := true
	isMin := true
	for dl := -1; dl <= 1; dl++ {
		plane := oct.dog[l+dl]
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dl == 0 && dy == 0 && dx == 0 {
					continue
				}
				n := plane.at(x+dx, y+dy)
				if n >= v {
					isMax = false
				}
				if n <= v {
					isMin = false
				}
				if !isMax && !isMin {
					return false
				}
			}
		}
	}
	return isMax || isMin
}

// refineExtremum fits a quadratic to the DoG neighborhood and iterates the
// sub-pixel offset, re-centering on neighboring samples when the offset
// exceeds half a pixel. Applies the peak and edge thresholds to the
// refined value.
func refineExtremum(p *pyramid, oct *octave, l, x, y int, opts feature.ExtractionOptions) (candidate, bool) {
	var ox, oy, ol float64
	var value float64

	for step := 0; ; step++ {
		d := oct.dog[l]
		w, h := d.width, d.height

		v := float64(d.at(x, y))

		// Gradient
		gx := 0.5 * float64(d.at(x+1, y)-d.at(x-1, y))
		gy := 0.5 * float64(d.at(x, y+1)-d.at(x, y-1))
		gl := 0.5 * float64(oct.dog[l+1].at(x, y)-oct.dog[l-1].at(x, y))

		// Hessian
		hxx := float64(d.at(x+1, y)+d.at(x-1, y)) - 2*v
		hyy := float64(d.at(x, y+1)+d.at(x, y-1)) - 2*v
		hll := float64(oct.dog[l+1].at(x, y)+oct.dog[l-1].at(x, y)) - 2*v
		hxy := 0.25 * float64(d.at(x+1, y+1)-d.at(x-1, y+1)-d.at(x+1, y-1)+d.at(x-1, y-1))
		hxl := 0.25 * float64(oct.dog[l+1].at(x+1, y)-oct.dog[l+1].at(x-1, y)-
			oct.dog[l-1].at(x+1, y)+oct.dog[l-1].at(x-1, y))
		hyl := 0.25 * float64(oct.dog[l+1].at(x, y+1)-oct.dog[l+1].at(x, y-1)-
			oct.dog[l-1].at(x, y+1)+oct.dog[l-1].at(x, y-1))

		var ok bool
		ox, oy, ol, ok = solve3x3(
			hxx, hxy, hxl,
			hxy, hyy, hyl,
			hxl, hyl, hll,
			-gx, -gy, -gl,
		)
		if !ok {
			return candidate{}, false
		}

		value = v + 0.5*(gx*ox+gy*oy+gl*ol)

		// Converged, or out of refinement budget.
		if (math.Abs(ox) < 0.6 && math.Abs(oy) < 0.6) || step >= maxRefineSteps-1 {
			break
		}

		// Re-center on the neighboring sample and refit.
		if ox > 0.6 && x+1 < w-1 {
			x++
		} else if ox < -0.6 && x-1 > 0 {
			x--
		}
		if oy > 0.6 && y+1 < h-1 {
			y++
		} else if oy < -0.6 && y-1 > 0 {
			y--
		}
	}

	// Reject divergent refinements.
	if math.Abs(ox) > 1.5 || math.Abs(oy) > 1.5 || math.Abs(ol) > 1.5 {
		return candidate{}, false
	}

	// Low-contrast rejection on the interpolated peak value.
	if math.Abs(value) < opts.PeakThreshold {
		return candidate{}, false
	}

	// Edge rejection: ratio of spatial Hessian eigenvalues.
	d := oct.dog[l]
	v := float64(d.at(x, y))
	hxx := float64(d.at(x+1, y)+d.at(x-1, y)) - 2*v
	hyy := float64(d.at(x, y+1)+d.at(x, y-1)) - 2*v
	hxy := 0.25 * float64(d.at(x+1, y+1)-d.at(x-1, y+1)-d.at(x+1, y-1)+d.at(x-1, y-1))
	trace := hxx + hyy
	det := hxx*hyy - hxy*hxy
	if det <= 0 {
		return candidate{}, false
	}
	r := opts.EdgeThreshold
	if trace*trace/det > (r+1)*(r+1)/r {
		return candidate{}, false
	}

	level := float64(l) + ol
	return candidate{
		oct:   oct,
		x:     float64(x) + ox,
		y:     float64(y) + oy,
		level: level,
		sigma: p.levelSigma(level),
	}, true
}

// solve3x3 solves a 3x3 linear system by Cramer's rule.
func solve3x3(
	a11, a12, a13,
	a21, a22, a23,
	a31, a32, a33,
	b1, b2, b3 float64,
) (x, y, z float64, ok bool) {
	det := a11*(a22*a33-a23*a32) - a12*(a21*a33-a23*a31) + a13*(a21*a32-a22*a31)
	if math.Abs(det) < 1e-12 {
		return 0, 0, 0, false
	}
	x = (b1*(a22*a33-a23*a32) - a12*(b2*a33-a23*b3) + a13*(b2*a32-a22*b3)) / det
	y = (a11*(b2*a33-a23*b3) - b1*(a21*a33-a23*a31) + a13*(a21*b3-b2*a31)) / det
	z = (a11*(a22*b3-b2*a32) - a12*(a21*b3-b2*a31) + b1*(a21*a32-a22*a31)) / det
	return x, y, z, true
}
