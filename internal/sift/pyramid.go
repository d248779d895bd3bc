package sift

import (
	"math"

	"sfm-features/internal/feature"
)

const (
	// baseSigma is the blur level of the first image of each octave.
	baseSigma = 1.6
	// cameraSigma is the assumed blur of the input image at its native
	// sampling rate.
	cameraSigma = 0.5
)

// octave holds the Gaussian and difference-of-Gaussian stacks of one
// pyramid octave, plus lazily computed gradients per blur level.
type octave struct {
	// index is the absolute octave index; coordinates in this octave map
	// to pyramid-base coordinates by multiplying with 2^index.
	index int
	gauss []*floatImage
	dog   []*floatImage
	grads []*gradients
}

// step returns the sampling step of this octave relative to the original
// image frame (octave -1 samples at half-pixel steps).
func (o *octave) step() float64 {
	return math.Pow(2, float64(o.index))
}

// gradientsAt returns the gradients of blur level l, computing them on
// first use.
func (o *octave) gradientsAt(l int) *gradients {
	if o.grads[l] == nil {
		o.grads[l] = computeGradients(o.gauss[l])
	}
	return o.grads[l]
}

// pyramid is the full Gaussian scale space of one image.
type pyramid struct {
	octaves     []*octave
	firstOctave int
	resolution  int
	// sigmaK is the blur multiplier between adjacent levels, 2^(1/S).
	sigmaK float64
}

// buildPyramid constructs the Gaussian scale space. The input image is the
// (possibly pre-downsampled) grayscale float image; first_octave = -1
// upsamples it once before octave 0.
func buildPyramid(img *floatImage, opts feature.ExtractionOptions) *pyramid {
	s := opts.OctaveResolution
	k := math.Pow(2, 1/float64(s))

	p := &pyramid{
		firstOctave: opts.FirstOctave,
		resolution:  s,
		sigmaK:      k,
	}

	base := img
	assumedSigma := cameraSigma
	if opts.FirstOctave < 0 {
		// A single 2x upsample; deeper upsampling gains nothing.
		base = upsample2x(img)
		assumedSigma = cameraSigma * 2
	}

	// Bring the octave base up to baseSigma.
	if baseSigma > assumedSigma {
		delta := math.Sqrt(baseSigma*baseSigma - assumedSigma*assumedSigma)
		base = gaussianBlur(base, delta)
	}

	numLevels := s + 3
	for oi := 0; oi < opts.NumOctaves; oi++ {
		if base.width < 8 || base.height < 8 {
			break
		}

		oct := &octave{
			index: opts.FirstOctave + oi,
			gauss: make([]*floatImage, numLevels),
			dog:   make([]*floatImage, numLevels-1),
			grads: make([]*gradients, numLevels),
		}
		oct.gauss[0] = base

		sigmaPrev := baseSigma
		for l := 1; l < numLevels; l++ {
			sigma := baseSigma * math.Pow(k, float64(l))
			delta := math.Sqrt(sigma*sigma - sigmaPrev*sigmaPrev)
			oct.gauss[l] = gaussianBlur(oct.gauss[l-1], delta)
			sigmaPrev = sigma
		}
		for l := 0; l < numLevels-1; l++ {
			oct.dog[l] = subtract(oct.gauss[l+1], oct.gauss[l])
		}

		p.octaves = append(p.octaves, oct)

		// Level S carries blur 2*baseSigma; decimating it yields the next
		// octave base at baseSigma.
		base = downsample2x(oct.gauss[s])
	}

	return p
}

// levelSigma returns the blur of level l within an octave, in octave
// pixel units.
func (p *pyramid) levelSigma(l float64) float64 {
	return baseSigma * math.Pow(p.sigmaK, l)
}
