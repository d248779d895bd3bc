// Package sift implements scale/rotation-invariant descriptor extraction on
// the CPU: Gaussian scale-space construction, difference-of-Gaussian
// extrema detection, orientation and affine-shape estimation, and 128-dim
// byte descriptors with optional domain-size pooling.
package sift

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// floatImage is a single-channel float32 image with values in [0, 1].
type floatImage struct {
	width  int
	height int
	pix    []float32
}

func newFloatImage(width, height int) *floatImage {
	return &floatImage{width: width, height: height, pix: make([]float32, width*height)}
}

func (f *floatImage) at(x, y int) float32 {
	return f.pix[y*f.width+x]
}

func (f *floatImage) set(x, y int, v float32) {
	f.pix[y*f.width+x] = v
}

// atClamped reads with coordinates clamped to the image border.
func (f *floatImage) atClamped(x, y int) float32 {
	if x < 0 {
		x = 0
	} else if x >= f.width {
		x = f.width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= f.height {
		y = f.height - 1
	}
	return f.pix[y*f.width+x]
}

// toGray converts any image to 8-bit grayscale.
func toGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	xdraw.Draw(gray, bounds, img, bounds.Min, xdraw.Src)
	return gray
}

// resizeGray resizes a grayscale image with a Catmull-Rom scaler.
func resizeGray(gray *image.Gray, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), gray, gray.Bounds(), xdraw.Src, nil)
	return dst
}

// grayToFloat converts an 8-bit grayscale image to [0, 1] floats.
func grayToFloat(gray *image.Gray) *floatImage {
	bounds := gray.Bounds()
	f := newFloatImage(bounds.Dx(), bounds.Dy())
	for y := 0; y < f.height; y++ {
		row := gray.Pix[(y+bounds.Min.Y-gray.Rect.Min.Y)*gray.Stride:]
		for x := 0; x < f.width; x++ {
			f.pix[y*f.width+x] = float32(row[x+bounds.Min.X-gray.Rect.Min.X]) / 255.0
		}
	}
	return f
}

// upsample2x doubles the image size with bilinear interpolation. Used for
// the first_octave = -1 pyramid base.
func upsample2x(src *floatImage) *floatImage {
	dst := newFloatImage(src.width*2, src.height*2)
	for y := 0; y < dst.height; y++ {
		sy := float64(y) / 2
		y0 := int(sy)
		fy := float32(sy - float64(y0))
		for x := 0; x < dst.width; x++ {
			sx := float64(x) / 2
			x0 := int(sx)
			fx := float32(sx - float64(x0))

			v00 := src.atClamped(x0, y0)
			v10 := src.atClamped(x0+1, y0)
			v01 := src.atClamped(x0, y0+1)
			v11 := src.atClamped(x0+1, y0+1)

			top := v00 + (v10-v00)*fx
			bot := v01 + (v11-v01)*fx
			dst.set(x, y, top+(bot-top)*fy)
		}
	}
	return dst
}

// downsample2x halves the image size by decimation. The source is assumed
// to be sufficiently blurred, so no additional filtering is applied.
func downsample2x(src *floatImage) *floatImage {
	dst := newFloatImage((src.width+1)/2, (src.height+1)/2)
	for y := 0; y < dst.height; y++ {
		for x := 0; x < dst.width; x++ {
			dst.set(x, y, src.at(x*2, y*2))
		}
	}
	return dst
}

// gaussianKernel builds a normalized 1D Gaussian kernel for the given
// sigma. The radius covers 4 standard deviations.
func gaussianKernel(sigma float64) []float32 {
	radius := int(math.Ceil(4 * sigma))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float32, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = float32(v)
		sum += v
	}
	for i := range kernel {
		kernel[i] = float32(float64(kernel[i]) / sum)
	}
	return kernel
}

// gaussianBlur applies a separable Gaussian filter and returns a new image.
// Sigma at or below zero returns a copy.
func gaussianBlur(src *floatImage, sigma float64) *floatImage {
	dst := newFloatImage(src.width, src.height)
	if sigma <= 0 {
		copy(dst.pix, src.pix)
		return dst
	}

	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2
	tmp := newFloatImage(src.width, src.height)

	// Horizontal pass
	for y := 0; y < src.height; y++ {
		for x := 0; x < src.width; x++ {
			var sum float32
			for k := -radius; k <= radius; k++ {
				sum += kernel[k+radius] * src.atClamped(x+k, y)
			}
			tmp.set(x, y, sum)
		}
	}

	// Vertical pass
	for y := 0; y < src.height; y++ {
		for x := 0; x < src.width; x++ {
			var sum float32
			for k := -radius; k <= radius; k++ {
				sum += kernel[k+radius] * tmp.atClamped(x, y+k)
			}
			dst.set(x, y, sum)
		}
	}
	return dst
}

// subtract returns a - b. Both images must have equal dimensions.
func subtract(a, b *floatImage) *floatImage {
	dst := newFloatImage(a.width, a.height)
	for i := range dst.pix {
		dst.pix[i] = a.pix[i] - b.pix[i]
	}
	return dst
}

// gradients holds per-pixel image derivatives for one pyramid level.
type gradients struct {
	width  int
	height int
	dx     []float32
	dy     []float32
}

// computeGradients computes central-difference derivatives.
func computeGradients(src *floatImage) *gradients {
	g := &gradients{
		width:  src.width,
		height: src.height,
		dx:     make([]float32, src.width*src.height),
		dy:     make([]float32, src.width*src.height),
	}
	for y := 0; y < src.height; y++ {
		for x := 0; x < src.width; x++ {
			i := y*src.width + x
			g.dx[i] = 0.5 * (src.atClamped(x+1, y) - src.atClamped(x-1, y))
			g.dy[i] = 0.5 * (src.atClamped(x, y+1) - src.atClamped(x, y-1))
		}
	}
	return g
}

func (g *gradients) at(x, y int) (float32, float32) {
	i := y*g.width + x
	return g.dx[i], g.dy[i]
}
