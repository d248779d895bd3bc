// Package feature defines the keypoint, descriptor, and match types shared
// by the extraction, matching, and two-view verification packages, along
// with their configuration records and on-disk text format.
package feature

import (
	"math"

	"sfm-features/pkg/geometry"
)

// DescriptorDim is the dimensionality of a single descriptor vector.
const DescriptorDim = 128

// Keypoint is a detected local feature: sub-pixel position, characteristic
// scale, and dominant orientation in radians. When affine-shape estimation
// is enabled, A11..A22 hold the 2x2 linear map of the oriented ellipse and
// HasAffine is set; otherwise the shape is the oriented disk implied by
// Scale and Orientation. Keypoints are immutable once produced.
type Keypoint struct {
	X           float32
	Y           float32
	Scale       float32
	Orientation float32

	HasAffine          bool
	A11, A12, A21, A22 float32
}

// Point returns the keypoint position as a geometry point.
func (k Keypoint) Point() geometry.Point2D {
	return geometry.Point2D{X: float64(k.X), Y: float64(k.Y)}
}

// Shape returns the 2x2 linear map describing the local support region.
// For disk keypoints this is scale * rotation(orientation).
func (k Keypoint) Shape() geometry.AffineTransform {
	if k.HasAffine {
		return geometry.AffineTransform{
			A: float64(k.A11), B: float64(k.A12),
			C: float64(k.A21), D: float64(k.A22),
		}
	}
	s := float64(k.Scale)
	return geometry.Rotation(float64(k.Orientation)).Compose(geometry.Scaling(s, s))
}

// Rescale returns a copy of the keypoint with position and shape scaled by
// the given per-axis factors. Used to map detections on a downsampled
// image back into the original image frame.
func (k Keypoint) Rescale(sx, sy float64) Keypoint {
	out := k
	out.X = float32(float64(k.X) * sx)
	out.Y = float32(float64(k.Y) * sy)
	out.Scale = float32(float64(k.Scale) * math.Sqrt(sx*sy))
	if k.HasAffine {
		out.A11 = float32(float64(k.A11) * sx)
		out.A12 = float32(float64(k.A12) * sx)
		out.A21 = float32(float64(k.A21) * sy)
		out.A22 = float32(float64(k.A22) * sy)
	}
	return out
}

// Descriptors holds a set of fixed-dimension byte descriptor vectors in a
// single row-major buffer. Row i corresponds to keypoint i of the set the
// descriptors were extracted with; the two are index-aligned by
// construction and must never be reordered independently.
type Descriptors struct {
	Dim  int
	Data []uint8
}

// NewDescriptors allocates storage for count descriptors of dim values.
func NewDescriptors(count, dim int) *Descriptors {
	return &Descriptors{Dim: dim, Data: make([]uint8, count*dim)}
}

// Count returns the number of descriptor rows.
func (d *Descriptors) Count() int {
	if d == nil || d.Dim == 0 {
		return 0
	}
	return len(d.Data) / d.Dim
}

// Row returns descriptor i as a slice view into the underlying buffer.
func (d *Descriptors) Row(i int) []uint8 {
	return d.Data[i*d.Dim : (i+1)*d.Dim]
}

// Match pairs descriptor Idx1 of the first set with Idx2 of the second.
// Distance is the angular descriptor distance used during matching.
type Match struct {
	Idx1     int
	Idx2     int
	Distance float32
}
