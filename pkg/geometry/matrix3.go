package geometry

import (
	"math"
)

// Matrix3 is a row-major 3x3 matrix. It represents planar homographies
// and fundamental matrices relating two views.
type Matrix3 [9]float64

// Identity3 returns the 3x3 identity matrix.
func Identity3() Matrix3 {
	return Matrix3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// At returns the element at row i, column j.
func (m Matrix3) At(i, j int) float64 {
	return m[i*3+j]
}

// Mul returns the matrix product m * other.
func (m Matrix3) Mul(other Matrix3) Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += m[i*3+k] * other[k*3+j]
			}
			out[i*3+j] = sum
		}
	}
	return out
}

// Transpose returns the transposed matrix.
func (m Matrix3) Transpose() Matrix3 {
	return Matrix3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// ApplyHomogeneous maps a point through the matrix as a planar homography,
// dividing by the homogeneous coordinate. Returns false if the point maps
// to infinity.
func (m Matrix3) ApplyHomogeneous(p Point2D) (Point2D, bool) {
	w := m[6]*p.X + m[7]*p.Y + m[8]
	if math.Abs(w) < 1e-12 {
		return Point2D{}, false
	}
	return Point2D{
		X: (m[0]*p.X + m[1]*p.Y + m[2]) / w,
		Y: (m[3]*p.X + m[4]*p.Y + m[5]) / w,
	}, true
}

// Inverse3 returns the inverse matrix, if it exists.
func (m Matrix3) Inverse3() (Matrix3, bool) {
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[3], m[4], m[5]
	g, h, i := m[6], m[7], m[8]

	det := a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
	if math.Abs(det) < 1e-12 {
		return Matrix3{}, false
	}
	inv := 1.0 / det
	return Matrix3{
		(e*i - f*h) * inv, (c*h - b*i) * inv, (b*f - c*e) * inv,
		(f*g - d*i) * inv, (a*i - c*g) * inv, (c*d - a*f) * inv,
		(d*h - e*g) * inv, (b*g - a*h) * inv, (a*e - b*d) * inv,
	}, true
}

// SampsonDistanceSq returns the squared Sampson distance of a point
// correspondence (p1, p2) under the epipolar constraint p2' * F * p1 = 0.
// The Sampson distance is the first-order approximation of the geometric
// reprojection error and is measured in squared pixels.
func (m Matrix3) SampsonDistanceSq(p1, p2 Point2D) float64 {
	// F * p1
	fx := m[0]*p1.X + m[1]*p1.Y + m[2]
	fy := m[3]*p1.X + m[4]*p1.Y + m[5]
	fz := m[6]*p1.X + m[7]*p1.Y + m[8]

	// F' * p2
	ftx := m[0]*p2.X + m[3]*p2.Y + m[6]
	fty := m[1]*p2.X + m[4]*p2.Y + m[7]

	num := p2.X*fx + p2.Y*fy + fz
	denom := fx*fx + fy*fy + ftx*ftx + fty*fty
	if denom < 1e-12 {
		return math.Inf(1)
	}
	return num * num / denom
}

// SymmetricTransferErrorSq returns the squared symmetric transfer error of
// a correspondence (p1, p2) under the homography p2 ~ H * p1. The inverse
// must be supplied by the caller (computed once per model).
func (m Matrix3) SymmetricTransferErrorSq(inv Matrix3, p1, p2 Point2D) float64 {
	fwd, ok1 := m.ApplyHomogeneous(p1)
	bwd, ok2 := inv.ApplyHomogeneous(p2)
	if !ok1 || !ok2 {
		return math.Inf(1)
	}
	d1 := fwd.Distance(p2)
	d2 := bwd.Distance(p1)
	return d1*d1 + d2*d2
}

// NormalizePoints computes a similarity transform that moves the centroid
// of the points to the origin and scales their mean distance from the
// origin to sqrt(2), following Hartley normalization. Returns the
// transformed points and the transform as a 3x3 matrix.
func NormalizePoints(points []Point2D) ([]Point2D, Matrix3) {
	centroid := Centroid(points)

	var meanDist float64
	for _, p := range points {
		meanDist += p.Distance(centroid)
	}
	meanDist /= float64(len(points))

	scale := math.Sqrt2
	if meanDist > 1e-12 {
		scale = math.Sqrt2 / meanDist
	}

	out := make([]Point2D, len(points))
	for i, p := range points {
		out[i] = p.Sub(centroid).Scale(scale)
	}
	t := Matrix3{
		scale, 0, -scale * centroid.X,
		0, scale, -scale * centroid.Y,
		0, 0, 1,
	}
	return out, t
}
