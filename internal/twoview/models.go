package twoview

import (
	"gonum.org/v1/gonum/mat"

	"sfm-features/pkg/geometry"
)

// fitFundamental estimates a fundamental matrix from >= 8 correspondences
// with the normalized 8-point algorithm, enforcing the rank-2 constraint.
func fitFundamental(pts1, pts2 []geometry.Point2D) (geometry.Matrix3, bool) {
	n := len(pts1)
	if n < 8 {
		return geometry.Matrix3{}, false
	}

	norm1, t1 := geometry.NormalizePoints(pts1)
	norm2, t2 := geometry.NormalizePoints(pts2)

	// Each correspondence contributes one row of the homogeneous system
	// p2' * F * p1 = 0.
	a := mat.NewDense(n, 9, nil)
	for i := 0; i < n; i++ {
		x1, y1 := norm1[i].X, norm1[i].Y
		x2, y2 := norm2[i].X, norm2[i].Y
		a.SetRow(i, []float64{
			x2 * x1, x2 * y1, x2,
			y2 * x1, y2 * y1, y2,
			x1, y1, 1,
		})
	}

	f, ok := smallestSingularVector(a)
	if !ok {
		return geometry.Matrix3{}, false
	}

	// Enforce rank 2 by zeroing the smallest singular value.
	fm := mat.NewDense(3, 3, f[:])
	var svd mat.SVD
	if !svd.Factorize(fm, mat.SVDFull) {
		return geometry.Matrix3{}, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	vals := svd.Values(nil)
	vals[2] = 0

	var rank2 mat.Dense
	rank2.Mul(&u, mat.NewDiagDense(3, vals))
	rank2.Mul(&rank2, v.T())

	var fmat geometry.Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			fmat[i*3+j] = rank2.At(i, j)
		}
	}

	// Denormalize: F = T2' * F^ * T1.
	return t2.Transpose().Mul(fmat).Mul(t1), true
}

// fitHomography estimates a planar homography from >= 4 correspondences
// with the normalized direct linear transform.
func fitHomography(pts1, pts2 []geometry.Point2D) (geometry.Matrix3, bool) {
	n := len(pts1)
	if n < 4 {
		return geometry.Matrix3{}, false
	}

	norm1, t1 := geometry.NormalizePoints(pts1)
	norm2, t2 := geometry.NormalizePoints(pts2)

	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x1, y1 := norm1[i].X, norm1[i].Y
		x2, y2 := norm2[i].X, norm2[i].Y
		a.SetRow(2*i, []float64{
			-x1, -y1, -1, 0, 0, 0,
			x2 * x1, x2 * y1, x2,
		})
		a.SetRow(2*i+1, []float64{
			0, 0, 0, -x1, -y1, -1,
			y2 * x1, y2 * y1, y2,
		})
	}

	h, ok := smallestSingularVector(a)
	if !ok {
		return geometry.Matrix3{}, false
	}

	var hmat geometry.Matrix3
	copy(hmat[:], h[:])

	// Denormalize: H = T2^-1 * H^ * T1.
	t2inv, ok := t2.Inverse3()
	if !ok {
		return geometry.Matrix3{}, false
	}
	return t2inv.Mul(hmat).Mul(t1), true
}

// smallestSingularVector returns the right singular vector of a belonging
// to its smallest singular value, i.e. the least-squares null vector of
// the homogeneous system.
func smallestSingularVector(a *mat.Dense) ([9]float64, bool) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return [9]float64{}, false
	}
	var v mat.Dense
	svd.VTo(&v)

	var out [9]float64
	col := 8
	for i := 0; i < 9; i++ {
		out[i] = v.At(i, col)
	}
	return out, true
}
