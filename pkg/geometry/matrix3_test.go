package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix3MulTranspose(t *testing.T) {
	m := Matrix3{1, 2, 3, 4, 5, 6, 7, 8, 10}

	assert.Equal(t, m, m.Mul(Identity3()))
	assert.Equal(t, m, Identity3().Mul(m))
	assert.Equal(t, m, m.Transpose().Transpose())
	assert.Equal(t, 6.0, m.At(1, 2))
}

func TestMatrix3Inverse(t *testing.T) {
	m := Matrix3{2, 0, 1, 0, 3, -1, 1, 1, 1}
	inv, ok := m.Inverse3()
	require.True(t, ok)

	prod := m.Mul(inv)
	id := Identity3()
	for i := range prod {
		assert.InDelta(t, id[i], prod[i], 1e-12)
	}

	singular := Matrix3{1, 2, 3, 2, 4, 6, 0, 0, 1}
	_, ok = singular.Inverse3()
	assert.False(t, ok)
}

func TestApplyHomogeneous(t *testing.T) {
	// Pure translation homography.
	h := Matrix3{1, 0, 5, 0, 1, -3, 0, 0, 1}
	p, ok := h.ApplyHomogeneous(Point2D{X: 2, Y: 2})
	require.True(t, ok)
	assert.InDelta(t, 7, p.X, 1e-12)
	assert.InDelta(t, -1, p.Y, 1e-12)

	// A point on the line at infinity has no image.
	degenerate := Matrix3{1, 0, 0, 0, 1, 0, 1, 0, 0}
	_, ok = degenerate.ApplyHomogeneous(Point2D{X: 0, Y: 1})
	assert.False(t, ok)
}

func TestSampsonDistance(t *testing.T) {
	// Essential matrix of a pure sideways translation: correspondences
	// satisfy it exactly when they share the y coordinate.
	e := Matrix3{0, 0, 0, 0, 0, -1, 0, 1, 0}

	assert.InDelta(t, 0,
		e.SampsonDistanceSq(Point2D{X: 0.1, Y: 0.4}, Point2D{X: 0.7, Y: 0.4}), 1e-12)
	assert.Greater(t,
		e.SampsonDistanceSq(Point2D{X: 0.1, Y: 0.4}, Point2D{X: 0.7, Y: 0.9}), 0.01)
}

func TestSymmetricTransferError(t *testing.T) {
	h := Matrix3{2, 0, 10, 0, 2, -4, 0, 0, 1}
	inv, ok := h.Inverse3()
	require.True(t, ok)

	p1 := Point2D{X: 3, Y: 7}
	p2 := Point2D{X: 16, Y: 10}
	assert.InDelta(t, 0, h.SymmetricTransferErrorSq(inv, p1, p2), 1e-12)

	off := Point2D{X: 16, Y: 13}
	// Forward error 3px, backward error 1.5px: 9 + 2.25.
	assert.InDelta(t, 11.25, h.SymmetricTransferErrorSq(inv, p1, off), 1e-9)
}

func TestNormalizePoints(t *testing.T) {
	points := []Point2D{
		{X: 100, Y: 200}, {X: 340, Y: 120}, {X: 60, Y: 410}, {X: 500, Y: 90},
		{X: 220, Y: 260},
	}
	normalized, transform := NormalizePoints(points)
	require.Len(t, normalized, len(points))

	// Centroid at the origin.
	c := Centroid(normalized)
	assert.InDelta(t, 0, c.X, 1e-9)
	assert.InDelta(t, 0, c.Y, 1e-9)

	// Mean distance from the origin is sqrt(2).
	var meanDist float64
	for _, p := range normalized {
		meanDist += math.Hypot(p.X, p.Y)
	}
	meanDist /= float64(len(normalized))
	assert.InDelta(t, math.Sqrt2, meanDist, 1e-9)

	// The returned matrix reproduces the transformed points.
	for i, p := range points {
		mapped, ok := transform.ApplyHomogeneous(p)
		require.True(t, ok)
		assert.InDelta(t, normalized[i].X, mapped.X, 1e-9)
		assert.InDelta(t, normalized[i].Y, mapped.Y, 1e-9)
	}
}
