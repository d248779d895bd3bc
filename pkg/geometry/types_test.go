package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointOps(t *testing.T) {
	a := Point2D{X: 3, Y: 4}
	b := Point2D{X: 0, Y: 0}

	assert.InDelta(t, 5, a.Distance(b), 1e-12)
	assert.Equal(t, Point2D{X: 3, Y: 4}, a.Sub(b))
	assert.Equal(t, Point2D{X: -3, Y: -4}, b.Sub(a))
	assert.Equal(t, Point2D{X: 1.5, Y: 2}, a.Scale(0.5))
}

func TestAffineTransform(t *testing.T) {
	// Quarter turn maps the x axis onto the y axis.
	quarter := Rotation(math.Pi / 2)
	p := quarter.Apply(Point2D{X: 1, Y: 0})
	assert.InDelta(t, 0, p.X, 1e-12)
	assert.InDelta(t, 1, p.Y, 1e-12)

	scaled := Scaling(2, 3).Apply(Point2D{X: 1, Y: 1})
	assert.Equal(t, Point2D{X: 2, Y: 3}, scaled)

	// Composition applies the right-hand transform first.
	combined := Rotation(math.Pi / 2).Compose(Scaling(2, 2))
	q := combined.Apply(Point2D{X: 1, Y: 0})
	assert.InDelta(t, 0, q.X, 1e-12)
	assert.InDelta(t, 2, q.Y, 1e-12)
}

func TestCentroid(t *testing.T) {
	points := []Point2D{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 2, Y: 6}}
	c := Centroid(points)
	require.InDelta(t, 2, c.X, 1e-12)
	require.InDelta(t, 2, c.Y, 1e-12)

	assert.Equal(t, Point2D{}, Centroid(nil))
}
