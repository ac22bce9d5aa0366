package cluster

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestReduceShapeAndDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	var points [][]float64
	points = blob(rng, points, []float64{1, 0, 0, 0, 0, 0}, 20, 0.3)

	data := denseOf(points)
	cfg := reduceConfig{components: 2, neighbors: 5, minDist: 0.2, epochs: 50}

	a := reduce(data, cfg)
	rows, cols := a.Dims()
	assert.Equal(t, 20, rows)
	assert.Equal(t, 2, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			assert.False(t, math.IsNaN(a.At(i, j)), "coordinate (%d,%d)", i, j)
			assert.False(t, math.IsInf(a.At(i, j), 0), "coordinate (%d,%d)", i, j)
		}
	}

	b := reduce(data, cfg)
	assert.True(t, mat2Equal(a.RawMatrix().Data, b.RawMatrix().Data), "same input must give the same layout")
}

func mat2Equal(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReduceKeepsNeighborsCloserThanStrangers(t *testing.T) {
	rng := rand.New(rand.NewSource(37))
	var points [][]float64
	points = blob(rng, points, []float64{4, 0, 0, 0, 0, 0, 0, 0}, 15, 0.05)
	points = blob(rng, points, []float64{0, 4, 0, 0, 0, 0, 0, 0}, 15, 0.05)

	emb := reduce(denseOf(points), reduceConfig{components: 2, neighbors: 8, minDist: 0.1, epochs: 300})

	within := avgPairDist(emb, 0, 15) + avgPairDist(emb, 15, 30)
	across := 0.0
	count := 0
	for i := 0; i < 15; i++ {
		for j := 15; j < 30; j++ {
			across += math.Sqrt(sqDist(emb.RawRowView(i), emb.RawRowView(j)))
			count++
		}
	}
	across /= float64(count)

	assert.Greater(t, across, within/2, "separated groups should not collapse onto each other")
}

func avgPairDist(emb *mat.Dense, lo, hi int) float64 {
	sum := 0.0
	count := 0
	for i := lo; i < hi; i++ {
		for j := i + 1; j < hi; j++ {
			sum += math.Sqrt(sqDist(emb.RawRowView(i), emb.RawRowView(j)))
			count++
		}
	}
	return sum / float64(count)
}

func TestEffectiveNeighbors(t *testing.T) {
	assert.Equal(t, 15, effectiveNeighbors(15, 100))
	assert.Equal(t, 9, effectiveNeighbors(15, 10))
	assert.Equal(t, 1, effectiveNeighbors(30, 2))
}

func TestFitCurve(t *testing.T) {
	a, b := fitCurve(0.1)
	require.Greater(t, a, 0.0)
	require.Greater(t, b, 0.0)

	// The fitted curve is a smooth decay: near 1 below minDist, falling
	// toward 0 at larger distances.
	at := func(d float64) float64 { return 1.0 / (1.0 + a*math.Pow(d, 2*b)) }
	assert.Greater(t, at(0.05), 0.8)
	assert.Greater(t, at(0.1), at(0.5))
	assert.Greater(t, at(0.5), at(2.0))
	assert.Less(t, at(3.0), 0.2)
}

func TestCosineDistances(t *testing.T) {
	data := denseOf([][]float64{
		{1, 0},
		{0, 1},
		{2, 0},
		{-1, 0},
	})
	dist := cosineDistances(data)

	assert.InDelta(t, 0.0, dist[0*4+0], 1e-9)
	assert.InDelta(t, 1.0, dist[0*4+1], 1e-9, "orthogonal vectors")
	assert.InDelta(t, 0.0, dist[0*4+2], 1e-9, "parallel vectors regardless of norm")
	assert.InDelta(t, 2.0, dist[0*4+3], 1e-9, "opposite vectors")
	assert.InDelta(t, dist[1*4+2], dist[2*4+1], 1e-12, "symmetry")
}
