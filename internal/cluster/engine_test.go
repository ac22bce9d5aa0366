package cluster

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine() *Engine {
	return NewEngine(zerolog.Nop())
}

func TestEngineRunTinyPopulation(t *testing.T) {
	emb := [][]float64{{1, 0}, {0, 1}, {1, 1}}

	res, err := testEngine().Run(context.Background(), emb)
	require.NoError(t, err)

	assert.Equal(t, []int{NoiseLabel, NoiseLabel, NoiseLabel}, res.Labels)
	assert.Equal(t, []float64{0, 0, 0}, res.Probabilities)
	assert.Empty(t, res.Hierarchy)
	require.Len(t, res.VizCoords, 3)
	assert.Equal(t, []float64{0, 0}, res.VizCoords[0])

	// Tuning still reflects the population even when nothing is clustered.
	assert.Equal(t, 4, res.Params.MacroMinSize)
	assert.Equal(t, 2, res.Params.MacroNeighbors)
}

func TestEngineRunSeparatedGroups(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	var emb [][]float64
	emb = blob(rng, emb, []float64{5, 0, 0, 0, 0, 0, 0, 0}, 30, 0.05)
	emb = blob(rng, emb, []float64{0, 5, 0, 0, 0, 0, 0, 0}, 30, 0.05)

	res, err := testEngine().Run(context.Background(), emb)
	require.NoError(t, err)
	require.Len(t, res.Labels, 60)
	require.Len(t, res.Probabilities, 60)
	require.Len(t, res.VizCoords, 60)

	clustered := 0
	maxLabel := NoiseLabel
	for i, l := range res.Labels {
		if l != NoiseLabel {
			clustered++
			if l > maxLabel {
				maxLabel = l
			}
			assert.Greater(t, res.Probabilities[i], 0.0, "member %d needs a probability", i)
		} else {
			assert.Zero(t, res.Probabilities[i], "noise %d must have zero probability", i)
		}
		assert.LessOrEqual(t, res.Probabilities[i], 1.0)
	}
	assert.Greater(t, clustered, 30, "most points should land in a cluster")

	// Final ids are dense: 0..maxLabel all present via the hierarchy.
	seen := map[int]bool{}
	for key, ids := range res.Hierarchy {
		assert.Regexp(t, `^macro_\d+$`, key)
		assert.NotEmpty(t, ids)
		for _, id := range ids {
			assert.False(t, seen[id], "final id %d listed twice", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, maxLabel+1)

	for i, c := range res.VizCoords {
		require.Len(t, c, 2)
		assert.False(t, math.IsNaN(c[0]) || math.IsNaN(c[1]), "coords %d", i)
	}
}

func TestEngineRunDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	var emb [][]float64
	emb = blob(rng, emb, []float64{3, 0, 0, 0}, 20, 0.1)
	emb = blob(rng, emb, []float64{0, 3, 0, 0}, 20, 0.1)

	a, err := testEngine().Run(context.Background(), emb)
	require.NoError(t, err)
	b, err := testEngine().Run(context.Background(), emb)
	require.NoError(t, err)

	assert.Equal(t, a.Labels, b.Labels)
	assert.Equal(t, a.Probabilities, b.Probabilities)
	assert.Equal(t, a.Hierarchy, b.Hierarchy)
	assert.Equal(t, a.VizCoords, b.VizCoords)
}

func TestEngineRunCancelledContext(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	var emb [][]float64
	// One oversized group so refinement actually runs.
	emb = blob(rng, emb, []float64{1, 0, 0, 0}, 60, 0.05)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testEngine().Run(ctx, emb)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestApplySplit(t *testing.T) {
	res := &Result{
		Labels:        []int{NoiseLabel, NoiseLabel, NoiseLabel, NoiseLabel, NoiseLabel},
		Probabilities: make([]float64, 5),
		Hierarchy:     map[string][]int{},
	}
	members := []int{0, 2, 3, 4}
	r := &refined{
		labels:   []int{1, 0, NoiseLabel, 1},
		probs:    []float64{0.9, 0.8, 0, 0.7},
		clusters: 2,
	}

	next := applySplit(res, members, r, "macro_3", 5)
	assert.Equal(t, 7, next)
	assert.Equal(t, []int{5, 6}, res.Hierarchy["macro_3"])

	// Sub-id 0 maps to 5, sub-id 1 to 6, micro noise stays noise.
	assert.Equal(t, 6, res.Labels[0])
	assert.Equal(t, NoiseLabel, res.Labels[1])
	assert.Equal(t, 5, res.Labels[2])
	assert.Equal(t, NoiseLabel, res.Labels[3])
	assert.Equal(t, 6, res.Labels[4])
	assert.Equal(t, 0.8, res.Probabilities[2])
	assert.Zero(t, res.Probabilities[3])
}

func TestGroupByLabel(t *testing.T) {
	groups := groupByLabel([]int{0, 1, NoiseLabel, 0, 1, 1})
	assert.Equal(t, map[int][]int{0: {0, 3}, 1: {1, 4, 5}}, groups)
}
