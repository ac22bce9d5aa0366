package cluster

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/scopelabs/scopeintel/pkg/models"
)

// minPopulation is the smallest input the pipeline will attempt to cluster.
// Below it every point is reported as noise.
const minPopulation = 5

// Result is the flat outcome of a two-level clustering run. Labels holds one
// final cluster id per input row (NoiseLabel for noise), Hierarchy maps each
// macro group ("macro_0", "macro_1", ...) to the final ids it produced, and
// VizCoords carries the 2D projection used for plotting.
type Result struct {
	Labels        []int
	Probabilities []float64
	Hierarchy     map[string][]int
	Params        models.TuningParams
	VizCoords     [][]float64
}

// Engine runs the macro pass, refines oversized groups with a micro pass,
// and renumbers everything into a single consistent label space.
type Engine struct {
	log zerolog.Logger
}

func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "cluster").Logger()}
}

// refined is the outcome of one micro pass over an oversized macro group.
// Slices are indexed by position within the group's member list.
type refined struct {
	labels   []int
	probs    []float64
	clusters int
}

// Run clusters the embedding rows. Parameters are tuned from the population
// size; groups larger than MaxClusterSize are re-clustered on their original
// vectors and replace their macro group only when they genuinely split.
func (e *Engine) Run(ctx context.Context, embeddings [][]float64) (*Result, error) {
	n := len(embeddings)
	params := Autotune(n)

	res := &Result{
		Labels:        make([]int, n),
		Probabilities: make([]float64, n),
		Hierarchy:     make(map[string][]int),
		Params:        params,
		VizCoords:     make([][]float64, n),
	}
	for i := range res.Labels {
		res.Labels[i] = NoiseLabel
		res.VizCoords[i] = []float64{0, 0}
	}
	if n < minPopulation {
		e.log.Warn().Int("tickets", n).Msg("population too small to cluster, everything is noise")
		return res, nil
	}

	data := denseFrom(embeddings)

	viz := reduce(data, vizConfig(n))
	for i := 0; i < n; i++ {
		res.VizCoords[i] = []float64{viz.At(i, 0), viz.At(i, 1)}
	}

	macroEmb := reduce(data, macroConfig(params.MacroNeighbors))
	macroLabels, macroProbs := runHDBSCAN(macroEmb, params.MacroMinSize, 1)

	groups := groupByLabel(macroLabels)
	macroIDs := make([]int, 0, len(groups))
	for id := range groups {
		macroIDs = append(macroIDs, id)
	}
	sort.Ints(macroIDs)

	e.log.Debug().
		Int("tickets", n).
		Int("macro_groups", len(macroIDs)).
		Int("macro_min_size", params.MacroMinSize).
		Msg("macro pass complete")

	refinements, err := e.refineOversized(ctx, data, groups, macroIDs, params)
	if err != nil {
		return nil, err
	}

	nextID := 0
	for _, mid := range macroIDs {
		members := groups[mid]
		key := fmt.Sprintf("macro_%d", mid)

		r := refinements[mid]
		if r != nil && r.clusters >= 2 {
			nextID = applySplit(res, members, r, key, nextID)
			continue
		}

		for _, idx := range members {
			res.Labels[idx] = nextID
			res.Probabilities[idx] = macroProbs[idx]
		}
		res.Hierarchy[key] = []int{nextID}
		nextID++
	}

	e.log.Info().
		Int("tickets", n).
		Int("clusters", nextID).
		Int("noise", countNoise(res.Labels)).
		Msg("clustering complete")
	return res, nil
}

// refineOversized runs the micro pass concurrently over every macro group
// larger than MaxClusterSize. Label renumbering stays sequential so ids do
// not depend on scheduling.
func (e *Engine) refineOversized(ctx context.Context, data *mat.Dense, groups map[int][]int, macroIDs []int, params models.TuningParams) (map[int]*refined, error) {
	refinements := make(map[int]*refined)
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, mid := range macroIDs {
		members := groups[mid]
		if len(members) <= params.MaxClusterSize {
			continue
		}
		// Too few members for a meaningful neighbor graph: keep the
		// group as-is instead of failing the whole run.
		if effectiveNeighbors(microConfig().neighbors, len(members)) < 2 {
			continue
		}
		mid := mid
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sub := subsetRows(data, members)
			subEmb := reduce(sub, microConfig())
			labels, probs := runHDBSCAN(subEmb, params.MicroMinSize, 1)

			r := &refined{labels: labels, probs: probs, clusters: distinctClusters(labels)}
			e.log.Debug().
				Int("macro_id", mid).
				Int("members", len(members)).
				Int("sub_clusters", r.clusters).
				Msg("refined oversized group")

			mu.Lock()
			refinements[mid] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("refining oversized groups: %w", err)
	}
	return refinements, nil
}

// applySplit replaces one oversized macro group with its micro clusters.
// Sub-ids are mapped to final ids in ascending order; micro noise becomes
// global noise. Returns the next free final id.
func applySplit(res *Result, members []int, r *refined, key string, nextID int) int {
	subIDs := make([]int, 0, r.clusters)
	seen := make(map[int]bool)
	for _, l := range r.labels {
		if l != NoiseLabel && !seen[l] {
			seen[l] = true
			subIDs = append(subIDs, l)
		}
	}
	sort.Ints(subIDs)

	final := make(map[int]int, len(subIDs))
	ids := make([]int, 0, len(subIDs))
	for _, sl := range subIDs {
		final[sl] = nextID
		ids = append(ids, nextID)
		nextID++
	}

	for i, idx := range members {
		sl := r.labels[i]
		if sl == NoiseLabel {
			res.Labels[idx] = NoiseLabel
			res.Probabilities[idx] = 0
			continue
		}
		res.Labels[idx] = final[sl]
		res.Probabilities[idx] = r.probs[i]
	}
	res.Hierarchy[key] = ids
	return nextID
}

func denseFrom(embeddings [][]float64) *mat.Dense {
	n := len(embeddings)
	d := len(embeddings[0])
	data := mat.NewDense(n, d, nil)
	for i, row := range embeddings {
		data.SetRow(i, row)
	}
	return data
}

// groupByLabel collects member indices per cluster label, skipping noise.
func groupByLabel(labels []int) map[int][]int {
	groups := make(map[int][]int)
	for idx, l := range labels {
		if l == NoiseLabel {
			continue
		}
		groups[l] = append(groups[l], idx)
	}
	return groups
}

func subsetRows(data *mat.Dense, rows []int) *mat.Dense {
	_, d := data.Dims()
	sub := mat.NewDense(len(rows), d, nil)
	for i, r := range rows {
		sub.SetRow(i, data.RawRowView(r))
	}
	return sub
}

func distinctClusters(labels []int) int {
	seen := make(map[int]bool)
	for _, l := range labels {
		if l != NoiseLabel {
			seen[l] = true
		}
	}
	return len(seen)
}

func countNoise(labels []int) int {
	count := 0
	for _, l := range labels {
		if l == NoiseLabel {
			count++
		}
	}
	return count
}
