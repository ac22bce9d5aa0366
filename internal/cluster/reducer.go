package cluster

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// randomSeed fixes every stochastic step of the projection so that repeated
// runs over the same vectors produce identical layouts.
const randomSeed = 42

// reduceConfig parameterizes one projection call.
type reduceConfig struct {
	components int
	neighbors  int
	minDist    float64
	epochs     int
}

// vizConfig returns the 2-D projection used only for plotting. A larger
// neighbor count preserves the global shape of the map.
func vizConfig(total int) reduceConfig {
	return reduceConfig{components: 2, neighbors: min(30, total-1), minDist: 0.2, epochs: 300}
}

// macroConfig returns the 5-D projection used for the first clustering pass.
func macroConfig(neighbors int) reduceConfig {
	return reduceConfig{components: 5, neighbors: neighbors, minDist: 0.2, epochs: 300}
}

// microConfig returns the tighter 5-D projection used when re-clustering the
// members of one oversized macro group.
func microConfig() reduceConfig {
	return reduceConfig{components: 5, neighbors: 5, minDist: 0.1, epochs: 300}
}

// effectiveNeighbors caps the requested neighbor count by the population.
// Callers must short-circuit when the result is below 2: the graph would be
// degenerate and the layout meaningless.
func effectiveNeighbors(requested, n int) int {
	return min(requested, n-1)
}

// nnEdge is one directed edge of the neighbor graph.
type nnEdge struct {
	from, to int
	weight   float64
}

// reduce projects the rows of data into cfg.components dimensions with a
// neighbor-graph layout: a fuzzy k-nearest-neighbor graph under cosine
// distance, embedded by stochastic gradient descent. The caller guarantees
// effectiveNeighbors(cfg.neighbors, n) >= 2.
func reduce(data *mat.Dense, cfg reduceConfig) *mat.Dense {
	n, _ := data.Dims()
	k := effectiveNeighbors(cfg.neighbors, n)

	dist := cosineDistances(data)
	edges := fuzzyGraph(dist, n, k)
	a, b := fitCurve(cfg.minDist)

	rng := rand.New(rand.NewSource(randomSeed))
	emb := randomLayout(rng, n, cfg.components)
	optimizeLayout(rng, emb, edges, n, cfg, a, b)

	out := mat.NewDense(n, cfg.components, nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, emb[i])
	}
	return out
}

// cosineDistances returns the flat n*n row-major matrix of pairwise cosine
// distances (1 - cosine similarity) between the rows of data.
func cosineDistances(data *mat.Dense) []float64 {
	n, _ := data.Dims()
	norms := make([]float64, n)
	for i := 0; i < n; i++ {
		norms[i] = mat.Norm(data.RowView(i), 2)
	}

	dist := make([]float64, n*n)
	for i := 0; i < n; i++ {
		ri := data.RawRowView(i)
		for j := i + 1; j < n; j++ {
			rj := data.RawRowView(j)
			dot := 0.0
			for c := range ri {
				dot += ri[c] * rj[c]
			}
			d := 1.0
			if norms[i] > 0 && norms[j] > 0 {
				d = 1.0 - dot/(norms[i]*norms[j])
			}
			if d < 0 {
				d = 0
			}
			dist[i*n+j] = d
			dist[j*n+i] = d
		}
	}
	return dist
}

// fuzzyGraph builds the symmetrized fuzzy neighbor graph. Each point gets a
// local connectivity radius (distance to its nearest neighbor) and a
// smoothing bandwidth calibrated so the total membership mass equals log2(k),
// then directed memberships are fused with the probabilistic t-conorm
// w = wij + wji - wij*wji.
func fuzzyGraph(dist []float64, n, k int) []nnEdge {
	type neighbor struct {
		idx int
		d   float64
	}

	directed := make(map[[2]int]float64, n*k)
	for i := 0; i < n; i++ {
		nbrs := make([]neighbor, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				nbrs = append(nbrs, neighbor{idx: j, d: dist[i*n+j]})
			}
		}
		sort.Slice(nbrs, func(a, b int) bool {
			if nbrs[a].d == nbrs[b].d {
				return nbrs[a].idx < nbrs[b].idx
			}
			return nbrs[a].d < nbrs[b].d
		})
		nbrs = nbrs[:k]

		ds := make([]float64, k)
		for x, nb := range nbrs {
			ds[x] = nb.d
		}
		rho := ds[0]
		sigma := smoothBandwidth(ds, rho, k)

		for _, nb := range nbrs {
			w := 1.0
			if nb.d > rho && sigma > 0 {
				w = math.Exp(-(nb.d - rho) / sigma)
			}
			directed[[2]int{i, nb.idx}] = w
		}
	}

	seen := make(map[[2]int]bool, len(directed))
	edges := make([]nnEdge, 0, len(directed))
	for key, wij := range directed {
		i, j := key[0], key[1]
		lo, hi := min(i, j), max(i, j)
		if seen[[2]int{lo, hi}] {
			continue
		}
		seen[[2]int{lo, hi}] = true
		wji := directed[[2]int{j, i}]
		edges = append(edges, nnEdge{from: lo, to: hi, weight: wij + wji - wij*wji})
	}

	// Map iteration order is random; a fixed edge order keeps the layout
	// deterministic.
	sort.Slice(edges, func(a, b int) bool {
		if edges[a].from == edges[b].from {
			return edges[a].to < edges[b].to
		}
		return edges[a].from < edges[b].from
	})
	return edges
}

// smoothBandwidth binary-searches the bandwidth sigma so that the membership
// mass of the k neighbors sums to log2(k).
func smoothBandwidth(ds []float64, rho float64, k int) float64 {
	target := math.Log2(float64(k))
	lo, hi := 0.0, math.Inf(1)
	sigma := 1.0

	for iter := 0; iter < 64; iter++ {
		sum := 0.0
		for _, d := range ds {
			if d <= rho {
				sum += 1.0
			} else {
				sum += math.Exp(-(d - rho) / sigma)
			}
		}
		if math.Abs(sum-target) < 1e-5 {
			break
		}
		if sum > target {
			hi = sigma
			sigma = (lo + hi) / 2
		} else {
			lo = sigma
			if math.IsInf(hi, 1) {
				sigma *= 2
			} else {
				sigma = (lo + hi) / 2
			}
		}
	}
	return sigma
}

// fitCurve searches the (a, b) parameters of the low-dimensional similarity
// curve 1/(1+a*d^(2b)) so that it approximates an exponential falloff past
// minDist. Coarse-to-fine grid search; deterministic.
func fitCurve(minDist float64) (float64, float64) {
	target := func(d float64) float64 {
		if d <= minDist {
			return 1.0
		}
		return math.Exp(-(d - minDist))
	}

	loss := func(a, b float64) float64 {
		sum := 0.0
		for s := 1; s <= 300; s++ {
			d := float64(s) * 0.01 // (0, 3]
			diff := 1.0/(1.0+a*math.Pow(d, 2*b)) - target(d)
			sum += diff * diff
		}
		return sum
	}

	bestA, bestB := 1.0, 1.0
	bestLoss := math.Inf(1)
	stepA, stepB := 0.05, 0.05
	loA, hiA := 0.2, 5.0
	loB, hiB := 0.2, 2.5

	for pass := 0; pass < 3; pass++ {
		for a := loA; a <= hiA; a += stepA {
			for b := loB; b <= hiB; b += stepB {
				if l := loss(a, b); l < bestLoss {
					bestLoss = l
					bestA, bestB = a, b
				}
			}
		}
		loA, hiA = bestA-stepA, bestA+stepA
		loB, hiB = bestB-stepB, bestB+stepB
		if loA < 1e-3 {
			loA = 1e-3
		}
		if loB < 1e-3 {
			loB = 1e-3
		}
		stepA /= 10
		stepB /= 10
	}
	return bestA, bestB
}

// randomLayout spreads the initial embedding uniformly in [-10, 10].
func randomLayout(rng *rand.Rand, n, dim int) [][]float64 {
	emb := make([][]float64, n)
	for i := range emb {
		row := make([]float64, dim)
		for c := range row {
			row[c] = rng.Float64()*20 - 10
		}
		emb[i] = row
	}
	return emb
}

// optimizeLayout runs the attraction/repulsion gradient descent over the
// fuzzy graph. Attraction follows edge weights; repulsion uses negative
// sampling. The learning rate decays linearly to zero.
func optimizeLayout(rng *rand.Rand, emb [][]float64, edges []nnEdge, n int, cfg reduceConfig, a, b float64) {
	const negativeSamples = 5
	const clip = 4.0

	for epoch := 0; epoch < cfg.epochs; epoch++ {
		alpha := 1.0 - float64(epoch)/float64(cfg.epochs)

		for _, e := range edges {
			p, q := emb[e.from], emb[e.to]
			d2 := sqDist(p, q)

			// Attractive move along the edge, scaled by membership.
			if d2 > 0 {
				grad := -2.0 * a * b * math.Pow(d2, b-1) / (1.0 + a*math.Pow(d2, b))
				grad *= e.weight
				applyGradient(p, q, grad, alpha, clip)
			}

			// Repulsive moves against sampled non-neighbors.
			for s := 0; s < negativeSamples; s++ {
				other := rng.Intn(n)
				if other == e.from {
					continue
				}
				o := emb[other]
				od2 := sqDist(p, o)
				grad := 2.0 * b / ((0.001 + od2) * (1.0 + a*math.Pow(od2, b)))
				applyGradient(p, o, grad, alpha, clip)
			}
		}
	}
}

func sqDist(p, q []float64) float64 {
	sum := 0.0
	for c := range p {
		diff := p[c] - q[c]
		sum += diff * diff
	}
	return sum
}

// applyGradient moves p along (p-q) by grad, symmetric on q for attraction
// (negative grad) and one-sided for repulsion (positive grad).
func applyGradient(p, q []float64, grad, alpha, clip float64) {
	for c := range p {
		g := grad * (p[c] - q[c])
		if g > clip {
			g = clip
		} else if g < -clip {
			g = -clip
		}
		p[c] += g * alpha
		if grad < 0 {
			q[c] -= g * alpha
		}
	}
}
