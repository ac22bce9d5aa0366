package cluster

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// NoiseLabel marks points that no pass assigned to any cluster.
const NoiseLabel = -1

// runHDBSCAN groups the rows of emb by hierarchical density estimation and
// returns one label per row (NoiseLabel for noise) plus a membership
// probability in [0, 1] (0 for noise).
//
// The hierarchy is built from a minimum spanning tree over mutual
// reachability distances, condensed at minClusterSize, and clusters are
// selected by excess of mass, which is more stable on variable-density data
// than leaf selection. minSamples tunes the core-distance estimate; the
// engine always passes 1.
func runHDBSCAN(emb *mat.Dense, minClusterSize, minSamples int) ([]int, []float64) {
	n, _ := emb.Dims()
	labels := make([]int, n)
	probs := make([]float64, n)
	for i := range labels {
		labels[i] = NoiseLabel
	}
	if n < 2 || minClusterSize < 2 {
		return labels, probs
	}

	dist := euclideanDistances(emb)
	core := coreDistances(dist, n, minSamples)
	edges := spanningTree(dist, core, n)
	root, nodes := singleLinkage(edges, n)
	clusters := condenseTree(nodes, root, n, minClusterSize)
	selectClusters(clusters)
	assignLabels(clusters, labels, probs)
	return labels, probs
}

// euclideanDistances returns the flat n*n row-major pairwise distance matrix.
func euclideanDistances(emb *mat.Dense) []float64 {
	n, _ := emb.Dims()
	dist := make([]float64, n*n)
	for i := 0; i < n; i++ {
		ri := emb.RawRowView(i)
		for j := i + 1; j < n; j++ {
			rj := emb.RawRowView(j)
			sum := 0.0
			for c := range ri {
				diff := ri[c] - rj[c]
				sum += diff * diff
			}
			d := math.Sqrt(sum)
			dist[i*n+j] = d
			dist[j*n+i] = d
		}
	}
	return dist
}

// coreDistances returns, for each point, the distance to its minSamples-th
// nearest neighbor. minSamples is clamped to [1, n-1].
func coreDistances(dist []float64, n, minSamples int) []float64 {
	minSamples = max(1, min(minSamples, n-1))

	core := make([]float64, n)
	for i := 0; i < n; i++ {
		neighbors := make([]float64, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				neighbors = append(neighbors, dist[i*n+j])
			}
		}
		sort.Float64s(neighbors)
		core[i] = neighbors[minSamples-1]
	}
	return core
}

type mstEdge struct {
	a, b int
	w    float64
}

// spanningTree builds the minimum spanning tree over mutual reachability
// distances max(core[i], core[j], dist[i][j]) with Prim's algorithm.
func spanningTree(dist, core []float64, n int) []mstEdge {
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	inTree[0] = true
	for j := 1; j < n; j++ {
		best[j] = mutualReach(dist, core, n, 0, j)
		from[j] = 0
	}

	edges := make([]mstEdge, 0, n-1)
	for len(edges) < n-1 {
		next := -1
		for j := 0; j < n; j++ {
			if !inTree[j] && (next == -1 || best[j] < best[next]) {
				next = j
			}
		}
		inTree[next] = true
		edges = append(edges, mstEdge{a: from[next], b: next, w: best[next]})

		for j := 0; j < n; j++ {
			if !inTree[j] {
				if w := mutualReach(dist, core, n, next, j); w < best[j] {
					best[j] = w
					from[j] = next
				}
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].w == edges[j].w {
			if edges[i].a == edges[j].a {
				return edges[i].b < edges[j].b
			}
			return edges[i].a < edges[j].a
		}
		return edges[i].w < edges[j].w
	})
	return edges
}

func mutualReach(dist, core []float64, n, i, j int) float64 {
	return math.Max(dist[i*n+j], math.Max(core[i], core[j]))
}

// slNode is one internal node of the single-linkage dendrogram. Leaves are
// the point indices 0..n-1; internal nodes are numbered n..2n-2.
type slNode struct {
	left, right int
	dist        float64
	size        int
}

// singleLinkage merges the sorted MST edges into a dendrogram and returns the
// root node id plus the internal nodes (node id n+i at index i).
func singleLinkage(edges []mstEdge, n int) (int, []slNode) {
	parent := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
	}
	var find func(x int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	sizeOf := func(nodes []slNode, id int) int {
		if id < n {
			return 1
		}
		return nodes[id-n].size
	}

	nodes := make([]slNode, 0, n-1)
	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		id := n + len(nodes)
		nodes = append(nodes, slNode{
			left:  ra,
			right: rb,
			dist:  e.w,
			size:  sizeOf(nodes, ra) + sizeOf(nodes, rb),
		})
		parent[ra] = id
		parent[rb] = id
	}
	return n + len(nodes) - 1, nodes
}

// condensed is one cluster of the condensed tree: the points that fall out of
// it directly (with the density level at which they leave) and its child
// clusters born at a true split.
type condensed struct {
	parent      int
	birth       float64
	sizeAtBirth int
	children    []int
	points      []int
	lambdas     []float64
	stability   float64
	selected    bool
}

// condenseTree walks the dendrogram top-down. Splits where both sides reach
// minClusterSize spawn two child clusters; smaller sides shed their points
// into the current cluster at the split's density level.
func condenseTree(nodes []slNode, root, n, minClusterSize int) []*condensed {
	clusters := []*condensed{{parent: -1, birth: 0, sizeAtBirth: n}}

	type frame struct {
		node    int
		cluster int
	}
	stack := []frame{{node: root, cluster: 0}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.node < n {
			// Degenerate two-point tree: the lone leaf sheds at birth.
			c := clusters[f.cluster]
			c.points = append(c.points, f.node)
			c.lambdas = append(c.lambdas, c.birth)
			continue
		}

		node := nodes[f.node-n]
		lambda := lambdaAt(node.dist)
		leftSize := subtreeSize(nodes, node.left, n)
		rightSize := subtreeSize(nodes, node.right, n)

		switch {
		case leftSize >= minClusterSize && rightSize >= minClusterSize:
			li := newChild(&clusters, f.cluster, lambda, leftSize)
			ri := newChild(&clusters, f.cluster, lambda, rightSize)
			stack = append(stack, frame{node: node.right, cluster: ri})
			stack = append(stack, frame{node: node.left, cluster: li})
		case leftSize >= minClusterSize:
			shedPoints(clusters[f.cluster], nodes, node.right, n, lambda)
			stack = append(stack, frame{node: node.left, cluster: f.cluster})
		case rightSize >= minClusterSize:
			shedPoints(clusters[f.cluster], nodes, node.left, n, lambda)
			stack = append(stack, frame{node: node.right, cluster: f.cluster})
		default:
			shedPoints(clusters[f.cluster], nodes, node.left, n, lambda)
			shedPoints(clusters[f.cluster], nodes, node.right, n, lambda)
		}
	}

	for _, c := range clusters {
		for _, l := range c.lambdas {
			c.stability += l - c.birth
		}
		for _, ci := range c.children {
			child := clusters[ci]
			c.stability += (child.birth - c.birth) * float64(child.sizeAtBirth)
		}
	}
	return clusters
}

func lambdaAt(dist float64) float64 {
	if dist <= 1e-12 {
		return 1e12
	}
	return 1.0 / dist
}

func newChild(clusters *[]*condensed, parent int, birth float64, size int) int {
	idx := len(*clusters)
	*clusters = append(*clusters, &condensed{parent: parent, birth: birth, sizeAtBirth: size})
	(*clusters)[parent].children = append((*clusters)[parent].children, idx)
	return idx
}

func subtreeSize(nodes []slNode, id, n int) int {
	if id < n {
		return 1
	}
	return nodes[id-n].size
}

// shedPoints records every leaf under id as leaving the cluster at lambda.
func shedPoints(c *condensed, nodes []slNode, id, n int, lambda float64) {
	stack := []int{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur < n {
			c.points = append(c.points, cur)
			c.lambdas = append(c.lambdas, lambda)
			continue
		}
		node := nodes[cur-n]
		stack = append(stack, node.left, node.right)
	}
}

// selectClusters flags the flat clustering by excess of mass: a cluster wins
// over its descendants when its own stability exceeds their combined
// stability. The root (the whole population) is never a cluster.
func selectClusters(clusters []*condensed) {
	subtree := make([]float64, len(clusters))

	for i := len(clusters) - 1; i >= 1; i-- {
		c := clusters[i]
		if len(c.children) == 0 {
			c.selected = true
			subtree[i] = c.stability
			continue
		}
		childSum := 0.0
		for _, ci := range c.children {
			childSum += subtree[ci]
		}
		if c.stability >= childSum {
			c.selected = true
			subtree[i] = c.stability
			deselectDescendants(clusters, i)
		} else {
			c.selected = false
			subtree[i] = childSum
		}
	}
	clusters[0].selected = false
}

func deselectDescendants(clusters []*condensed, idx int) {
	stack := append([]int(nil), clusters[idx].children...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		clusters[cur].selected = false
		stack = append(stack, clusters[cur].children...)
	}
}

// assignLabels numbers the selected clusters in tree order and fills labels
// and probabilities for every point in their subtrees. Probability is the
// point's density level relative to the strongest member of its cluster.
func assignLabels(clusters []*condensed, labels []int, probs []float64) {
	next := 0
	for i, c := range clusters {
		if !c.selected {
			continue
		}

		members, lambdas := collectMembers(clusters, i)
		maxLambda := 0.0
		for _, l := range lambdas {
			if l > maxLambda {
				maxLambda = l
			}
		}
		for m, p := range members {
			labels[p] = next
			if maxLambda > 0 {
				probs[p] = math.Min(lambdas[m], maxLambda) / maxLambda
			} else {
				probs[p] = 1.0
			}
		}
		next++
	}
}

// collectMembers gathers the points of a condensed cluster's whole subtree.
func collectMembers(clusters []*condensed, idx int) ([]int, []float64) {
	var members []int
	var lambdas []float64
	stack := []int{idx}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c := clusters[cur]
		members = append(members, c.points...)
		lambdas = append(lambdas, c.lambdas...)
		stack = append(stack, c.children...)
	}
	return members, lambdas
}
