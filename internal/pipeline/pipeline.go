// Package pipeline orchestrates one full analysis run: fetch tickets, embed
// their text (cache-aware), cluster, aggregate statistics, name the groups,
// and persist the resulting tree.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/scopelabs/scopeintel/internal/ai"
	"github.com/scopelabs/scopeintel/internal/cluster"
	"github.com/scopelabs/scopeintel/internal/report"
	"github.com/scopelabs/scopeintel/internal/stats"
	"github.com/scopelabs/scopeintel/pkg/models"
)

// namingConcurrency bounds parallel naming requests so one run cannot flood
// the chat endpoint.
const namingConcurrency = 4

// Store is the persistence surface the pipeline needs.
type Store interface {
	ListTickets(ctx context.Context, system string, sinceDays int) ([]models.Ticket, error)
	GetEmbeddings(ctx context.Context, keys []string) (map[string][]float64, error)
	PutEmbeddings(ctx context.Context, model string, vectors map[string][]float64) error
	SaveRun(ctx context.Context, result *models.AnalysisResult) (uint, error)
}

// Config tunes one pipeline instance.
type Config struct {
	EmbedModel string
}

// Pipeline wires the stages together.
type Pipeline struct {
	store    Store
	embedder ai.Embedder
	namer    ai.Namer
	engine   *cluster.Engine
	cfg      Config
	log      zerolog.Logger
}

func New(store Store, embedder ai.Embedder, namer ai.Namer, cfg Config, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		embedder: embedder,
		namer:    namer,
		engine:   cluster.NewEngine(log),
		cfg:      cfg,
		log:      log.With().Str("component", "pipeline").Logger(),
	}
}

// Run analyzes one system's tickets from the last periodDays days and
// persists the result. It returns the stored run id alongside the result.
func (p *Pipeline) Run(ctx context.Context, system string, periodDays int) (*models.AnalysisResult, uint, error) {
	started := time.Now()

	tickets, err := p.store.ListTickets(ctx, system, periodDays)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch tickets: %w", err)
	}
	tickets = withText(tickets)
	if len(tickets) == 0 {
		return nil, 0, fmt.Errorf("no tickets with text for system %q in the last %d days", system, periodDays)
	}
	p.log.Info().Str("system", system).Int("tickets", len(tickets)).Msg("starting analysis")

	vectors, err := p.embeddings(ctx, tickets)
	if err != nil {
		return nil, 0, err
	}

	clustering, err := p.engine.Run(ctx, vectors)
	if err != nil {
		return nil, 0, fmt.Errorf("clustering: %w", err)
	}

	leaves, err := stats.Consolidate(tickets, clustering.Labels, clustering.VizCoords, clustering.Probabilities)
	if err != nil {
		return nil, 0, fmt.Errorf("consolidate statistics: %w", err)
	}

	if err := p.nameLeaves(ctx, leaves); err != nil {
		return nil, 0, err
	}
	tree := report.BuildTree(leaves, clustering.Hierarchy)
	if err := p.nameParents(ctx, tree); err != nil {
		return nil, 0, err
	}

	result := &models.AnalysisResult{
		Metadata: models.RunMetadata{
			System:       system,
			AnalyzedAt:   time.Now().UTC(),
			PeriodDays:   periodDays,
			TotalTickets: len(tickets),
			TotalGroups:  len(tree),
			NoiseRate:    noiseRate(clustering.Labels),
			Params:       clustering.Params,
		},
		Clusters: tree,
	}

	id, err := p.store.SaveRun(ctx, result)
	if err != nil {
		return nil, 0, fmt.Errorf("persist run: %w", err)
	}

	p.log.Info().
		Str("system", system).
		Uint("run_id", id).
		Int("groups", len(tree)).
		Float64("noise_rate", result.Metadata.NoiseRate).
		Dur("elapsed", time.Since(started)).
		Msg("analysis complete")
	return result, id, nil
}

// embeddings returns one vector per ticket, reusing the cache and embedding
// only the misses.
func (p *Pipeline) embeddings(ctx context.Context, tickets []models.Ticket) ([][]float64, error) {
	keys := make([]string, len(tickets))
	for i, t := range tickets {
		keys[i] = t.CacheKey()
	}

	cached, err := p.store.GetEmbeddings(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load embedding cache: %w", err)
	}

	var missingIdx []int
	var missingTexts []string
	for i, key := range keys {
		if _, ok := cached[key]; !ok {
			missingIdx = append(missingIdx, i)
			missingTexts = append(missingTexts, tickets[i].Text)
		}
	}

	if len(missingTexts) > 0 {
		p.log.Info().Int("cached", len(cached)).Int("missing", len(missingTexts)).Msg("embedding uncached tickets")
		fresh, err := p.embedder.Embed(ctx, missingTexts)
		if err != nil {
			return nil, fmt.Errorf("embed tickets: %w", err)
		}
		if len(fresh) != len(missingTexts) {
			return nil, fmt.Errorf("embed tickets: got %d vectors for %d texts", len(fresh), len(missingTexts))
		}
		store := make(map[string][]float64, len(fresh))
		for j, idx := range missingIdx {
			cached[keys[idx]] = fresh[j]
			store[keys[idx]] = fresh[j]
		}
		if err := p.store.PutEmbeddings(ctx, p.cfg.EmbedModel, store); err != nil {
			return nil, fmt.Errorf("store embeddings: %w", err)
		}
	}

	vectors := make([][]float64, len(tickets))
	dim := -1
	for i, key := range keys {
		vec := cached[key]
		if len(vec) == 0 {
			return nil, fmt.Errorf("missing embedding for ticket %s", tickets[i].ID)
		}
		if dim == -1 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, fmt.Errorf("inconsistent embedding size for ticket %s: %d vs %d", tickets[i].ID, len(vec), dim)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// nameLeaves annotates every non-noise leaf concurrently. A naming failure
// downgrades that leaf to the fallback annotation instead of failing the run.
func (p *Pipeline) nameLeaves(ctx context.Context, leaves []*models.Group) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(namingConcurrency)

	for _, leaf := range leaves {
		if leaf.IsNoise() {
			continue
		}
		leaf := leaf
		g.Go(func() error {
			annotation, err := p.namer.NameLeaf(ctx, ai.LeafContext{
				Samples:     leaf.Samples,
				Keywords:    leaf.Keywords,
				TopServices: leaf.Metrics.TopServices,
			})
			if err != nil {
				p.log.Warn().Err(err).Int("cluster_id", leaf.ID).Msg("leaf naming failed, using fallback")
				annotation = ai.FallbackAnnotation
			}
			applyAnnotation(leaf, annotation)
			return nil
		})
	}
	return g.Wait()
}

// nameParents annotates the synthetic macro nodes from their children's
// generated identities.
func (p *Pipeline) nameParents(ctx context.Context, tree []*models.Group) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(namingConcurrency)

	for _, node := range tree {
		if len(node.SubClusters) < 2 {
			continue
		}
		node := node
		g.Go(func() error {
			children := make([]ai.ChildSummary, 0, len(node.SubClusters))
			for _, child := range node.SubClusters {
				children = append(children, ai.ChildSummary{
					Title:       child.Title,
					Description: child.Description,
				})
			}
			annotation, err := p.namer.NameParent(ctx, children)
			if err != nil {
				p.log.Warn().Err(err).Int("cluster_id", node.ID).Msg("parent naming failed, using fallback")
				annotation = ai.FallbackAnnotation
			}
			applyAnnotation(node, annotation)
			return nil
		})
	}
	return g.Wait()
}

func applyAnnotation(g *models.Group, a ai.Annotation) {
	g.Title = a.Title
	g.Description = a.Description
	g.Tags = a.Tags
	g.Rationale = a.Rationale
}

func withText(tickets []models.Ticket) []models.Ticket {
	kept := tickets[:0]
	for _, t := range tickets {
		if t.Text != "" {
			kept = append(kept, t)
		}
	}
	return kept
}

func noiseRate(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	noise := 0
	for _, l := range labels {
		if l == cluster.NoiseLabel {
			noise++
		}
	}
	return math.Round(float64(noise)/float64(len(labels))*10000) / 10000
}
