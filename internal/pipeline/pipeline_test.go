package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopelabs/scopeintel/internal/ai"
	"github.com/scopelabs/scopeintel/pkg/models"
)

// stubStore keeps everything in memory.
type stubStore struct {
	mu        sync.Mutex
	tickets   []models.Ticket
	cache     map[string][]float64
	savedRuns []*models.AnalysisResult
}

func newStubStore(tickets []models.Ticket) *stubStore {
	return &stubStore{tickets: tickets, cache: map[string][]float64{}}
}

func (s *stubStore) ListTickets(_ context.Context, system string, _ int) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, t := range s.tickets {
		if t.System == system {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubStore) GetEmbeddings(_ context.Context, keys []string) (map[string][]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string][]float64{}
	for _, k := range keys {
		if v, ok := s.cache[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *stubStore) PutEmbeddings(_ context.Context, _ string, vectors map[string][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range vectors {
		s.cache[k] = v
	}
	return nil
}

func (s *stubStore) SaveRun(_ context.Context, result *models.AnalysisResult) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedRuns = append(s.savedRuns, result)
	return uint(len(s.savedRuns)), nil
}

// stubEmbedder derives a deterministic vector from each text so equal topics
// land in the same region.
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	out := make([][]float64, len(texts))
	for i, t := range texts {
		rng := rand.New(rand.NewSource(int64(len(t))))
		vec := make([]float64, 6)
		// First rune picks the blob direction, text length jitters it.
		if t[0] == 'p' {
			vec[0] = 5
		} else {
			vec[1] = 5
		}
		for d := range vec {
			vec[d] += rng.NormFloat64() * 0.01
		}
		out[i] = vec
	}
	return out, nil
}

type stubNamer struct{}

func (stubNamer) NameLeaf(_ context.Context, leaf ai.LeafContext) (ai.Annotation, error) {
	return ai.Annotation{
		Title:       "Leaf: " + leaf.Keywords[0],
		Description: "stub leaf description",
		Tags:        []string{"stub"},
	}, nil
}

func (stubNamer) NameParent(_ context.Context, children []ai.ChildSummary) (ai.Annotation, error) {
	return ai.Annotation{
		Title:       fmt.Sprintf("Parent of %d", len(children)),
		Description: "stub parent description",
	}, nil
}

type failingNamer struct{}

func (failingNamer) NameLeaf(context.Context, ai.LeafContext) (ai.Annotation, error) {
	return ai.Annotation{}, fmt.Errorf("naming service down")
}

func (failingNamer) NameParent(context.Context, []ai.ChildSummary) (ai.Annotation, error) {
	return ai.Annotation{}, fmt.Errorf("naming service down")
}

func testTickets() []models.Ticket {
	opened := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	var tickets []models.Ticket
	for i := 0; i < 12; i++ {
		tickets = append(tickets, models.Ticket{
			ID:        fmt.Sprintf("p%d", i),
			System:    "erp",
			Service:   "Printing",
			Requester: fmt.Sprintf("user%d", i),
			OpenedAt:  opened.AddDate(0, 0, i),
			Text:      fmt.Sprintf("printer spooler offline again workstation %0*d", i+1, i),
		})
	}
	for i := 0; i < 12; i++ {
		tickets = append(tickets, models.Ticket{
			ID:        fmt.Sprintf("v%d", i),
			System:    "erp",
			Service:   "Network",
			Requester: fmt.Sprintf("user%d", i),
			OpenedAt:  opened.AddDate(0, 0, i),
			Text:      fmt.Sprintf("vpn tunnel dropping constantly site %0*d", i+1, i),
		})
	}
	return tickets
}

func newTestPipeline(store *stubStore, namer ai.Namer, embedder ai.Embedder) *Pipeline {
	return New(store, embedder, namer, Config{EmbedModel: "stub-model"}, zerolog.Nop())
}

func TestRunProducesNamedTree(t *testing.T) {
	store := newStubStore(testTickets())
	embedder := &stubEmbedder{}
	p := newTestPipeline(store, stubNamer{}, embedder)

	result, id, err := p.Run(context.Background(), "erp", 365)
	require.NoError(t, err)
	assert.Equal(t, uint(1), id)
	require.Len(t, store.savedRuns, 1)

	meta := result.Metadata
	assert.Equal(t, "erp", meta.System)
	assert.Equal(t, 365, meta.PeriodDays)
	assert.Equal(t, 24, meta.TotalTickets)
	assert.Equal(t, len(result.Clusters), meta.TotalGroups)
	assert.GreaterOrEqual(t, meta.NoiseRate, 0.0)
	assert.LessOrEqual(t, meta.NoiseRate, 1.0)
	assert.Equal(t, 4, meta.Params.MacroMinSize)

	require.NotEmpty(t, result.Clusters)
	for _, node := range result.Clusters {
		if node.IsNoise() {
			assert.Equal(t, "Other / Scattered", node.Title)
			continue
		}
		assert.NotEmpty(t, node.Title, "cluster %d must be named", node.ID)
		for _, child := range node.SubClusters {
			assert.NotEmpty(t, child.Title)
		}
	}

	// The scattered entry, when present, is last.
	for i, node := range result.Clusters {
		if node.IsNoise() {
			assert.Equal(t, len(result.Clusters)-1, i)
		}
	}
}

func TestRunReusesEmbeddingCache(t *testing.T) {
	store := newStubStore(testTickets())
	embedder := &stubEmbedder{}
	p := newTestPipeline(store, stubNamer{}, embedder)

	_, _, err := p.Run(context.Background(), "erp", 365)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls)

	_, _, err = p.Run(context.Background(), "erp", 365)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls, "second run must be served fully from cache")
}

func TestRunNamingFailureFallsBack(t *testing.T) {
	store := newStubStore(testTickets())
	p := newTestPipeline(store, failingNamer{}, &stubEmbedder{})

	result, _, err := p.Run(context.Background(), "erp", 365)
	require.NoError(t, err, "naming failures must not fail the run")

	for _, node := range result.Clusters {
		if node.IsNoise() {
			continue
		}
		assert.Equal(t, ai.FallbackAnnotation.Title, node.Title)
	}
}

func TestRunNoTickets(t *testing.T) {
	store := newStubStore(nil)
	p := newTestPipeline(store, stubNamer{}, &stubEmbedder{})

	_, _, err := p.Run(context.Background(), "erp", 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tickets")
}

func TestRunSkipsEmptyTexts(t *testing.T) {
	tickets := testTickets()
	tickets = append(tickets, models.Ticket{ID: "empty", System: "erp"})
	store := newStubStore(tickets)
	p := newTestPipeline(store, stubNamer{}, &stubEmbedder{})

	result, _, err := p.Run(context.Background(), "erp", 365)
	require.NoError(t, err)
	assert.Equal(t, 24, result.Metadata.TotalTickets)
}
