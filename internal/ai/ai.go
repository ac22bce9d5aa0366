// Package ai wraps the external OpenAI services used by the pipeline: the
// embedding endpoint that vectorizes ticket text and the chat endpoint that
// names clusters.
package ai

import "context"

// Embedder converts ticket texts into embedding vectors, preserving order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Annotation is the generated identity of one group in the analysis tree.
type Annotation struct {
	Title       string   `json:"title" jsonschema:"description=Short natural-language title focused on the root cause or main symptom, at most 7 words"`
	Description string   `json:"description" jsonschema:"description=At most two short sentences stating what is happening and who or where it affects"`
	Tags        []string `json:"tags" jsonschema:"description=3 to 5 technical or business keywords"`
	Rationale   string   `json:"rationale" jsonschema:"description=One short paragraph explaining why these tickets form a single pattern"`
}

// LeafContext is everything the namer sees about one leaf cluster.
type LeafContext struct {
	Samples     []string
	Keywords    []string
	TopServices map[string]int
}

// ChildSummary is the already-annotated identity of one child cluster,
// used to derive its parent's category.
type ChildSummary struct {
	Title       string
	Description string
}

// Namer generates titles and descriptions for clusters.
type Namer interface {
	NameLeaf(ctx context.Context, leaf LeafContext) (Annotation, error)
	NameParent(ctx context.Context, children []ChildSummary) (Annotation, error)
}

// FallbackAnnotation is applied when the naming service fails; the run still
// completes with a recognizable placeholder.
var FallbackAnnotation = Annotation{
	Title:       "Unclassified Pattern",
	Description: "Automatic annotation was not available for this group.",
	Tags:        []string{"Unreviewed"},
}
