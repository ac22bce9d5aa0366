package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"
)

// embedBatchSize bounds how many texts go into one embedding request.
const embedBatchSize = 100

const leafSystemPrompt = `You are a senior support team lead doing fast triage.
Analyze the ticket samples and produce a direct diagnosis.

### TITLE RULES:
- Natural, fluent language.
- Focus on the ROOT CAUSE or MAIN SYMPTOM.
- Example: 'Slow Portal Access', 'Timeout Errors in the Billing API'.
- At most 7 words. Always start with a capital letter.

### DESCRIPTION RULES:
- BE BRIEF. At most 2 short sentences.
- Say only WHAT is happening and WHO or WHERE it affects.
- No excessive technical detail (ids, long stack traces).

### TAGS:
- List 3 to 5 technical or business keywords.

### RATIONALE:
- One short paragraph on why these tickets form a single pattern.`

const parentSystemPrompt = `You are an IT executive. You received a list of sub-problems that were already analyzed technically.
Your task is to create one MASTER CATEGORY that logically groups these sub-problems.

### TITLE RULES (MASTER):
- Do not invent. Find the common denominator of the children's titles and descriptions.
- If every child is about slowness, the parent is 'Performance Instabilities'.
- If the children vary (login + session + password), the parent is 'Access and Authentication Problems'.
- Fluent corporate language, at most 6 words.

### DESCRIPTION RULES (MASTER):
- Summarize the accumulated overall impact.
- Do not list every child; state the nature of the group.
- Short and direct, at most 2 sentences.

### TAGS (MASTER):
- 3 to 5 broad-scope tags (affected modules, failure type).

### RATIONALE:
- One short paragraph on what unites the sub-problems.`

// annotationSchema is the structured-output schema sent with every naming
// request, reflected once at startup.
var annotationSchema = buildAnnotationSchema()

func buildAnnotationSchema() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schemaObj := reflector.Reflect(&Annotation{})

	raw, err := json.Marshal(schemaObj)
	if err != nil {
		panic(fmt.Sprintf("reflect annotation schema: %v", err))
	}
	var schema any
	if err := json.Unmarshal(raw, &schema); err != nil {
		panic(fmt.Sprintf("decode annotation schema: %v", err))
	}
	return schema
}

// OpenAIConfig configures the embedding and naming client.
type OpenAIConfig struct {
	APIKey     string
	EmbedModel string
	ChatModel  string
	Dimensions int64 // 0 keeps the model default
}

// OpenAIClient implements Embedder and Namer against the OpenAI API.
type OpenAIClient struct {
	client openai.Client
	cfg    OpenAIConfig
	log    zerolog.Logger
}

// NewOpenAIClient builds a client from the config, defaulting to the small
// embedding model and gpt-4.1-mini for naming.
func NewOpenAIClient(cfg OpenAIConfig, log zerolog.Logger) *OpenAIClient {
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = string(openai.ChatModelGPT4_1Mini)
	}
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
		log:    log.With().Str("component", "ai").Logger(),
	}
}

// Embed vectorizes the texts in request batches, preserving input order.
// Newlines are flattened first since they degrade embedding quality.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, 0, len(texts))

	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			batch = append(batch, strings.ReplaceAll(t, "\n", " "))
		}

		params := openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: batch,
			},
			Model:          openai.EmbeddingModel(c.cfg.EmbedModel),
			EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
		}
		if c.cfg.Dimensions > 0 {
			params.Dimensions = openai.Int(c.cfg.Dimensions)
		}

		resp, err := c.client.Embeddings.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d: %w", start/embedBatchSize, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embedding batch %d: got %d vectors for %d texts", start/embedBatchSize, len(resp.Data), len(batch))
		}
		for _, d := range resp.Data {
			vectors = append(vectors, d.Embedding)
		}
		c.log.Debug().Int("batch", start/embedBatchSize).Int("texts", len(batch)).Msg("embedded batch")
	}
	return vectors, nil
}

// NameLeaf generates the technical annotation of one leaf cluster from its
// representative samples.
func (c *OpenAIClient) NameLeaf(ctx context.Context, leaf LeafContext) (Annotation, error) {
	return c.complete(ctx, leafSystemPrompt, leafUserContent(leaf))
}

// NameParent generates the executive category of a macro group from its
// children's generated identities, not from raw ticket text.
func (c *OpenAIClient) NameParent(ctx context.Context, children []ChildSummary) (Annotation, error) {
	return c.complete(ctx, parentSystemPrompt, parentUserContent(children))
}

func (c *OpenAIClient) complete(ctx context.Context, system, user string) (Annotation, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       openai.ChatModel(c.cfg.ChatModel),
		MaxTokens:   openai.Int(1000),
		Temperature: openai.Float(0.1),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "group_annotation",
					Description: openai.String("Title, description, tags and rationale for one cluster of support tickets"),
					Schema:      annotationSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return Annotation{}, fmt.Errorf("naming request: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Annotation{}, fmt.Errorf("naming request: empty response")
	}

	var annotation Annotation
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &annotation); err != nil {
		return Annotation{}, fmt.Errorf("decode annotation: %w", err)
	}
	return annotation, nil
}

// leafUserContent renders the sample block sent to the namer. Services are
// sorted for a stable prompt.
func leafUserContent(leaf LeafContext) string {
	var b strings.Builder
	if len(leaf.TopServices) > 0 {
		services := make([]string, 0, len(leaf.TopServices))
		for svc := range leaf.TopServices {
			services = append(services, svc)
		}
		sort.Slice(services, func(a, b int) bool {
			if leaf.TopServices[services[a]] == leaf.TopServices[services[b]] {
				return services[a] < services[b]
			}
			return leaf.TopServices[services[a]] > leaf.TopServices[services[b]]
		})
		parts := make([]string, 0, len(services))
		for _, svc := range services {
			parts = append(parts, fmt.Sprintf("%s (%d)", svc, leaf.TopServices[svc]))
		}
		fmt.Fprintf(&b, "MOST AFFECTED SERVICES: %s\n", strings.Join(parts, ", "))
	}
	if len(leaf.Keywords) > 0 {
		fmt.Fprintf(&b, "FREQUENT KEYWORDS: %s\n", strings.Join(leaf.Keywords, ", "))
	}
	b.WriteString("\nTICKET SAMPLES:\n")
	for i, sample := range leaf.Samples {
		fmt.Fprintf(&b, "--- TICKET %d ---\n%s\n", i+1, sample)
	}
	return b.String()
}

func parentUserContent(children []ChildSummary) string {
	lines := make([]string, 0, len(children))
	for _, child := range children {
		lines = append(lines, fmt.Sprintf("Sub-group '%s': %s", child.Title, child.Description))
	}
	return "IDENTIFIED SUB-PROBLEMS:\n" + strings.Join(lines, "\n")
}
