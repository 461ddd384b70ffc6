// Package queryproc structures free-text research queries into the three
// term lists the search engine consumes, using an OpenAI-compatible chat
// model. The processor is an upstream collaborator of the search core: when
// it fails, callers receive an empty StructuredQuery and the search
// short-circuits with zero results.
package queryproc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/scholarmatch/discovery-service/internal/domain"
	"github.com/scholarmatch/discovery-service/internal/observability"
)

// Structurer turns a free-text query into a StructuredQuery.
type Structurer interface {
	Structure(ctx context.Context, query string) (domain.StructuredQuery, error)
}

// Config holds LLM configuration for query structuring.
type Config struct {
	// APIKey is the provider API key, loaded from the environment only.
	APIKey string

	// Model is the chat model name.
	Model string

	// BaseURL overrides the provider endpoint for OpenAI-compatible
	// services. Empty uses the provider default.
	BaseURL string
}

const systemPrompt = `You are an academic research analyst. Given a research ` +
	`query, extract the main research areas, specific expertise topics, and ` +
	`additional search keywords. Respond with a JSON object with exactly these ` +
	`keys: "research_areas", "expertise", "search_keywords" - each a list of ` +
	`short strings ordered by importance. Use at most 3 research areas.`

// Processor structures queries via an OpenAI-compatible chat model.
type Processor struct {
	model   llms.Model
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// Ensure Processor implements the Structurer interface.
var _ Structurer = (*Processor)(nil)

// New creates a Processor backed by the configured chat model. metrics may
// be nil, which disables outcome counting.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) (*Processor, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	p := NewWithModel(client, logger)
	p.metrics = metrics
	return p, nil
}

// NewWithModel creates a Processor around an existing model, useful for tests.
func NewWithModel(model llms.Model, logger zerolog.Logger) *Processor {
	return &Processor{
		model:  model,
		logger: logger.With().Str("component", "queryproc").Logger(),
	}
}

func (p *Processor) observeOutcome(outcome string) {
	if p.metrics == nil {
		return
	}
	p.metrics.QueryStructuringTotal.WithLabelValues(outcome).Inc()
}

// payload matches the JSON shape the model is instructed to produce.
type payload struct {
	ResearchAreas  []string `json:"research_areas"`
	Expertise      []string `json:"expertise"`
	SearchKeywords []string `json:"search_keywords"`
}

// Structure analyzes the query and returns its structured form. Any model or
// parse failure returns an empty StructuredQuery together with the error.
func (p *Processor) Structure(ctx context.Context, query string) (domain.StructuredQuery, error) {
	cleaned := strings.Join(strings.Fields(query), " ")
	if cleaned == "" {
		return domain.StructuredQuery{}, domain.ErrEmptyQuery
	}

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(cleaned)},
		},
	}

	response, err := p.model.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
	if err != nil {
		p.logger.Error().Err(err).Msg("query structuring failed")
		p.observeOutcome("model_error")
		return domain.StructuredQuery{}, fmt.Errorf("generating structured query: %w", err)
	}
	if len(response.Choices) == 0 {
		p.observeOutcome("model_error")
		return domain.StructuredQuery{}, fmt.Errorf("model returned no choices")
	}

	structured, err := parseStructuredQuery(response.Choices[0].Content)
	if err != nil {
		p.observeOutcome("parse_error")
		return domain.StructuredQuery{}, err
	}
	p.observeOutcome("success")
	return structured, nil
}

// parseStructuredQuery decodes and validates the model's JSON output,
// defaulting absent keys to empty lists and dropping blank terms.
func parseStructuredQuery(raw string) (domain.StructuredQuery, error) {
	raw = strings.TrimSpace(raw)

	// Some models wrap JSON in a fenced code block despite JSON mode.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var parsed payload
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return domain.StructuredQuery{}, fmt.Errorf("parsing model response: %w", err)
	}

	return domain.StructuredQuery{
		ResearchAreas:  cleanTerms(parsed.ResearchAreas),
		Expertise:      cleanTerms(parsed.Expertise),
		SearchKeywords: cleanTerms(parsed.SearchKeywords),
	}, nil
}

// cleanTerms trims entries and drops blanks, preserving order.
func cleanTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
