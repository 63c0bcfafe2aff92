package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/config"
	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
)

const extractSystemPrompt = `You are an entity extraction engine for legal documents.
Given a passage, return JSON of the form
{"mentions":[{"text":"...","type":"...","confidence":0.0}]}
where type is one of: person, organization, location, date, statute, case, monetary.
Return only entities actually present in the passage. Respond with JSON only.`

const resolveSystemPrompt = `You are an entity resolution engine for legal documents.
Given a JSON list of raw entity mentions, group mentions referring to the same
real-world entity and return JSON of the form
{"entities":[{"id":"e1","name":"...","type":"...","mentions":[0,2],"aliases":["..."]}]}
where mentions holds zero-based indexes into the input list. Respond with JSON only.`

// LLMExtractor implements EntityExtractor using an OpenAI-compatible chat
// model via langchaingo.
type LLMExtractor struct {
	client llms.Model
	log    *slog.Logger
}

// NewLLMExtractor creates the extractor from config.
func NewLLMExtractor(cfg config.LLMConfig, log *slog.Logger) (*LLMExtractor, error) {
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &LLMExtractor{client: client, log: log.With("component", "llm-extractor")}, nil
}

type extractEnvelope struct {
	Mentions []struct {
		Text       string  `json:"text"`
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	} `json:"mentions"`
}

type resolveEnvelope struct {
	Entities []domain.CanonicalEntity `json:"entities"`
}

// Extract finds raw entity mentions in one chunk of text.
func (e *LLMExtractor) Extract(ctx context.Context, chunkText string) ([]domain.EntityMention, error) {
	raw, err := e.generate(ctx, extractSystemPrompt, chunkText)
	if err != nil {
		return nil, err
	}

	var env extractEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("unparseable extraction response: %w", err)
	}

	mentions := make([]domain.EntityMention, 0, len(env.Mentions))
	for _, m := range env.Mentions {
		if m.Text == "" {
			continue
		}
		mentions = append(mentions, domain.EntityMention{
			Text:       m.Text,
			Type:       m.Type,
			Confidence: m.Confidence,
		})
	}
	return mentions, nil
}

// Resolve deduplicates mentions into canonical entities.
func (e *LLMExtractor) Resolve(ctx context.Context, mentions []domain.EntityMention) ([]domain.CanonicalEntity, error) {
	if len(mentions) == 0 {
		return nil, nil
	}

	input, err := json.Marshal(mentions)
	if err != nil {
		return nil, fmt.Errorf("marshal mentions: %w", err)
	}

	raw, err := e.generate(ctx, resolveSystemPrompt, string(input))
	if err != nil {
		return nil, err
	}

	var env resolveEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("unparseable resolution response: %w", err)
	}
	return env.Entities, nil
}

func (e *LLMExtractor) generate(ctx context.Context, system, user string) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(user)},
		},
	}

	response, err := e.client.GenerateContent(ctx, content,
		llms.WithTemperature(0.0), llms.WithJSONMode())
	if err != nil {
		return "", fmt.Errorf("llm call failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}

	// Strip markdown code fences if present
	text := strings.TrimSpace(response.Choices[0].Content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text), nil
}
