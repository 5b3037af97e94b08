// Package extract turns a finished conversation transcript into the
// structured extraction payload using the OpenAI API.
//
// Speech-to-text happens upstream; this package only consumes the final
// transcript text.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/careops/carepipe/internal/models"
	"github.com/careops/carepipe/internal/reconcile"
)

// ClientInterface defines the extraction operations used by the API layer.
type ClientInterface interface {
	Extract(ctx context.Context, transcript string) (models.ExtractionPayload, []string, error)
}

// Opts holds client configuration.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option configures the extraction client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key explicitly.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion API for fact extraction.
type Client struct {
	client openai.Client
	model  openai.ChatModel
}

// NewClient initializes an extraction client. The API key falls back to
// the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	slog.Debug("extract.NewClient: creating extraction client", "model", cfg.Model)
	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}, nil
}

// Extract runs the extraction prompt over the transcript and decodes the
// category JSON. Malformed categories are dropped, not fatal; their names
// are returned alongside the payload.
func (c *Client) Extract(ctx context.Context, transcript string) (models.ExtractionPayload, []string, error) {
	slog.Debug("Client.Extract: extracting facts from transcript", "transcriptLength", len(transcript))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractionSystemPrompt),
			openai.UserMessage(transcript),
		},
	})
	if err != nil {
		slog.Error("Client.Extract: completion request failed", "error", err)
		return models.ExtractionPayload{}, nil, fmt.Errorf("extraction request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.ExtractionPayload{}, nil, fmt.Errorf("no choices returned")
	}

	raw := stripCodeFences(resp.Choices[0].Message.Content)
	payload, ignored, err := reconcile.DecodePayload([]byte(raw))
	if err != nil {
		slog.Error("Client.Extract: payload decode failed", "error", err)
		return models.ExtractionPayload{}, nil, fmt.Errorf("decode extraction payload: %w", err)
	}

	slog.Info("Client.Extract: extraction complete", "ignoredCategories", len(ignored))
	return payload, ignored, nil
}

// stripCodeFences removes a surrounding markdown code fence if the model
// added one despite instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
