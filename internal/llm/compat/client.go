// Package compat talks to OpenAI-compatible servers (LM Studio, vLLM, Ollama's /v1)
// through go-openai.
package compat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

type Config struct {
	BaseURL     string // e.g. http://localhost:1234/v1
	APIKey      string // most local servers ignore it
	Model       string
	Temperature float32
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	api    *openai.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:1234/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{cfg: cfg, api: openai.NewClientWithConfig(oc), logger: logger}
}

func (c *Client) Complete(ctx context.Context, model, prompt string, target *schema.Schema) (string, error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()
	if model == "" {
		model = c.cfg.Model
	}
	c.logger.Info("llm.complete.start", "req_id", rid, "provider", "compat", "base_url", c.cfg.BaseURL, "model", model)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "extraction",
				Schema: target,
				Strict: false,
			},
		},
	})
	if err != nil {
		c.logger.Error("llm.complete.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("compat chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response generated")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Info("llm.complete.ok", "req_id", rid, "content_len", len(content), "elapsed_ms", time.Since(start).Milliseconds())
	return content, nil
}
