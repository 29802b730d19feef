package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

type Config struct {
	APIKey      string
	Model       string // e.g. gemini-1.5-flash
	Temperature float32
}

type Client struct {
	cfg    Config
	client *genai.Client
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{cfg: cfg, client: client, logger: logger}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Complete(ctx context.Context, model, prompt string, target *schema.Schema) (string, error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()
	if model == "" {
		model = c.cfg.Model
	}

	gm := c.client.GenerativeModel(model)
	gm.SetTemperature(c.cfg.Temperature)
	gm.ResponseMIMEType = "application/json"
	rs, faithful := ToSchema(target)
	if faithful {
		gm.ResponseSchema = rs
	}
	c.logger.Info("llm.complete.start", "req_id", rid, "provider", "gemini", "model", model, "response_schema", faithful)

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		c.logger.Error("llm.complete.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}
	if sb.Len() == 0 {
		return "", errors.New("no response generated")
	}
	c.logger.Info("llm.complete.ok", "req_id", rid, "content_len", sb.Len(), "elapsed_ms", time.Since(start).Milliseconds())
	return strings.TrimSpace(sb.String()), nil
}
