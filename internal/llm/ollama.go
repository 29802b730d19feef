package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

const DefaultOllamaURL = "http://localhost:11434"

type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// OllamaClient calls Ollama's native /api/generate endpoint, passing the
// target schema as the structured-output format.
type OllamaClient struct {
	cfg    OllamaConfig
	http   *http.Client
	logger *slog.Logger
}

func NewOllamaClient(cfg OllamaConfig, logger *slog.Logger) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  *schema.Schema `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (c *OllamaClient) Complete(ctx context.Context, model, prompt string, target *schema.Schema) (string, error) {
	rid := common.RequestIDFromContext(ctx)
	if model == "" {
		model = c.cfg.Model
	}
	c.logger.Info("llm.complete.start", "req_id", rid, "provider", "ollama", "base_url", c.cfg.BaseURL, "model", model)

	body := ollamaRequest{
		Model:   model,
		Prompt:  prompt,
		Format:  target,
		Options: map[string]any{"temperature": c.cfg.Temperature},
	}
	raw, status, err := SendJSON(ctx, c.http, c.cfg.BaseURL+"/api/generate", body, nil, c.logger)
	if err != nil {
		var out ollamaResponse
		if json.Unmarshal(raw, &out) == nil && out.Error != "" {
			return "", fmt.Errorf("ollama generate (%d): %s", status, out.Error)
		}
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	var out ollamaResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	content := strings.TrimSpace(out.Response)
	if content == "" {
		return "", errors.New("no response generated")
	}
	c.logger.Info("llm.complete.ok", "req_id", rid, "provider", "ollama", "content_len", len(content))
	return content, nil
}
