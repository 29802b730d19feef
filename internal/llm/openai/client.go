package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

// Complete sends the prompt as a single user message and asks for JSON shaped by target.
// Strict mode stays off: user schemas rarely satisfy OpenAI's strict subset.
func (c *Client) Complete(ctx context.Context, model, prompt string, target *schema.Schema) (string, error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()
	if model == "" {
		model = c.cfg.Model
	}

	schemaMap, err := target.Map()
	if err != nil {
		return "", fmt.Errorf("encode target schema: %w", err)
	}

	c.logger.Info("llm.complete.start",
		"req_id", rid,
		"provider", "openai",
		"model", model,
		"temp", c.cfg.Temperature,
		"prompt_len", len(prompt),
		"fields", target.Len(),
	)

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       model,
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(float64(c.cfg.Temperature)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "extraction",
					Schema: schemaMap,
					Strict: openai.Bool(false),
				},
			},
		},
	})
	if err != nil {
		c.logger.Error("llm.complete.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		c.logger.Error("llm.complete.no_choices",
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("no choices in openai response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Info("llm.complete.ok",
		"req_id", rid,
		"content_len", len(content),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}
