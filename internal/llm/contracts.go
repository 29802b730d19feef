package llm

import (
	"context"

	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

// Backend is the model capability the pipeline depends on. Implementations return
// the model's raw text; nothing about its shape is trusted until Reconcile runs.
type Backend interface {
	Complete(ctx context.Context, model, prompt string, target *schema.Schema) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, model, prompt string, target *schema.Schema) (string, error)

func (f BackendFunc) Complete(ctx context.Context, model, prompt string, target *schema.Schema) (string, error) {
	return f(ctx, model, prompt, target)
}
