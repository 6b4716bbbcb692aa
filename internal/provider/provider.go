package provider

import "context"

// Generator submits a prompt to the external AI provider and returns its text
// output plus the total token count the call consumed. Implementations are
// expensive to construct and are built once at process start, then injected.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, int, error)
}
