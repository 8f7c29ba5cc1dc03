package ports

import "context"

// Judge sends a prompt to an external reasoning model and returns its raw
// text. Implementations may guarantee structured output (cloud API with a
// response schema) or return free text (local model); the caller must
// recover a decision from either. A timeout or transport failure returns
// an error, which the pipeline treats as a zero-confidence outcome.
type Judge interface {
	Generate(ctx context.Context, prompt, system string, temperature float64) (string, error)
}
