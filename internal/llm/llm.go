// Package llm provides the LLM client used for rerank scoring calls.
package llm

import "context"

// GenerateOptions configures a generation request.
type GenerateOptions struct {
	// Model specifies the model to use (e.g., "llama3.2").
	Model string

	// SystemPrompt sets the system-level instructions for the model.
	SystemPrompt string

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float32

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int
}

// LLM is a blocking completion client. Rerank scoring is the only
// consumer in this service, so streaming is not part of the contract.
type LLM interface {
	// Generate sends a prompt and returns the complete response.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}
