// Package providers defines the model-provider boundary. The core calls
// Chat with explicit timeouts; concrete transport lives in the
// OpenAI-compatible client below or in an external binding.
package providers

import "context"

// ChatClient is the minimal LLM surface the router and coordinator need.
type ChatClient interface {
	// Chat sends messages to the model and returns the completion.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier (e.g. "openai", "secondary").
	Name() string
}

// ChatRequest contains the input for a Chat call.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse is the result from a model call.
type ChatResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"` // "stop", "length"
	Usage        *Usage `json:"usage,omitempty"`
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OnDeviceModel is the optional local inference binding. Absence forces the
// remote fallback path.
type OnDeviceModel interface {
	// Availability reports whether the local model can serve requests and,
	// if not, why.
	Availability() (bool, string)

	// Respond runs a single prompt through the local model.
	Respond(ctx context.Context, prompt string) (string, error)
}
