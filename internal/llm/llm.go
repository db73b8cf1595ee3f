// Package llm defines the chat-generation capability and its provider
// variants. Providers are a closed set constructed at startup and looked
// up by name through a Registry; business logic never branches on
// provider strings.
package llm

import (
	"context"
	"errors"
)

// Generation failure classes.
var (
	// ErrUnavailable marks provider outages and transport failures.
	ErrUnavailable = errors.New("llm: provider unavailable")
	// ErrTimeout marks generations that exceeded the caller's deadline.
	ErrTimeout = errors.New("llm: generation timed out")
)

// Message is one entry of the ordered prompt handed to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tune a single generation call. Zero values fall back to
// provider defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider generates text from an ordered message list.
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []Message, opts Options) (string, error)
}

// classifyErr maps transport errors onto the package sentinels so callers
// can branch without knowing the SDK.
func classifyErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrUnavailable
}
