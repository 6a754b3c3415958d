// Package generative wraps the optional generative-response engine behind a
// capability interface. Disabled configuration, timeouts, rate limiting,
// transport failures, and empty completions all collapse into the same
// "no answer" signal, so callers can treat fallback as a pure decision.
package generative

import "context"

// Capability produces an optional generative reply to a user message.
type Capability interface {
	// Enabled reports whether the capability may be consulted at all.
	Enabled() bool

	// Reply returns a generated response for the user message given the
	// rendered conversation history. ok is false when no answer is available
	// for any reason; callers must then fall back to deterministic rules.
	Reply(ctx context.Context, userMessage, history string) (reply string, ok bool)
}

// disabled is the inert capability.
type disabled struct{}

func (disabled) Enabled() bool { return false }

func (disabled) Reply(context.Context, string, string) (string, bool) { return "", false }

// Disabled returns a capability that never answers.
func Disabled() Capability {
	return disabled{}
}
