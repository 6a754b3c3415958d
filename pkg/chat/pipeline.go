package chat

import (
	"context"
	"strings"

	"github.com/supportflow-dev/supportflow/pkg/generative"
	"github.com/supportflow-dev/supportflow/pkg/rules"
)

// defaultHistoryLimit is how many trailing messages the generative capability
// sees as conversational context.
const defaultHistoryLimit = 5

// EmptyBodyPrompt is the fixed reply to a blank user message. The blank path
// short-circuits before persistence and before the pipeline.
const EmptyBodyPrompt = rules.EmptyPrompt

// Reply is an automated response plus its provenance tag.
type Reply struct {
	Body string
	Tag  string
}

// Responder decides how an automated response is produced: generative first
// when available, deterministic rules otherwise. It never fails for a
// well-formed input because the rule engine's catch-all always answers.
type Responder struct {
	capability   generative.Capability
	engine       *rules.Engine
	historyLimit int
}

// NewResponder wires the fallback pipeline.
func NewResponder(capability generative.Capability, engine *rules.Engine) *Responder {
	if capability == nil {
		capability = generative.Disabled()
	}
	return &Responder{
		capability:   capability,
		engine:       engine,
		historyLimit: defaultHistoryLimit,
	}
}

// AIEnabled reports whether the generative path is available.
func (r *Responder) AIEnabled() bool {
	return r.capability.Enabled()
}

// Respond produces the automated reply for a user message given the session
// history (ascending; only the trailing historyLimit messages are rendered).
func (r *Responder) Respond(ctx context.Context, body string, history []*Message) Reply {
	if r.capability.Enabled() {
		if text, ok := r.capability.Reply(ctx, body, renderHistory(history, r.historyLimit)); ok {
			return Reply{Body: text, Tag: TagAIGenerated}
		}
		res := r.engine.Match(body)
		return Reply{Body: res.Response, Tag: TagAIFallbackPrefix + res.Tag}
	}

	res := r.engine.Match(body)
	return Reply{Body: res.Response, Tag: res.Tag}
}

// renderHistory formats the trailing messages as "<Role>: <body>" lines in
// chronological order. User-sent messages render as User, everything else as
// Assistant.
func renderHistory(history []*Message, limit int) string {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	if len(history) == 0 {
		return ""
	}

	var b strings.Builder
	for _, msg := range history {
		role := "Assistant"
		if msg.Sender == SenderUser {
			role = "User"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(msg.Body)
		b.WriteString("\n")
	}
	return b.String()
}
