// Package responder abstracts the AI engine that produces assistant
// replies. The core only depends on the interface; the model's
// reasoning is an external collaborator.
package responder

import "context"

// Prompt carries everything the engine needs for one reply.
type Prompt struct {
	// Question is the user's message text.
	Question string
	// History is the session's recent conversation, oldest first,
	// formatted as "sender: text" lines.
	History []string
	// Context is transcript text relevant to the session, already
	// trimmed to the configured byte budget.
	Context string
}

// Engine produces one assistant reply per call. Implementations must be
// safe for concurrent use across sessions; per-session serialization is
// the exchange layer's job.
type Engine interface {
	Generate(ctx context.Context, p Prompt) (string, error)
	Name() string
}
