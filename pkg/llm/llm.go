package llm

import "context"

// Responder is the minimal interface every reply backend implements. The HTTP
// routes and the Signal relay depend on it, never on a concrete client.
type Responder interface {
	Reply(ctx context.Context, message string) (string, error)
}
