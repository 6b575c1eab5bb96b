package llm

import "context"

// OfflinePrefix marks replies produced without contacting any provider.
const OfflinePrefix = "(mock) I understood: "

// Offline echoes the message back. It is the default responder and the
// fallback whenever a live provider cannot be built.
type Offline struct{}

// NewOffline returns the offline responder.
func NewOffline() *Offline {
	return &Offline{}
}

func (Offline) Reply(_ context.Context, message string) (string, error) {
	return OfflinePrefix + message, nil
}
