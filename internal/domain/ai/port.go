package ai

import "context"

// Request is one chat-completion call.
type Request struct {
	System      string
	User        string
	Temperature float32
	// JSON asks the provider for a JSON object response when supported.
	JSON bool
}

type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
