// Package client implements the exchange layer: it turns constructed
// request messages into assistant text over the wire. It never touches
// session state; cancellation arrives through the request context and is
// reported as the context error.
package client

import (
	"context"

	"github.com/milanglacier/aichat/internal/message"
)

// Options carries the per-request knobs decided by the command handler.
type Options struct {
	// Model is the provider-side model identifier.
	Model string
	// Temperature overrides the provider default when set.
	Temperature *float64
}

// Client performs one exchange with a text-generation service.
type Client interface {
	// SendMessage performs a blocking exchange and returns the full
	// assistant reply.
	SendMessage(ctx context.Context, messages []message.Message, opts Options) (string, error)
	// SendMessageStreaming streams the reply through onDelta as it
	// arrives and returns the accumulated text. A cancelled context
	// returns ctx.Err() with whatever partial text was received.
	SendMessageStreaming(ctx context.Context, messages []message.Message, opts Options, onDelta func(delta string)) (string, error)
}
