package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/milanglacier/aichat/internal/message"
)

// DryRunClient echoes the request back instead of calling a provider. Used
// for offline operation (`dry_run: true`) and as the exchange stand-in in
// tests.
type DryRunClient struct{}

// SendMessage returns a flattened echo of the request.
func (DryRunClient) SendMessage(_ context.Context, messages []message.Message, opts Options) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[dry-run] model=%s\n", opts.Model)
	for _, msg := range messages {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content.RenderInput(func(url string) string { return url }))
	}
	return sb.String(), nil
}

// SendMessageStreaming forwards the echo as a single delta.
func (d DryRunClient) SendMessageStreaming(ctx context.Context, messages []message.Message, opts Options, onDelta func(string)) (string, error) {
	reply, err := d.SendMessage(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	if onDelta != nil {
		onDelta(reply)
	}
	return reply, nil
}
