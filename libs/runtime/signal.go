package runtime

import (
	"context"
	"os/signal"
	"syscall"
)

// SignalContext derives a context that is cancelled on SIGINT or SIGTERM. A nil parent
// means context.Background.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
