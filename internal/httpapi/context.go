package httpapi

import (
	"context"
)

// serverBaseCtx is canceled on shutdown so in-flight generations stop with
// the process.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level context joined into every chat
// request. nil resets it to Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts derives from a and is also canceled when b is done.
// Call the returned cancel when the handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
