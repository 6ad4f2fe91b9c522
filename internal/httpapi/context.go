package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"
)

// daemonCtx ends when flickd starts shutting down. Unset means never.
var daemonCtx atomic.Pointer[context.Context]

// SetShutdownContext ties in-flight actuator tests to ctx. nil detaches them.
func SetShutdownContext(ctx context.Context) {
	if ctx == nil {
		daemonCtx.Store(nil)
		return
	}
	daemonCtx.Store(&ctx)
}

func shutdownContext() context.Context {
	if p := daemonCtx.Load(); p != nil {
		return *p
	}
	return context.Background()
}

// withShutdown derives a context from parent that also ends on shutdown.
func withShutdown(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(shutdownContext(), cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// actuatorContext scopes a POST /actuator/test to the request, the daemon
// and actuatorTestTimeout.
func actuatorContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := withShutdown(r.Context())
	if actuatorTestTimeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, actuatorTestTimeout)
	return tctx, func() {
		tcancel()
		cancel()
	}
}
