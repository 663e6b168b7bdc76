// Package middleware wraps loader/action calls with OpenTelemetry tracing
// and Prometheus metrics.
// Each middleware wraps a `next` call and observes its result, composed via
// functional options, wrapping a loader/action call as the engine's unit of
// per-request work.
package middleware

// Middleware wraps a single loader or action invocation. req is the same
// opaque value LoaderFunc/ActionFunc receive (a *request.Request in
// practice); next invokes the next middleware (or the route's own
// loader/action) in the chain.
type Middleware func(req any, next func() (any, error)) (any, error)

// Wrap composes mws around fn, in the order given — the first middleware in
// the slice is the outermost.
func Wrap(fn func(req any) (any, error), mws ...Middleware) func(req any) (any, error) {
	wrapped := fn
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		next := wrapped
		wrapped = func(req any) (any, error) {
			return mw(req, func() (any, error) { return next(req) })
		}
	}
	return wrapped
}
