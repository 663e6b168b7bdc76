package navigation

import "github.com/dataroute/dataroute/pkg/route"

// HistoryAdapter is the engine's abstraction over a browser (or in-memory,
// for tests/SSR) history stack. It is intentionally the smallest surface
// the orchestrator needs, depending on a narrow interface rather than a
// concrete transport.
type HistoryAdapter interface {
	// Listen registers a callback invoked whenever the underlying history
	// changes out from under the engine (back/forward buttons, programmatic
	// pop). Returns an unlisten func.
	Listen(fn func(action route.HistoryAction, loc route.Location)) (unlisten func())

	// Push adds a new history entry, returning its assigned Location (with a
	// freshly minted Key).
	Push(href string, state any) route.Location

	// Replace overwrites the current history entry in place.
	Replace(href string, state any) route.Location

	// Go moves the history cursor by delta entries (negative = back).
	Go(delta int)

	// CreateHref resolves a target href against the adapter's basename, if
	// any.
	CreateHref(to string) string

	// Location returns the adapter's current location.
	Location() route.Location
}
