// Package dataroute provides the public API for the data-aware routing
// engine.
//
// This is the recommended import for most applications:
//
//	import "github.com/dataroute/dataroute"
//
// Usage:
//
//	history := memoryhistory.New("/", "")
//	engine, err := dataroute.New(dataroute.Config{Routes: routes, History: history})
//	engine.Initialize()
//	unsubscribe := engine.Subscribe(func(state dataroute.RouterState) { ... })
//	engine.Navigate("/about", dataroute.NavigateOptions{})
package dataroute

import (
	"github.com/dataroute/dataroute/pkg/match"
	"github.com/dataroute/dataroute/pkg/middleware"
	"github.com/dataroute/dataroute/pkg/navigation"
	"github.com/dataroute/dataroute/pkg/request"
	"github.com/dataroute/dataroute/pkg/route"
	"github.com/dataroute/dataroute/pkg/static"
)

// Engine is the Navigation Orchestrator. Aliased here so callers depend on
// the root package alone for the common case, rather than importing
// pkg/navigation directly.
type Engine = navigation.Engine

// Config is the engine factory's input: routes, a HistoryAdapter, an
// optional basename, and optional hydration data from a prior Static
// Handler query.
type Config = navigation.Config

// HydrationData seeds an Engine's initial state from a server-rendered
// Static Handler result, letting a client skip the loaders the server
// already ran.
type HydrationData = navigation.HydrationData

// HistoryAdapter is the engine's abstraction over a history stack. Supply
// memoryhistory.New for tests, SSR, or any non-browser embedding; browser
// embeddings supply their own adapter over window.history.
type HistoryAdapter = navigation.HistoryAdapter

// NavigateOptions configures a Navigate call.
type NavigateOptions = navigation.NavigateOptions

// FetchOptions configures a Fetch call against the Fetcher Registry.
type FetchOptions = navigation.FetchOptions

// RouterState is the single immutable snapshot the engine hands to every
// subscriber after each commit.
type RouterState = route.RouterState

// Route describes one node of the route tree: its path segment, optional
// Loader/Action, and child routes.
type Route = route.Route

// Response is a returned-or-thrown redirect/status result from a
// loader/action.
type Response = route.Response

// ErrorResponse is the serializable error value an error boundary receives.
type ErrorResponse = route.ErrorResponse

// Fetcher is a single key-addressed fetcher's state snapshot.
type Fetcher = route.Fetcher

// Redirect builds a 302 Response to location, for use with Throw or as a
// returned loader/action value.
func Redirect(location string) *Response { return route.Redirect(location) }

// RedirectWithStatus builds a Response to location with an explicit
// redirect status (301, 302, 303, 307, or 308).
func RedirectWithStatus(location string, status int) *Response {
	return route.RedirectWithStatus(location, status)
}

// Throw wraps resp as an error, for loaders/actions that need to
// short-circuit the call stack instead of returning a value the caller must
// check.
func Throw(resp *Response) error { return route.Throw(resp) }

// AsResponse unwraps a thrown Response back out of an error chain.
func AsResponse(err error) (*Response, bool) { return route.AsResponse(err) }

// New builds an Engine over cfg, validating the route tree the same way
// match.New does.
func New(cfg Config) (*Engine, error) {
	return navigation.New(cfg)
}

// NewStaticHandler builds a Static Handler over routes for server-side
// query/render pipelines, independent of any Engine/history.
func NewStaticHandler(routes []*Route, basename string, opts ...static.Option) (*static.Handler, error) {
	return static.New(routes, basename, opts...)
}

// NewMatcher builds a standalone Matcher over routes, for callers that only
// need route resolution without the rest of the engine.
func NewMatcher(routes []*Route, basename string) (*match.Matcher, error) {
	return match.New(routes, basename)
}

// Middleware, Wrap, OpenTelemetry, and Prometheus re-export the middleware
// package's loader/action instrumentation for callers that don't need the
// rest of that package's surface.
type Middleware = middleware.Middleware

var Wrap = middleware.Wrap
var OpenTelemetry = middleware.OpenTelemetry
var Prometheus = middleware.Prometheus

// Request is the per-call request-like object passed to every
// loader/action.
type Request = request.Request

// Submission carries the non-GET form data for an action/loader call.
type Submission = request.Submission
