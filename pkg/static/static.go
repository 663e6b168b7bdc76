// Package static implements the Static Handler: a synchronous,
// single-transaction query over the same Matcher, Request Builder,
// Deferred Tracker, and Fetcher-free loader/action pipeline the
// Navigation Orchestrator uses, for server-side rendering.
//
// Match -> run the data step -> commit as one transaction -> return a
// result, except here the "render/diff/patch" step is dropped entirely
// (there is no UI) and every tracked deferred promise is awaited before
// returning, a non-streaming pipeline with no partial-commit branch.
package static

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/dataroute/dataroute/pkg/deferred"
	"github.com/dataroute/dataroute/pkg/match"
	"github.com/dataroute/dataroute/pkg/request"
	"github.com/dataroute/dataroute/pkg/route"
)

// Context is the serializable result of a Query call.
type Context struct {
	Matches       route.Matches
	LoaderData    map[string]any
	ActionData    map[string]any
	Errors        map[string]error
	StatusCode    int
	ActionHeaders map[string]http.Header
	LoaderHeaders map[string]http.Header

	// Redirect is set when a loader or action short-circuited the query with
	// a redirect Response, returned to the caller as-is.
	Redirect *route.Response
}

// Handler is the Static Handler: a reusable, stateless (beyond its optional
// cache) query surface over a route tree.
type Handler struct {
	matcher *match.Matcher
	routes  []*route.Route
	cache   *ResponseCache // nil unless WithCache is used
	logger  *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithCache enables the optional response-level cache, off by default.
// Additive: a TTL/LRU cache generalized from rendered trees to query
// Contexts.
func WithCache(cache *ResponseCache) Option {
	return func(h *Handler) { h.cache = cache }
}

// WithLogger sets the logger used for per-query records. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// New builds a Handler for routes, validating the tree the same way
// navigation.New does.
func New(routes []*route.Route, basename string, opts ...Option) (*Handler, error) {
	m, err := match.New(routes, basename)
	if err != nil {
		return nil, err
	}
	h := &Handler{matcher: m, routes: routes, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// queryOutcome mirrors navigation's loaderOutcome but for the static
// pipeline, which additionally records per-route response headers.
type queryOutcome struct {
	routeID string
	data    any
	err     error
	header  http.Header
}

// Query runs the full matching + action (if submission) + loading pipeline
// synchronously, awaiting every tracked deferred promise before returning.
// ctx must carry the caller's abort signal: Query returns
// route.ErrRequiresAbortSignal if ctx is nil, and ErrMethodNotAllowed for
// HEAD/OPTIONS.
func (h *Handler) Query(ctx context.Context, fullURL string, sub *request.Submission) (*Context, error) {
	if ctx == nil {
		return nil, route.ErrRequiresAbortSignal
	}
	method := http.MethodGet
	if sub != nil {
		method = sub.Method
	}
	if method == http.MethodHead || method == http.MethodOptions {
		return nil, route.ErrMethodNotAllowed
	}

	if h.cache != nil && sub == nil {
		if cached, ok := h.cache.Get(fullURL); ok {
			return cached, nil
		}
	}

	matches, ok := h.matcher.Match(pathnameOf(fullURL))
	if !ok {
		h.logger.Warn("static query: no route matched", "path", fullURL)
		return &Context{
			Errors:     map[string]error{rootID(h.routes): route.NotFoundError(fullURL)},
			StatusCode: http.StatusNotFound,
		}, nil
	}

	actionData := map[string]any{}
	actionHeaders := map[string]http.Header{}
	eligible := allEligible(matches)
	var boundaryErr error
	var boundaryID string
	actionStatus := 0

	if sub != nil && sub.Method != http.MethodGet {
		leaf, hasLeaf := matches.Leaf()
		if !hasLeaf || leaf.Route.Action == nil {
			boundaryID = matches.BoundaryFor(leafID(leaf, hasLeaf))
			boundaryErr = route.NoActionError(fullURL)
			eligible = ancestorsUpTo(matches, boundaryID)
		} else {
			req, err := request.NewSubmission(ctx, fullURL, sub)
			var data any
			var actionErr error
			if err != nil {
				actionErr = err
			} else {
				data, actionErr = leaf.Route.Action(req)
			}

			if actionErr == nil {
				actionData[leaf.Route.ID] = data
				if resp, isResp := data.(*route.Response); isResp {
					actionStatus = resp.Status
					actionHeaders[leaf.Route.ID] = resp.Header
				}
			} else if resp, isResp := route.AsResponse(actionErr); isResp && resp.IsRedirect() {
				return &Context{Redirect: resp}, nil
			} else {
				boundaryID = matches.BoundaryFor(leaf.Route.ID)
				if resp, isResp := route.AsResponse(actionErr); isResp {
					boundaryErr = route.ErrorResponseFromResponse(resp)
				} else {
					boundaryErr = actionErr
				}
				eligible = ancestorsUpTo(matches, boundaryID)
			}
		}
	}

	loaderData, loaderHeaders, deferredSets, redirect, loaderErrBoundary, loaderErr := h.runLoaders(ctx, fullURL, matches, eligible)
	if redirect != nil {
		return &Context{Redirect: redirect}, nil
	}

	for _, set := range deferredSets {
		set.AwaitAll(ctx.Done())
	}
	for id, set := range deferredSets {
		loaderData[id] = set.Snapshot()
	}

	errs := map[string]error{}
	if boundaryErr != nil {
		errs[boundaryID] = boundaryErr
	}
	if loaderErr != nil {
		errs[loaderErrBoundary] = loaderErr
	}

	result := &Context{
		Matches:       matches,
		LoaderData:    loaderData,
		ActionData:    actionData,
		Errors:        errs,
		ActionHeaders: actionHeaders,
		LoaderHeaders: loaderHeaders,
		StatusCode:    deriveStatus(matches, actionStatus, errs, loaderData),
	}
	h.logger.Debug("static query", "path", fullURL, "status", result.StatusCode, "errorCount", len(errs))
	if h.cache != nil && sub == nil && len(errs) == 0 {
		h.cache.Set(fullURL, result)
	}
	return result, nil
}

// QueryRoute returns a single route's loader/action value without
// unwrapping Responses, so the caller can stream binary payloads.
func (h *Handler) QueryRoute(ctx context.Context, fullURL string, routeID string, sub *request.Submission) (any, error) {
	if ctx == nil {
		return nil, route.ErrRequiresAbortSignal
	}
	r, ok := h.matcher.RouteByID(routeID)
	if !ok {
		return nil, route.ErrNoMatch
	}
	if sub != nil && sub.Method != http.MethodGet {
		if r.Action == nil {
			return nil, route.ErrNoAction
		}
		req, err := request.NewSubmission(ctx, fullURL, sub)
		if err != nil {
			return nil, err
		}
		return r.Action(req)
	}
	if r.Loader == nil {
		return nil, nil
	}
	req, err := request.New(ctx, fullURL)
	if err != nil {
		return nil, err
	}
	return r.Loader(req)
}

func (h *Handler) runLoaders(ctx context.Context, fullURL string, matches route.Matches, eligible map[string]bool) (
	loaderData map[string]any, headers map[string]http.Header, sets map[string]*deferred.Set, redirect *route.Response, errBoundary string, boundaryErr error,
) {
	var wg sync.WaitGroup
	ch := make(chan queryOutcome, len(matches))
	for _, m := range matches {
		if m.Route.Loader == nil || !eligible[m.Route.ID] {
			continue
		}
		m := m
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := request.New(ctx, fullURL)
			if err != nil {
				ch <- queryOutcome{routeID: m.Route.ID, err: err}
				return
			}
			data, err := m.Route.Loader(req)
			out := queryOutcome{routeID: m.Route.ID, data: data, err: err}
			if resp, ok := data.(*route.Response); ok {
				out.header = resp.Header
			}
			ch <- out
		}()
	}
	wg.Wait()
	close(ch)

	loaderData = map[string]any{}
	headers = map[string]http.Header{}
	sets = map[string]*deferred.Set{}

	for o := range ch {
		if o.err != nil {
			if resp, ok := route.AsResponse(o.err); ok {
				if resp.IsRedirect() {
					redirect = resp
					continue
				}
				errBoundary = matches.BoundaryFor(o.routeID)
				boundaryErr = route.ErrorResponseFromResponse(resp)
				continue
			}
			errBoundary = matches.BoundaryFor(o.routeID)
			boundaryErr = o.err
			continue
		}
		if resp, ok := o.data.(*route.Response); ok {
			if resp.IsRedirect() {
				redirect = resp
				continue
			}
			loaderData[o.routeID] = resp
			headers[o.routeID] = resp.Header
			continue
		}
		if sv, ok := o.data.(deferred.StreamedValue); ok {
			sets[o.routeID] = deferred.NewSet(sv, func(string) {})
			continue
		}
		loaderData[o.routeID] = o.data
	}
	return
}

// deriveStatus implements the status-code rule: the action's response
// status if the submission succeeded; the shallowest 4xx/5xx if any error
// exists; otherwise the deepest non-error 2xx from a loader response;
// default 200.
func deriveStatus(matches route.Matches, actionStatus int, errs map[string]error, loaderData map[string]any) int {
	if actionStatus != 0 {
		return actionStatus
	}
	if len(errs) > 0 {
		for _, m := range matches {
			if err, ok := errs[m.Route.ID]; ok {
				if er, isER := route.AsErrorResponse(err); isER {
					return er.Status
				}
				return http.StatusInternalServerError
			}
		}
		for _, err := range errs {
			if er, isER := route.AsErrorResponse(err); isER {
				return er.Status
			}
			return http.StatusInternalServerError
		}
	}
	for i := len(matches) - 1; i >= 0; i-- {
		if resp, ok := loaderData[matches[i].Route.ID].(*route.Response); ok {
			return resp.Status
		}
	}
	return http.StatusOK
}

func pathnameOf(fullURL string) string {
	for i, c := range fullURL {
		if c == '?' || c == '#' {
			return fullURL[:i]
		}
	}
	return fullURL
}

func rootID(roots []*route.Route) string {
	if len(roots) == 0 {
		return ""
	}
	return roots[0].ID
}

func leafID(m route.Match, ok bool) string {
	if !ok {
		return ""
	}
	return m.Route.ID
}

func ancestorsUpTo(matches route.Matches, boundaryID string) map[string]bool {
	eligible := make(map[string]bool)
	for _, m := range matches {
		eligible[m.Route.ID] = true
		if m.Route.ID == boundaryID {
			break
		}
	}
	return eligible
}

func allEligible(matches route.Matches) map[string]bool {
	eligible := make(map[string]bool, len(matches))
	for _, m := range matches {
		eligible[m.Route.ID] = true
	}
	return eligible
}
