// Package navigation implements the Navigation Orchestrator: the
// single-threaded state machine that drives matching, loader/action
// execution, redirects, revalidation, and history commits.
//
// Applies a CancelLatest concurrency model generalized from one action's
// sequencing to a whole navigation's — every commit checks its
// navigationId is still current before writing state — and an "all state
// mutation on one task" discipline, realized here with a mutex serializing
// commits instead of a channel-fed goroutine loop, since Go gives cheap
// goroutines-per-loader without needing a bespoke scheduler.
package navigation

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/dataroute/dataroute/pkg/deferred"
	"github.com/dataroute/dataroute/pkg/fetcher"
	"github.com/dataroute/dataroute/pkg/match"
	"github.com/dataroute/dataroute/pkg/request"
	"github.com/dataroute/dataroute/pkg/revalidate"
	"github.com/dataroute/dataroute/pkg/route"
)

const maxRedirectChain = 10

// Engine is the Router the factory function returns.
type Engine struct {
	mu       sync.Mutex
	matcher  *match.Matcher
	routes   []*route.Route
	history  HistoryAdapter
	basename string

	state     route.RouterState
	subs      map[int]func(route.RouterState)
	nextSubID int

	navSeq       uint64
	activeNavID  uint64
	activeCancel context.CancelFunc

	deferredSets map[string]*deferred.Set
	prevErrored  map[string]bool

	fetchers *fetcher.Registry

	scrollPositions map[string]route.RestoreScrollPosition
	getScrollY      func() float64
	getScrollKey    func(loc route.Location) string

	disposed        bool
	unlistenHistory func()

	logger *slog.Logger
}

func New(cfg Config) (*Engine, error) {
	m, err := match.New(cfg.Routes, cfg.Basename)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		matcher:      m,
		routes:       cfg.Routes,
		history:      cfg.History,
		basename:     cfg.Basename,
		subs:         make(map[int]func(route.RouterState)),
		deferredSets: make(map[string]*deferred.Set),
		prevErrored:  make(map[string]bool),
		logger:       logger,
	}
	e.fetchers = fetcher.New(e.dispatch, e.onFetcherSettled)

	initLoc := cfg.History.Location()
	matches, ok := m.Match(initLoc.Pathname)
	loaderData := map[string]any{}
	actionData := map[string]any{}
	errs := map[string]error{}
	initialized := false

	if cfg.HydrationData != nil {
		for k, v := range cfg.HydrationData.LoaderData {
			loaderData[k] = v
		}
		for k, v := range cfg.HydrationData.ActionData {
			actionData[k] = v
		}
		for k, v := range cfg.HydrationData.Errors {
			errs[k] = v
		}
		if len(cfg.HydrationData.Errors) > 0 {
			initialized = true
		} else {
			for _, mm := range matches {
				if _, has := loaderData[mm.Route.ID]; has {
					initialized = true
					break
				}
			}
		}
	}

	if !ok {
		matches = rootOnlyMatches(cfg.Routes)
		errs = map[string]error{rootID(cfg.Routes): route.NotFoundError(initLoc.Pathname)}
		initialized = true
	}

	e.state = route.RouterState{
		HistoryAction:         route.HistoryPop,
		Location:              initLoc,
		Matches:                matches,
		Initialized:           initialized,
		Navigation:            route.IdleNavigation,
		Revalidation:          "idle",
		LoaderData:            loaderData,
		ActionData:            actionData,
		Errors:                errs,
		Fetchers:              map[string]route.Fetcher{},
		RestoreScrollPosition: route.UnsetScrollPosition,
	}
	return e, nil
}

// Initialize runs loaders for every matched route lacking hydration data and
// starts listening for history POPs.
func (e *Engine) Initialize() {
	e.mu.Lock()
	if e.unlistenHistory == nil {
		e.unlistenHistory = e.history.Listen(e.onHistoryChange)
	}
	loc := e.state.Location
	matches := e.state.Matches
	hydrated := make(map[string]bool)
	for id := range e.state.LoaderData {
		hydrated[id] = true
	}
	for id := range e.state.Errors {
		hydrated[id] = true
	}
	e.mu.Unlock()

	plan := make(map[string]bool)
	for _, m := range matches {
		if m.Route.Loader != nil && !hydrated[m.Route.ID] {
			plan[m.Route.ID] = true
		}
	}
	if len(plan) == 0 {
		e.mu.Lock()
		e.state.Initialized = true
		e.mu.Unlock()
		e.notify()
		return
	}

	e.runTransition(runInput{
		target:         loc,
		historyAction:  route.HistoryPop,
		commitHistory:  false,
		markInitialized: true,
		matches:        matches,
		eligible:       plan,
	})
}

// Subscribe registers fn to be called with a fresh state snapshot after
// every commit. Returns an unsubscribe func.
func (e *Engine) Subscribe(fn func(route.RouterState)) func() {
	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// State returns a copy of the current state snapshot.
func (e *Engine) State() route.RouterState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Routes returns the route tree roots.
func (e *Engine) Routes() []*route.Route {
	return e.routes
}

// CreateHref resolves to against the history adapter's basename.
func (e *Engine) CreateHref(to string) string {
	return e.history.CreateHref(to)
}

// GetFetcher returns the current snapshot for key.
func (e *Engine) GetFetcher(key string) route.Fetcher {
	return e.fetchers.Get(key)
}

// DeleteFetcher aborts and forgets key.
func (e *Engine) DeleteFetcher(key string) {
	e.fetchers.Delete(key)
	e.notify()
}

// EnableScrollRestoration wires optional scroll-position bookkeeping. This
// is additive UI plumbing the engine stores but does not itself interpret —
// callers own the DOM.
func (e *Engine) EnableScrollRestoration(positions map[string]route.RestoreScrollPosition, getScrollY func() float64, getKey func(loc route.Location) string) {
	e.mu.Lock()
	e.scrollPositions = positions
	e.getScrollY = getScrollY
	e.getScrollKey = getKey
	e.mu.Unlock()
}

// Dispose cancels any in-flight navigation, aborts every tracked deferred,
// stops listening to history, and releases fetcher state.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	if e.activeCancel != nil {
		e.activeCancel()
	}
	if e.unlistenHistory != nil {
		e.unlistenHistory()
	}
	e.mu.Unlock()
	e.abortAllDeferred()
	for _, k := range e.fetchers.Keys() {
		e.fetchers.Delete(k)
	}
}

func (e *Engine) dispatch(fn func()) { fn() }

func (e *Engine) notify() {
	e.mu.Lock()
	e.state.Fetchers = e.fetchers.Snapshot()
	snap := e.state.Clone()
	subs := make([]func(route.RouterState), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// onHistoryChange handles a POP the history adapter observed (back/forward
// navigation it did not itself initiate via Push/Replace).
func (e *Engine) onHistoryChange(action route.HistoryAction, loc route.Location) {
	if action != route.HistoryPop {
		return
	}
	e.runTransitionForLocation(loc, NavigateOptions{}, route.HistoryPop, false)
}

// Navigate starts a new navigation to href. It runs asynchronously;
// observe results via Subscribe.
func (e *Engine) Navigate(href string, opts NavigateOptions) error {
	target := parseHref(href)
	historyAction := route.HistoryPush
	if opts.Replace {
		historyAction = route.HistoryReplace
	}
	e.logger.Debug("navigate", "path", target.Pathname, "replace", opts.Replace)
	go e.runTransitionForLocation(target, opts, historyAction, true)
	return nil
}

// NavigateDelta asks the history adapter to move by delta entries; the
// resulting POP flows back through onHistoryChange.
func (e *Engine) NavigateDelta(delta int) {
	e.logger.Debug("navigate delta", "delta", delta)
	e.history.Go(delta)
}

// Revalidate re-runs every currently matched route's loader. All
// outstanding deferreds are aborted first.
func (e *Engine) Revalidate() {
	e.mu.Lock()
	loc := e.state.Location
	matches := e.state.Matches
	e.mu.Unlock()
	e.logger.Debug("revalidate", "path", loc.Pathname)
	e.abortAllDeferred()
	e.runTransition(runInput{
		target:        loc,
		historyAction: route.HistoryPop,
		commitHistory: false,
		matches:       matches,
		eligible:      allEligible(matches),
	})
}

// Fetch starts a key-addressed loader or action call independent of the
// active navigation.
func (e *Engine) Fetch(key, routeID, href string, opts FetchOptions) {
	loc := parseHref(href)
	target, ok := e.matcher.Match(loc.Pathname)
	if !ok {
		e.logger.Warn("fetch: no route matched", "key", key, "path", loc.Pathname)
		return
	}
	leaf, ok := target.Leaf()
	if !ok {
		return
	}
	e.logger.Debug("fetch", "key", key, "routeId", routeID, "submission", opts.isSubmission())

	if !opts.isSubmission() {
		if leaf.Route.Loader == nil {
			return
		}
		e.fetchers.Load(context.Background(), key, routeID, func(ctx context.Context) (any, error) {
			req, err := request.New(ctx, href)
			if err != nil {
				return nil, err
			}
			return leaf.Route.Loader(req)
		})
		return
	}

	if leaf.Route.Action == nil {
		return
	}
	e.fetchers.Submit(context.Background(), key, routeID, opts.FormMethod, opts.FormEncType, opts.FormData, func(ctx context.Context) (any, error) {
		req, err := request.NewSubmission(ctx, href, &request.Submission{Method: opts.FormMethod, EncType: opts.FormEncType, FormData: url.Values(opts.FormData)})
		if err != nil {
			return nil, err
		}
		return leaf.Route.Action(req)
	})
	e.notify()

	// Non-GET fetcher submissions revalidate the current navigation's
	// matches and every other non-opting-out idle fetcher once the action
	// settles; onFetcherSettled schedules that follow-up (see below).
}

func (e *Engine) onFetcherSettled(res fetcher.Result) {
	if res.Err != nil {
		if resp, ok := route.AsResponse(res.Err); ok && resp.IsRedirect() {
			go func() {
				loc := parseHref(resp.Header.Get("Location"))
				e.Navigate(fullHref(loc), NavigateOptions{})
			}()
			return
		}
		e.logger.Warn("fetcher settled with error", "key", res.Key, "error", res.Err)
		e.notify()
		return
	}
	if res.WasSubmission {
		go e.revalidateAfterFetcherMutation(res.Key)
		return
	}
	e.notify()
}

// revalidateAfterFetcherMutation re-runs the current navigation's matched
// loaders, then reloads every idle fetcher with data other than
// submittedKey whose route's shouldRevalidate, consulted with
// defaultShouldRevalidate=true, does not opt out. A strict false from
// shouldRevalidate always keeps an idle fetcher from re-running.
func (e *Engine) revalidateAfterFetcherMutation(submittedKey string) {
	e.mu.Lock()
	loc := e.state.Location
	matches := e.state.Matches
	e.mu.Unlock()

	e.runTransition(runInput{
		target:              loc,
		historyAction:       route.HistoryPop,
		commitHistory:       false,
		matches:             matches,
		eligible:            allEligible(matches),
	})

	e.fetchers.ForEachIdleWithData(func(key, routeID string, data any) {
		if key == submittedKey {
			return
		}
		r, ok := e.matcher.RouteByID(routeID)
		if !ok || r.Loader == nil {
			return
		}
		args := route.ShouldRevalidateArgs{}
		if !revalidate.FetcherShouldRevalidate(r, true, false, args) {
			return
		}
		e.fetchers.Load(context.Background(), key, routeID, func(ctx context.Context) (any, error) {
			req, err := request.New(ctx, loc.Pathname)
			if err != nil {
				return nil, err
			}
			return r.Loader(req)
		})
	})
}

