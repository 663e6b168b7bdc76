package navigation

import (
	"context"
	"sync"

	"github.com/dataroute/dataroute/pkg/deferred"
	"github.com/dataroute/dataroute/pkg/request"
	"github.com/dataroute/dataroute/pkg/route"
)

// redirectInfo captures a loader/action's redirect Response along with the
// bits the orchestrator needs to build the follow-up navigation.
type redirectInfo struct {
	location              string
	status                int
	preserveMethodAndBody bool
	forceRevalidate       bool
}

type loaderPhaseResult struct {
	loaderData       map[string]any
	errors           map[string]error
	redirect         *redirectInfo
	revalidateHeader bool
}

type loaderOutcome struct {
	routeID string
	data    any
	err     error
}

// runLoaderPhase calls every eligible matched route's loader in parallel,
// waits for all of them (a deliberate simplification of the
// return-vs-throw redirect abort asymmetry — see DESIGN.md), and folds the
// results into a new loaderData/errors pair layered over the carried-over
// previous values for routes this transition chose not to re-run.
func (e *Engine) runLoaderPhase(ctx context.Context, href string, matches route.Matches, eligible map[string]bool, prevLoaderData map[string]any) loaderPhaseResult {
	var wg sync.WaitGroup
	ch := make(chan loaderOutcome, len(matches))
	for _, m := range matches {
		if m.Route.Loader == nil || !eligible[m.Route.ID] {
			continue
		}
		m := m
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := request.New(ctx, href)
			if err != nil {
				ch <- loaderOutcome{routeID: m.Route.ID, err: err}
				return
			}
			data, err := m.Route.Loader(req)
			ch <- loaderOutcome{routeID: m.Route.ID, data: data, err: err}
		}()
	}
	wg.Wait()
	close(ch)

	loaderData := make(map[string]any, len(prevLoaderData))
	for k, v := range prevLoaderData {
		loaderData[k] = v
	}
	errs := make(map[string]error)
	result := loaderPhaseResult{loaderData: loaderData, errors: errs}

	for o := range ch {
		if o.err != nil {
			if resp, ok := route.AsResponse(o.err); ok {
				if resp.IsRedirect() {
					if result.redirect == nil {
						result.redirect = &redirectInfo{location: resp.Header.Get("Location"), status: resp.Status, preserveMethodAndBody: resp.PreservesMethodAndBody(), forceRevalidate: resp.ForcesRevalidate()}
					}
					continue
				}
				boundary := matches.BoundaryFor(o.routeID)
				errs[boundary] = route.ErrorResponseFromResponse(resp)
				delete(loaderData, o.routeID)
				continue
			}
			boundary := matches.BoundaryFor(o.routeID)
			errs[boundary] = o.err
			delete(loaderData, o.routeID)
			continue
		}

		if resp, ok := o.data.(*route.Response); ok {
			if resp.IsRedirect() {
				if result.redirect == nil {
					result.redirect = &redirectInfo{location: resp.Header.Get("Location"), status: resp.Status, preserveMethodAndBody: resp.PreservesMethodAndBody(), forceRevalidate: resp.ForcesRevalidate()}
				}
				continue
			}
			if resp.ForcesRevalidate() {
				result.revalidateHeader = true
			}
			loaderData[o.routeID] = resp
			continue
		}

		if sv, ok := o.data.(deferred.StreamedValue); ok {
			routeID := o.routeID
			set := deferred.NewSet(sv, func(string) { e.onDeferredFieldSettled(routeID) })
			e.registerDeferredSet(routeID, set)
			loaderData[routeID] = set
			continue
		}

		loaderData[o.routeID] = o.data
	}
	return result
}

// registerDeferredSet replaces (aborting the old one, if any) the tracked
// deferred set for routeID.
func (e *Engine) registerDeferredSet(routeID string, set *deferred.Set) {
	e.mu.Lock()
	if old, ok := e.deferredSets[routeID]; ok {
		old.Abort()
	}
	e.deferredSets[routeID] = set
	e.mu.Unlock()
}

// abortUnmatchedDeferred aborts and drops every tracked deferred set whose
// route is no longer present in matches — the "route no longer matched"
// cancellation trigger.
func (e *Engine) abortUnmatchedDeferred(matches route.Matches) {
	stillMatched := make(map[string]bool, len(matches))
	for _, m := range matches {
		stillMatched[m.Route.ID] = true
	}
	e.mu.Lock()
	for id, set := range e.deferredSets {
		if !stillMatched[id] {
			set.Abort()
			delete(e.deferredSets, id)
		}
	}
	e.mu.Unlock()
}

// abortAllDeferred aborts every tracked deferred set — used when an action
// submission starts or revalidate() is explicitly requested.
func (e *Engine) abortAllDeferred() {
	e.mu.Lock()
	for id, set := range e.deferredSets {
		set.Abort()
		delete(e.deferredSets, id)
	}
	e.mu.Unlock()
}

func (e *Engine) onDeferredFieldSettled(routeID string) {
	e.notify()
}
