// Package fetcher implements the Fetcher Registry: key-addressed
// loader/action calls that run independent of the active navigation.
//
// Uses a CancelLatest concurrency policy — cancel any in-flight call for a
// key, bump a sequence number, and discard any result whose sequence
// number is no longer current by the time it settles — applied to a
// registry of string-keyed, untyped fetchers. Settlement callbacks run
// through a caller-supplied Dispatch so the navigation orchestrator's
// single-threaded loop stays the only place fetcher state is mutated from
// outside this package.
package fetcher

import (
	"context"
	"sync"

	"github.com/dataroute/dataroute/pkg/route"
)

// Dispatch marshals fn onto the orchestrator's single-threaded command
// loop. Every Registry callback (onSettled) is invoked through Dispatch.
type Dispatch func(fn func())

// Result is delivered to onSettled once a fetcher's in-flight operation
// completes without having been superseded.
type Result struct {
	Key           string
	RouteID       string
	Data          any
	Err           error
	Response      *route.Response // set when Err is a *route.ErrorResponse; carries its Status and StatusText only
	WasSubmission bool
}

// Registry holds every active and idle-with-data fetcher, keyed by the
// caller-provided string key.
type Registry struct {
	mu        sync.Mutex
	fetchers  map[string]*entry
	dispatch  Dispatch
	onSettled func(Result)
}

type entry struct {
	routeID string
	state   route.Fetcher
	seq     uint64
	cancel  context.CancelFunc
}

// New creates an empty Registry. onSettled is invoked (via dispatch) each
// time a fetch settles without being superseded by a newer call for the
// same key.
func New(dispatch Dispatch, onSettled func(Result)) *Registry {
	return &Registry{
		fetchers:  make(map[string]*entry),
		dispatch:  dispatch,
		onSettled: onSettled,
	}
}

// Get returns the current snapshot for key, or route.IdleFetcher if key is
// unknown.
func (r *Registry) Get(key string) route.Fetcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.fetchers[key]
	if !ok {
		return route.IdleFetcher
	}
	return e.state
}

// Snapshot returns every known fetcher's current state, keyed by key — used
// to populate RouterState.Fetchers.
func (r *Registry) Snapshot() map[string]route.Fetcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]route.Fetcher, len(r.fetchers))
	for k, e := range r.fetchers {
		out[k] = e.state
	}
	return out
}

// Keys returns every currently tracked fetcher key.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.fetchers))
	for k := range r.fetchers {
		keys = append(keys, k)
	}
	return keys
}

// RouteID returns the owning route id recorded for key, and whether key is
// known at all.
func (r *Registry) RouteID(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.fetchers[key]
	if !ok {
		return "", false
	}
	return e.routeID, true
}

// Load starts a GET fetch (a loader call) for key, owned by routeID.
// Per the Identity/ordering rules, a newer Load or Submit for the same key
// cancels whatever is currently in flight for it.
func (r *Registry) Load(ctx context.Context, key, routeID string, fn func(ctx context.Context) (any, error)) {
	r.start(ctx, key, routeID, false, "", "", nil, fn)
}

// Submit starts a non-GET fetch (an action call) for key, owned by
// routeID. formMethod/formEncType/formData are recorded on the fetcher's
// Submitting state per route.Fetcher.
func (r *Registry) Submit(ctx context.Context, key, routeID, formMethod, formEncType string, formData map[string][]string, fn func(ctx context.Context) (any, error)) {
	r.start(ctx, key, routeID, true, formMethod, formEncType, formData, fn)
}

func (r *Registry) start(parent context.Context, key, routeID string, submitting bool, formMethod, formEncType string, formData map[string][]string, fn func(ctx context.Context) (any, error)) {
	r.mu.Lock()
	e, ok := r.fetchers[key]
	if !ok {
		e = &entry{state: route.IdleFetcher}
		r.fetchers[key] = e
	}
	if e.cancel != nil {
		e.cancel() // CancelLatest: abort whatever is currently in flight for this key
	}
	e.routeID = routeID
	e.seq++
	seq := e.seq

	status := route.FetcherLoading
	if submitting {
		status = route.FetcherSubmitting
	}
	e.state = route.Fetcher{
		State:       status,
		FormMethod:  formMethod,
		FormEncType: formEncType,
		FormData:    formData,
		Data:        e.state.Data,
		HasData:     e.state.HasData,
	}

	workCtx, cancel := context.WithCancel(parent)
	e.cancel = cancel
	r.mu.Unlock()

	go func() {
		data, err := fn(workCtx)
		if workCtx.Err() != nil {
			return // superseded or deleted: discard, per "newer submission aborts any older inflight operation"
		}

		r.mu.Lock()
		cur, stillTracked := r.fetchers[key]
		if !stillTracked || cur.seq != seq {
			r.mu.Unlock()
			return // stale settlement for a key that moved on or was deleted
		}

		var resp *route.Response
		if rr, ok := route.AsErrorResponse(err); ok {
			resp = &route.Response{Status: rr.Status, StatusText: rr.StatusText}
		}
		if err == nil {
			cur.state = route.Fetcher{State: route.FetcherIdle, Data: data, HasData: true}
		} else {
			// Fetcher errors are removed from the registry and do not retain
			// prior data.
			delete(r.fetchers, key)
		}
		dispatch, cb := r.dispatch, r.onSettled
		r.mu.Unlock()

		result := Result{Key: key, RouteID: routeID, Data: data, Err: err, Response: resp, WasSubmission: submitting}
		if dispatch != nil && cb != nil {
			dispatch(func() { cb(result) })
		} else if cb != nil {
			cb(result)
		}
	}()
}

// Delete aborts any inflight operation for key and removes its state.
func (r *Registry) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.fetchers[key]; ok && e.cancel != nil {
		e.cancel()
	}
	delete(r.fetchers, key)
}

// MarkIdleWithData force-sets a fetcher's committed data outside the
// Load/Submit flow — used by the orchestrator to apply a revalidation
// result for an idle fetcher that opted in via shouldRevalidate.
func (r *Registry) MarkIdleWithData(key string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.fetchers[key]
	if !ok {
		e = &entry{}
		r.fetchers[key] = e
	}
	e.state = route.Fetcher{State: route.FetcherIdle, Data: data, HasData: true}
}

// ForEachIdleWithData calls fn for every fetcher currently idle and holding
// previously loaded data, consulted on every mutation.
func (r *Registry) ForEachIdleWithData(fn func(key, routeID string, data any)) {
	r.mu.Lock()
	type snap struct {
		key, routeID string
		data         any
	}
	var snaps []snap
	for k, e := range r.fetchers {
		if e.state.State == route.FetcherIdle && e.state.HasData {
			snaps = append(snaps, snap{k, e.routeID, e.state.Data})
		}
	}
	r.mu.Unlock()
	for _, s := range snaps {
		fn(s.key, s.routeID, s.data)
	}
}

// AbortAll cancels every currently inflight fetcher operation without
// removing their committed state. A cancelled operation's result is
// discarded when it settles, so its fetcher keeps the state it had when
// AbortAll ran (a loading or submitting fetcher stays in that state).
func (r *Registry) AbortAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.fetchers {
		if e.cancel != nil {
			e.cancel()
		}
	}
}
