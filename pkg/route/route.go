// Package route defines the data model shared by every component of the
// routing engine: routes, matches, locations, navigations, fetchers, and the
// observable router state snapshot.
package route

import (
	"fmt"
	"strconv"
	"sync"
)

// LoaderFunc loads data for a route. It receives a per-call Request (see
// package request) as an opaque value to avoid an import cycle; callers type
// it as *request.Request. Using `any` here leaves the concrete request type
// to the caller side, the way an untyped handler argument commonly does.
type LoaderFunc func(req any) (any, error)

// ActionFunc mutates data for a route. Same calling convention as LoaderFunc.
type ActionFunc func(req any) (any, error)

// ShouldRevalidateFunc lets a route override the default revalidation
// decision for a transition. A nil *bool return means "no opinion, defer to
// the default" — see the Revalidation Planner semantics in SPEC_FULL.md §4.4.
type ShouldRevalidateFunc func(args ShouldRevalidateArgs) *bool

// ShouldRevalidateArgs is the argument bundle passed to ShouldRevalidateFunc.
type ShouldRevalidateArgs struct {
	CurrentParams           map[string]string
	CurrentURL              string
	NextParams              map[string]string
	NextURL                 string
	FormMethod              string
	FormData                map[string][]string
	FormEncType             string
	FormAction              string
	ActionResult            any
	DefaultShouldRevalidate bool
}

// Route is an immutable node in the route tree. Ids are assigned at tree
// build time if absent (AssignIDs, called by match.New) and are
// globally unique across the tree.
type Route struct {
	ID               string
	Path             string // pattern relative to the parent, e.g. ":id", "*slug", "" for index/layout
	Index            bool
	Loader           LoaderFunc
	Action           ActionFunc
	HasErrorBoundary bool
	ShouldRevalidate ShouldRevalidateFunc
	Children         []*Route
}

// Validate checks the structural invariants of a route tree: index routes
// carry no children, and every id in the subtree is unique.
func (r *Route) Validate() error {
	seen := make(map[string]struct{})
	return r.validate(seen)
}

func (r *Route) validate(seen map[string]struct{}) error {
	if r.Index && len(r.Children) > 0 {
		return fmt.Errorf("route: index route %q must not have children", r.ID)
	}
	if r.ID != "" {
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("route: duplicate route id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	for _, c := range r.Children {
		if err := c.validate(seen); err != nil {
			return err
		}
	}
	return nil
}

// AssignIDs walks the tree depth-first and fills in any empty Route.ID with a
// deterministic id derived from tree position, rather than requiring the
// caller to name every node.
func AssignIDs(routes []*Route) {
	var walk func(parent string, idx int, r *Route)
	walk = func(parent string, idx int, r *Route) {
		if r.ID == "" {
			if parent == "" {
				r.ID = strconv.Itoa(idx)
			} else {
				r.ID = parent + "." + strconv.Itoa(idx)
			}
		}
		for i, c := range r.Children {
			walk(r.ID, i, c)
		}
	}
	for i, r := range routes {
		walk("", i, r)
	}
}

// Match binds a Route to concrete params and path segments for one URL, root
// to leaf.
type Match struct {
	Route        *Route
	Params       map[string]string
	Pathname     string
	PathnameBase string
}

// Matches is an ordered, root-to-leaf list of Match, always ending in exactly
// one terminal route (leaf or index route).
type Matches []Match

// Leaf returns the terminal match, or the zero Match if empty.
func (m Matches) Leaf() (Match, bool) {
	if len(m) == 0 {
		return Match{}, false
	}
	return m[len(m)-1], true
}

// RouteIDs returns the ids of every matched route, root to leaf.
func (m Matches) RouteIDs() []string {
	ids := make([]string, len(m))
	for i, match := range m {
		ids[i] = match.Route.ID
	}
	return ids
}

// FindByID returns the match for the given route id, if present.
func (m Matches) FindByID(id string) (Match, bool) {
	for _, match := range m {
		if match.Route.ID == id {
			return match, true
		}
	}
	return Match{}, false
}

// BoundaryFor returns the id of the nearest ancestor (inclusive) of routeID
// that has an error boundary, falling back to the root route's id if none
// exists — the root route is implicitly treated as a boundary.
func (m Matches) BoundaryFor(routeID string) string {
	idx := -1
	for i, match := range m {
		if match.Route.ID == routeID {
			idx = i
			break
		}
	}
	if idx == -1 {
		idx = len(m) - 1
	}
	for i := idx; i >= 0; i-- {
		if m[i].Route.HasErrorBoundary {
			return m[i].Route.ID
		}
	}
	if len(m) > 0 {
		return m[0].Route.ID
	}
	return ""
}

// HistoryAction is the kind of history commit a transition performs.
type HistoryAction string

const (
	HistoryPop     HistoryAction = "POP"
	HistoryPush    HistoryAction = "PUSH"
	HistoryReplace HistoryAction = "REPLACE"
)

// Location is one entry in the history stack. Key is an opaque unique
// string per distinct entry; the initial entry's key is "default".
type Location struct {
	Pathname string
	Search   string
	Hash     string
	State    any
	Key      string
}

// DefaultLocationKey is the key assigned to the initial history entry.
const DefaultLocationKey = "default"

var keyCounter struct {
	mu sync.Mutex
	n  uint64
}

// NewLocationKey returns a fresh opaque location key, monotonically
// distinct within this process.
func NewLocationKey() string {
	keyCounter.mu.Lock()
	keyCounter.n++
	n := keyCounter.n
	keyCounter.mu.Unlock()
	return strconv.FormatUint(n, 36)
}

// Path reconstructs "pathname+search+hash" for comparison/history purposes.
func (l Location) Path() string {
	s := l.Pathname
	if l.Search != "" {
		s += "?" + l.Search
	}
	if l.Hash != "" {
		s += "#" + l.Hash
	}
	return s
}

// SameAddress reports whether two locations share pathname+search+hash,
// ignoring Key and State — used for "auto-replace" and "explicit refresh"
// detection.
func (l Location) SameAddress(other Location) bool {
	return l.Pathname == other.Pathname && l.Search == other.Search && l.Hash == other.Hash
}

// NavigationState is the kind of navigation currently inflight.
type NavigationState string

const (
	NavigationIdle       NavigationState = "idle"
	NavigationLoading    NavigationState = "loading"
	NavigationSubmitting NavigationState = "submitting"
)

// Navigation describes the inflight (or idle) navigation.
type Navigation struct {
	State       NavigationState
	Location    Location
	FormMethod  string
	FormEncType string
	FormData    map[string][]string
}

// IdleNavigation is the canonical idle navigation value.
var IdleNavigation = Navigation{State: NavigationIdle}

// FetcherState is the state of a keyed fetcher operation.
type FetcherState string

const (
	FetcherIdle       FetcherState = "idle"
	FetcherLoading    FetcherState = "loading"
	FetcherSubmitting FetcherState = "submitting"
)

// Fetcher is a keyed, UI-independent data operation. Idle fetchers retain
// their last Data until explicitly deleted.
type Fetcher struct {
	State       FetcherState
	FormMethod  string
	FormEncType string
	FormData    map[string][]string
	Data        any
	HasData     bool
}

// IdleFetcher is returned by GetFetcher for unknown keys.
var IdleFetcher = Fetcher{State: FetcherIdle}

// RouterState is the single observable snapshot exposed by the engine.
type RouterState struct {
	HistoryAction         HistoryAction
	Location              Location
	Matches               Matches
	Initialized           bool
	Navigation            Navigation
	Revalidation          string // "idle" | "loading"
	LoaderData            map[string]any
	ActionData            map[string]any // empty when absent
	Errors                map[string]error // empty when absent
	Fetchers              map[string]Fetcher
	PreventScrollReset    bool
	RestoreScrollPosition RestoreScrollPosition
}

// RestoreScrollPosition distinguishes "no hint" (Unset) from "hint is
// explicitly false" (False) from a concrete pixel position, modeling a
// `number | null | false` union without resorting to `any`.
type RestoreScrollPosition struct {
	Unset bool
	False bool
	Y     int
}

// UnsetScrollPosition is the default "no restore hint" value.
var UnsetScrollPosition = RestoreScrollPosition{Unset: true}

// Clone returns a shallow copy of the state with fresh top-level map
// references: commits produce new snapshot references, and subscribers
// compare references, not contents.
func (s RouterState) Clone() RouterState {
	clone := s
	clone.LoaderData = cloneAnyMap(s.LoaderData)
	clone.ActionData = cloneAnyMap(s.ActionData)
	clone.Errors = cloneErrorMap(s.Errors)
	clone.Fetchers = cloneFetcherMap(s.Fetchers)
	return clone
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneErrorMap(m map[string]error) map[string]error {
	if m == nil {
		return nil
	}
	out := make(map[string]error, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneFetcherMap(m map[string]Fetcher) map[string]Fetcher {
	if m == nil {
		return nil
	}
	out := make(map[string]Fetcher, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
