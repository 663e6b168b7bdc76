package match

import (
	"fmt"

	"github.com/dataroute/dataroute/pkg/route"
)

// Matcher is the stateless, reusable entry point into route matching: a
// pure function from a pathname (plus optional basename) to an ordered
// list of route.Match.
type Matcher struct {
	routes   []*route.Route
	basename string
}

// New validates routes (non-empty, unique ids) and returns a Matcher,
// assigning ids to any route left unset. Structural problems with the route
// tree are reported synchronously here, at factory time.
func New(routes []*route.Route, basename string) (*Matcher, error) {
	if len(routes) == 0 {
		return nil, route.ErrEmptyRouteTree
	}
	route.AssignIDs(routes)
	seen := make(map[string]struct{})
	for _, r := range routes {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if err := checkUnique(r, seen); err != nil {
			return nil, err
		}
	}
	return &Matcher{routes: routes, basename: basename}, nil
}

func checkUnique(r *route.Route, seen map[string]struct{}) error {
	if _, dup := seen[r.ID]; dup {
		return fmt.Errorf("%w: %q", route.ErrDuplicateRouteID, r.ID)
	}
	seen[r.ID] = struct{}{}
	for _, c := range r.Children {
		if err := checkUnique(c, seen); err != nil {
			return err
		}
	}
	return nil
}

// Routes returns the matcher's route tree roots.
func (m *Matcher) Routes() []*route.Route {
	return m.routes
}

// RouteByID searches the tree for a route with the given id.
func (m *Matcher) RouteByID(id string) (*route.Route, bool) {
	var found *route.Route
	var walk func(r *route.Route)
	walk = func(r *route.Route) {
		if found != nil {
			return
		}
		if r.ID == id {
			found = r
			return
		}
		for _, c := range r.Children {
			walk(c)
		}
	}
	for _, r := range m.routes {
		walk(r)
		if found != nil {
			break
		}
	}
	return found, found != nil
}

// Match strips the configured basename and canonicalizes pathname before
// delegating to the pure Match function. Returns ok=false (never an error)
// when the URL simply doesn't match any route: matcher failure is a
// nil/false result, not an error, and the caller synthesizes the 404 at the
// root boundary.
func (m *Matcher) Match(pathname string) (route.Matches, bool) {
	canon, _, err := Canonicalize(pathname)
	if err != nil {
		return nil, false
	}
	stripped, ok := StripBasename(canon, m.basename)
	if !ok {
		return nil, false
	}
	return Match(m.routes, stripped)
}
