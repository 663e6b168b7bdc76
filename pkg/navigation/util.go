package navigation

import (
	"net/url"
	"strings"

	"github.com/dataroute/dataroute/pkg/route"
)

// parseHref splits an href into a route.Location, leaving Key/State unset.
func parseHref(href string) route.Location {
	u, err := url.Parse(href)
	if err != nil {
		return route.Location{Pathname: href}
	}
	return route.Location{
		Pathname: u.Path,
		Search:   u.RawQuery,
		Hash:     strings.TrimPrefix(u.Fragment, "#"),
	}
}

// fullHref reconstructs the href of loc (pathname plus any search and hash) —
// loaders/actions receive the full navigated-to location, not just their
// own PathnameBase, since params from descendant segments are still part of
// the request.
func fullHref(loc route.Location) string {
	s := loc.Pathname
	if loc.Search != "" {
		s += "?" + loc.Search
	}
	if loc.Hash != "" {
		s += "#" + loc.Hash
	}
	return s
}

func rootID(roots []*route.Route) string {
	if len(roots) == 0 {
		return ""
	}
	return roots[0].ID
}

// rootOnlyMatches builds a single-element Matches for the 404 boundary case,
// where the matcher found nothing at all to bind params/pathname to.
func rootOnlyMatches(roots []*route.Route) route.Matches {
	if len(roots) == 0 {
		return nil
	}
	return route.Matches{{Route: roots[0], Params: map[string]string{}, Pathname: "/", PathnameBase: "/"}}
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
