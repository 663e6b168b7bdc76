package match

import (
	"net/url"
	"sort"
	"strings"

	"github.com/dataroute/dataroute/pkg/route"
)

// segmentKind classifies one compiled path segment. The ranking weights
// below realize a static > dynamic > splat ordering, with index routes
// winning ties against their parent-as-leaf; the exact numbers are an
// implementation detail, not a contract.
type segmentKind int

const (
	segStatic segmentKind = iota
	segDynamic
	segSplat
)

const (
	weightStatic  = 10
	weightDynamic = 3
	weightSplat   = 1
	weightIndex   = 1
)

type compiledSegment struct {
	kind     segmentKind
	literal  string // segStatic
	param    string // segDynamic / segSplat
	optional bool
}

// parseSegments compiles a Route.Path pattern into its segments. A trailing
// "?" on a dynamic or static segment marks it optional. A splat segment
// ("*" or "*name") must be the pattern's last segment.
func parseSegments(pattern string) []compiledSegment {
	parts := splitPath(pattern)
	segs := make([]compiledSegment, 0, len(parts))
	for _, p := range parts {
		switch {
		case strings.HasPrefix(p, "*"):
			name := strings.TrimPrefix(p, "*")
			segs = append(segs, compiledSegment{kind: segSplat, param: name})
		case strings.HasPrefix(p, ":"):
			name := strings.TrimPrefix(p, ":")
			optional := strings.HasSuffix(name, "?")
			if optional {
				name = strings.TrimSuffix(name, "?")
			}
			segs = append(segs, compiledSegment{kind: segDynamic, param: name, optional: optional})
		default:
			optional := strings.HasSuffix(p, "?")
			lit := p
			if optional {
				lit = strings.TrimSuffix(lit, "?")
			}
			segs = append(segs, compiledSegment{kind: segStatic, literal: lit, optional: optional})
		}
	}
	return segs
}

// expandVariants returns every segment-list variant implied by optional
// segments, most-specific (all optional segments present) first. With no
// optional segments it returns exactly one variant.
func expandVariants(segs []compiledSegment) [][]compiledSegment {
	variants := [][]compiledSegment{nil}
	for _, seg := range segs {
		next := make([][]compiledSegment, 0, len(variants)*2)
		for _, v := range variants {
			withSeg := append(append([]compiledSegment{}, v...), seg)
			next = append(next, withSeg)
			if seg.optional {
				next = append(next, v)
			}
		}
		variants = next
	}
	return variants
}

// branch is one root-to-leaf candidate: a concrete segment list paired with
// the chain of routes it binds, in declaration order of discovery (used to
// break ranking ties in favor of earlier declaration order).
type branch struct {
	segments []compiledSegment
	routes   []*route.Route
	order    int
}

// buildBranches flattens a route tree into every matchable branch, each a
// root-to-leaf chain with its own concrete segment list. A route with
// children and a non-empty Path also terminates a branch at its own path
// (parent-as-leaf); an index child shares those segments and outranks it
// through weightIndex. A pathless route (Path "") only terminates a branch
// through its children or an index child.
func buildBranches(roots []*route.Route) []branch {
	var branches []branch
	order := 0
	var walk func(node *route.Route, prefix []compiledSegment, chain []*route.Route)
	walk = func(node *route.Route, prefix []compiledSegment, chain []*route.Route) {
		nodeVariants := expandVariants(parseSegments(node.Path))
		chain = append(chain, node)
		for _, variant := range nodeVariants {
			full := append(append([]compiledSegment{}, prefix...), variant...)
			if len(node.Children) == 0 {
				branches = append(branches, branch{segments: full, routes: append([]*route.Route{}, chain...), order: order})
				order++
				continue
			}
			sawIndex := false
			for _, child := range node.Children {
				if child.Index {
					sawIndex = true
					indexChain := append(append([]*route.Route{}, chain...), child)
					branches = append(branches, branch{segments: full, routes: indexChain, order: order})
					order++
					continue
				}
				walk(child, full, chain)
			}
			if node.Path != "" {
				branches = append(branches, branch{segments: full, routes: append([]*route.Route{}, chain...), order: order})
				order++
			}
			_ = sawIndex
		}
	}
	for _, r := range roots {
		walk(r, nil, nil)
	}
	return branches
}

func score(b branch) int {
	s := 0
	for _, seg := range b.segments {
		switch seg.kind {
		case segStatic:
			s += weightStatic
		case segDynamic:
			s += weightDynamic
		case segSplat:
			s += weightSplat
		}
	}
	if len(b.routes) > 0 && b.routes[len(b.routes)-1].Index {
		s += weightIndex
	}
	return s
}

// matchBranch attempts to bind b.segments against pathSegments. Splat must
// be the final segment and, when present, consumes every remaining
// pathSegment (binding the literal remainder, which may be empty).
func matchBranch(b branch, pathSegments []string) (params map[string]string, ok bool) {
	params = make(map[string]string)
	pi := 0
	for si, seg := range b.segments {
		isLastSeg := si == len(b.segments)-1
		if seg.kind == segSplat {
			rest := pathSegments[pi:]
			params[orDefault(seg.param, "*")] = strings.Join(rest, "/")
			return params, true
		}
		if pi >= len(pathSegments) {
			return nil, false
		}
		switch seg.kind {
		case segStatic:
			if pathSegments[pi] != seg.literal {
				return nil, false
			}
		case segDynamic:
			decoded, err := url.PathUnescape(pathSegments[pi])
			if err != nil {
				decoded = pathSegments[pi]
			}
			params[seg.param] = decoded
		}
		pi++
		_ = isLastSeg
	}
	if pi != len(pathSegments) {
		return nil, false
	}
	return params, true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Match maps pathname (already basename-stripped and canonicalized) against
// roots, returning the winning branch's Matches, or ok=false if nothing
// matched. Candidate branches are ranked by score descending, ties broken by
// declaration order ascending.
func Match(roots []*route.Route, pathname string) (route.Matches, bool) {
	pathSegments := splitPath(pathname)
	branches := buildBranches(roots)

	type candidate struct {
		b      branch
		params map[string]string
		s      int
	}
	var candidates []candidate
	for _, b := range branches {
		params, ok := matchBranch(b, pathSegments)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{b: b, params: params, s: score(b)})
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].s != candidates[j].s {
			return candidates[i].s > candidates[j].s
		}
		return candidates[i].b.order < candidates[j].b.order
	})

	winner := candidates[0]
	return buildMatches(winner.b, winner.params, pathname), true
}

// buildMatches turns a winning branch + extracted params into the
// root-to-leaf route.Matches, computing each match's Pathname/PathnameBase.
func buildMatches(b branch, params map[string]string, fullPathname string) route.Matches {
	matches := make(route.Matches, 0, len(b.routes))
	consumed := 0
	pathSegs := splitPath(fullPathname)
	segIdx := 0
	for _, r := range b.routes {
		nodeSegs := parseSegments(r.Path)
		own := 0
		for _, seg := range nodeSegs {
			if seg.kind == segSplat {
				own = len(pathSegs) - segIdx
				break
			}
			if segIdx+own < len(pathSegs) {
				own++
			} else if seg.optional {
				// optional segment absent at end of path: contributes 0.
			}
		}
		segIdx += own
		consumed = segIdx

		pathnameBase := "/" + strings.Join(pathSegs[:consumed], "/")
		if consumed == 0 {
			pathnameBase = "/"
		}
		matches = append(matches, route.Match{
			Route:        r,
			Params:       params,
			Pathname:     pathnameBase,
			PathnameBase: pathnameBase,
		})
	}
	if len(matches) > 0 {
		matches[len(matches)-1].Pathname = "/" + strings.Join(pathSegs, "/")
		if len(pathSegs) == 0 {
			matches[len(matches)-1].Pathname = "/"
		}
	}
	return matches
}
