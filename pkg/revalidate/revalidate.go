// Package revalidate implements the Revalidation Planner: it decides, for a
// pair of match lists plus submission context, which routes' loaders must
// run on a transition.
//
// Applies a dependency-tracking idiom generalized to route-level
// granularity, comparing params and URL fields between the previous and
// next match lists; the decision table itself is this engine's own state
// machine for distinguishing loader re-runs from arbitrary reactive
// recomputation.
package revalidate

import (
	"net/url"
	"strings"

	"github.com/dataroute/dataroute/pkg/request"
	"github.com/dataroute/dataroute/pkg/route"
)

// Input is everything the planner needs to decide which of NextMatches'
// loaders must run.
type Input struct {
	PrevMatches route.Matches
	NextMatches route.Matches
	PrevURL     *url.URL
	NextURL     *url.URL

	// Submission is set when this transition is processing a non-GET
	// navigation submission (an action). nil for plain loader navigations.
	Submission *request.Submission
	ActionResult any

	// RevalidateHeader is true when a just-completed loader or action
	// response carried an X-Remix-Revalidate header.
	RevalidateHeader bool

	// SameURLRenavigation is true when the next location is pathname+search
	// +hash identical to the previous one — an explicit refresh.
	SameURLRenavigation bool

	// PrevErrored marks route ids whose previous load result was an error;
	// those always re-run while still matched.
	PrevErrored map[string]bool
}

// Plan returns the set of route ids (from Input.NextMatches) whose loaders
// must run on this transition.
func Plan(in Input) map[string]bool {
	prevByID := make(map[string]route.Match, len(in.PrevMatches))
	for _, m := range in.PrevMatches {
		prevByID[m.Route.ID] = m
	}

	forceAll := submissionForcesRevalidation(in.Submission) || in.RevalidateHeader

	result := make(map[string]bool)
	for _, m := range in.NextMatches {
		id := m.Route.ID
		prevMatch, existedBefore := prevByID[id]
		isNew := !existedBefore
		paramsChanged := existedBefore && !paramsEqual(prevMatch.Params, m.Params)
		searchChanged := searchStringChanged(in.PrevURL, in.NextURL)
		hashOnlyChanged := isNew && urlHashChanged(in.PrevURL, in.NextURL)
		postError := in.PrevErrored != nil && in.PrevErrored[id]

		def := isNew || paramsChanged || searchChanged || hashOnlyChanged || forceAll || in.SameURLRenavigation || postError
		final := def

		if m.Route.ShouldRevalidate != nil {
			args := buildArgs(prevMatch, m, in, def)
			if override := m.Route.ShouldRevalidate(args); override != nil {
				switch {
				case def && !*override:
					final = false
				case !def && *override:
					final = true
				}
			}
		}

		if final {
			result[id] = true
		}
	}
	return result
}

// FetcherShouldRevalidate implements the fetcher-participation rule: a
// fetcher with no data yet, or one currently loading, is always
// re-run; an idle fetcher with prior data consults its route's
// shouldRevalidate with defaultShouldRevalidate forced true, since it is
// only ever asked this question in response to a mutation.
func FetcherShouldRevalidate(r *route.Route, hasData, loading bool, args route.ShouldRevalidateArgs) bool {
	if !hasData || loading {
		return true
	}
	args.DefaultShouldRevalidate = true
	if r.ShouldRevalidate == nil {
		return true
	}
	override := r.ShouldRevalidate(args)
	if override != nil && !*override {
		return false
	}
	return true
}

func submissionForcesRevalidation(sub *request.Submission) bool {
	if sub == nil {
		return false
	}
	return !strings.EqualFold(sub.Method, "GET")
}

func buildArgs(prevMatch route.Match, next route.Match, in Input, def bool) route.ShouldRevalidateArgs {
	args := route.ShouldRevalidateArgs{
		CurrentParams:           prevMatch.Params,
		NextParams:              next.Params,
		ActionResult:            in.ActionResult,
		DefaultShouldRevalidate: def,
	}
	if in.PrevURL != nil {
		args.CurrentURL = in.PrevURL.String()
	}
	if in.NextURL != nil {
		args.NextURL = in.NextURL.String()
	}
	if in.Submission != nil {
		args.FormMethod = in.Submission.Method
		args.FormData = in.Submission.FormData
		args.FormEncType = in.Submission.EncType
	}
	return args
}

func paramsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func searchStringChanged(prev, next *url.URL) bool {
	return urlField(prev, func(u *url.URL) string { return u.RawQuery }) !=
		urlField(next, func(u *url.URL) string { return u.RawQuery })
}

func urlHashChanged(prev, next *url.URL) bool {
	return urlField(prev, func(u *url.URL) string { return u.Fragment }) !=
		urlField(next, func(u *url.URL) string { return u.Fragment })
}

func urlField(u *url.URL, f func(*url.URL) string) string {
	if u == nil {
		return ""
	}
	return f(u)
}
