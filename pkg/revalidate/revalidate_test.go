package revalidate

import (
	"net/url"
	"testing"

	"github.com/dataroute/dataroute/pkg/request"
	"github.com/dataroute/dataroute/pkg/route"
)

func mustURL(t *testing.T, s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return u
}

func TestPlanNewlyMatchedRouteRevalidates(t *testing.T) {
	root := &route.Route{ID: "root"}
	child := &route.Route{ID: "child"}
	prev := route.Matches{{Route: root, Params: map[string]string{}}}
	next := route.Matches{{Route: root, Params: map[string]string{}}, {Route: child, Params: map[string]string{}}}

	got := Plan(Input{
		PrevMatches: prev,
		NextMatches: next,
		PrevURL:     mustURL(t, "/a"),
		NextURL:     mustURL(t, "/a/b"),
	})
	if !got["child"] {
		t.Fatal("expected newly matched child route to revalidate")
	}
	if got["root"] {
		t.Fatal("root is unchanged and should not revalidate")
	}
}

func TestPlanParamsChanged(t *testing.T) {
	r := &route.Route{ID: "post"}
	prev := route.Matches{{Route: r, Params: map[string]string{"id": "1"}}}
	next := route.Matches{{Route: r, Params: map[string]string{"id": "2"}}}

	got := Plan(Input{
		PrevMatches: prev, NextMatches: next,
		PrevURL: mustURL(t, "/posts/1"), NextURL: mustURL(t, "/posts/2"),
	})
	if !got["post"] {
		t.Fatal("expected param change to force revalidation")
	}
}

func TestPlanHashOnlyChangeSkipsAllLoaders(t *testing.T) {
	r := &route.Route{ID: "post"}
	prev := route.Matches{{Route: r, Params: map[string]string{"id": "1"}}}
	next := route.Matches{{Route: r, Params: map[string]string{"id": "1"}}}

	got := Plan(Input{
		PrevMatches: prev, NextMatches: next,
		PrevURL: mustURL(t, "/posts/1#a"), NextURL: mustURL(t, "/posts/1#b"),
	})
	if len(got) != 0 {
		t.Fatalf("hash-only change on an already-matched route should skip all loaders, got %v", got)
	}
}

func TestPlanSubmissionForcesAll(t *testing.T) {
	r1 := &route.Route{ID: "a"}
	r2 := &route.Route{ID: "b"}
	matches := route.Matches{{Route: r1, Params: map[string]string{}}, {Route: r2, Params: map[string]string{}}}

	got := Plan(Input{
		PrevMatches: matches, NextMatches: matches,
		PrevURL: mustURL(t, "/x"), NextURL: mustURL(t, "/x"),
		Submission: &request.Submission{Method: "POST"},
	})
	if !got["a"] || !got["b"] {
		t.Fatalf("expected submission to force-revalidate every matched route, got %v", got)
	}
}

func TestPlanRevalidateHeaderForcesAll(t *testing.T) {
	r := &route.Route{ID: "a"}
	matches := route.Matches{{Route: r, Params: map[string]string{}}}

	got := Plan(Input{
		PrevMatches: matches, NextMatches: matches,
		PrevURL: mustURL(t, "/x"), NextURL: mustURL(t, "/x"),
		RevalidateHeader: true,
	})
	if !got["a"] {
		t.Fatal("expected X-Remix-Revalidate to force revalidation")
	}
}

func TestPlanStrictFalseOverridesDefaultTrue(t *testing.T) {
	no := false
	r := &route.Route{ID: "a", ShouldRevalidate: func(route.ShouldRevalidateArgs) *bool { return &no }}
	matches := route.Matches{{Route: r, Params: map[string]string{}}}

	got := Plan(Input{
		PrevMatches: matches, NextMatches: matches,
		PrevURL: mustURL(t, "/x"), NextURL: mustURL(t, "/x"),
		RevalidateHeader: true, // default would be true
	})
	if got["a"] {
		t.Fatal("strict false override should opt out even though default was true")
	}
}

func TestPlanStrictTrueOverridesDefaultFalse(t *testing.T) {
	yes := true
	r := &route.Route{ID: "a", ShouldRevalidate: func(route.ShouldRevalidateArgs) *bool { return &yes }}
	matches := route.Matches{{Route: r, Params: map[string]string{}}}

	got := Plan(Input{
		PrevMatches: matches, NextMatches: matches,
		PrevURL: mustURL(t, "/x"), NextURL: mustURL(t, "/x"),
	})
	if !got["a"] {
		t.Fatal("strict true override should opt in even though default was false")
	}
}

func TestPlanNonStrictOverrideDefersToDefault(t *testing.T) {
	r := &route.Route{ID: "a", ShouldRevalidate: func(route.ShouldRevalidateArgs) *bool { return nil }}
	matches := route.Matches{{Route: r, Params: map[string]string{}}}

	got := Plan(Input{
		PrevMatches: matches, NextMatches: matches,
		PrevURL: mustURL(t, "/x"), NextURL: mustURL(t, "/x"),
	})
	if got["a"] {
		t.Fatal("nil override should defer to default (false, nothing else changed)")
	}
}

func TestPlanPostErrorAlwaysReRuns(t *testing.T) {
	r := &route.Route{ID: "a"}
	matches := route.Matches{{Route: r, Params: map[string]string{}}}

	got := Plan(Input{
		PrevMatches: matches, NextMatches: matches,
		PrevURL: mustURL(t, "/x"), NextURL: mustURL(t, "/x"),
		PrevErrored: map[string]bool{"a": true},
	})
	if !got["a"] {
		t.Fatal("route whose previous load errored must re-run while still matched")
	}
}

func TestFetcherShouldRevalidateWithoutDataAlwaysRuns(t *testing.T) {
	no := false
	r := &route.Route{ID: "a", ShouldRevalidate: func(route.ShouldRevalidateArgs) *bool { return &no }}
	if !FetcherShouldRevalidate(r, false, false, route.ShouldRevalidateArgs{}) {
		t.Fatal("fetcher without data must always re-run regardless of shouldRevalidate")
	}
}

func TestFetcherShouldRevalidateLoadingAlwaysRuns(t *testing.T) {
	no := false
	r := &route.Route{ID: "a", ShouldRevalidate: func(route.ShouldRevalidateArgs) *bool { return &no }}
	if !FetcherShouldRevalidate(r, true, true, route.ShouldRevalidateArgs{}) {
		t.Fatal("loading fetcher must always re-run")
	}
}

func TestFetcherShouldRevalidateIdleWithDataCanOptOut(t *testing.T) {
	no := false
	r := &route.Route{ID: "a", ShouldRevalidate: func(route.ShouldRevalidateArgs) *bool { return &no }}
	if FetcherShouldRevalidate(r, true, false, route.ShouldRevalidateArgs{}) {
		t.Fatal("idle fetcher with data should be able to opt out via strict false")
	}
}
