package navigation

import (
	"bytes"
	"log/slog"
	"mime/multipart"
	"strings"
	"testing"
	"time"

	"github.com/dataroute/dataroute/pkg/memoryhistory"
	"github.com/dataroute/dataroute/pkg/request"
	"github.com/dataroute/dataroute/pkg/route"
)

func buildTestRoutes() []*route.Route {
	return []*route.Route{
		{
			ID:     "root",
			Path:   "",
			Loader: func(req any) (any, error) { return "root-data", nil },
			Children: []*route.Route{
				{ID: "index", Index: true, Loader: func(req any) (any, error) { return "index-data", nil }},
				{ID: "about", Path: "about", Loader: func(req any) (any, error) { return "about-data", nil }},
				{
					ID:               "user",
					Path:             "users/:id",
					HasErrorBoundary: true,
					Loader: func(req any) (any, error) {
						r := req.(*request.Request)
						return "user-" + r.URL.Path, nil
					},
					Children: []*route.Route{
						{
							ID:   "user.edit",
							Path: "edit",
							Loader: func(req any) (any, error) {
								return "user-edit-data", nil
							},
							Action: func(req any) (any, error) {
								return "saved", nil
							},
						},
					},
				},
			},
		},
	}
}

func newTestEngine(t *testing.T, initialHref string) (*Engine, *memoryhistory.History) {
	t.Helper()
	h := memoryhistory.New(initialHref, "")
	e, err := New(Config{Routes: buildTestRoutes(), History: h})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, h
}

// waitFor drains states from the engine's subscription channel until pred
// matches, or fails the test after a generous deadline.
func waitFor(t *testing.T, e *Engine, pred func(route.RouterState) bool) route.RouterState {
	t.Helper()
	ch := make(chan route.RouterState, 64)
	unsub := e.Subscribe(func(s route.RouterState) {
		select {
		case ch <- s:
		default:
		}
	})
	defer unsub()

	if s := e.State(); pred(s) {
		return s
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if pred(s) {
				return s
			}
		case <-deadline:
			t.Fatalf("waitFor: condition never satisfied, last state: %+v", e.State())
		}
	}
}

func idleAt(pathname string) func(route.RouterState) bool {
	return func(s route.RouterState) bool {
		return s.Navigation.State == route.NavigationIdle && s.Location.Pathname == pathname
	}
}

func TestInitializeLoadsMatchedRoutes(t *testing.T) {
	e, _ := newTestEngine(t, "/about")
	e.Initialize()
	s := waitFor(t, e, func(s route.RouterState) bool { return s.Initialized })

	if s.LoaderData["root"] != "root-data" {
		t.Fatalf("root loaderData = %v", s.LoaderData["root"])
	}
	if s.LoaderData["about"] != "about-data" {
		t.Fatalf("about loaderData = %v", s.LoaderData["about"])
	}
}

func TestInitializeSkipsHydratedRoutes(t *testing.T) {
	h := memoryhistory.New("/about", "")
	ran := false
	routes := []*route.Route{
		{ID: "root", Loader: func(req any) (any, error) { ran = true; return "root-data", nil }, Children: []*route.Route{
			{ID: "about", Path: "about", Loader: func(req any) (any, error) { return "about-data", nil }},
		}},
	}
	e, err := New(Config{Routes: routes, History: h, HydrationData: &HydrationData{
		LoaderData: map[string]any{"root": "hydrated-root", "about": "hydrated-about"},
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Initialize()
	s := waitFor(t, e, func(s route.RouterState) bool { return s.Initialized })
	if ran {
		t.Fatalf("root loader ran despite hydration data")
	}
	if s.LoaderData["root"] != "hydrated-root" {
		t.Fatalf("root loaderData = %v", s.LoaderData["root"])
	}
}

func TestNavigateCommitsNewLocation(t *testing.T) {
	e, _ := newTestEngine(t, "/")
	e.Initialize()
	waitFor(t, e, func(s route.RouterState) bool { return s.Initialized })

	if err := e.Navigate("/about", NavigateOptions{}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	s := waitFor(t, e, idleAt("/about"))
	if s.LoaderData["about"] != "about-data" {
		t.Fatalf("about loaderData = %v", s.LoaderData["about"])
	}
	if s.HistoryAction != route.HistoryPush {
		t.Fatalf("HistoryAction = %v, want PUSH", s.HistoryAction)
	}
}

func TestHashOnlyNavigationSkipsLoaders(t *testing.T) {
	e, _ := newTestEngine(t, "/about")
	e.Initialize()
	waitFor(t, e, func(s route.RouterState) bool { return s.Initialized })

	before := e.State().Navigation.State
	if err := e.Navigate("/about#section", NavigateOptions{}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	s := waitFor(t, e, func(s route.RouterState) bool { return s.Location.Hash == "section" })
	if s.Navigation.State != route.NavigationIdle || before != route.NavigationIdle {
		t.Fatalf("hash-only navigation left the loading state, got %v", s.Navigation.State)
	}
	if s.LoaderData["about"] != "about-data" {
		t.Fatalf("about loaderData clobbered: %v", s.LoaderData["about"])
	}
}

func TestActionErrorIsolatesBoundaryAndSkipsDescendantLoader(t *testing.T) {
	childRan := false
	// Rebuild the engine with a failing action on the parent's error
	// boundary route, and a child loader that records whether it ran.
	h := memoryhistory.New("/users/1/edit", "")
	routes := []*route.Route{
		{ID: "root", Loader: func(req any) (any, error) { return "root-data", nil }, Children: []*route.Route{
			{
				ID: "user", Path: "users/:id", HasErrorBoundary: true,
				Loader: func(req any) (any, error) { return "user-data", nil },
				Children: []*route.Route{
					{
						ID: "user.edit", Path: "edit",
						Loader: func(req any) (any, error) { childRan = true; return "edit-data", nil },
						Action: func(req any) (any, error) {
							return nil, route.ErrorResponseFromResponse(&route.Response{Status: 500, StatusText: "boom"})
						},
					},
				},
			},
		}},
	}
	e2, err := New(Config{Routes: routes, History: h})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e2.Initialize()
	waitFor(t, e2, func(s route.RouterState) bool { return s.Initialized })
	childRan = false // Initialize at /users/1/edit ran the child loader once

	if err := e2.Navigate("/users/1/edit", NavigateOptions{FormMethod: "POST", FormData: map[string][]string{"x": {"1"}}}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	s := waitFor(t, e2, func(s route.RouterState) bool { return len(s.Errors) > 0 })
	if _, ok := s.Errors["user"]; !ok {
		t.Fatalf("expected error at boundary %q, got %v", "user", s.Errors)
	}
	if childRan {
		t.Fatalf("descendant loader below the error boundary ran")
	}
}

func TestLoaderRedirectFollowsToNewLocation(t *testing.T) {
	h := memoryhistory.New("/", "")
	routes := []*route.Route{
		{ID: "root", Children: []*route.Route{
			{ID: "old", Path: "old", Loader: func(req any) (any, error) {
				return nil, route.Throw(route.Redirect("/new"))
			}},
			{ID: "new", Path: "new", Loader: func(req any) (any, error) { return "new-data", nil }},
		}},
	}
	e, err := New(Config{Routes: routes, History: h})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Initialize()
	waitFor(t, e, func(s route.RouterState) bool { return s.Initialized })

	if err := e.Navigate("/old", NavigateOptions{}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	s := waitFor(t, e, idleAt("/new"))
	if s.LoaderData["new"] != "new-data" {
		t.Fatalf("new loaderData = %v", s.LoaderData["new"])
	}
}

func TestFetchLoadsAndDeleteClearsIt(t *testing.T) {
	e, _ := newTestEngine(t, "/")
	e.Initialize()
	waitFor(t, e, func(s route.RouterState) bool { return s.Initialized })

	e.Fetch("about-key", "about", "/about", FetchOptions{})
	deadline := time.After(2 * time.Second)
	for {
		f := e.GetFetcher("about-key")
		if f.HasData {
			if f.Data != "about-data" {
				t.Fatalf("fetcher data = %v", f.Data)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("fetch never settled")
		case <-time.After(time.Millisecond):
		}
	}

	e.DeleteFetcher("about-key")
	if f := e.GetFetcher("about-key"); f.State != route.FetcherIdle || f.HasData {
		t.Fatalf("fetcher not cleared: %+v", f)
	}
}

func TestCustomLoggerReceivesNavigationRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := memoryhistory.New("/", "")
	e, err := New(Config{Routes: buildTestRoutes(), History: h, Logger: logger})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Initialize()
	waitFor(t, e, func(s route.RouterState) bool { return s.Initialized })

	if err := e.Navigate("/about", NavigateOptions{}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	waitFor(t, e, idleAt("/about"))

	if !strings.Contains(buf.String(), "navigate") {
		t.Fatalf("expected custom logger to receive navigation records, got: %s", buf.String())
	}
}

func TestGetSubmissionSerializesFormDataIntoURLQuery(t *testing.T) {
	var gotQuery string
	h := memoryhistory.New("/", "")
	routes := []*route.Route{
		{ID: "root", Children: []*route.Route{
			{ID: "search", Path: "search", Loader: func(req any) (any, error) {
				r := req.(*request.Request)
				gotQuery = r.URL.RawQuery
				return "search-data", nil
			}},
		}},
	}
	e, err := New(Config{Routes: routes, History: h})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Initialize()
	waitFor(t, e, func(s route.RouterState) bool { return s.Initialized })

	if err := e.Navigate("/search", NavigateOptions{FormData: map[string][]string{"q": {"go"}}}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	s := waitFor(t, e, idleAt("/search"))
	if s.LoaderData["search"] != "search-data" {
		t.Fatalf("search loaderData = %v", s.LoaderData["search"])
	}
	if gotQuery != "q=go" {
		t.Fatalf("loader saw query %q, want %q", gotQuery, "q=go")
	}
	if s.Navigation.State != route.NavigationIdle {
		t.Fatalf("GET submission left navigation in %v, want idle (never submitting)", s.Navigation.State)
	}
}

func TestGetSubmissionWithBinaryFieldFailsAtBoundary(t *testing.T) {
	childRan := false
	h := memoryhistory.New("/users/1/edit", "")
	routes := []*route.Route{
		{ID: "root", Loader: func(req any) (any, error) { return "root-data", nil }, Children: []*route.Route{
			{
				ID: "user", Path: "users/:id", HasErrorBoundary: true,
				Loader: func(req any) (any, error) { return "user-data", nil },
				Children: []*route.Route{
					{
						ID: "user.edit", Path: "edit",
						Loader: func(req any) (any, error) { childRan = true; return "edit-data", nil },
					},
				},
			},
		}},
	}
	e, err := New(Config{Routes: routes, History: h})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Initialize()
	waitFor(t, e, func(s route.RouterState) bool { return s.Initialized })
	childRan = false // Initialize at /users/1/edit ran the child loader once

	files := map[string][]*multipart.FileHeader{"avatar": {{Filename: "a.png"}}}
	if err := e.Navigate("/users/1/edit", NavigateOptions{Files: files}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	s := waitFor(t, e, func(s route.RouterState) bool { return len(s.Errors) > 0 })

	boundaryErr, ok := s.Errors["user"]
	if !ok {
		t.Fatalf("expected error at boundary %q, got %v", "user", s.Errors)
	}
	er, ok := route.AsErrorResponse(boundaryErr)
	if !ok || er.Status != 400 {
		t.Fatalf("boundary error = %v, want a 400 ErrorResponse", boundaryErr)
	}
	if childRan {
		t.Fatalf("child.loader ran despite the binary-in-GET failure")
	}
	if _, ok := s.LoaderData["user"]; !ok {
		t.Fatalf("expected ancestor loader data to still be present: %v", s.LoaderData)
	}
}

func TestActionSuccessRespectsReplaceOption(t *testing.T) {
	h := memoryhistory.New("/users/1/edit", "")
	routes := []*route.Route{
		{ID: "root", Children: []*route.Route{
			{
				ID: "user", Path: "users/:id",
				Children: []*route.Route{
					{
						ID: "user.edit", Path: "edit",
						Action: func(req any) (any, error) { return "saved", nil },
					},
				},
			},
		}},
	}
	e, err := New(Config{Routes: routes, History: h})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Initialize()
	waitFor(t, e, func(s route.RouterState) bool { return s.Initialized })

	if err := e.Navigate("/users/1/edit", NavigateOptions{
		Replace: true, FormMethod: "POST", FormData: map[string][]string{"x": {"1"}},
	}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	s := waitFor(t, e, func(s route.RouterState) bool {
		return idleAt("/users/1/edit")(s) && s.ActionData["user.edit"] == "saved"
	})
	if s.HistoryAction != route.HistoryReplace {
		t.Fatalf("HistoryAction = %v, want REPLACE", s.HistoryAction)
	}
}

func TestNotFoundRouteSynthesizesErrorAtRoot(t *testing.T) {
	e, _ := newTestEngine(t, "/")
	e.Initialize()
	waitFor(t, e, func(s route.RouterState) bool { return s.Initialized })

	if err := e.Navigate("/nope", NavigateOptions{}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	s := waitFor(t, e, func(s route.RouterState) bool { return len(s.Errors) > 0 })
	if _, ok := s.Errors["root"]; !ok {
		t.Fatalf("expected 404 at root, got %v", s.Errors)
	}
}
