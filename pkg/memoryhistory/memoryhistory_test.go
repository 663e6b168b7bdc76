package memoryhistory

import (
	"testing"

	"github.com/dataroute/dataroute/pkg/route"
)

func TestNewSeedsInitialEntry(t *testing.T) {
	h := New("/about?x=1#top", "")
	loc := h.Location()
	if loc.Pathname != "/about" || loc.Search != "x=1" || loc.Hash != "top" {
		t.Fatalf("loc = %+v", loc)
	}
	if loc.Key != route.DefaultLocationKey {
		t.Fatalf("Key = %q, want %q", loc.Key, route.DefaultLocationKey)
	}
}

func TestPushAppendsEntryAndTruncatesForwardHistory(t *testing.T) {
	h := New("/", "")
	h.Push("/about", nil)
	h.Push("/users/1", "state")
	if loc := h.Location(); loc.Pathname != "/users/1" || loc.State != "state" {
		t.Fatalf("loc = %+v", loc)
	}

	h.Go(-1)
	if loc := h.Location(); loc.Pathname != "/about" {
		t.Fatalf("loc after Go(-1) = %+v", loc)
	}

	// Pushing from a rewound position truncates the forward entries.
	h.Push("/contact", nil)
	h.Go(1)
	if loc := h.Location(); loc.Pathname != "/contact" {
		t.Fatalf("forward history not truncated, loc = %+v", loc)
	}
}

func TestPushAssignsFreshKeyEachTime(t *testing.T) {
	h := New("/", "")
	h.Push("/a", nil)
	first := h.Location().Key
	h.Push("/b", nil)
	second := h.Location().Key
	if first == "" || second == "" || first == second {
		t.Fatalf("keys = %q, %q", first, second)
	}
}

func TestReplaceKeepsCurrentKey(t *testing.T) {
	h := New("/", "")
	before := h.Location().Key
	h.Replace("/about", "state")
	loc := h.Location()
	if loc.Pathname != "/about" || loc.State != "state" {
		t.Fatalf("loc = %+v", loc)
	}
	if loc.Key != before {
		t.Fatalf("Replace changed the entry key: %q != %q", loc.Key, before)
	}
}

func TestGoClampsToStackBounds(t *testing.T) {
	h := New("/", "")
	h.Push("/a", nil)

	h.Go(-10)
	if loc := h.Location(); loc.Pathname != "/" {
		t.Fatalf("Go(-10) = %+v, want clamped to the first entry", loc)
	}
	h.Go(10)
	if loc := h.Location(); loc.Pathname != "/a" {
		t.Fatalf("Go(10) = %+v, want clamped to the last entry", loc)
	}
}

func TestGoNotifiesListenersOnlyWhenCursorMoves(t *testing.T) {
	h := New("/", "")
	h.Push("/a", nil)

	var calls int
	var lastAction route.HistoryAction
	unsub := h.Listen(func(action route.HistoryAction, loc route.Location) {
		calls++
		lastAction = action
	})
	defer unsub()

	h.Go(0)
	if calls != 0 {
		t.Fatalf("expected no notification when the cursor does not move, got %d calls", calls)
	}

	h.Go(-1)
	if calls != 1 || lastAction != route.HistoryPop {
		t.Fatalf("calls = %d, lastAction = %q", calls, lastAction)
	}

	h.Go(-10)
	if calls != 1 {
		t.Fatalf("expected clamped Go past the bound to not notify again, got %d calls", calls)
	}
}

func TestListenUnsubscribeStopsNotifications(t *testing.T) {
	h := New("/", "")
	h.Push("/a", nil)

	var calls int
	unsub := h.Listen(func(action route.HistoryAction, loc route.Location) { calls++ })
	unsub()

	h.Go(-1)
	if calls != 0 {
		t.Fatalf("expected no notifications after unsubscribe, got %d calls", calls)
	}
}

func TestCreateHrefPrependsBasename(t *testing.T) {
	h := New("/", "/app")
	if got := h.CreateHref("/about"); got != "/app/about" {
		t.Fatalf("CreateHref = %q, want /app/about", got)
	}
	if got := h.CreateHref("about"); got != "about" {
		t.Fatalf("CreateHref(relative) = %q, want unchanged", got)
	}
}

func TestCreateHrefWithoutBasenameIsIdentity(t *testing.T) {
	h := New("/", "")
	if got := h.CreateHref("/about"); got != "/about" {
		t.Fatalf("CreateHref = %q, want /about", got)
	}
}
