// Package memoryhistory implements navigation.HistoryAdapter without a DOM,
// for tests and non-browser embedding (servers, CLIs) that still want the
// navigation state machine. The HistoryAdapter dependency is taken as a
// constructor argument rather than assumed, so a server or CLI can supply
// this in-process History in place of a browser's window.history.
package memoryhistory

import (
	"strings"
	"sync"

	"github.com/dataroute/dataroute/pkg/route"
)

// History is an in-process history stack: a slice of entries plus a cursor,
// exactly the model window.history implements.
type History struct {
	mu        sync.Mutex
	basename  string
	entries   []route.Location
	index     int
	listeners map[int]func(action route.HistoryAction, loc route.Location)
	nextID    int
}

// New builds a History seeded with a single entry at initialHref.
func New(initialHref string, basename string) *History {
	h := &History{
		basename:  basename,
		listeners: make(map[int]func(route.HistoryAction, route.Location)),
	}
	loc := h.parse(initialHref)
	loc.Key = route.DefaultLocationKey
	h.entries = []route.Location{loc}
	return h
}

func (h *History) parse(href string) route.Location {
	pathname, search, hash := href, "", ""
	if i := strings.IndexByte(pathname, '#'); i >= 0 {
		hash = pathname[i+1:]
		pathname = pathname[:i]
	}
	if i := strings.IndexByte(pathname, '?'); i >= 0 {
		search = pathname[i+1:]
		pathname = pathname[:i]
	}
	return route.Location{Pathname: pathname, Search: search, Hash: hash}
}

func (h *History) Location() route.Location {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.index]
}

func (h *History) Push(href string, state any) route.Location {
	loc := h.parse(href)
	loc.State = state
	loc.Key = route.NewLocationKey()
	h.mu.Lock()
	h.entries = append(h.entries[:h.index+1], loc)
	h.index = len(h.entries) - 1
	h.mu.Unlock()
	return loc
}

func (h *History) Replace(href string, state any) route.Location {
	loc := h.parse(href)
	loc.State = state
	h.mu.Lock()
	loc.Key = h.entries[h.index].Key
	if loc.Key == "" {
		loc.Key = route.NewLocationKey()
	}
	h.entries[h.index] = loc
	h.mu.Unlock()
	return loc
}

// Go moves the cursor by delta entries, clamped to the stack bounds, and
// notifies listeners with a POP if the cursor actually moved.
func (h *History) Go(delta int) {
	h.mu.Lock()
	next := h.index + delta
	if next < 0 {
		next = 0
	}
	if next > len(h.entries)-1 {
		next = len(h.entries) - 1
	}
	moved := next != h.index
	h.index = next
	loc := h.entries[h.index]
	fns := h.listenerSlice()
	h.mu.Unlock()

	if !moved {
		return
	}
	for _, fn := range fns {
		fn(route.HistoryPop, loc)
	}
}

func (h *History) listenerSlice() []func(route.HistoryAction, route.Location) {
	out := make([]func(route.HistoryAction, route.Location), 0, len(h.listeners))
	for _, fn := range h.listeners {
		out = append(out, fn)
	}
	return out
}

func (h *History) Listen(fn func(action route.HistoryAction, loc route.Location)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

func (h *History) CreateHref(to string) string {
	if h.basename == "" || h.basename == "/" {
		return to
	}
	if strings.HasPrefix(to, "/") {
		return strings.TrimSuffix(h.basename, "/") + to
	}
	return to
}
