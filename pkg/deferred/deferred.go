// Package deferred implements the Deferred Tracker: it wraps streamed
// loader values whose fields mix synchronous data and pending promises,
// exposing per-field status and a bulk-abort operation.
//
// A monotonic sequence number guards every pending goroutine so a result
// settling after cancellation is silently dropped (the sequence is
// re-checked right before committing), applied here across an arbitrary
// set of named fields rather than a single tracked value.
package deferred

import (
	"sync"
	"time"

	"github.com/dataroute/dataroute/pkg/route"
)

// Status is the lifecycle state of one tracked field.
type Status int

const (
	Pending Status = iota
	Resolved
	Rejected
	Aborted
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Field is the current snapshot of one tracked streamed value.
type Field struct {
	Status Status
	Data   any
	Err    error
}

// Promise is the producer side of one tracked field: a loader hands back a
// Promise for any field it wants streamed, and the caller (typically a
// small goroutine inside the loader) eventually calls Resolve or Reject
// exactly once.
type Promise struct {
	settle chan fieldResult
	once   sync.Once
}

type fieldResult struct {
	data any
	err  error
}

// NewPromise creates a not-yet-settled Promise for one streamed field.
func NewPromise() *Promise {
	return &Promise{settle: make(chan fieldResult, 1)}
}

// Resolve settles the promise successfully. Safe to call at most once;
// subsequent calls are no-ops, matching a real promise's settle-once
// contract.
func (p *Promise) Resolve(data any) {
	p.once.Do(func() { p.settle <- fieldResult{data: data} })
}

// Reject settles the promise with an error. Safe to call at most once.
func (p *Promise) Reject(err error) {
	p.once.Do(func() { p.settle <- fieldResult{err: err} })
}

// StreamedValue is a loader's return value: a map of field name to either a
// plain value (no streaming) or a *Promise (tracked). Non-tracked values
// returned from a plain object are left alone — only *Promise values are
// tracked; anything else is treated as already-resolved synchronous data.
type StreamedValue map[string]any

// Set is one navigation's (or fetcher's, or static query's) collection of
// tracked fields, keyed by name, each guarded by the same cancellation
// sequence number the way Resource.fetchID guards Resource's single value.
type Set struct {
	mu       sync.Mutex
	seq      uint64
	fields   map[string]*trackedField
	onSettle func(name string)
}

type trackedField struct {
	seq    uint64
	status Status
	data   any
	err    error
}

// NewSet starts tracking every *Promise field in v. onSettle, if non-nil, is
// called (off this goroutine's caller — i.e. from whichever goroutine
// observes the settlement) each time a promise field resolves or rejects
// (Abort moves fields to Aborted without calling it), letting the
// navigation orchestrator schedule a partial commit.
func NewSet(v StreamedValue, onSettle func(name string)) *Set {
	s := &Set{fields: make(map[string]*trackedField), onSettle: onSettle}
	s.seq++
	seq := s.seq
	for name, val := range v {
		promise, isPromise := val.(*Promise)
		if !isPromise {
			s.fields[name] = &trackedField{seq: seq, status: Resolved, data: val}
			continue
		}
		s.fields[name] = &trackedField{seq: seq, status: Pending}
		go s.await(name, seq, promise)
	}
	return s
}

func (s *Set) await(name string, seq uint64, p *Promise) {
	result := <-p.settle

	s.mu.Lock()
	f, ok := s.fields[name]
	// Double-check the field's sequence is still current before committing —
	// this is what makes a late resolution after Abort a silent no-op
	// rather than a corrupted state update.
	if !ok || f.seq != seq || f.status != Pending {
		s.mu.Unlock()
		return
	}
	if result.err != nil {
		f.status = Rejected
		f.err = result.err
	} else {
		f.status = Resolved
		f.data = result.data
	}
	cb := s.onSettle
	s.mu.Unlock()

	if cb != nil {
		cb(name)
	}
}

// Snapshot returns the current status/data/err of every tracked field.
func (s *Set) Snapshot() map[string]Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Field, len(s.fields))
	for name, f := range s.fields {
		out[name] = Field{Status: f.status, Data: f.data, Err: f.err}
	}
	return out
}

// Pending reports whether any field is still pending.
func (s *Set) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fields {
		if f.status == Pending {
			return true
		}
	}
	return false
}

// AwaitAll blocks until every tracked field has settled (resolved, rejected,
// or aborted) — used for SSR and for revalidations.
func (s *Set) AwaitAll(done <-chan struct{}) {
	for {
		s.mu.Lock()
		pending := 0
		for _, f := range s.fields {
			if f.status == Pending {
				pending++
			}
		}
		s.mu.Unlock()
		if pending == 0 {
			return
		}
		select {
		case <-done:
			return
		case <-time.After(awaitPollInterval):
		}
	}
}

// awaitPollInterval is AwaitAll's polling granularity. The tracker favors a
// simple poll over wiring a broadcast channel per field because the number
// of concurrently tracked fields is small and AwaitAll is not a hot path
// (it runs once per SSR request or revalidation, not per frame).
const awaitPollInterval = 2 * time.Millisecond

// Abort cancels every still-pending field in the set: settled fields are
// left untouched, and any later resolution of a cancelled promise is
// discarded by the seq check in await. Fields transition to Aborted and
// reject with ErrAbortedDeferred, a distinguishable aborted-deferred error
// kind callers can check via Field.Err after Abort.
func (s *Set) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++ // invalidate every in-flight await for this set
	for _, f := range s.fields {
		if f.status == Pending {
			f.status = Aborted
			f.err = route.ErrAbortedDeferred
			f.seq = s.seq
		}
	}
}
