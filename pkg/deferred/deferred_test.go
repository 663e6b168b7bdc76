package deferred

import (
	"errors"
	"testing"
	"time"

	"github.com/dataroute/dataroute/pkg/route"
)

func TestNewSetPlainValuesResolveImmediately(t *testing.T) {
	s := NewSet(StreamedValue{"title": "hello"}, nil)
	snap := s.Snapshot()
	f, ok := snap["title"]
	if !ok {
		t.Fatal("expected field \"title\"")
	}
	if f.Status != Resolved || f.Data != "hello" {
		t.Fatalf("got %+v", f)
	}
	if s.Pending() {
		t.Fatal("plain value set should never report pending")
	}
}

func TestPromiseResolves(t *testing.T) {
	p := NewPromise()
	settled := make(chan string, 1)
	s := NewSet(StreamedValue{"comments": p}, func(name string) { settled <- name })

	if !s.Pending() {
		t.Fatal("expected pending before resolve")
	}
	p.Resolve([]string{"a", "b"})

	select {
	case name := <-settled:
		if name != "comments" {
			t.Fatalf("got settle callback for %q", name)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for settle callback")
	}

	snap := s.Snapshot()
	if snap["comments"].Status != Resolved {
		t.Fatalf("got %+v", snap["comments"])
	}
}

func TestPromiseRejects(t *testing.T) {
	p := NewPromise()
	boom := errors.New("boom")
	s := NewSet(StreamedValue{"x": p}, nil)
	p.Reject(boom)

	done := make(chan struct{})
	s.AwaitAll(done)
	snap := s.Snapshot()
	if snap["x"].Status != Rejected || snap["x"].Err != boom {
		t.Fatalf("got %+v", snap["x"])
	}
}

func TestResolveAfterSettleOnceIsNoop(t *testing.T) {
	p := NewPromise()
	p.Resolve("first")
	p.Resolve("second") // must not block or panic; channel is buffered and guarded by sync.Once

	s := NewSet(StreamedValue{"x": p}, nil)
	done := make(chan struct{})
	s.AwaitAll(done)
	if got := s.Snapshot()["x"].Data; got != "first" {
		t.Fatalf("got %v, want \"first\"", got)
	}
}

func TestAbortDiscardsStillPendingFields(t *testing.T) {
	p := NewPromise()
	s := NewSet(StreamedValue{"slow": p}, nil)
	s.Abort()

	snap := s.Snapshot()
	if snap["slow"].Status != Aborted {
		t.Fatalf("got %+v", snap["slow"])
	}
	if !errors.Is(snap["slow"].Err, route.ErrAbortedDeferred) {
		t.Fatalf("got err %v, want ErrAbortedDeferred", snap["slow"].Err)
	}
}

func TestAbortThenLateResolveIsDiscarded(t *testing.T) {
	p := NewPromise()
	s := NewSet(StreamedValue{"slow": p}, nil)
	s.Abort()
	p.Resolve("too-late") // the await goroutine observes seq mismatch and drops this silently

	time.Sleep(10 * time.Millisecond)
	snap := s.Snapshot()
	if snap["slow"].Status != Aborted {
		t.Fatalf("late resolve corrupted aborted field: %+v", snap["slow"])
	}
}

func TestAwaitAllReturnsOnceEverythingSettles(t *testing.T) {
	p1, p2 := NewPromise(), NewPromise()
	s := NewSet(StreamedValue{"a": p1, "b": p2, "c": "sync"}, nil)

	go func() {
		time.Sleep(5 * time.Millisecond)
		p1.Resolve(1)
		p2.Resolve(2)
	}()

	start := time.Now()
	s.AwaitAll(nil)
	if time.Since(start) > time.Second {
		t.Fatal("AwaitAll took too long")
	}
	if s.Pending() {
		t.Fatal("expected nothing pending after AwaitAll returns")
	}
}
