package app

import (
	"testing"

	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func TestRegistryBindResolveUnbind(t *testing.T) {
	r := NewRegistry()
	id := domain.Identity{UserID: "alice", DisplayName: "alice"}

	if _, had := r.Bind("c1", id, nopConn{}, nil); had {
		t.Fatalf("expected no previous connection")
	}
	got, ok := r.Resolve("c1")
	if !ok || got != id {
		t.Fatalf("expected %+v, got %+v (ok=%v)", id, got, ok)
	}
	if st := r.State("c1"); st != core.StateAuthenticating {
		t.Fatalf("expected authenticating, got %s", st)
	}

	if _, ok := r.Unbind("c1"); !ok {
		t.Fatalf("expected first unbind to succeed")
	}
	if _, ok := r.Unbind("c1"); ok {
		t.Fatalf("expected second unbind to report nothing")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistryBindReportsPreviousConnection(t *testing.T) {
	r := NewRegistry()
	id := domain.Identity{UserID: "alice"}
	canceled := false
	r.Bind("c1", id, nopConn{}, func() { canceled = true })

	prev, had := r.Bind("c2", id, nopConn{}, nil)
	if !had || prev != "c1" {
		t.Fatalf("expected previous c1, got %q (had=%v)", prev, had)
	}
	if !r.Cancel(prev) || !canceled {
		t.Fatalf("expected c1 canceled")
	}

	// unbinding the stale connection keeps the user mapped to the new one
	r.Unbind("c1")
	if cid, ok := r.ConnectionOf("alice"); !ok || cid != "c2" {
		t.Fatalf("expected alice on c2, got %q (ok=%v)", cid, ok)
	}
}
