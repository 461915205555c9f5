package failover

import (
	"testing"
	"time"
)

func TestGuard(t *testing.T) {
	var g guard
	t0 := time.Unix(1_700_000_000, 0)

	tok1, ok, displaced := g.acquire(t0, time.Hour)
	if !ok || displaced {
		t.Fatalf("first acquire: ok=%v displaced=%v", ok, displaced)
	}
	if _, ok, _ := g.acquire(t0.Add(time.Hour), time.Hour); ok {
		t.Fatal("acquire at exactly the limit must be refused")
	}

	tok2, ok, displaced := g.acquire(t0.Add(time.Hour+time.Second), time.Hour)
	if !ok || !displaced {
		t.Fatalf("stale acquire: ok=%v displaced=%v", ok, displaced)
	}

	g.release(tok1)
	if busy, started := g.state(); !busy || !started.Equal(t0.Add(time.Hour+time.Second)) {
		t.Fatal("displaced holder released its successor")
	}
	g.release(tok2)
	if busy, _ := g.state(); busy {
		t.Fatal("guard still held")
	}
	if _, ok, displaced := g.acquire(t0, time.Hour); !ok || displaced {
		t.Fatal("released guard must be free")
	}
}
