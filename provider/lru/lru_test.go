package lru

import (
	"context"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestProvider(t *testing.T, size int) (*Provider, *clock) {
	t.Helper()
	p, err := New(size)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	p.now = clk.now
	return p, clk
}

func TestNewRejectsZeroSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeadline(t *testing.T) {
	ctx := context.Background()
	p, clk := newTestProvider(t, 10)

	_, _ = p.Set(ctx, "k", []byte("v"), 0, time.Minute)
	_, _ = p.Set(ctx, "forever", []byte("v"), 0, 0)

	clk.t = clk.t.Add(59 * time.Second)
	if _, found, _ := p.Get(ctx, "k"); !found {
		t.Fatal("entry expired early")
	}
	clk.t = clk.t.Add(time.Second)
	if _, found, _ := p.Get(ctx, "k"); found {
		t.Fatal("entry outlived its deadline")
	}
	if _, found, _ := p.Get(ctx, "forever"); !found {
		t.Fatal("entry without ttl expired")
	}
	if p.Len() != 1 {
		t.Fatalf("expired entry not dropped, len = %d", p.Len())
	}
}

func TestSetNX(t *testing.T) {
	ctx := context.Background()
	p, clk := newTestProvider(t, 10)

	if ok, _ := p.SetNX(ctx, "m", []byte("1"), time.Minute); !ok {
		t.Fatal("first SetNX must win")
	}
	if ok, _ := p.SetNX(ctx, "m", []byte("2"), time.Minute); ok {
		t.Fatal("second SetNX must lose")
	}
	clk.t = clk.t.Add(2 * time.Minute)
	if ok, _ := p.SetNX(ctx, "m", []byte("3"), time.Minute); !ok {
		t.Fatal("SetNX over an expired entry must win")
	}
	got, _, _ := p.Get(ctx, "m")
	if string(got) != "3" {
		t.Fatalf("got %q", got)
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t, 2)

	_, _ = p.Set(ctx, "a", []byte("a"), 0, time.Minute)
	_, _ = p.Set(ctx, "b", []byte("b"), 0, time.Minute)
	_, _, _ = p.Get(ctx, "a")
	_, _ = p.Set(ctx, "c", []byte("c"), 0, time.Minute)

	if _, found, _ := p.Get(ctx, "b"); found {
		t.Fatal("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, found, _ := p.Get(ctx, k); !found {
			t.Fatalf("%s evicted", k)
		}
	}
}

func TestDelAndFlush(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t, 10)
	_, _ = p.Set(ctx, "a", []byte("a"), 0, time.Minute)
	_, _ = p.Set(ctx, "b", []byte("b"), 0, time.Minute)

	_ = p.Del(ctx, "a")
	if _, found, _ := p.Get(ctx, "a"); found {
		t.Fatal("a not deleted")
	}
	_ = p.Flush(ctx)
	if p.Len() != 0 {
		t.Fatalf("len after flush = %d", p.Len())
	}
}

func TestExpiryKeepsConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	p, clk := newTestProvider(t, 10)
	_, _ = p.Set(ctx, "k", []byte("stale"), 0, time.Minute)
	clk.t = clk.t.Add(2 * time.Minute)

	// a writer lands between the lookup and the expiry check
	armed := true
	p.now = func() time.Time {
		if armed {
			armed = false
			_, _ = p.Set(ctx, "k", []byte("fresh"), 0, time.Minute)
		}
		return clk.t
	}
	if _, found, _ := p.Get(ctx, "k"); found {
		t.Fatal("stale entry returned")
	}
	got, found, _ := p.Get(ctx, "k")
	if !found || string(got) != "fresh" {
		t.Fatalf("got %q found=%v, want fresh", got, found)
	}
}
