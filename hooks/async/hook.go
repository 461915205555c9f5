// Package asynchook moves tiercache.Hooks calls off the hot path onto a
// bounded queue drained by worker goroutines. Events are dropped when the
// queue is full.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{MissEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	m, _ := tiercache.New(tiercache.Options{Primary: mem, Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/tiercache"
)

type Hooks struct {
	inner   tiercache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(inner tiercache.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = tiercache.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are
// dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// send on a channel closed by a concurrent Close
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hit(t tiercache.TierName, k string)  { h.try(func() { h.inner.Hit(t, k) }) }
func (h *Hooks) Miss(t tiercache.TierName, k string) { h.try(func() { h.inner.Miss(t, k) }) }
func (h *Hooks) ExtendStarted(t tiercache.TierName, k string) {
	h.try(func() { h.inner.ExtendStarted(t, k) })
}
func (h *Hooks) ExtendFailed(t tiercache.TierName, k string, err error) {
	h.try(func() { h.inner.ExtendFailed(t, k, err) })
}
func (h *Hooks) DecodeFailed(t tiercache.TierName, k string, err error) {
	h.try(func() { h.inner.DecodeFailed(t, k, err) })
}
