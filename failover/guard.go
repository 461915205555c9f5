package failover

import (
	"sync"
	"time"
)

// guard admits one failover attempt at a time. A holder older than the
// stale limit is displaced. Tokens keep a displaced holder from releasing
// its successor.
type guard struct {
	mu         sync.Mutex
	inProgress bool
	startedAt  time.Time
	token      uint64
}

// acquire reports whether the caller may run and whether it displaced a
// stale holder.
func (g *guard) acquire(now time.Time, staleAfter time.Duration) (token uint64, ok, displaced bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inProgress {
		if now.Sub(g.startedAt) <= staleAfter {
			return 0, false, false
		}
		displaced = true
	}
	g.token++
	g.inProgress = true
	g.startedAt = now
	return g.token, true, displaced
}

func (g *guard) release(token uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token == token {
		g.inProgress = false
	}
}

func (g *guard) state() (inProgress bool, startedAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inProgress, g.startedAt
}
