package arbiter

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store for tests and single-process setups.
type Memory struct {
	mu      sync.Mutex
	records map[string][]Record
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: make(map[string][]Record), now: time.Now}
}

func (m *Memory) Latest(ctx context.Context, deployment string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rs := m.records[deployment]
	if len(rs) == 0 {
		return Record{}, false, nil
	}
	return rs[len(rs)-1], true, nil
}

func (m *Memory) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.ServerHostPort = Clean(rec.ServerHostPort)
	if rec.InsertedAt.IsZero() {
		rec.InsertedAt = m.now()
	}
	m.mu.Lock()
	m.records[rec.Deployment] = append(m.records[rec.Deployment], rec)
	m.mu.Unlock()
	return nil
}

// History returns every record of deployment, oldest first.
func (m *Memory) History(deployment string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records[deployment]...)
}

func (m *Memory) Close() error { return nil }

// Clean strips line breaks and surrounding blanks from a stored host value.
func Clean(s string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", "", "\n", "").Replace(s))
}
