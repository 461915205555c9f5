package failover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/tiercache/arbiter"
	"github.com/unkn0wn-root/tiercache/replica"
)

var errDown = errors.New("connection refused")

// fakeTarget is a scripted replica.Target.
type fakeTarget struct {
	mu sync.Mutex

	reader replica.Addr
	writer replica.Addr

	pingErr    error
	pingPanic  bool
	pingGate   chan struct{}
	pingEnter  chan struct{}
	status     replica.Status
	statusErr  error
	promoteErr error
	attachErr  error

	pings     int
	promotes  int
	attached  []replica.Addr
	switched  []replica.Addr
	enterOnce sync.Once
}

var _ replica.Target = (*fakeTarget)(nil)

func newTarget(reader, writer string) *fakeTarget {
	return &fakeTarget{reader: replica.MustParseAddr(reader), writer: replica.MustParseAddr(writer)}
}

func (f *fakeTarget) ReaderAddr() replica.Addr { return f.reader }

func (f *fakeTarget) WriterAddr() replica.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writer
}

func (f *fakeTarget) PingWriter(ctx context.Context) error {
	f.mu.Lock()
	f.pings++
	gate, enter, panics, err := f.pingGate, f.pingEnter, f.pingPanic, f.pingErr
	f.mu.Unlock()

	if enter != nil {
		f.enterOnce.Do(func() { close(enter) })
	}
	if gate != nil {
		<-gate
	}
	if panics {
		panic("ping exploded")
	}
	return err
}

func (f *fakeTarget) ReplicaStatus(ctx context.Context) (replica.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeTarget) ReplicaOf(ctx context.Context, master replica.Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = append(f.attached, master)
	return nil
}

func (f *fakeTarget) PromoteReader(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.promoteErr != nil {
		return f.promoteErr
	}
	f.promotes++
	return nil
}

func (f *fakeTarget) SwitchWriterTarget(addr replica.Addr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writer = addr
	f.switched = append(f.switched, addr)
}

func (f *fakeTarget) snapshot() (pings, promotes int, attached, switched []replica.Addr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings, f.promotes, append([]replica.Addr(nil), f.attached...), append([]replica.Addr(nil), f.switched...)
}

// blockingStore answers Latest only when its context ends.
type blockingStore struct {
	arbiter.Memory
	cancelled chan struct{}
}

func (b *blockingStore) Latest(ctx context.Context, deployment string) (arbiter.Record, bool, error) {
	<-ctx.Done()
	close(b.cancelled)
	return arbiter.Record{}, false, ctx.Err()
}

type failingStore struct{ arbiter.Memory }

func (*failingStore) Latest(context.Context, string) (arbiter.Record, bool, error) {
	return arbiter.Record{}, false, errDown
}

type recordingHooks struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (h *recordingHooks) Attempt(o Outcome, _ time.Duration) {
	h.mu.Lock()
	h.outcomes = append(h.outcomes, o)
	h.mu.Unlock()
}

func (h *recordingHooks) count(o Outcome) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, got := range h.outcomes {
		if got == o {
			n++
		}
	}
	return n
}

func fixedResolver(host string) Resolver {
	return ResolverFunc(func(context.Context) (string, error) { return host, nil })
}

func seed(t testing.TB, m *arbiter.Memory, deployment, hostPort string) {
	t.Helper()
	if err := m.Insert(context.Background(), arbiter.Record{ServerHostPort: hostPort, Deployment: deployment}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}
