package replica

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errDown = errors.New("connection refused")

type fakeEntry struct {
	v   []byte
	ttl time.Duration
}

// fakeServer is one Redis endpoint. TTLs are recorded, not enforced.
type fakeServer struct {
	mu        sync.Mutex
	data      map[string]fakeEntry
	down      bool
	failNext  int
	replicaOf string
	info      string
	flushes   int
}

func (s *fakeServer) fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errDown
	}
	if s.failNext > 0 {
		s.failNext--
		return errDown
	}
	return nil
}

func (s *fakeServer) value(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	return e.v, ok
}

type fakeNet struct {
	mu      sync.Mutex
	servers map[string]*fakeServer
	dials   []string
}

func newFakeNet() *fakeNet { return &fakeNet{servers: make(map[string]*fakeServer)} }

func (n *fakeNet) server(addr string) *fakeServer {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.servers[addr]
	if !ok {
		s = &fakeServer{data: make(map[string]fakeEntry)}
		n.servers[addr] = s
	}
	return s
}

func (n *fakeNet) Dial(addr Addr) Conn {
	n.mu.Lock()
	n.dials = append(n.dials, addr.String())
	n.mu.Unlock()
	return &fakeConn{srv: n.server(addr.String())}
}

func (n *fakeNet) dialed() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.dials...)
}

type fakeConn struct {
	srv    *fakeServer
	closed bool
}

var _ Conn = (*fakeConn)(nil)

func (c *fakeConn) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := c.srv.fail(); err != nil {
		return nil, false, err
	}
	v, ok := c.srv.value(key)
	return v, ok, nil
}

func (c *fakeConn) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.srv.fail(); err != nil {
		return err
	}
	c.srv.mu.Lock()
	c.srv.data[key] = fakeEntry{v: value, ttl: ttl}
	c.srv.mu.Unlock()
	return nil
}

func (c *fakeConn) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := c.srv.fail(); err != nil {
		return false, err
	}
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if _, ok := c.srv.data[key]; ok {
		return false, nil
	}
	c.srv.data[key] = fakeEntry{v: value, ttl: ttl}
	return true, nil
}

func (c *fakeConn) Exists(_ context.Context, key string) (bool, error) {
	if err := c.srv.fail(); err != nil {
		return false, err
	}
	_, ok := c.srv.value(key)
	return ok, nil
}

func (c *fakeConn) TTL(_ context.Context, key string) (time.Duration, error) {
	if err := c.srv.fail(); err != nil {
		return 0, err
	}
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	e, ok := c.srv.data[key]
	if !ok {
		return -2, nil
	}
	return e.ttl, nil
}

func (c *fakeConn) FlushAll(context.Context) error {
	if err := c.srv.fail(); err != nil {
		return err
	}
	c.srv.mu.Lock()
	c.srv.data = make(map[string]fakeEntry)
	c.srv.flushes++
	c.srv.mu.Unlock()
	return nil
}

func (c *fakeConn) Ping(context.Context) error { return c.srv.fail() }

func (c *fakeConn) Info(context.Context, string) (string, error) {
	if err := c.srv.fail(); err != nil {
		return "", err
	}
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.srv.info, nil
}

func (c *fakeConn) ReplicaOf(_ context.Context, host, port string) error {
	if err := c.srv.fail(); err != nil {
		return err
	}
	c.srv.mu.Lock()
	c.srv.replicaOf = host + " " + port
	c.srv.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error { c.closed = true; return nil }

type recordingEscalator struct {
	mu     sync.Mutex
	labels []string
}

func (e *recordingEscalator) Escalate(_ Target, label string) {
	e.mu.Lock()
	e.labels = append(e.labels, label)
	e.mu.Unlock()
}

func (e *recordingEscalator) got() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.labels...)
}

type attemptHooks struct {
	mu       sync.Mutex
	attempts []int
	onFail   func(attempt int)
}

func (h *attemptHooks) RemoteWriteFailed(attempt int, _ error) {
	h.mu.Lock()
	h.attempts = append(h.attempts, attempt)
	h.mu.Unlock()
	if h.onFail != nil {
		h.onFail(attempt)
	}
}
