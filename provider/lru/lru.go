// Package lru is an in-process provider bounded by entry count, backed by
// hashicorp/golang-lru/v2. Each entry carries its own deadline and is
// dropped lazily once it has passed.
package lru

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	pr "github.com/unkn0wn-root/tiercache/provider"
)

type entry struct {
	v        []byte
	deadline time.Time // zero: no expiry
}

type Provider struct {
	c   *lru.Cache[string, entry]
	now func() time.Time

	// serializes writes so SetNX is atomic against Set
	mu sync.Mutex
}

var (
	_ pr.Provider = (*Provider)(nil)
	_ pr.Adder    = (*Provider)(nil)
)

// New holds at most size entries, evicting the least recently used.
func New(size int) (*Provider, error) {
	if size <= 0 {
		return nil, errors.New("lru: size must be positive")
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, now: time.Now}, nil
}

func (p *Provider) expired(e entry) bool {
	return !e.deadline.IsZero() && !p.now().Before(e.deadline)
}

// dropStale removes key only while it still holds the expired entry seen by
// the caller. p.mu must be held.
func (p *Provider) dropStale(key string, seen entry) {
	if cur, ok := p.c.Peek(key); ok && cur.deadline.Equal(seen.deadline) && p.expired(cur) {
		p.c.Remove(key)
	}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	if p.expired(e) {
		p.mu.Lock()
		p.dropStale(key, e)
		p.mu.Unlock()
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *Provider) newEntry(value []byte, ttl time.Duration) entry {
	e := entry{v: value}
	if ttl > 0 {
		e.deadline = p.now().Add(ttl)
	}
	return e
}

// Set ignores cost; the bound is the entry count.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.c.Add(key, p.newEntry(value, ttl))
	return true, nil
}

func (p *Provider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.c.Peek(key); ok && !p.expired(e) {
		return false, nil
	}
	p.c.Add(key, p.newEntry(value, ttl))
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Remove(key)
	return nil
}

func (p *Provider) Flush(_ context.Context) error {
	p.c.Purge()
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Purge()
	return nil
}

// Len counts entries, including expired ones not yet dropped.
func (p *Provider) Len() int { return p.c.Len() }
