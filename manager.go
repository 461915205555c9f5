package tiercache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unkn0wn-root/tiercache/codec"
)

// Tier holds the per-tier policy a Manager applies to its client.
type Tier struct {
	// DefaultTTL is used when an operation gets no explicit TTL.
	// Default: DefaultTTL.
	DefaultTTL time.Duration
	// SlidingTTL, when > 0, is set on the client at construction.
	// Zero keeps whatever the client was configured with.
	SlidingTTL time.Duration
}

type Options struct {
	// Primary is required.
	Primary Client
	// Secondary is optional. nil or NoneClient means secondary-tier
	// operations use the primary tier.
	Secondary Client

	PrimaryTier   Tier
	SecondaryTier Tier

	// Disabled turns every operation into a pass-through: TryCache runs the
	// producer, FromCache misses and ToCache returns false.
	Disabled bool

	// Codec serializes values. Default: codec.JSON.
	Codec  codec.Codec
	Logger Logger
	Hooks  Hooks
}

type tier struct {
	name       TierName
	client     Client
	defaultTTL time.Duration
}

// Manager fronts up to two cache tiers with read-through caching and
// proactive refresh of entries that are about to expire.
//
// Operations are package functions (TryCache, FromCache, ToCache and their
// secondary-tier forms) because they are generic over the value type.
type Manager struct {
	primary   *tier
	secondary *tier // nil when absent

	enabled bool
	codec   codec.Codec
	log     Logger
	hooks   Hooks

	// spawnMu orders spawn against Close so no refresh starts after Wait.
	spawnMu sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

func New(opts Options) (*Manager, error) {
	if opts.Primary == nil {
		return nil, &ConfigError{Field: "Primary", Reason: "is required"}
	}
	for name, t := range map[string]Tier{"PrimaryTier": opts.PrimaryTier, "SecondaryTier": opts.SecondaryTier} {
		if t.DefaultTTL < 0 || t.SlidingTTL < 0 {
			return nil, &ConfigError{Field: name, Reason: "TTLs must not be negative"}
		}
	}

	m := &Manager{
		enabled: !opts.Disabled,
		codec:   coalesce[codec.Codec](opts.Codec, codec.JSON{}),
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:   coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	m.primary = newTier(TierPrimary, opts.Primary, opts.PrimaryTier)
	if !isAbsent(opts.Secondary) {
		m.secondary = newTier(TierSecondary, opts.Secondary, opts.SecondaryTier)
	}
	return m, nil
}

func newTier(name TierName, c Client, t Tier) *tier {
	if t.SlidingTTL > 0 {
		c.SetSlidingTTL(t.SlidingTTL)
	}
	return &tier{name: name, client: c, defaultTTL: coalesce(t.DefaultTTL, DefaultTTL)}
}

func isAbsent(c Client) bool {
	switch c.(type) {
	case nil, NoneClient, *NoneClient:
		return true
	}
	return false
}

func (m *Manager) Enabled() bool { return m.enabled }

// Primary returns the primary tier client.
func (m *Manager) Primary() Client { return m.primary.client }

// Secondary returns the secondary tier client, or the primary one when no
// secondary tier is configured.
func (m *Manager) Secondary() Client { return m.second().client }

func (m *Manager) second() *tier {
	if m.secondary == nil {
		return m.primary
	}
	return m.secondary
}

// Wait blocks until every background refresh started so far has finished.
func (m *Manager) Wait() { m.wg.Wait() }

// spawn runs fn in the background unless Close has begun.
func (m *Manager) spawn(fn func()) {
	m.spawnMu.Lock()
	defer m.spawnMu.Unlock()
	if m.closed {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

// Close stops new background refreshes, waits for running ones and closes
// the tier clients that can be closed.
func (m *Manager) Close(ctx context.Context) error {
	m.spawnMu.Lock()
	if m.closed {
		m.spawnMu.Unlock()
		return nil
	}
	m.closed = true
	m.spawnMu.Unlock()
	m.wg.Wait()

	var errs []error
	for _, t := range []*tier{m.primary, m.secondary} {
		if t == nil {
			continue
		}
		switch c := t.client.(type) {
		case interface{ Close(context.Context) error }:
			errs = append(errs, c.Close(ctx))
		case interface{ Close() error }:
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

type callOptions struct {
	ttl    time.Duration
	noNull bool
}

// Option tunes a single cache operation.
type Option func(*callOptions)

// WithTTL overrides the tier's default TTL for this call.
func WithTTL(d time.Duration) Option { return func(o *callOptions) { o.ttl = d } }

// WithoutNullCaching skips storing a nil result.
func WithoutNullCaching() Option { return func(o *callOptions) { o.noNull = true } }

func resolve(opts []Option) callOptions {
	var o callOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o callOptions) ttlFor(t *tier) time.Duration {
	if o.ttl > 0 {
		return o.ttl
	}
	return t.defaultTTL
}
