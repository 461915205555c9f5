package tiercache

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/tiercache/provider"
)

// StoreOptions configures a StoreClient.
type StoreOptions struct {
	// Provider is required.
	Provider provider.Provider

	// DefaultTTL applies when Set/Add get ttl <= 0. Default: DefaultTTL.
	DefaultTTL time.Duration
	// SlidingTTL enables proactive refresh. 0 disables it.
	SlidingTTL time.Duration

	// Name labels log lines, e.g. "memory" or "redis".
	Name   string
	Logger Logger
}

// StoreClient is a Client over any provider.Provider. Sliding expiry is
// tracked with a companion key (key+TrackerSuffix) that expires SlidingTTL
// before the entry itself: once the tracker is gone the entry is about to
// expire.
type StoreClient struct {
	Sliding

	p          provider.Provider
	adder      provider.Adder
	defaultTTL time.Duration
	name       string
	log        Logger

	// serializes Add when the provider has no native set-if-absent
	addMu sync.Mutex
}

var _ Client = (*StoreClient)(nil)

func NewStoreClient(opts StoreOptions) (*StoreClient, error) {
	if opts.Provider == nil {
		return nil, &ConfigError{Field: "Provider", Reason: "is required"}
	}
	if opts.DefaultTTL < 0 {
		return nil, &ConfigError{Field: "DefaultTTL", Reason: "must not be negative"}
	}
	if opts.SlidingTTL < 0 {
		return nil, &ConfigError{Field: "SlidingTTL", Reason: "must not be negative"}
	}

	c := &StoreClient{
		p:          opts.Provider,
		defaultTTL: coalesce(opts.DefaultTTL, DefaultTTL),
		name:       coalesce(opts.Name, "store"),
		log:        OrNop(opts.Logger),
	}
	if a, ok := opts.Provider.(provider.Adder); ok {
		c.adder = a
	}
	c.SetSlidingTTL(opts.SlidingTTL)
	return c, nil
}

func (c *StoreClient) ttl(d time.Duration) time.Duration {
	if d <= 0 {
		return c.defaultTTL
	}
	return d
}

func (c *StoreClient) Exists(ctx context.Context, key string) bool {
	_, found := c.get(ctx, key)
	return found
}

func (c *StoreClient) Get(ctx context.Context, key string) ([]byte, bool) {
	b, found := c.get(ctx, key)
	if !found {
		return nil, false
	}
	return UnwrapNull(b), true
}

func (c *StoreClient) get(ctx context.Context, key string) ([]byte, bool) {
	b, found, err := c.p.Get(ctx, key)
	if err != nil {
		c.log.Error("cache get failed", Fields{"store": c.name, "key": key, "err": err})
		return nil, false
	}
	return b, found
}

func (c *StoreClient) Set(ctx context.Context, key string, raw []byte, ttl time.Duration) bool {
	ttl = c.ttl(ttl)
	if !c.put(ctx, key, WrapNull(raw), ttl) {
		return false
	}
	c.track(ctx, key, ttl)
	return true
}

func (c *StoreClient) Add(ctx context.Context, key string, raw []byte, ttl time.Duration) bool {
	ttl = c.ttl(ttl)
	if !c.add(ctx, key, WrapNull(raw), ttl) {
		return false
	}
	c.track(ctx, key, ttl)
	return true
}

func (c *StoreClient) put(ctx context.Context, key string, b []byte, ttl time.Duration) bool {
	ok, err := c.p.Set(ctx, key, b, 0, ttl)
	if err != nil {
		c.log.Error("cache set failed", Fields{"store": c.name, "key": key, "err": err})
		return false
	}
	if !ok {
		c.log.Warn("cache set rejected", Fields{"store": c.name, "key": key})
	}
	return ok
}

func (c *StoreClient) add(ctx context.Context, key string, b []byte, ttl time.Duration) bool {
	if c.adder != nil {
		ok, err := c.adder.SetNX(ctx, key, b, ttl)
		if err != nil {
			c.log.Error("cache add failed", Fields{"store": c.name, "key": key, "err": err})
			return false
		}
		return ok
	}

	c.addMu.Lock()
	defer c.addMu.Unlock()
	if _, found := c.get(ctx, key); found {
		return false
	}
	return c.put(ctx, key, b, ttl)
}

// track writes the sliding tracker for key, or removes it when the entry
// lives no longer than the sliding window.
func (c *StoreClient) track(ctx context.Context, key string, ttl time.Duration) {
	sliding := c.SlidingTTL()
	if sliding <= 0 {
		return
	}
	tk := TrackerKey(key)
	if ttl > sliding {
		c.put(ctx, tk, markerValue, ttl-sliding)
		return
	}
	if err := c.p.Del(ctx, tk); err != nil {
		c.log.Error("cache tracker delete failed", Fields{"store": c.name, "key": tk, "err": err})
	}
}

func (c *StoreClient) FlushAll(ctx context.Context) {
	if err := c.p.Flush(ctx); err != nil {
		c.log.Error("cache flush failed", Fields{"store": c.name, "err": err})
	}
}

func (c *StoreClient) IsAboutToExpire(ctx context.Context, key string) bool {
	if c.SlidingTTL() <= 0 {
		return false
	}
	return c.Exists(ctx, key) && !c.Exists(ctx, TrackerKey(key))
}

func (c *StoreClient) IsExtending(ctx context.Context, key string) bool {
	return ExtensionInFlight(ctx, c, key)
}

// SetKeyAsExtending inserts the marker without a tracker of its own.
func (c *StoreClient) SetKeyAsExtending(ctx context.Context, key string) bool {
	sliding := c.SlidingTTL()
	if sliding <= 0 {
		return false
	}
	return c.add(ctx, ExtendingKey(key), markerValue, sliding)
}

func (c *StoreClient) Close(ctx context.Context) error { return c.p.Close(ctx) }
