// Package replica is the tiercache.Client for a Redis deployment where every
// application host runs a local read replica and writes go to one remote
// master.
//
// Reads hit the local reader only. Writes are applied to the reader
// synchronously, so the next read sees them, and then asynchronously to the
// writer, which replicates them back. A writer that fails twice is handed to
// an Escalator, normally a failover.Coordinator, that may switch the client
// to a new master.
package replica

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tiercache"
)

const (
	defaultRetryBackoff = 100 * time.Millisecond
	defaultWriteTimeout = 5 * time.Second
)

// Target is the surface the failover coordinator drives.
type Target interface {
	ReaderAddr() Addr
	WriterAddr() Addr
	PingWriter(ctx context.Context) error
	// ReplicaStatus points the reader at the current writer (unless they are
	// the same endpoint) and returns its parsed replication status.
	ReplicaStatus(ctx context.Context) (Status, error)
	ReplicaOf(ctx context.Context, master Addr) error
	PromoteReader(ctx context.Context) error
	SwitchWriterTarget(addr Addr)
}

// Escalator is told about a writer that failed a write twice. label is
// "<writer> << <key>". Escalate must not block.
type Escalator interface {
	Escalate(t Target, label string)
}

type EscalatorFunc func(t Target, label string)

func (f EscalatorFunc) Escalate(t Target, label string) { f(t, label) }

// Hooks observe the asynchronous write path.
type Hooks interface {
	// attempt is 1 for the first failure and 2 for the retry.
	RemoteWriteFailed(attempt int, err error)
}

type NopHooks struct{}

func (NopHooks) RemoteWriteFailed(int, error) {}

type Options struct {
	// Reader is the local replica. Required.
	Reader Addr
	// Writer is the seed master address. Required.
	Writer Addr

	// Dial creates connections. Default: DialRedis(nil).
	Dial Dialer

	DefaultTTL time.Duration
	SlidingTTL time.Duration

	// RetryBackoff is the pause before the single retry. Default: 100ms.
	RetryBackoff time.Duration
	// WriteTimeout bounds each remote attempt. Default: 5s.
	WriteTimeout time.Duration

	Escalator Escalator
	// Startup runs once before the writer pool is built and may change the
	// writer address. An error aborts New.
	Startup func(ctx context.Context, t Target) error

	Logger tiercache.Logger
	Hooks  Hooks
}

// Client keeps one fixed reader connection and one swappable writer
// connection.
type Client struct {
	tiercache.Sliding

	dial       Dialer
	reader     Conn
	readerAddr Addr

	mu         sync.RWMutex
	writer     Conn // nil until New finishes
	writerAddr Addr
	promoted   bool // reader is standalone after PromoteReader

	defaultTTL   time.Duration
	backoff      time.Duration
	writeTimeout time.Duration

	esc   Escalator
	log   tiercache.Logger
	hooks Hooks

	spawnMu sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

var (
	_ tiercache.Client = (*Client)(nil)
	_ Target           = (*Client)(nil)
)

func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Reader.IsZero() {
		return nil, &tiercache.ConfigError{Field: "Reader", Reason: "is required"}
	}
	if opts.Writer.IsZero() {
		return nil, &tiercache.ConfigError{Field: "Writer", Reason: "is required"}
	}
	if opts.DefaultTTL < 0 || opts.SlidingTTL < 0 {
		return nil, &tiercache.ConfigError{Field: "TTL", Reason: "must not be negative"}
	}

	c := &Client{
		dial:         opts.Dial,
		readerAddr:   opts.Reader,
		writerAddr:   opts.Writer,
		defaultTTL:   opts.DefaultTTL,
		backoff:      opts.RetryBackoff,
		writeTimeout: opts.WriteTimeout,
		esc:          opts.Escalator,
		log:          tiercache.OrNop(opts.Logger),
		hooks:        opts.Hooks,
	}
	if c.dial == nil {
		c.dial = DialRedis(nil)
	}
	if c.defaultTTL == 0 {
		c.defaultTTL = tiercache.DefaultTTL
	}
	if c.backoff <= 0 {
		c.backoff = defaultRetryBackoff
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = defaultWriteTimeout
	}
	if c.esc == nil {
		c.esc = EscalatorFunc(func(_ Target, label string) {
			c.log.Error("remote writer failed and no failover is configured", tiercache.Fields{"target": label})
		})
	}
	if c.hooks == nil {
		c.hooks = NopHooks{}
	}
	c.SetSlidingTTL(opts.SlidingTTL)

	c.reader = c.dial(c.readerAddr)
	if opts.Startup != nil {
		if err := opts.Startup(ctx, c); err != nil {
			_ = c.reader.Close()
			return nil, fmt.Errorf("replica: startup: %w", err)
		}
	}

	c.mu.Lock()
	c.writer = c.dial(c.writerAddr)
	addr := c.writerAddr
	c.mu.Unlock()

	c.log.Info("replicated client ready", tiercache.Fields{"reader": c.readerAddr.String(), "writer": addr.String()})
	return c, nil
}

func (c *Client) ttl(d time.Duration) time.Duration {
	if d <= 0 {
		return c.defaultTTL
	}
	return d
}

func (c *Client) ReaderAddr() Addr { return c.readerAddr }

func (c *Client) WriterAddr() Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writerAddr
}

func (c *Client) currentWriter() (Conn, Addr) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writer, c.writerAddr
}

// SwitchWriterTarget replaces the writer connection. Before New has built
// the writer it only records the address.
func (c *Client) SwitchWriterTarget(addr Addr) {
	c.mu.Lock()
	old := c.writer
	prev := c.writerAddr
	c.writerAddr = addr
	if old != nil {
		c.writer = c.dial(addr)
	}
	c.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			c.log.Warn("closing previous writer failed", tiercache.Fields{"writer": prev.String(), "err": err})
		}
	}
	c.log.Warn("writer switched", tiercache.Fields{"from": prev.String(), "to": addr.String()})
}

// PingWriter pings the current writer, over a throwaway connection when the
// pool does not exist yet.
func (c *Client) PingWriter(ctx context.Context) error {
	w, addr := c.currentWriter()
	if w == nil {
		w = c.dial(addr)
		defer w.Close()
	}
	return w.Ping(ctx)
}

// ReplicaStatus points the reader at the current writer, unless the reader
// is the writer or was promoted, then reads INFO replication.
func (c *Client) ReplicaStatus(ctx context.Context) (Status, error) {
	c.mu.RLock()
	writer, promoted := c.writerAddr, c.promoted
	c.mu.RUnlock()
	if !promoted && !writer.Equal(c.readerAddr) {
		if err := c.ReplicaOf(ctx, writer); err != nil {
			return Status{}, err
		}
	}
	info, err := c.reader.Info(ctx, "replication")
	if err != nil {
		return Status{}, fmt.Errorf("replica: info replication: %w", err)
	}
	return ParseStatus(info), nil
}

func (c *Client) ReplicaOf(ctx context.Context, master Addr) error {
	if err := c.reader.ReplicaOf(ctx, master.Host, strconv.Itoa(master.Port)); err != nil {
		return fmt.Errorf("replica: replicaof %s: %w", master.Record(), err)
	}
	c.mu.Lock()
	c.promoted = false
	c.mu.Unlock()
	return nil
}

func (c *Client) PromoteReader(ctx context.Context) error {
	if err := c.reader.ReplicaOf(ctx, "NO", "ONE"); err != nil {
		return fmt.Errorf("replica: replicaof no one: %w", err)
	}
	c.mu.Lock()
	c.promoted = true
	c.mu.Unlock()
	c.log.Warn("reader promoted to master", tiercache.Fields{"reader": c.readerAddr.String()})
	return nil
}

func (c *Client) Exists(ctx context.Context, key string) bool {
	ok, err := c.reader.Exists(ctx, key)
	if err != nil {
		c.log.Error("exists on reader failed", tiercache.Fields{"key": key, "err": err})
		return false
	}
	return ok
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool) {
	b, found, err := c.reader.Get(ctx, key)
	if err != nil {
		c.log.Error("get on reader failed", tiercache.Fields{"key": key, "err": err})
		return nil, false
	}
	if !found {
		return nil, false
	}
	return tiercache.UnwrapNull(b), true
}

// Set returns true once the remote write is spawned; its outcome is only
// logged.
func (c *Client) Set(ctx context.Context, key string, raw []byte, ttl time.Duration) bool {
	ttl = c.ttl(ttl)
	b := tiercache.WrapNull(raw)

	if err := c.reader.Set(ctx, key, b, ttl); err != nil {
		c.log.Error("set on reader failed", tiercache.Fields{"key": key, "err": err})
	}
	c.remote(ctx, key, func(ctx context.Context, w Conn) error {
		return w.Set(ctx, key, b, ttl)
	})
	return true
}

// Add returns false without touching the writer when the reader already
// holds key.
func (c *Client) Add(ctx context.Context, key string, raw []byte, ttl time.Duration) bool {
	ttl = c.ttl(ttl)
	b := tiercache.WrapNull(raw)

	ok, err := c.reader.SetNX(ctx, key, b, ttl)
	switch {
	case err != nil:
		c.log.Error("add on reader failed", tiercache.Fields{"key": key, "err": err})
	case !ok:
		return false
	}
	c.remote(ctx, key, func(ctx context.Context, w Conn) error {
		_, err := w.SetNX(ctx, key, b, ttl)
		return err
	})
	return true
}

func (c *Client) FlushAll(ctx context.Context) {
	c.remote(ctx, "(flushall)", func(ctx context.Context, w Conn) error {
		return w.FlushAll(ctx)
	})
}

func (c *Client) IsAboutToExpire(ctx context.Context, key string) bool {
	sliding := c.SlidingTTL()
	if sliding <= 0 {
		return false
	}
	left, err := c.reader.TTL(ctx, key)
	if err != nil {
		c.log.Error("ttl on reader failed", tiercache.Fields{"key": key, "err": err})
		return false
	}
	return left > 0 && left < sliding
}

func (c *Client) IsExtending(ctx context.Context, key string) bool {
	return tiercache.ExtensionInFlight(ctx, c, key)
}

func (c *Client) SetKeyAsExtending(ctx context.Context, key string) bool {
	return tiercache.MarkExtending(ctx, c, key)
}

// remote runs op against the writer in the background: one retry after
// the backoff, each attempt against the writer current at that moment,
// then escalation.
func (c *Client) remote(ctx context.Context, key string, op func(ctx context.Context, w Conn) error) {
	ctx = context.WithoutCancel(ctx)

	c.spawnMu.Lock()
	defer c.spawnMu.Unlock()
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		err := c.attempt(ctx, op)
		if err == nil {
			return
		}
		c.hooks.RemoteWriteFailed(1, err)
		c.log.Error("remote write failed, retrying", tiercache.Fields{"key": key, "writer": c.WriterAddr().String(), "err": err})

		time.Sleep(c.backoff)

		err = c.attempt(ctx, op)
		if err == nil {
			return
		}
		c.hooks.RemoteWriteFailed(2, err)
		label := c.WriterAddr().String() + " << " + key
		c.log.Error("remote write failed twice, escalating", tiercache.Fields{"target": label, "err": err})
		c.esc.Escalate(c, label)
	}()
}

func (c *Client) attempt(ctx context.Context, op func(ctx context.Context, w Conn) error) error {
	w, _ := c.currentWriter()
	if w == nil {
		return errors.New("replica: writer not ready")
	}
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	err := op(ctx, w)
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	return err
}

// Wait blocks until every remote write spawned so far has finished.
func (c *Client) Wait() { c.wg.Wait() }

// Close stops new remote writes, waits for pending ones and closes both
// connections.
func (c *Client) Close() error {
	c.spawnMu.Lock()
	if c.closed {
		c.spawnMu.Unlock()
		return nil
	}
	c.closed = true
	c.spawnMu.Unlock()
	c.wg.Wait()

	c.mu.Lock()
	w := c.writer
	c.writer = nil
	c.mu.Unlock()

	var errs []error
	if w != nil {
		errs = append(errs, w.Close())
	}
	errs = append(errs, c.reader.Close())
	return errors.Join(errs...)
}
