package replica

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Conn is the subset of Redis commands the client and the failover
// coordinator issue against one endpoint.
type Conn interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	// TTL returns the remaining time to live; negative when the key is
	// missing or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
	FlushAll(ctx context.Context) error
	Ping(ctx context.Context) error
	Info(ctx context.Context, section string) (string, error)
	// ReplicaOf issues REPLICAOF host port; "NO", "ONE" promotes.
	ReplicaOf(ctx context.Context, host, port string) error
	Close() error
}

// Dialer builds a pooled connection to addr. It must not block on the
// network; failures surface on the first command.
type Dialer func(addr Addr) Conn

// DialRedis returns a Dialer creating go-redis clients from base with Addr
// replaced. A nil base uses go-redis defaults.
func DialRedis(base *goredis.Options) Dialer {
	return func(addr Addr) Conn {
		var o goredis.Options
		if base != nil {
			o = *base
		}
		o.Addr = addr.String()
		return &redisConn{rdb: goredis.NewClient(&o)}
	}
}

type redisConn struct {
	rdb *goredis.Client
}

var _ Conn = (*redisConn)(nil)

func (r *redisConn) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *redisConn) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *redisConn) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (r *redisConn) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (r *redisConn) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.rdb.PTTL(ctx, key).Result()
}

func (r *redisConn) FlushAll(ctx context.Context) error { return r.rdb.FlushAll(ctx).Err() }
func (r *redisConn) Ping(ctx context.Context) error     { return r.rdb.Ping(ctx).Err() }

func (r *redisConn) Info(ctx context.Context, section string) (string, error) {
	return r.rdb.Info(ctx, section).Result()
}

func (r *redisConn) ReplicaOf(ctx context.Context, host, port string) error {
	return r.rdb.SlaveOf(ctx, host, port).Err()
}

func (r *redisConn) Close() error {
	if err := r.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
