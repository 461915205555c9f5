package tiercache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// Producer computes the value for a key on a miss or a refresh.
type Producer[V any] func(ctx context.Context) (V, error)

var errWriteRejected = errors.New("tiercache: write rejected")

// TryCache returns the primary-tier value for key, or runs produce, stores
// its result and returns it. A hit that is about to expire is returned
// immediately while one background refresh rewrites the entry.
//
// A produce error is returned as is and nothing is cached.
func TryCache[V any](ctx context.Context, m *Manager, key string, produce Producer[V], opts ...Option) (V, error) {
	return tryCache(ctx, m, m.primary, key, produce, resolve(opts))
}

// TryCacheSecond is TryCache against the secondary tier.
func TryCacheSecond[V any](ctx context.Context, m *Manager, key string, produce Producer[V], opts ...Option) (V, error) {
	return tryCache(ctx, m, m.second(), key, produce, resolve(opts))
}

// FromCache reads key from the primary tier. A stored null reports
// (zero, true).
func FromCache[V any](ctx context.Context, m *Manager, key string) (V, bool) {
	if !m.enabled {
		var zero V
		return zero, false
	}
	return fromTier[V](ctx, m, m.primary, key)
}

func FromSecondCache[V any](ctx context.Context, m *Manager, key string) (V, bool) {
	if !m.enabled {
		var zero V
		return zero, false
	}
	return fromTier[V](ctx, m, m.second(), key)
}

// ToCache overwrites key in the primary tier. A nil value is stored as null.
func ToCache[V any](ctx context.Context, m *Manager, key string, v V, opts ...Option) bool {
	if !m.enabled {
		return false
	}
	ok, _ := store(ctx, m, m.primary, key, v, resolve(opts))
	return ok
}

func ToSecondCache[V any](ctx context.Context, m *Manager, key string, v V, opts ...Option) bool {
	if !m.enabled {
		return false
	}
	ok, _ := store(ctx, m, m.second(), key, v, resolve(opts))
	return ok
}

func tryCache[V any](ctx context.Context, m *Manager, t *tier, key string, produce Producer[V], o callOptions) (V, error) {
	if !m.enabled {
		return produce(ctx)
	}

	if v, ok := fromTier[V](ctx, m, t, key); ok {
		if t.client.IsAboutToExpire(ctx, key) {
			extend(ctx, m, t, key, produce, o)
		}
		return v, nil
	}

	v, err := produce(ctx)
	if err != nil {
		return v, err
	}
	store(ctx, m, t, key, v, o)
	return v, nil
}

func fromTier[V any](ctx context.Context, m *Manager, t *tier, key string) (V, bool) {
	var v V
	raw, found := t.client.Get(ctx, key)
	if !found {
		m.hooks.Miss(t.name, key)
		m.log.Debug("cache miss", Fields{"tier": t.name, "key": key})
		return v, false
	}
	if raw == nil {
		m.hooks.Hit(t.name, key)
		return v, true
	}
	if err := m.codec.Decode(raw, &v); err != nil {
		var zero V
		m.hooks.DecodeFailed(t.name, key, err)
		m.log.Warn("cache value does not decode into requested type", Fields{
			"tier": t.name, "key": key, "type": fmt.Sprintf("%T", zero), "err": err,
		})
		return zero, false
	}
	m.hooks.Hit(t.name, key)
	m.log.Debug("cache hit", Fields{"tier": t.name, "key": key})
	return v, true
}

// store reports whether the value was written. A skipped null write is
// (false, nil).
func store[V any](ctx context.Context, m *Manager, t *tier, key string, v V, o callOptions) (bool, error) {
	var raw []byte
	if !isNil(v) {
		b, err := m.codec.Encode(v)
		if err != nil {
			m.log.Error("cache encode failed", Fields{"tier": t.name, "key": key, "err": err})
			return false, err
		}
		raw = b
		if raw == nil {
			raw = []byte{}
		}
	} else if o.noNull {
		return false, nil
	}

	if !t.client.Set(ctx, key, raw, o.ttlFor(t)) {
		return false, errWriteRejected
	}
	return true, nil
}

// extend refreshes key in the background. The first caller to insert the
// extension marker runs produce; everybody else returns right away.
func extend[V any](ctx context.Context, m *Manager, t *tier, key string, produce Producer[V], o callOptions) {
	ctx = context.WithoutCancel(ctx)

	m.spawn(func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("tiercache: refresh panicked: %v", r)
				m.hooks.ExtendFailed(t.name, key, err)
				m.log.Error("cache refresh panicked", Fields{"tier": t.name, "key": key, "panic": r})
			}
		}()

		if t.client.IsExtending(ctx, key) {
			return
		}
		if !t.client.SetKeyAsExtending(ctx, key) {
			return
		}
		m.hooks.ExtendStarted(t.name, key)
		m.log.Debug("cache refresh started", Fields{"tier": t.name, "key": key})

		v, err := produce(ctx)
		if err != nil {
			m.hooks.ExtendFailed(t.name, key, err)
			m.log.Warn("cache refresh producer failed", Fields{"tier": t.name, "key": key, "err": err})
			return
		}
		if _, err := store(ctx, m, t, key, v, o); err != nil {
			m.hooks.ExtendFailed(t.name, key, err)
			m.log.Warn("cache refresh write failed", Fields{"tier": t.name, "key": key, "err": err})
		}
	})
}

func isNil[V any](v V) bool {
	rv := reflect.ValueOf(&v).Elem()
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
