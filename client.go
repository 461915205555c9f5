package tiercache

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"
)

const (
	// ExtendingSuffix marks "a refresh is in flight" for the key it is appended to.
	// Every process sharing a store must use the same literal.
	ExtendingSuffix = "_$@{EXT}@$"
	// TrackerSuffix names the sliding tracker of a key.
	TrackerSuffix = "_$@{TTL}@$"

	// NullValue is stored in place of a nil value.
	NullValue = "${<NULLOBJECT>}$"
	// NullValueQuoted is NullValue as it appears once a JSON encoder has quoted it.
	NullValueQuoted = `"` + NullValue + `"`

	// DefaultTTL applies when Set or Add is called with ttl <= 0 and the variant
	// was not configured with its own default.
	DefaultTTL = 5 * time.Minute
)

var (
	nullValue       = []byte(NullValue)
	nullValueQuoted = []byte(NullValueQuoted)
	markerValue     = []byte("1")
)

// Client is the capability every cache backend provides. Values are opaque
// bytes; a nil value is a stored null and round-trips as (nil, true).
//
// Implementations must be safe for concurrent use. None of the methods
// return errors: backend failures are logged and degrade to a miss (reads)
// or to false / retry-later (writes).
type Client interface {
	Exists(ctx context.Context, key string) bool
	// Get returns (raw, true) on hit, (nil, true) for a stored null and
	// (nil, false) on miss or backend failure.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set overwrites key. ttl <= 0 selects the client's default TTL.
	Set(ctx context.Context, key string, raw []byte, ttl time.Duration) bool
	// Add stores key only when it does not exist yet.
	Add(ctx context.Context, key string, raw []byte, ttl time.Duration) bool
	FlushAll(ctx context.Context)

	// SlidingTTL is how long before expiry an entry becomes eligible for a
	// background refresh. Zero disables the protocol.
	SlidingTTL() time.Duration
	SetSlidingTTL(d time.Duration)
	IsAboutToExpire(ctx context.Context, key string) bool
	IsExtending(ctx context.Context, key string) bool
	// SetKeyAsExtending claims the refresh of key. Only the first caller
	// within SlidingTTL gets true.
	SetKeyAsExtending(ctx context.Context, key string) bool
}

// Sliding stores the sliding TTL of a client. Embed it to get SlidingTTL and
// SetSlidingTTL.
type Sliding struct {
	ttl atomic.Int64
}

func (s *Sliding) SlidingTTL() time.Duration { return time.Duration(s.ttl.Load()) }

func (s *Sliding) SetSlidingTTL(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.ttl.Store(int64(d))
}

// MarkerClient is the part of Client the extension marker helpers need.
type MarkerClient interface {
	Exists(ctx context.Context, key string) bool
	Add(ctx context.Context, key string, raw []byte, ttl time.Duration) bool
	SlidingTTL() time.Duration
}

// ExtensionInFlight reports whether the extension marker of key exists.
func ExtensionInFlight(ctx context.Context, c MarkerClient, key string) bool {
	return c.Exists(ctx, ExtendingKey(key))
}

// MarkExtending inserts the extension marker of key with TTL = SlidingTTL so
// it expires on its own if the refreshing caller dies.
func MarkExtending(ctx context.Context, c MarkerClient, key string) bool {
	ttl := c.SlidingTTL()
	if ttl <= 0 {
		return false
	}
	return c.Add(ctx, ExtendingKey(key), markerValue, ttl)
}

func ExtendingKey(key string) string { return key + ExtendingSuffix }
func TrackerKey(key string) string   { return key + TrackerSuffix }

// WrapNull returns the bytes to store for raw: the null sentinel for nil.
func WrapNull(raw []byte) []byte {
	if raw == nil {
		return nullValue
	}
	return raw
}

// UnwrapNull maps stored bytes back to a value; the sentinel (quoted or not)
// becomes nil. A non-sentinel value is always returned non-nil.
//
// A payload whose encoding equals the sentinel is read back as null.
func UnwrapNull(stored []byte) []byte {
	if IsNull(stored) {
		return nil
	}
	if stored == nil {
		return []byte{}
	}
	return stored
}

func IsNull(stored []byte) bool {
	return bytes.Equal(stored, nullValue) || bytes.Equal(stored, nullValueQuoted)
}

// NoneClient is a tier placeholder: every read misses and every write is
// refused. A Manager treats it like an absent secondary tier.
type NoneClient struct{}

var _ Client = NoneClient{}

func (NoneClient) Exists(context.Context, string) bool                     { return false }
func (NoneClient) Get(context.Context, string) ([]byte, bool)              { return nil, false }
func (NoneClient) Set(context.Context, string, []byte, time.Duration) bool { return false }
func (NoneClient) Add(context.Context, string, []byte, time.Duration) bool { return false }
func (NoneClient) FlushAll(context.Context)                                {}
func (NoneClient) SlidingTTL() time.Duration                               { return 0 }
func (NoneClient) SetSlidingTTL(time.Duration)                             {}
func (NoneClient) IsAboutToExpire(context.Context, string) bool            { return false }
func (NoneClient) IsExtending(context.Context, string) bool                { return false }
func (NoneClient) SetKeyAsExtending(context.Context, string) bool          { return false }
