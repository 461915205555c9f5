package tiercache

// Tier names a Manager tier in hooks and logs.
type TierName string

const (
	TierPrimary   TierName = "primary"
	TierSecondary TierName = "secondary"
)

// Hooks are lightweight callbacks for cache events.
// Implementations MUST be cheap and non-blocking; the manager calls them
// on hot paths.
type Hooks interface {
	Hit(tier TierName, key string)
	Miss(tier TierName, key string)

	// A background refresh was claimed for key.
	ExtendStarted(tier TierName, key string)
	// A background refresh ran but did not store a value (producer error,
	// encode error, panic or rejected write).
	ExtendFailed(tier TierName, key string, err error)

	// A stored payload could not be decoded into the requested type.
	DecodeFailed(tier TierName, key string, err error)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) Hit(TierName, string)                 {}
func (NopHooks) Miss(TierName, string)                {}
func (NopHooks) ExtendStarted(TierName, string)       {}
func (NopHooks) ExtendFailed(TierName, string, error) {}
func (NopHooks) DecodeFailed(TierName, string, error) {}
