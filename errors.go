package tiercache

import "fmt"

// ConfigError reports an invalid or missing setting. It is the only error
// type surfaced by constructors in this module; runtime backend failures are
// logged instead.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tiercache: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("tiercache: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }
