package codec

import "fmt"

// Limit wraps another codec to enforce a maximum payload size at Decode
// time. Encode is forwarded to Inner unchanged.
// If MaxDecode <= 0, size limiting is disabled.
//
// Typical use: a shared Redis tier written by other services.
type Limit struct {
	// Inner must be set.
	Inner     Codec
	MaxDecode int
}

var _ Codec = Limit{}

func (c Limit) Encode(v any) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit) Decode(b []byte, into any) error {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		return fmt.Errorf("codec: payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b, into)
}
