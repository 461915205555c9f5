package codec

import "fmt"

// Raw stores []byte and string values unchanged. Decode accepts *[]byte and
// *string destinations.
type Raw struct{}

var _ Codec = Raw{}

func (Raw) Encode(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, fmt.Errorf("codec: raw: unsupported type %T", v)
	}
}

func (Raw) Decode(b []byte, into any) error {
	switch t := into.(type) {
	case *[]byte:
		*t = append([]byte(nil), b...)
	case *string:
		*t = string(b)
	default:
		return fmt.Errorf("codec: raw: unsupported destination %T", into)
	}
	return nil
}
