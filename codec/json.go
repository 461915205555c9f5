package codec

import "encoding/json"

// JSON is the default codec. The zero value is ready to use.
type JSON struct{}

var _ Codec = JSON{}

func (JSON) Encode(v any) ([]byte, error)    { return json.Marshal(v) }
func (JSON) Decode(b []byte, into any) error { return json.Unmarshal(b, into) }
