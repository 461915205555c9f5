package codec

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
)

// Protobuf encodes proto.Message values. Decode accepts either a message
// (*pb.Msg) or a pointer to a message pointer (**pb.Msg); in the latter case
// a nil message is allocated.
type Protobuf struct{}

var _ Codec = Protobuf{}

func (Protobuf) Encode(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: protobuf: %T is not a proto.Message", v)
	}
	return proto.Marshal(m)
}

func (Protobuf) Decode(b []byte, into any) error {
	if m, ok := into.(proto.Message); ok {
		return proto.Unmarshal(b, m)
	}
	rv := reflect.ValueOf(into)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("codec: protobuf: cannot decode into %T", into)
	}
	elem := rv.Elem()
	if elem.Kind() != reflect.Pointer || !elem.Type().Implements(reflect.TypeOf((*proto.Message)(nil)).Elem()) {
		return fmt.Errorf("codec: protobuf: cannot decode into %T", into)
	}
	if elem.IsNil() {
		elem.Set(reflect.New(elem.Type().Elem()))
	}
	return proto.Unmarshal(b, elem.Interface().(proto.Message))
}
