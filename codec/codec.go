// Package codec serializes cache values to bytes and back.
//
// A Manager uses one Codec for every value type it stores, so codecs here are
// not generic: Decode receives a pointer to the destination.
package codec

// Codec encodes values to []byte for storage and decodes them into a
// pointer destination.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte, into any) error
}
