package backend

import (
	"fmt"

	"github.com/motti-landau/kvstore/codec"
	"github.com/motti-landau/kvstore/internal/wire"
	"github.com/motti-landau/kvstore/record"
)

// EncodePayload serializes r with c and wraps it in a single-value frame.
func EncodePayload(c codec.Codec[record.Record], r record.Record) ([]byte, error) {
	b, err := c.Encode(r)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", r.Key, err)
	}
	return wire.EncodeSingle(b), nil
}

// DecodePayload reverses EncodePayload. The decoded key must match key;
// an empty decoded key is filled in from key.
func DecodePayload(c codec.Codec[record.Record], key string, b []byte) (record.Record, error) {
	payload, err := wire.DecodeSingle(b)
	if err != nil {
		return record.Record{}, err
	}
	r, err := c.Decode(payload)
	if err != nil {
		return record.Record{}, fmt.Errorf("decode: %w", err)
	}
	switch r.Key {
	case "":
		r.Key = key
	case key:
	default:
		return record.Record{}, fmt.Errorf("payload key %q does not match %q", r.Key, key)
	}
	return r, nil
}
