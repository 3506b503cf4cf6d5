// Package codec converts values to and from bytes for backends and the
// export/import formats. Record payloads stored by the redis, file and
// bigcache backends go through one of these codecs.
package codec

import (
	"fmt"
	"strings"

	"github.com/motti-landau/kvstore/record"
)

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Names accepted by ForRecords.
const (
	NameJSON    = "json"
	NameCBOR    = "cbor"
	NameMsgpack = "msgpack"
)

// ForRecords returns the record codec registered under name.
// An empty name selects msgpack, the most compact of the three.
func ForRecords(name string) (Codec[record.Record], error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameMsgpack:
		return Msgpack[record.Record]{}, nil
	case NameJSON:
		return JSON[record.Record]{}, nil
	case NameCBOR:
		return NewCBOR[record.Record](true)
	default:
		return nil, fmt.Errorf("codec: unknown codec %q (want json, cbor or msgpack)", name)
	}
}
