// Package wire frames record payloads written by the redis, bigcache and
// file backends. Every frame carries a magic tag, a format version and a
// CRC-32C trailer, so foreign, truncated or torn values are reported as
// ErrCorrupt before any byte reaches a codec.
package wire

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	version    byte = 2
	kindSingle byte = 1
	kindDoc    byte = 2

	headerLen  = 4 + 1 + 1
	trailerLen = 4
)

var (
	ErrCorrupt = errors.New("kvstore: corrupt entry")

	errKeyLen = errors.New("kvstore: document key must be 1..65535 bytes")

	magic  = [4]byte{'K', 'V', 'N', 'S'}
	castag = crc32.MakeTable(crc32.Castagnoli)
)

func header(kind byte, size int) []byte {
	b := make([]byte, headerLen, size)
	copy(b, magic[:])
	b[4], b[5] = version, kind
	return b
}

func seal(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, crc32.Checksum(b, castag))
}

// open checks magic, version, kind and checksum and returns the body
// between header and trailer.
func open(b []byte, kind byte) ([]byte, bool) {
	if len(b) < headerLen+trailerLen || [4]byte(b[:4]) != magic || b[4] != version || b[5] != kind {
		return nil, false
	}
	end := len(b) - trailerLen
	if crc32.Checksum(b[:end], castag) != binary.BigEndian.Uint32(b[end:]) {
		return nil, false
	}
	return b[headerLen:end], true
}

// EncodeSingle frames one payload:
//
//	magic(4) | ver(1) | kind(1) | vlen(u32 be) | payload(vlen) | crc32c(u32 be)
func EncodeSingle(payload []byte) []byte {
	b := header(kindSingle, headerLen+4+len(payload)+trailerLen)
	b = binary.BigEndian.AppendUint32(b, uint32(len(payload)))
	b = append(b, payload...)
	return seal(b)
}

// DecodeSingle returns the payload of a single frame. The result aliases b.
func DecodeSingle(b []byte) ([]byte, error) {
	body, ok := open(b, kindSingle)
	if !ok || len(body) < 4 {
		return nil, ErrCorrupt
	}
	if int(binary.BigEndian.Uint32(body)) != len(body)-4 {
		return nil, ErrCorrupt
	}
	return body[4:], nil
}

// Item is one keyed payload inside a document frame.
type Item struct {
	Key     string
	Payload []byte
}

// EncodeDoc frames a whole namespace:
//
//	magic(4) | ver(1) | kind(1) | n(u32 be)
//	[ klen(u16 be) | key | vlen(u32 be) | payload ] * n
//	crc32c(u32 be)
func EncodeDoc(items []Item) ([]byte, error) {
	size := headerLen + 4 + trailerLen
	for _, it := range items {
		if l := len(it.Key); l == 0 || l > 0xFFFF {
			return nil, errKeyLen
		}
		size += 2 + len(it.Key) + 4 + len(it.Payload)
	}

	b := header(kindDoc, size)
	b = binary.BigEndian.AppendUint32(b, uint32(len(items)))
	for _, it := range items {
		b = binary.BigEndian.AppendUint16(b, uint16(len(it.Key)))
		b = append(b, it.Key...)
		b = binary.BigEndian.AppendUint32(b, uint32(len(it.Payload)))
		b = append(b, it.Payload...)
	}
	return seal(b), nil
}

// DecodeDoc validates the whole frame before returning any item.
// Payload slices alias b.
func DecodeDoc(b []byte) ([]Item, error) {
	body, ok := open(b, kindDoc)
	if !ok || len(body) < 4 {
		return nil, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint32(body))
	body = body[4:]
	// smallest item: klen + 1 key byte + vlen
	if n > len(body)/7 {
		return nil, ErrCorrupt
	}

	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		if len(body) < 2 {
			return nil, ErrCorrupt
		}
		klen := int(binary.BigEndian.Uint16(body))
		body = body[2:]
		if klen == 0 || klen+4 > len(body) {
			return nil, ErrCorrupt
		}
		key := string(body[:klen])
		body = body[klen:]

		vlen := int(binary.BigEndian.Uint32(body))
		body = body[4:]
		if vlen > len(body) {
			return nil, ErrCorrupt
		}
		items = append(items, Item{Key: key, Payload: body[:vlen:vlen]})
		body = body[vlen:]
	}
	if len(body) != 0 {
		return nil, ErrCorrupt
	}
	return items, nil
}
