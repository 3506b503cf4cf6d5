// Package exchange reads and writes export documents in several formats.
package exchange

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"

	"github.com/motti-landau/kvstore"
	"github.com/motti-landau/kvstore/codec"
)

type Format string

const (
	JSON     Format = "json"
	YAML     Format = "yaml"
	CBOR     Format = "cbor"
	Msgpack  Format = "msgpack"
	Protobuf Format = "protobuf"
)

// Formats lists every supported format.
var Formats = []Format{JSON, YAML, CBOR, Msgpack, Protobuf}

// ParseFormat resolves a format name. An empty name is JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "cbor":
		return CBOR, nil
	case "msgpack", "mpk":
		return Msgpack, nil
	case "protobuf", "proto", "pb":
		return Protobuf, nil
	default:
		return "", &kvstore.ValidationError{Field: "format", Reason: fmt.Sprintf("unknown format %q", s)}
	}
}

// FormatFromPath guesses the format from the file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return JSON
	}
	return f
}

// Encode serializes doc. JSON and YAML are indented and end with a newline.
func Encode(doc kvstore.Document, f Format) ([]byte, error) {
	if doc == nil {
		doc = kvstore.Document{}
	}
	switch f {
	case JSON, "":
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	case YAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CBOR:
		c, err := codec.NewCBOR[kvstore.Document](true)
		if err != nil {
			return nil, err
		}
		return c.Encode(doc)
	case Msgpack:
		return codec.Msgpack[kvstore.Document]{}.Encode(doc)
	case Protobuf:
		st, err := toStruct(doc)
		if err != nil {
			return nil, err
		}
		return protoCodec().Encode(st)
	default:
		return nil, fmt.Errorf("exchange: unsupported format %q", f)
	}
}

// Decode parses b. Blank input is an empty document. JSON also accepts the
// legacy flat form {"key": "value"}.
func Decode(b []byte, f Format) (kvstore.Document, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return kvstore.Document{}, nil
	}
	var (
		doc kvstore.Document
		err error
	)
	switch f {
	case JSON, "":
		doc, err = decodeJSON(b)
	case YAML:
		err = yaml.Unmarshal(b, &doc)
	case CBOR:
		var c codec.CBOR[kvstore.Document]
		if c, err = codec.NewCBOR[kvstore.Document](true); err == nil {
			doc, err = c.Decode(b)
		}
	case Msgpack:
		doc, err = codec.Msgpack[kvstore.Document]{}.Decode(b)
	case Protobuf:
		var st *structpb.Struct
		if st, err = protoCodec().Decode(b); err == nil {
			doc, err = fromStruct(st)
		}
	default:
		return nil, fmt.Errorf("exchange: unsupported format %q", f)
	}
	if err != nil {
		return nil, fmt.Errorf("exchange: decoding %s: %w", f, err)
	}
	if doc == nil {
		doc = kvstore.Document{}
	}
	return doc, nil
}

func decodeJSON(b []byte) (kvstore.Document, error) {
	var doc kvstore.Document
	err := json.Unmarshal(b, &doc)
	if err == nil {
		return doc, nil
	}
	var legacy map[string]string
	if json.Unmarshal(b, &legacy) != nil {
		return nil, err
	}
	doc = make(kvstore.Document, len(legacy))
	for k, v := range legacy {
		doc[k] = kvstore.DocumentEntry{Value: v}
	}
	return doc, nil
}

// WriteFile encodes doc and replaces path atomically, creating parent directories.
func WriteFile(path string, doc kvstore.Document, f Format) error {
	b, err := Encode(doc, f)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("exchange: creating %q: %w", dir, err)
		}
	}
	return atomic.WriteFile(path, bytes.NewReader(b))
}

// ReadFile decodes the document at path.
func ReadFile(path string, f Format) (kvstore.Document, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("exchange: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("exchange: reading %q: %w", path, err)
	}
	return Decode(b, f)
}

func protoCodec() codec.Protobuf[*structpb.Struct] {
	return codec.NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })
}

// toStruct maps the document onto google.protobuf.Struct; times become RFC 3339 strings.
func toStruct(doc kvstore.Document) (*structpb.Struct, error) {
	m := make(map[string]any, len(doc))
	for k, e := range doc {
		entry := map[string]any{"value": e.Value}
		if len(e.Tags) > 0 {
			tags := make([]any, len(e.Tags))
			for i, t := range e.Tags {
				tags[i] = t
			}
			entry["tags"] = tags
		}
		putTime(entry, "created_at", e.CreatedAt)
		putTime(entry, "updated_at", e.UpdatedAt)
		putTime(entry, "expires_at", e.ExpiresAt)
		m[k] = entry
	}
	return structpb.NewStruct(m)
}

func putTime(m map[string]any, name string, t *time.Time) {
	if t != nil {
		m[name] = t.UTC().Format(time.RFC3339Nano)
	}
}

func fromStruct(st *structpb.Struct) (kvstore.Document, error) {
	doc := make(kvstore.Document, len(st.GetFields()))
	for k, v := range st.GetFields() {
		fields := v.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("entry %q: not an object", k)
		}
		var e kvstore.DocumentEntry
		e.Value = fields["value"].GetStringValue()
		for _, t := range fields["tags"].GetListValue().GetValues() {
			e.Tags = append(e.Tags, t.GetStringValue())
		}
		var err error
		if e.CreatedAt, err = getTime(fields, "created_at"); err != nil {
			return nil, fmt.Errorf("entry %q: %w", k, err)
		}
		if e.UpdatedAt, err = getTime(fields, "updated_at"); err != nil {
			return nil, fmt.Errorf("entry %q: %w", k, err)
		}
		if e.ExpiresAt, err = getTime(fields, "expires_at"); err != nil {
			return nil, fmt.Errorf("entry %q: %w", k, err)
		}
		doc[k] = e
	}
	return doc, nil
}

func getTime(fields map[string]*structpb.Value, name string) (*time.Time, error) {
	v, ok := fields[name]
	if !ok {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &t, nil
}
