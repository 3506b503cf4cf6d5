package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/motti-landau/kvstore/record"
)

func sampleRecord() record.Record {
	created := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	exp := created.Add(time.Hour)
	return record.Record{
		Key:       "k",
		Value:     "v",
		Tags:      []string{"a", "b"},
		CreatedAt: created,
		UpdatedAt: created,
		ExpiresAt: &exp,
	}
}

func TestForRecordsPreservesRecord(t *testing.T) {
	for _, name := range []string{"", NameJSON, NameCBOR, NameMsgpack} {
		c, err := ForRecords(name)
		if err != nil {
			t.Fatalf("ForRecords(%q): %v", name, err)
		}
		in := sampleRecord()
		b, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%q encode: %v", name, err)
		}
		out, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%q decode: %v", name, err)
		}
		if diff := cmp.Diff(in, out, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
			t.Fatalf("%q (-in +out):\n%s", name, diff)
		}
	}
	if _, err := ForRecords("xml"); err == nil {
		t.Fatalf("unknown codec should fail")
	}
}

func TestCBORDeterministic(t *testing.T) {
	c, err := NewCBOR[map[string]int](true)
	if err != nil {
		t.Fatal(err)
	}
	m := map[string]int{"z": 1, "a": 2, "m": 3}
	b1, _ := c.Encode(m)
	b2, _ := c.Encode(m)
	if string(b1) != string(b2) {
		t.Fatalf("deterministic CBOR produced different bytes")
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit[string]{Inner: JSON[string]{}, MaxDecode: 8}
	b, _ := c.Encode(strings.Repeat("x", 32))
	if _, err := c.Decode(b); err == nil {
		t.Fatalf("expected oversized payload to be rejected")
	}
	small, _ := c.Encode("ok")
	if v, err := c.Decode(small); err != nil || v != "ok" {
		t.Fatalf("small decode: v=%q err=%v", v, err)
	}
}

func TestProtobufStruct(t *testing.T) {
	c := NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })
	in, err := structpb.NewStruct(map[string]any{"value": "v", "n": 1.5})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if out.GetFields()["value"].GetStringValue() != "v" {
		t.Fatalf("unexpected decoded struct: %v", out)
	}
}
