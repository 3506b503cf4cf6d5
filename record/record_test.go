package record

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeTagsIsOrderAndCaseInsensitive(t *testing.T) {
	a := NormalizeTags([]string{"B", "a", "a"})
	b := NormalizeTags([]string{"a", "b"})
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("normalized sets differ (-a +b):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, a); diff != "" {
		t.Fatalf("unexpected normalized tags (-want +got):\n%s", diff)
	}
}

func TestNormalizeTagsDropsBlankAndTrims(t *testing.T) {
	got := NormalizeTags([]string{"  Work ", "", "   ", "work", "Home"})
	if diff := cmp.Diff([]string{"home", "work"}, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if empty := NormalizeTags(nil); empty == nil || len(empty) != 0 {
		t.Fatalf("expected non-nil empty slice, got %#v", empty)
	}
}

func TestValidateNamespace(t *testing.T) {
	for _, ns := range []string{"work", "investments-2026", "team.alpha_1"} {
		if err := ValidateNamespace(ns); err != nil {
			t.Fatalf("ValidateNamespace(%q): %v", ns, err)
		}
	}
	for _, ns := range []string{"", ".", "..", "a/b", "bad space", "ü"} {
		err := ValidateNamespace(ns)
		if err == nil {
			t.Fatalf("ValidateNamespace(%q) should fail", ns)
		}
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("ValidateNamespace(%q) err %v does not match ErrInvalid", ns, err)
		}
	}
}

func TestValidateRecordExpiry(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	r := Record{Key: "k", CreatedAt: now, ExpiresAt: &past}
	if err := r.Validate(); err == nil {
		t.Fatalf("expected expires_at before created_at to be rejected")
	}
	future := now.Add(time.Minute)
	r.ExpiresAt = &future
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := (Record{Key: "  "}).Validate(); err == nil {
		t.Fatalf("blank key should be rejected")
	}
}

func TestExpiredAndClone(t *testing.T) {
	now := time.Now()
	exp := now.Add(-time.Second)
	r := Record{Key: "k", Tags: []string{"a"}, ExpiresAt: &exp}
	if !r.Expired(now) {
		t.Fatalf("record should be expired")
	}
	c := r.Clone()
	c.Tags[0] = "mutated"
	*c.ExpiresAt = now.Add(time.Hour)
	if r.Tags[0] != "a" || !r.Expired(now) {
		t.Fatalf("Clone aliased the original record")
	}
	if (Record{Key: "p"}).Expired(now) {
		t.Fatalf("permanent record reported expired")
	}
}

func TestSummary(t *testing.T) {
	if got := (Record{Key: "k", Value: "v"}).Summary(); got != "k = v" {
		t.Fatalf("got %q", got)
	}
	if got := (Record{Key: "k", Value: "v", Tags: []string{"a", "b"}}).Summary(); got != "k = v [tags: a, b]" {
		t.Fatalf("got %q", got)
	}
}
