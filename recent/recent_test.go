package recent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func tick() func() time.Time {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestMoveToFrontAndCapacity(t *testing.T) {
	tr, err := Open("", 3, WithClock(tick()))
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"a", "b", "a", "c"} {
		if err := tr.RecordAccess(k); err != nil {
			t.Fatal(err)
		}
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, tr.Recent(0)); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}

	tr2, _ := Open("", 2)
	for _, k := range []string{"a", "b", "a", "c"} {
		_ = tr2.RecordAccess(k)
	}
	if diff := cmp.Diff([]string{"c", "a"}, tr2.Recent(10)); diff != "" {
		t.Fatalf("capped order (-want +got):\n%s", diff)
	}
	if got := tr2.Recent(1); len(got) != 1 || got[0] != "c" {
		t.Fatalf("limit not applied: %v", got)
	}
}

func TestReplayAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "recent.log")
	tr, err := Open(path, 5, WithClock(tick()))
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"x", "y", "x", "with\ttab"} {
		if err := tr.RecordAccess(k); err != nil {
			t.Fatal(err)
		}
	}

	again, err := Open(path, 5)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"with\ttab", "x", "y"}, again.Recent(0)); diff != "" {
		t.Fatalf("replayed order (-want +got):\n%s", diff)
	}
	entries := again.Entries(1)
	if len(entries) != 1 || entries[0].AccessedAt.IsZero() {
		t.Fatalf("entries: %+v", entries)
	}
}

func TestMalformedLinesSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent.log")
	content := strings.Join([]string{
		`1	"a"`,
		`garbage`,
		`nan	"b"`,
		`3	unquoted`,
		`4	"c"`,
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	tr, err := Open(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"c", "a"}, tr.Recent(0)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestCompaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent.log")
	tr, err := Open(path, 2, WithClock(tick()))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		if err := tr.RecordAccess([]string{"a", "b", "c"}[i%3]); err != nil {
			t.Fatal(err)
		}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Count(string(raw), "\n")
	if lines > compactFactor*2 {
		t.Fatalf("log not compacted: %d lines", lines)
	}

	again, _ := Open(path, 2)
	if diff := cmp.Diff(tr.Recent(0), again.Recent(0)); diff != "" {
		t.Fatalf("compacted log replays differently (-want +got):\n%s", diff)
	}
}

func TestForget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent.log")
	tr, _ := Open(path, 5)
	_ = tr.RecordAccess("a")
	_ = tr.RecordAccess("b")
	if err := tr.Forget("a"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Forget("missing"); err != nil {
		t.Fatal(err)
	}
	again, _ := Open(path, 5)
	if diff := cmp.Diff([]string{"b"}, again.Recent(0)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}
