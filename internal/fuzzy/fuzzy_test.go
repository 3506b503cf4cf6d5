package fuzzy

import "testing"

func mustScore(t *testing.T, candidate, query string) int64 {
	t.Helper()
	s, ok := Score(candidate, query)
	if !ok {
		t.Fatalf("Score(%q, %q) should match", candidate, query)
	}
	return s
}

func TestNonSubsequenceExcluded(t *testing.T) {
	for _, tc := range []struct{ c, q string }{
		{"bar", "fo"},
		{"foo", "oof"},
		{"ab", "abc"},
		{"anything", ""},
	} {
		if _, ok := Score(tc.c, tc.q); ok {
			t.Fatalf("Score(%q, %q) should not match", tc.c, tc.q)
		}
	}
}

func TestTierOrdering(t *testing.T) {
	exact := mustScore(t, "foo", "foo")
	prefix := mustScore(t, "food", "foo")
	substring := mustScore(t, "afoo", "foo")
	scattered := mustScore(t, "f_o_o", "foo")

	if TierOf(exact) != TierExact || TierOf(prefix) != TierPrefix ||
		TierOf(substring) != TierSubstring || TierOf(scattered) != TierScattered {
		t.Fatalf("unexpected tiers: %v %v %v %v",
			TierOf(exact), TierOf(prefix), TierOf(substring), TierOf(scattered))
	}
	if !(exact > prefix && prefix > substring && substring > scattered) {
		t.Fatalf("ordering broken: exact=%d prefix=%d substring=%d scattered=%d",
			exact, prefix, substring, scattered)
	}
}

func TestCaseInsensitive(t *testing.T) {
	if TierOf(mustScore(t, "FOO", "foo")) != TierExact {
		t.Fatalf("case-insensitive exact match expected")
	}
	if TierOf(mustScore(t, "Food", "fO")) != TierPrefix {
		t.Fatalf("case-insensitive prefix match expected")
	}
}

func TestEarlierSubstringWins(t *testing.T) {
	early := mustScore(t, "xfoo", "foo")
	late := mustScore(t, "xxxxfoo", "foo")
	if early <= late {
		t.Fatalf("earlier substring should score higher: %d <= %d", early, late)
	}
}

func TestScatteredPrefersRuns(t *testing.T) {
	// "ab_c" keeps "ab" together; "a_b_c" is fully scattered.
	runs := mustScore(t, "ab_c", "abc")
	spread := mustScore(t, "a_b_c", "abc")
	if runs <= spread {
		t.Fatalf("run-rich alignment should score higher: %d <= %d", runs, spread)
	}
}

func TestScatteredFindsBestAlignment(t *testing.T) {
	// Greedy leftmost would pick the first 'a' and lose the "ab" run.
	withRun := mustScore(t, "a__ab", "ab")
	if TierOf(withRun) != TierSubstring {
		t.Fatalf("expected substring tier, got %v", TierOf(withRun))
	}
	s := mustScore(t, "a_x_ab_c", "abc")
	plain := mustScore(t, "a_x_a_b_c", "abc")
	if s <= plain {
		t.Fatalf("alignment using the later run should win: %d <= %d", s, plain)
	}
}

func TestUnicode(t *testing.T) {
	if TierOf(mustScore(t, "Grüße", "grü")) != TierPrefix {
		t.Fatalf("expected rune-wise prefix match")
	}
}
