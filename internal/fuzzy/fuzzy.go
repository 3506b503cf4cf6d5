// Package fuzzy scores a candidate string against a query using
// case-insensitive subsequence matching.
//
// Scores are ordered by tier first (exact > prefix > contiguous substring >
// scattered subsequence) and then, within a tier, by how many matched
// characters sit next to each other and how early the match starts.
package fuzzy

import (
	"strings"
)

type Tier int

const (
	TierScattered Tier = iota
	TierSubstring
	TierPrefix
	TierExact
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierPrefix:
		return "prefix"
	case TierSubstring:
		return "substring"
	default:
		return "scattered"
	}
}

const (
	tierShift = 40
	runBonus  = 512
	posCap    = 256
)

// TierOf recovers the tier encoded in a score returned by Score.
func TierOf(score int64) Tier {
	return Tier(score >> tierShift)
}

// Score reports whether query is a subsequence of candidate (case-insensitive)
// and, if so, its score. Higher is better. An empty query matches nothing.
func Score(candidate, query string) (int64, bool) {
	c := []rune(strings.ToLower(candidate))
	q := []rune(strings.ToLower(query))
	if len(q) == 0 || len(q) > len(c) {
		return 0, false
	}

	contiguous := int64(len(q)-1) * runBonus
	switch {
	case len(c) == len(q) && runesEqual(c, q):
		return compose(TierExact, contiguous+position(0)), true
	case runesEqual(c[:len(q)], q):
		return compose(TierPrefix, contiguous+position(0)), true
	}
	if at := indexRunes(c, q); at >= 0 {
		return compose(TierSubstring, contiguous+position(at)), true
	}

	bonus, ok := scattered(c, q)
	if !ok {
		return 0, false
	}
	return compose(TierScattered, bonus), true
}

func compose(t Tier, bonus int64) int64 {
	return int64(t)<<tierShift + bonus
}

func position(start int) int64 {
	if start > posCap {
		start = posCap
	}
	return int64(posCap - start)
}

// scattered finds the alignment of q inside c maximising adjacent matched
// pairs plus the start-position bonus.
func scattered(c, q []rune) (int64, bool) {
	const none = int64(-1)
	prev := make([]int64, len(c))
	cur := make([]int64, len(c))

	for j := range c {
		prev[j] = none
		if c[j] == q[0] {
			prev[j] = position(j)
		}
	}

	for i := 1; i < len(q); i++ {
		best := none // max of prev[0..j-1]
		for j := range c {
			cur[j] = none
			if j > 0 && prev[j-1] > best {
				best = prev[j-1]
			}
			if c[j] != q[i] {
				continue
			}
			if best != none {
				cur[j] = best
			}
			if j > 0 && prev[j-1] != none && prev[j-1]+runBonus > cur[j] {
				cur[j] = prev[j-1] + runBonus
			}
		}
		prev, cur = cur, prev
	}

	out := none
	for _, v := range prev {
		if v > out {
			out = v
		}
	}
	return out, out != none
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func indexRunes(s, sub []rune) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if runesEqual(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}
