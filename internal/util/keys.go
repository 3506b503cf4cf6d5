package util

import (
	"crypto/sha256"
	"fmt"
	"strconv"
)

// SearchKey returns a deterministic memo key for a ranked search.
// The version is part of the key so any committed mutation makes older
// entries unreachable.
func SearchKey(ns string, version uint64, target string, limit int, query string) string {
	prefix := "search:" + ns + ":" + strconv.FormatUint(version, 10)
	joined := target + "\x00" + strconv.Itoa(limit) + "\x00" + query
	sum := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("%s:%x", prefix, sum[:8])
}
