// Package hash provides the two hashing strategies used by the storage core:
// Bernstein djb2 for the inverted index's hash maps, which tolerates
// collisions as long as lookups are paired with a byte-level equality check,
// and xxHash64 for the buffer cache's page-generation tag, where speed
// matters and collision tolerance doesn't need to be load-bearing.
package hash

import "github.com/cespare/xxhash/v2"

// DJB2 computes the Bernstein djb2 hash of data: h = h*33 ^ b, seeded at 5381.
//
// Used by the inverted index (metric and tag=value postings maps). Collisions are
// expected and tolerated; callers must pair a lookup with a byte-level
// filter against the original string.
func DJB2(data []byte) uint64 {
	var h uint64 = 5381
	for _, b := range data {
		h = (h * 33) ^ uint64(b)
	}

	return h
}

// DJB2String is the string-argument form of DJB2, avoiding a []byte copy
// at call sites that already hold a string.
func DJB2String(s string) uint64 {
	var h uint64 = 5381
	for i := 0; i < len(s); i++ {
		h = (h * 33) ^ uint64(s[i])
	}

	return h
}

// Generation returns a fast 64-bit tag for cache-key generation stamping.
// It is not used for correctness-critical lookups, only to invalidate
// buffer-cache entries when a page is reused (reuse() bumps open_count,
// which feeds here) — xxHash64 is used for its speed, not its collision
// properties.
func Generation(pageID uint64, openCount uint32) uint64 {
	var buf [12]byte
	buf[0] = byte(pageID)
	buf[1] = byte(pageID >> 8)
	buf[2] = byte(pageID >> 16)
	buf[3] = byte(pageID >> 24)
	buf[4] = byte(pageID >> 32)
	buf[5] = byte(pageID >> 40)
	buf[6] = byte(pageID >> 48)
	buf[7] = byte(pageID >> 56)
	buf[8] = byte(openCount)
	buf[9] = byte(openCount >> 8)
	buf[10] = byte(openCount >> 16)
	buf[11] = byte(openCount >> 24)

	return xxhash.Sum64(buf[:])
}
