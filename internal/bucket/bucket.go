// Package bucket implements deterministic variant bucketing: a user id is
// hashed into one of 100 buckets and the buckets are carved up by variant
// weight, so the same user always lands on the same variant for a given
// weight configuration.
package bucket

import (
	"unicode/utf16"

	"github.com/splitkit/splitkit/internal/store"
)

// Hash folds the UTF-16 code units of the user id through h = h*31 + c in
// 32-bit signed arithmetic. The wraparound behavior is part of the bucketing
// contract: existing assignments depend on it, so it must not change.
func Hash(userID string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(userID)) {
		h = (h << 5) - h + int32(c)
	}
	return h
}

// Bucket maps a user id to a bucket in [0, 100).
func Bucket(userID string) int {
	// Widen before negating so the minimum int32 stays exact.
	h := int64(Hash(userID))
	if h < 0 {
		h = -h
	}
	return int(h % 100)
}

// Assign picks the variant whose cumulative weight range covers the user's
// bucket, walking variants in their original order. If the weights
// under-cover [0, 100) the control (index 0) is the fallback.
func Assign(variants []store.Variant, userID string) *store.Variant {
	if len(variants) == 0 {
		return nil
	}

	b := float64(Bucket(userID))
	var cumulative float64
	for i := range variants {
		cumulative += variants[i].Weight
		if b < cumulative {
			return &variants[i]
		}
	}

	// Weights summed under 100 (data drift): fall back to control.
	return &variants[0]
}
