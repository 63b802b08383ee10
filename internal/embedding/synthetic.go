package embedding

import (
	"hash/fnv"
	"math"
)

// Synthetic computes the deterministic fallback vector mandated for
// degraded mode: component i is sin(i * k) for i in [0, dimensions), where
// k is derived from a hash of text so that different inputs produce
// different (but still deterministic) vectors, and identical inputs always
// produce an identical vector.
func Synthetic(text string, dimensions int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	// Keep k in a small range so sin(i*k) doesn't alias into noise for
	// large i; the exact scale doesn't matter, only that it's deterministic.
	k := float64(h.Sum64()%1000+1) / 1000.0

	vec := make([]float32, dimensions)
	for i := 0; i < dimensions; i++ {
		vec[i] = float32(math.Sin(float64(i) * k))
	}
	return vec
}
