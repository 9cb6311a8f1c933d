package evaluator

import (
	"github.com/cespare/xxhash/v2"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// BucketingHashVersion names the hash used by Bucket. Changing the hash
// reshuffles every existing assignment, so it must change with it.
const BucketingHashVersion = "xxh64-v1"

// Bucket maps (experimentKey, identifier) to a point in [0, 1). The top 53
// bits of the 64-bit hash fill a float64 mantissa exactly.
func Bucket(experimentKey, identifier string) float64 {
	h := xxhash.Sum64String(experimentKey + ":" + identifier)
	return float64(h>>11) / (1 << 53)
}

// Pick walks variants in declaration order over contiguous weight
// intervals and returns the one containing h scaled by the total weight.
// It returns false when the total weight is zero.
func Pick(variants []domain.Variant, h float64) (domain.Variant, bool) {
	total := 0.0
	last := -1
	for i, v := range variants {
		if v.Weight > 0 {
			total += v.Weight
			last = i
		}
	}
	if total <= 0 {
		return domain.Variant{}, false
	}

	point := h * total
	cumulative := 0.0
	for _, v := range variants {
		if v.Weight <= 0 {
			continue
		}
		cumulative += v.Weight
		if point < cumulative {
			return v, true
		}
	}

	// float rounding can leave point at the very top of the range
	return variants[last], true
}
