package mathx

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SatU16 narrows v to uint16, saturating at 0 and the type maximum.
func SatU16[T constraints.Integer](v T) uint16 {
	return uint16(Clamp(int64(v), 0, math.MaxUint16))
}
