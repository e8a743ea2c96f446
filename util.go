package uhdrbake

import (
	"math"

	"golang.org/x/exp/constraints"
)

func log2f(v float32) float32 { return float32(math.Log2(float64(v))) }
func exp2f(v float32) float32 { return float32(math.Exp2(float64(v))) }

func srgbInvOetf(v float32) float32 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return float32(math.Pow(float64((v+0.055)/1.055), 2.4))
}

func srgbOetf(v float32) float32 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*float32(math.Pow(float64(v), 1.0/2.4)) - 0.055
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func max3(a, b, c float32) float32 {
	if a >= b && a >= c {
		return a
	}
	if b >= a && b >= c {
		return b
	}
	return c
}

// checkedAdd reports false when a+b overflows T.
func checkedAdd[T constraints.Integer](a, b T) (T, bool) {
	var zero T
	s := a + b
	if (b > zero && s < a) || (b < zero && s > a) {
		return 0, false
	}
	return s, true
}

// checkedSub reports false when a-b overflows or, for unsigned T, underflows.
func checkedSub[T constraints.Integer](a, b T) (T, bool) {
	var zero T
	d := a - b
	if (b > zero && d > a) || (b < zero && d < a) {
		return 0, false
	}
	return d, true
}

// checkedMul reports false when a*b overflows T. Operands are expected to be non-negative.
func checkedMul[T constraints.Integer](a, b T) (T, bool) {
	var zero T
	if a == zero || b == zero {
		return zero, true
	}
	p := a * b
	if p/b != a {
		return 0, false
	}
	return p, true
}

// span returns data[off:off+n] if the range is inside data.
func span[T constraints.Integer](data []byte, off, n T) ([]byte, bool) {
	var zero T
	if off < zero || n < zero {
		return nil, false
	}
	end, ok := checkedAdd(off, n)
	if !ok || uint64(end) > uint64(len(data)) {
		return nil, false
	}
	return data[off:end], true
}

// fitsU32 reports whether v can be stored in a uint32 field.
func fitsU32(v int) bool {
	return v >= 0 && uint64(v) <= math.MaxUint32
}
