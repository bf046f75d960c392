package mathx

// Ordered mirrors golang.org/x/exp/constraints.Ordered; kept local since
// this repo drops the x/exp dependency (it was only a tinygo toolchain
// transitive import in the teacher).
type Ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64 | ~string
}

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T Ordered](v, lo, hi T) T {
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

// Min returns the smaller of a and b, used by ramp.StartLinear to cap a
// ramp's final level at its configured top.
func Min[T Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}
