// Package mathx carries the generic numeric helpers this driver
// actually calls: bounding a parsed config value into a sane range and
// rounding a byte count up to a whole number of upload chunks. The
// teacher's wider mathx (lerp/map, written for analog sensor ramps) has
// no caller in a WiFi control-plane driver and isn't carried here.
package mathx

import "golang.org/x/exp/constraints"

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

// Between reports lo <= v && v <= hi (order-insensitive).
func Between[T constraints.Ordered](v, lo, hi T) bool {
	if hi < lo {
		lo, hi = hi, lo
	}
	return v >= lo && v <= hi
}
