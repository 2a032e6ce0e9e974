package otp

import "math/bits"

// Word is a storage word. The width is fixed once per deployment by
// instantiating Controller with it.
type Word interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// wordBits returns the width of W in bits.
func wordBits[W Word]() int {
	var z W
	return bits.OnesCount64(uint64(^z))
}

func wordMask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(width) - 1
}
