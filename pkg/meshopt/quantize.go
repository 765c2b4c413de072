package meshopt

import "github.com/chewxy/math32"

// QuantizeUnorm maps v in [0, 1] to an N-bit unsigned integer with rounding.
// Values outside the range are clamped. Max error is 0.5/(2^N-1).
func QuantizeUnorm(v float32, bits int) int {
	scale := float32(int(1)<<bits - 1)
	if !(v >= 0) {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return int(v*scale + 0.5)
}

// DequantizeUnorm reconstructs a value encoded by QuantizeUnorm.
func DequantizeUnorm(q, bits int) float32 {
	return float32(q) / float32(int(1)<<bits-1)
}

// QuantizeSnorm maps v in [-1, 1] to an N-bit signed integer with rounding.
// Values outside the range are clamped. Max error is 0.5/(2^(N-1)-1).
func QuantizeSnorm(v float32, bits int) int {
	scale := float32(int(1)<<(bits-1) - 1)
	if !(v >= -1) {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	round := float32(0.5)
	if v < 0 {
		round = -0.5
	}
	return int(v*scale + round)
}

// DequantizeSnorm reconstructs a value encoded by QuantizeSnorm.
func DequantizeSnorm(q, bits int) float32 {
	return float32(q) / float32(int(1)<<(bits-1)-1)
}

// QuantizeHalf converts a float to IEEE-754 half precision bits with
// round-to-nearest. Overflow produces infinity, NaN stays NaN and values too
// small for a normal half flush to zero.
func QuantizeHalf(v float32) uint16 {
	ui := math32.Float32bits(v)
	s := (ui >> 16) & 0x8000
	em := int32(ui & 0x7fffffff)

	// 112 is the exponent bias difference (127 - 15)
	h := (em - 112<<23 + 1<<12) >> 13
	if em < 113<<23 {
		h = 0
	}
	if em >= 143<<23 {
		h = 0x7c00
	}
	if em > 255<<23 {
		h = 0x7e00
	}
	return uint16(s | uint32(h))
}

// DequantizeHalf converts half precision bits back to a float.
// Denormal halves decode as zero.
func DequantizeHalf(h uint16) float32 {
	s := uint32(h&0x8000) << 16
	em := uint32(h & 0x7fff)

	r := (em + 112<<10) << 13
	if em < 1<<10 {
		r = 0
	}
	// inf and nan need the bias applied twice to reach exponent 255
	if em >= 31<<10 {
		r += 112 << 23
	}
	return math32.Float32frombits(s | r)
}

// QuantizeFloat rounds v to a float with only mantissaBits of mantissa.
// mantissaBits is clamped to [0, 23]. Infinity and NaN are preserved and
// denormals flush to zero.
func QuantizeFloat(v float32, mantissaBits int) float32 {
	mantissaBits = min(max(mantissaBits, 0), 23)
	ui := math32.Float32bits(v)
	mask := uint32(1)<<(23-mantissaBits) - 1
	round := (uint32(1) << (23 - mantissaBits)) >> 1

	e := ui & 0x7f800000
	rui := (ui + round) &^ mask

	switch e {
	case 0x7f800000:
	case 0:
		ui = 0
	default:
		ui = rui
	}
	return math32.Float32frombits(ui)
}
