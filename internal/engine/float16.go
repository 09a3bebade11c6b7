package engine

import (
	"encoding/binary"
	"math"
)

// widenFloat16 converts little-endian IEEE 754 half-precision bytes to
// float32. The model may emit 16-bit logits; they are widened exactly once
// here, at the engine boundary.
func widenFloat16(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float16ToFloat32(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return out
}

// float16ToFloat32 converts a IEEE 754 half-precision float to float32.
func float16ToFloat32(h uint16) float32 {
	// Extract components
	sign := uint32(h>>15) & 1
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			// Zero
			f = sign << 31
		} else {
			// Subnormal: normalize
			exp = 1
			for frac&0x400 == 0 {
				frac <<= 1
				exp--
			}
			frac &= 0x3ff
			f = (sign << 31) | ((exp + 127 - 15) << 23) | (frac << 13)
		}
	case 0x1f:
		// Inf/NaN
		f = (sign << 31) | (0xff << 23) | (frac << 13)
	default:
		// Normal
		f = (sign << 31) | ((exp + 127 - 15) << 23) | (frac << 13)
	}

	return math.Float32frombits(f)
}
