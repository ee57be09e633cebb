package kernels

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"

	"github.com/cwbudde/gpufft/internal/fftypes"
)

// Load decodes complex sample i from device memory b.
func Load(p fftypes.Precision, b []byte, i int) complex128 {
	switch p {
	case fftypes.PrecisionDouble:
		off := i * 16
		re := math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
		im := math.Float64frombits(binary.LittleEndian.Uint64(b[off+8:]))

		return complex(re, im)
	case fftypes.PrecisionHalf:
		off := i * 4
		re := float16.Frombits(binary.LittleEndian.Uint16(b[off:])).Float32()
		im := float16.Frombits(binary.LittleEndian.Uint16(b[off+2:])).Float32()

		return complex(float64(re), float64(im))
	default:
		off := i * 8
		re := math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(b[off+4:]))

		return complex(float64(re), float64(im))
	}
}

// Store encodes v as complex sample i of device memory b.
func Store(p fftypes.Precision, b []byte, i int, v complex128) {
	switch p {
	case fftypes.PrecisionDouble:
		off := i * 16
		binary.LittleEndian.PutUint64(b[off:], math.Float64bits(real(v)))
		binary.LittleEndian.PutUint64(b[off+8:], math.Float64bits(imag(v)))
	case fftypes.PrecisionHalf:
		off := i * 4
		binary.LittleEndian.PutUint16(b[off:], float16.Fromfloat32(float32(real(v))).Bits())
		binary.LittleEndian.PutUint16(b[off+2:], float16.Fromfloat32(float32(imag(v))).Bits())
	default:
		off := i * 8
		binary.LittleEndian.PutUint32(b[off:], math.Float32bits(float32(real(v))))
		binary.LittleEndian.PutUint32(b[off+4:], math.Float32bits(float32(imag(v))))
	}
}

// Encode stores vals contiguously into b starting at sample 0.
func Encode(p fftypes.Precision, b []byte, vals []complex128) {
	for i, v := range vals {
		Store(p, b, i, v)
	}
}

// Decode loads len(dst) contiguous samples from b.
func Decode(p fftypes.Precision, dst []complex128, b []byte) {
	for i := range dst {
		dst[i] = Load(p, b, i)
	}
}
