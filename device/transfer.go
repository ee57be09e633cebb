package device

import (
	"encoding/binary"
	"fmt"

	"github.com/x448/float16"

	"github.com/cwbudde/gpufft/internal/kernels"
)

// WriteSamples encodes vals in precision p and writes them to b starting
// at sample offset.
func WriteSamples(b Buffer, p Precision, offset int, vals []complex128) error {
	if !p.Valid() {
		return fmt.Errorf("%w: precision %v", ErrOutOfRange, p)
	}

	raw := make([]byte, len(vals)*p.ElemSize())
	kernels.Encode(p, raw, vals)

	return b.Write(int64(offset)*int64(p.ElemSize()), raw)
}

// ReadSamples reads len(dst) samples in precision p from b starting at
// sample offset.
func ReadSamples(b Buffer, p Precision, offset int, dst []complex128) error {
	if !p.Valid() {
		return fmt.Errorf("%w: precision %v", ErrOutOfRange, p)
	}

	raw := make([]byte, len(dst)*p.ElemSize())
	if err := b.Read(int64(offset)*int64(p.ElemSize()), raw); err != nil {
		return err
	}

	kernels.Decode(p, dst, raw)

	return nil
}

// WriteComplex64 writes single precision samples.
func WriteComplex64(b Buffer, offset int, vals []complex64) error {
	wide := make([]complex128, len(vals))
	for i, v := range vals {
		wide[i] = complex128(v)
	}

	return WriteSamples(b, PrecisionSingle, offset, wide)
}

// ReadComplex64 reads single precision samples.
func ReadComplex64(b Buffer, offset int, dst []complex64) error {
	wide := make([]complex128, len(dst))
	if err := ReadSamples(b, PrecisionSingle, offset, wide); err != nil {
		return err
	}

	for i, v := range wide {
		dst[i] = complex64(v)
	}

	return nil
}

// WriteComplex128 writes double precision samples.
func WriteComplex128(b Buffer, offset int, vals []complex128) error {
	return WriteSamples(b, PrecisionDouble, offset, vals)
}

// ReadComplex128 reads double precision samples.
func ReadComplex128(b Buffer, offset int, dst []complex128) error {
	return ReadSamples(b, PrecisionDouble, offset, dst)
}

// WriteHalf writes half precision samples given as interleaved real and
// imaginary parts; len(vals) must be even.
func WriteHalf(b Buffer, offset int, vals []float16.Float16) error {
	if len(vals)%2 != 0 {
		return fmt.Errorf("%w: odd number of half values", ErrOutOfRange)
	}

	raw := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(raw[2*i:], v.Bits())
	}

	return b.Write(int64(offset)*int64(PrecisionHalf.ElemSize()), raw)
}

// ReadHalf reads len(dst)/2 half precision samples into interleaved real
// and imaginary parts.
func ReadHalf(b Buffer, offset int, dst []float16.Float16) error {
	if len(dst)%2 != 0 {
		return fmt.Errorf("%w: odd number of half values", ErrOutOfRange)
	}

	raw := make([]byte, 2*len(dst))
	if err := b.Read(int64(offset)*int64(PrecisionHalf.ElemSize()), raw); err != nil {
		return err
	}

	for i := range dst {
		dst[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:]))
	}

	return nil
}
