package kernels

import (
	fftmath "github.com/cwbudde/gpufft/internal/math"
)

// Matrices describes Batch*Outer row-major Rows x Cols matrices.
type Matrices struct {
	Rows    int
	Cols    int
	Outer   int
	Batch   int
	InDist  int
	OutDist int
}

// Transpose writes the transpose of every matrix of src into dst.
func Transpose(buf Args, g Matrices) error {
	size := g.Rows * g.Cols

	return forLines(buf.Workers, g.Batch*g.Outer, func(lo, hi int) {
		in := make([]complex128, size)
		out := make([]complex128, size)

		for m := lo; m < hi; m++ {
			b, o := m/g.Outer, m%g.Outer
			src := b*g.InDist + o*size
			dst := b*g.OutDist + o*size

			for i := range in {
				in[i] = Load(buf.Precision, buf.Src, src+i)
			}

			fftmath.Transpose(out, in, g.Rows, g.Cols)

			for i, v := range out {
				Store(buf.Precision, buf.Dst, dst+i, scaled(v, buf.Scale))
			}
		}
	})
}

// Copy moves Count samples per batch from src to dst.
func Copy(buf Args, count, batch, inDist, outDist int) error {
	return forLines(buf.Workers, batch, func(lo, hi int) {
		for b := lo; b < hi; b++ {
			for i := range count {
				v := Load(buf.Precision, buf.Src, b*inDist+i)
				Store(buf.Precision, buf.Dst, b*outDist+i, scaled(v, buf.Scale))
			}
		}
	})
}
