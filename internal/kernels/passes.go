package kernels

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/gpufft/internal/fftypes"
)

// Lines describes a set of equally shaped one-dimensional transforms.
// Line (b, o, c) starts at b*Dist + o*Length*Inner + c and its elements are
// Inner apart; counts and distances are in samples.
type Lines struct {
	Length  int
	Inner   int
	Outer   int
	Batch   int
	InDist  int
	OutDist int
}

// Count returns the number of lines.
func (g Lines) Count() int {
	return g.Batch * g.Outer * g.Inner
}

func (g Lines) base(line, dist int) int {
	c := line % g.Inner
	o := (line / g.Inner) % g.Outer
	b := line / (g.Inner * g.Outer)

	return b*dist + o*g.Length*g.Inner + c
}

// Extent returns the number of samples a buffer with the given batch
// distance must hold.
func (g Lines) Extent(dist int) int {
	if g.Count() == 0 {
		return 0
	}

	return (g.Batch-1)*dist + g.Outer*g.Length*g.Inner
}

// Args are the memory a launch reads and writes, already offset to the
// regions the launch uses, plus its scalar parameters.
type Args struct {
	Precision fftypes.Precision
	Dst       []byte
	Src       []byte

	// Twiddles holds TwiddleLen samples in Precision.TwiddlePrecision().
	Twiddles   []byte
	TwiddleLen int

	// Work is the staging area of staged kernels, one line per transform.
	Work []byte

	Scale float64

	// Workers bounds the goroutines the launch fans out to. Zero uses
	// GOMAXPROCS.
	Workers int
}

// linesPerTask keeps small launches on one goroutine.
const linesPerTask = 64

// Passes runs consecutive Stockham passes of the given radixes over every
// line. span is the product of radixes applied by earlier launches; a
// complete transform starts at span 1. The twiddle table must hold W_T^e
// where T is a multiple of every pass's span*radix.
//
// Passes is the host implementation of both radix-pass kernels (one radix)
// and direct kernels (their whole decomposition).
func Passes(buf Args, g Lines, radixes []int, span int, staged bool) error {
	tw := make([]complex128, buf.TwiddleLen)
	Decode(buf.Precision.TwiddlePrecision(), tw, buf.Twiddles)

	return forLines(buf.Workers, g.Count(), func(lo, hi int) {
		x := make([]complex128, g.Length)
		y := make([]complex128, g.Length)
		v := make([]complex128, maxRadix(radixes))
		tmp := make([]complex128, len(v))
		es := buf.Precision.ElemSize()

		for line := lo; line < hi; line++ {
			in := g.base(line, g.InDist)
			for t := range g.Length {
				x[t] = Load(buf.Precision, buf.Src, in+t*g.Inner)
			}

			var work []byte
			if staged {
				work = buf.Work[line*g.Length*es : (line+1)*g.Length*es]
			}

			s := span
			for i, r := range radixes {
				stockhamPass(y, x, g.Length, r, s, tw, v, tmp)
				s *= r
				x, y = y, x

				if staged && i < len(radixes)-1 {
					Encode(buf.Precision, work, x)
					Decode(buf.Precision, x, work)
				}
			}

			out := g.base(line, g.OutDist)
			for t := range g.Length {
				Store(buf.Precision, buf.Dst, out+t*g.Inner, scaled(x[t], buf.Scale))
			}
		}
	})
}

// stockhamPass applies one radix-r pass of a length-n Stockham autosort
// transform from x to y. span is the product of the radixes already applied.
func stockhamPass(y, x []complex128, n, r, span int, tw, v, tmp []complex128) {
	l := span * r
	step := len(tw) / l
	m := n / r

	// W_r^e = W_l^(e*span)
	root := func(e int) complex128 { return tw[e*span*step] }

	for j := range m {
		k := j % span
		for t := range r {
			v[t] = x[j+t*m] * tw[(t*k%l)*step]
		}

		butterfly(v, tmp, r, root)

		base := (j/span)*l + k
		for t := range r {
			y[base+t*span] = v[t]
		}
	}
}

func scaled(v complex128, s float64) complex128 {
	if s == 1 || s == 0 {
		return v
	}

	return v * complex(s, 0)
}

func maxRadix(radixes []int) int {
	m := 1
	for _, r := range radixes {
		m = max(m, r)
	}

	return m
}

// forLines splits [0, n) into chunks processed concurrently.
func forLines(workers, n int, fn func(lo, hi int)) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	if n <= linesPerTask || workers == 1 {
		fn(0, n)
		return nil
	}

	chunk := max(linesPerTask, (n+workers-1)/workers)

	var g errgroup.Group
	g.SetLimit(workers)

	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}

	return g.Wait()
}
