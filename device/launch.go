package device

import "fmt"

// Op selects the kernel family a launch runs.
type Op int

const (
	// OpPasses runs Stockham passes over lines of samples. Radix kernels
	// carry one radix, direct kernels their whole decomposition.
	OpPasses Op = iota
	// OpTranspose transposes row-major matrices.
	OpTranspose
	// OpCopy copies samples between regions.
	OpCopy
)

func (o Op) String() string {
	switch o {
	case OpPasses:
		return "passes"
	case OpTranspose:
		return "transpose"
	case OpCopy:
		return "copy"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Region is a byte offset into a buffer.
type Region struct {
	Buffer Buffer
	Offset int64
}

// Launch describes one kernel invocation. Counts and distances are in
// samples of Precision; Region offsets are in bytes.
type Launch struct {
	// Tag is echoed in errors raised for this launch.
	Tag    int
	Kernel string
	Op     Op

	Precision Precision
	Src       Region
	Dst       Region

	// Twiddles holds TwiddleLen samples in Precision.TwiddlePrecision().
	Twiddles   Region
	TwiddleLen int

	// Work is the staging area of staged kernels.
	Work Region

	// OpPasses.
	Radixes []int
	Span    int
	Staged  bool
	Length  int
	Inner   int
	Outer   int

	// OpTranspose.
	Rows int
	Cols int

	// OpCopy.
	Count int

	Batch   int
	InDist  int
	OutDist int

	// Scale multiplies every stored sample; zero means one.
	Scale float64
}

// Validate checks that the launch parameters are consistent and every
// region it touches lies inside its buffer.
func (l *Launch) Validate() error {
	if !l.Precision.Valid() {
		return fmt.Errorf("%w: precision %v", ErrInvalidLaunch, l.Precision)
	}

	if l.Src.Buffer == nil || l.Dst.Buffer == nil {
		return fmt.Errorf("%w: missing source or destination", ErrInvalidLaunch)
	}

	if l.Batch <= 0 || l.InDist < 0 || l.OutDist < 0 {
		return fmt.Errorf("%w: batch %d, distances %d/%d", ErrInvalidLaunch, l.Batch, l.InDist, l.OutDist)
	}

	var srcElems, dstElems int

	switch l.Op {
	case OpPasses:
		if err := l.validatePasses(); err != nil {
			return err
		}

		block := l.Outer * l.Length * l.Inner
		srcElems = extent(l.Batch, l.InDist, block)
		dstElems = extent(l.Batch, l.OutDist, block)
	case OpTranspose:
		if l.Rows <= 0 || l.Cols <= 0 || l.Outer <= 0 {
			return fmt.Errorf("%w: transpose %dx%d outer %d", ErrInvalidLaunch, l.Rows, l.Cols, l.Outer)
		}

		block := l.Outer * l.Rows * l.Cols
		srcElems = extent(l.Batch, l.InDist, block)
		dstElems = extent(l.Batch, l.OutDist, block)
	case OpCopy:
		if l.Count <= 0 {
			return fmt.Errorf("%w: copy count %d", ErrInvalidLaunch, l.Count)
		}

		srcElems = extent(l.Batch, l.InDist, l.Count)
		dstElems = extent(l.Batch, l.OutDist, l.Count)
	default:
		return fmt.Errorf("%w: unknown op %v", ErrInvalidLaunch, l.Op)
	}

	es := int64(l.Precision.ElemSize())

	if err := checkRegion("source", l.Src, int64(srcElems)*es); err != nil {
		return err
	}

	if err := checkRegion("destination", l.Dst, int64(dstElems)*es); err != nil {
		return err
	}

	if l.Op != OpPasses {
		return nil
	}

	if err := checkRegion("twiddles", l.Twiddles, int64(l.TwiddleLen)*int64(l.Precision.TwiddlePrecision().ElemSize())); err != nil {
		return err
	}

	if l.Staged {
		lines := l.Batch * l.Outer * l.Inner
		if err := checkRegion("work", l.Work, int64(lines)*int64(l.Length)*es); err != nil {
			return err
		}
	}

	return nil
}

func (l *Launch) validatePasses() error {
	if l.Length <= 0 || l.Inner <= 0 || l.Outer <= 0 || l.Span <= 0 || len(l.Radixes) == 0 {
		return fmt.Errorf("%w: length %d inner %d outer %d span %d radixes %v",
			ErrInvalidLaunch, l.Length, l.Inner, l.Outer, l.Span, l.Radixes)
	}

	total := l.Span
	for _, r := range l.Radixes {
		if r < 2 {
			return fmt.Errorf("%w: radix %d", ErrInvalidLaunch, r)
		}

		total *= r
	}

	if l.Length%total != 0 {
		return fmt.Errorf("%w: passes %v at span %d do not divide length %d", ErrInvalidLaunch, l.Radixes, l.Span, l.Length)
	}

	if l.TwiddleLen <= 0 || l.TwiddleLen%total != 0 {
		return fmt.Errorf("%w: twiddle table of %d entries for sub-transform %d", ErrInvalidLaunch, l.TwiddleLen, total)
	}

	if l.Twiddles.Buffer == nil {
		return fmt.Errorf("%w: missing twiddles", ErrInvalidLaunch)
	}

	if l.Staged && l.Work.Buffer == nil {
		return fmt.Errorf("%w: staged kernel without work area", ErrInvalidLaunch)
	}

	return nil
}

func extent(batch, dist, block int) int {
	return (batch-1)*dist + block
}

func checkRegion(name string, r Region, n int64) error {
	if r.Offset < 0 || r.Offset+n > r.Buffer.Size() {
		return fmt.Errorf("%w: %s needs %d bytes at offset %d of a %d byte buffer",
			ErrInvalidLaunch, name, n, r.Offset, r.Buffer.Size())
	}

	return nil
}
