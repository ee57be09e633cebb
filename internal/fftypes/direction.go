package fftypes

// Direction is the sign convention of a transform.
type Direction uint8

const (
	Forward Direction = iota // exp(-2πi jk/n)
	Inverse                  // exp(+2πi jk/n), unnormalized
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Inverse:
		return "inverse"
	default:
		return "unknown"
	}
}

// Valid reports whether d is a recognized direction.
func (d Direction) Valid() bool {
	return d <= Inverse
}

// Sign returns -1 for forward and +1 for inverse transforms.
func (d Direction) Sign() int {
	if d == Inverse {
		return 1
	}

	return -1
}

// Placement describes whether input and output buffers are the same.
type Placement uint8

const (
	InPlace Placement = iota
	OutOfPlace
)

func (p Placement) String() string {
	switch p {
	case InPlace:
		return "inplace"
	case OutOfPlace:
		return "outofplace"
	default:
		return "unknown"
	}
}

// Valid reports whether p is a recognized placement.
func (p Placement) Valid() bool {
	return p <= OutOfPlace
}

// Layout is the memory access pattern a kernel expects along its
// transform axis.
type Layout uint8

const (
	// LayoutPlain kernels transform contiguous lines.
	LayoutPlain Layout = iota
	// LayoutBlock kernels transform lines whose elements are strided,
	// loading blocks of adjacent columns at once.
	LayoutBlock
)

func (l Layout) String() string {
	switch l {
	case LayoutPlain:
		return "plain"
	case LayoutBlock:
		return "block"
	default:
		return "unknown"
	}
}
