package gpufft

import (
	"fmt"
	"math"
	"slices"

	"github.com/cwbudde/gpufft/internal/fftypes"
)

// Precision is the storage format of complex samples.
type Precision = fftypes.Precision

const (
	PrecisionSingle = fftypes.PrecisionSingle
	PrecisionDouble = fftypes.PrecisionDouble
	PrecisionHalf   = fftypes.PrecisionHalf
)

// Direction is the sign of the transform exponent.
type Direction = fftypes.Direction

const (
	Forward = fftypes.Forward
	Inverse = fftypes.Inverse
)

// Placement tells whether a plan reads and writes the same buffer.
type Placement = fftypes.Placement

const (
	InPlace    = fftypes.InPlace
	OutOfPlace = fftypes.OutOfPlace
)

// MaxDimensions is the highest transform rank Compile accepts.
const MaxDimensions = 3

// MaxElements bounds the samples of one transform, which also bounds the
// host and device twiddle tables a plan builds.
const MaxElements = 1 << 26

// maxBufferElements keeps byte sizes of user buffers and scratch in int64
// for every precision.
const maxBufferElements = math.MaxInt64 / 16

// TransformSpec describes a batch of complex-to-complex transforms.
//
// Lengths[0] is the fastest varying dimension. Transforms of one batch are
// BatchStride samples apart in user buffers; zero means densely packed.
// Inverse transforms are unnormalized; Scale multiplies every output
// sample, and zero means one.
type TransformSpec struct {
	Lengths     []int
	Batch       int
	BatchStride int
	Direction   Direction
	Precision   Precision
	Placement   Placement
	Scale       float64
}

// Validate reports whether the description can be compiled.
func (s TransformSpec) Validate() error {
	if len(s.Lengths) < 1 || len(s.Lengths) > MaxDimensions {
		return fmt.Errorf("%d dimensions, want 1 to %d", len(s.Lengths), MaxDimensions)
	}

	elems := 1
	for d, n := range s.Lengths {
		if n < 1 {
			return fmt.Errorf("length %d of dimension %d", n, d)
		}

		if n > MaxElements/elems {
			return fmt.Errorf("lengths %v exceed %d samples per transform", s.Lengths, MaxElements)
		}

		elems *= n
	}

	if s.Batch < 1 {
		return fmt.Errorf("batch %d", s.Batch)
	}

	if s.BatchStride < 0 || s.Distance() > (maxBufferElements-elems)/max(s.Batch-1, 1) {
		return fmt.Errorf("batch %d with distance %d overflows the buffer size", s.Batch, s.Distance())
	}

	if s.BatchStride != 0 && s.BatchStride < s.Elements() {
		return fmt.Errorf("batch stride %d below transform size %d", s.BatchStride, s.Elements())
	}

	if !s.Precision.Valid() {
		return fmt.Errorf("precision %d", s.Precision)
	}

	if !s.Direction.Valid() {
		return fmt.Errorf("direction %d", s.Direction)
	}

	if !s.Placement.Valid() {
		return fmt.Errorf("placement %d", s.Placement)
	}

	if math.IsNaN(s.Scale) || math.IsInf(s.Scale, 0) {
		return fmt.Errorf("scale %v", s.Scale)
	}

	return nil
}

// Elements returns the number of samples of one transform.
func (s TransformSpec) Elements() int {
	n := 1
	for _, l := range s.Lengths {
		n *= l
	}

	return n
}

// Distance returns the distance between batches in user buffers.
func (s TransformSpec) Distance() int {
	if s.BatchStride == 0 {
		return s.Elements()
	}

	return s.BatchStride
}

// BufferElements returns the samples a user buffer must hold.
func (s TransformSpec) BufferElements() int {
	return (s.Batch-1)*s.Distance() + s.Elements()
}

func (s TransformSpec) scale() float64 {
	if s.Scale == 0 {
		return 1
	}

	return s.Scale
}

func (s TransformSpec) clone() TransformSpec {
	s.Lengths = slices.Clone(s.Lengths)
	return s
}

func (s TransformSpec) String() string {
	return fmt.Sprintf("%v batch %d %s %s %s", s.Lengths, s.Batch, s.Direction, s.Precision, s.Placement)
}

// key identifies specs that compile to the same plan.
func (s TransformSpec) key() string {
	return fmt.Sprintf("%v/%d/%d/%d/%d/%d/%g", s.Lengths, s.Batch, s.Distance(), s.Direction, s.Precision, s.Placement, s.scale())
}
