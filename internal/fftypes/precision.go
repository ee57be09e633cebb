package fftypes

// Precision selects the storage format of complex samples.
type Precision uint8

const (
	PrecisionSingle Precision = iota // complex64: two float32
	PrecisionDouble                  // complex128: two float64
	PrecisionHalf                    // two IEEE 754 binary16 values
)

// String returns a human-readable name for the precision.
func (p Precision) String() string {
	switch p {
	case PrecisionSingle:
		return "single"
	case PrecisionDouble:
		return "double"
	case PrecisionHalf:
		return "half"
	default:
		return "unknown"
	}
}

// Valid reports whether p is a recognized precision.
func (p Precision) Valid() bool {
	return p <= PrecisionHalf
}

// ElemSize returns the size in bytes of one complex sample.
func (p Precision) ElemSize() int {
	switch p {
	case PrecisionSingle:
		return 8
	case PrecisionDouble:
		return 16
	case PrecisionHalf:
		return 4
	default:
		return 0
	}
}

// TwiddlePrecision returns the precision twiddle tables are stored in.
// Half precision plans keep single precision twiddles.
func (p Precision) TwiddlePrecision() Precision {
	if p == PrecisionDouble {
		return PrecisionDouble
	}

	return PrecisionSingle
}

// ParsePrecision parses the names produced by String.
func ParsePrecision(s string) (Precision, bool) {
	switch s {
	case "single", "float", "f32":
		return PrecisionSingle, true
	case "double", "f64":
		return PrecisionDouble, true
	case "half", "f16":
		return PrecisionHalf, true
	default:
		return 0, false
	}
}
