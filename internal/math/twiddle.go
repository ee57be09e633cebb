package math

import "math"

// Twiddles returns the n roots of unity W_n^k = exp(sign * 2πi k/n) for
// k = 0..n-1. sign is -1 for forward and +1 for inverse transforms.
//
// The quarter-turn points are set exactly so that tables of different
// lengths agree bit for bit on shared angles.
func Twiddles(n, sign int) []complex128 {
	if n <= 0 {
		return nil
	}

	s := float64(sign)
	tw := make([]complex128, n)

	for k := range n {
		switch {
		case k == 0:
			tw[k] = 1
		case 4*k == n:
			tw[k] = complex(0, s)
		case 2*k == n:
			tw[k] = -1
		case 4*k == 3*n:
			tw[k] = complex(0, -s)
		default:
			sin, cos := math.Sincos(TwoPi * float64(k) / float64(n))
			tw[k] = complex(cos, s*sin)
		}
	}

	return tw
}
