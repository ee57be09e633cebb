// Package factor decomposes transform lengths into kernel lengths the pool
// can serve.
package factor

import (
	"errors"
	"fmt"

	"github.com/cwbudde/gpufft/internal/pool"
)

var (
	// ErrInvalidLength is returned for lengths below 1.
	ErrInvalidLength = errors.New("factor: invalid length")

	// ErrUnsupportedLength is returned when the remaining length has no
	// divisor among the supported radixes.
	ErrUnsupportedLength = errors.New("factor: unsupported length")
)

// RadixOrder is the greedy extraction order: largest radix first, so that
// long transforms use as few passes as possible.
var RadixOrder = []int{16, 8, 7, 5, 4, 3, 2}

// Factor is one element of a decomposition.
type Factor struct {
	Length int
	Scheme pool.Scheme
}

// Factorize returns the kernel lengths for a transform of length n under
// query q. A direct kernel for n wins outright; otherwise radixes are
// extracted in RadixOrder until the remainder is 1.
func Factorize(p *pool.Pool, n int, q pool.Query) ([]Factor, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}

	if p.Has(q.Key(pool.SchemeDirect, n)) {
		return []Factor{{Length: n, Scheme: pool.SchemeDirect}}, nil
	}

	var out []Factor

	rem := n
	for rem > 1 {
		r := largestRadix(p, rem, q)
		if r == 0 {
			return nil, fmt.Errorf("%w: %d (remainder %d)", ErrUnsupportedLength, n, rem)
		}

		out = append(out, Factor{Length: r, Scheme: pool.SchemeRadix})
		rem /= r
	}

	return out, nil
}

func largestRadix(p *pool.Pool, n int, q pool.Query) int {
	for _, r := range RadixOrder {
		if n%r == 0 && p.Has(q.Key(pool.SchemeRadix, r)) {
			return r
		}
	}

	return 0
}

// Product multiplies the factor lengths.
func Product(fs []Factor) int {
	prod := 1
	for _, f := range fs {
		prod *= f.Length
	}

	return prod
}

// Lengths returns the factor lengths in order.
func Lengths(fs []Factor) []int {
	out := make([]int, len(fs))
	for i, f := range fs {
		out[i] = f.Length
	}

	return out
}
