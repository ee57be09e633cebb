// Package pool is the kernel function pool: a read-only table of the device
// kernels available to the plan builder, keyed by what they compute.
package pool

import (
	"cmp"
	"slices"

	"github.com/emirpasic/gods/v2/sets/treeset"

	"github.com/cwbudde/gpufft/internal/fftypes"
)

// Scheme distinguishes single-pass radix kernels from kernels that compute
// a complete transform of their length.
type Scheme uint8

const (
	// SchemeRadix kernels perform one Stockham pass of their radix over a
	// longer transform. They read and write different buffers.
	SchemeRadix Scheme = iota
	// SchemeDirect kernels compute a whole transform of their length in a
	// single launch.
	SchemeDirect
)

func (s Scheme) String() string {
	switch s {
	case SchemeRadix:
		return "radix"
	case SchemeDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// Key identifies one pool entry.
type Key struct {
	Scheme    Scheme
	Length    int
	Precision fftypes.Precision
	Direction fftypes.Direction
	Placement fftypes.Placement
	Layout    fftypes.Layout
}

// Descriptor describes a registered kernel. Descriptors are values; the
// Passes slice is shared and must not be modified.
type Descriptor struct {
	Name string
	Key

	// Aliasable reports whether a launch may read and write the same buffer.
	Aliasable bool

	// WorkElems is the number of elements of work area the kernel needs per
	// transformed line.
	WorkElems int

	// Passes is the radix decomposition the kernel performs internally.
	// Radix kernels carry their single radix; the length-1 kernel has none.
	Passes []int
}

// WorkBytes returns the work area a launch over lines transforms needs.
func (d Descriptor) WorkBytes(lines int) int64 {
	return int64(d.WorkElems) * int64(lines) * int64(d.Precision.ElemSize())
}

// Query is the part of a Key that stays fixed while the factorizer tries
// different lengths.
type Query struct {
	Precision fftypes.Precision
	Direction fftypes.Direction
	Placement fftypes.Placement
	Layout    fftypes.Layout
}

// Key returns the pool key for a kernel of the given scheme and length.
func (q Query) Key(s Scheme, n int) Key {
	return Key{
		Scheme:    s,
		Length:    n,
		Precision: q.Precision,
		Direction: q.Direction,
		Placement: q.Placement,
		Layout:    q.Layout,
	}
}

type lengthSetKey struct {
	scheme Scheme
	layout fftypes.Layout
}

// Pool is an immutable kernel table. It is safe for concurrent use.
type Pool struct {
	entries map[Key]Descriptor
	lengths map[lengthSetKey][]int
}

// New builds a pool from the static registration table.
func New() *Pool {
	p := &Pool{entries: make(map[Key]Descriptor)}

	for _, r := range registrationTable {
		r.expand(func(d Descriptor) {
			p.entries[d.Key] = d
		})
	}

	sets := make(map[lengthSetKey]*treeset.Set[int])
	for k := range p.entries {
		sk := lengthSetKey{scheme: k.Scheme, layout: k.Layout}
		if sets[sk] == nil {
			sets[sk] = treeset.New[int]()
		}

		sets[sk].Add(k.Length)
	}

	p.lengths = make(map[lengthSetKey][]int, len(sets))
	for sk, set := range sets {
		p.lengths[sk] = set.Values()
	}

	return p
}

// Lookup returns the descriptor registered under k. The boolean is false
// when no kernel matches.
func (p *Pool) Lookup(k Key) (Descriptor, bool) {
	if p == nil {
		return Descriptor{}, false
	}

	d, ok := p.entries[k]

	return d, ok
}

// Has reports whether a kernel is registered under k.
func (p *Pool) Has(k Key) bool {
	_, ok := p.Lookup(k)
	return ok
}

// Len returns the number of registered entries.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}

	return len(p.entries)
}

// Lengths returns the sorted distinct lengths registered for a scheme and
// layout, across all precisions, directions and placements.
func (p *Pool) Lengths(s Scheme, l fftypes.Layout) []int {
	if p == nil {
		return nil
	}

	return slices.Clone(p.lengths[lengthSetKey{scheme: s, layout: l}])
}

// All returns every descriptor in a deterministic order.
func (p *Pool) All() []Descriptor {
	if p == nil {
		return nil
	}

	out := make([]Descriptor, 0, len(p.entries))
	for _, d := range p.entries {
		out = append(out, d)
	}

	slices.SortFunc(out, func(a, b Descriptor) int {
		return cmp.Or(
			cmp.Compare(a.Scheme, b.Scheme),
			cmp.Compare(a.Layout, b.Layout),
			cmp.Compare(a.Length, b.Length),
			cmp.Compare(a.Precision, b.Precision),
			cmp.Compare(a.Direction, b.Direction),
			cmp.Compare(a.Placement, b.Placement),
		)
	})

	return out
}
