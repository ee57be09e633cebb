package pool

import (
	"fmt"

	"github.com/cwbudde/gpufft/internal/fftypes"
)

// Largest direct kernel that fits the double precision shared-memory budget.
const maxDirectDouble = 1024

// row is one line of the registration table. Each row expands into one
// descriptor per precision, direction and placement it supports.
type row struct {
	scheme Scheme
	length int
	passes []int

	// block also registers a strided-block variant.
	block bool

	// staged kernels spill intermediate passes to a work area of one line
	// per transform and cannot run in place.
	staged bool
}

func radix(r int) row {
	return row{scheme: SchemeRadix, length: r, passes: []int{r}}
}

func direct(n int, passes ...int) row {
	return row{scheme: SchemeDirect, length: n, passes: passes}
}

func (r row) withBlock() row {
	r.block = true
	return r
}

func (r row) withStaging() row {
	r.staged = true
	return r
}

var registrationTable = []row{
	radix(2), radix(3), radix(4), radix(5), radix(7), radix(8), radix(16),

	direct(1),
	direct(2, 2), direct(3, 3), direct(4, 4), direct(5, 5), direct(6, 2, 3),
	direct(7, 7), direct(8, 8).withBlock(), direct(9, 3, 3), direct(10, 2, 5),
	direct(12, 4, 3), direct(14, 2, 7), direct(15, 3, 5),
	direct(16, 16).withBlock(), direct(20, 4, 5), direct(24, 8, 3),
	direct(25, 5, 5), direct(27, 3, 3, 3).withBlock(), direct(28, 4, 7),
	direct(30, 2, 3, 5), direct(32, 8, 4).withBlock(), direct(35, 5, 7),
	direct(36, 4, 3, 3), direct(40, 8, 5), direct(42, 2, 3, 7),
	direct(45, 3, 3, 5), direct(48, 16, 3), direct(49, 7, 7),
	direct(50, 2, 5, 5), direct(56, 8, 7), direct(60, 4, 3, 5),
	direct(64, 8, 8).withBlock(), direct(80, 16, 5),
	direct(81, 3, 3, 3, 3).withBlock(), direct(96, 8, 4, 3),
	direct(100, 4, 5, 5).withBlock(), direct(120, 8, 3, 5),
	direct(125, 5, 5, 5).withBlock(), direct(128, 16, 8).withBlock(),
	direct(160, 8, 4, 5), direct(168, 8, 3, 7), direct(200, 8, 5, 5),
	direct(240, 16, 3, 5), direct(243, 3, 3, 3, 3, 3),
	direct(256, 16, 16).withBlock(), direct(336, 16, 3, 7),
	direct(343, 7, 7, 7), direct(512, 8, 8, 8), direct(625, 5, 5, 5, 5),
	direct(729, 3, 3, 3, 3, 3, 3), direct(1024, 16, 8, 8),
	direct(2048, 16, 16, 8).withStaging(),
	direct(4096, 16, 16, 16).withStaging(),
}

var (
	allPrecisions = []fftypes.Precision{
		fftypes.PrecisionSingle, fftypes.PrecisionDouble, fftypes.PrecisionHalf,
	}
	allDirections = []fftypes.Direction{fftypes.Forward, fftypes.Inverse}
	allPlacements = []fftypes.Placement{fftypes.InPlace, fftypes.OutOfPlace}
)

func (r row) expand(emit func(Descriptor)) {
	layouts := []fftypes.Layout{fftypes.LayoutPlain}
	if r.block {
		layouts = append(layouts, fftypes.LayoutBlock)
	}

	for _, prec := range allPrecisions {
		if r.scheme == SchemeDirect && prec == fftypes.PrecisionDouble && r.length > maxDirectDouble {
			continue
		}

		for _, dir := range allDirections {
			for _, place := range allPlacements {
				// Radix passes never alias, but the builder can still chain them in an
				// in-place plan by routing through scratch, so they register for both.
				if r.staged && place == fftypes.InPlace {
					continue
				}

				for _, layout := range layouts {
					d := Descriptor{
						Key: Key{
							Scheme:    r.scheme,
							Length:    r.length,
							Precision: prec,
							Direction: dir,
							Placement: place,
							Layout:    layout,
						},
						Aliasable: r.scheme == SchemeDirect && !r.staged,
						Passes:    r.passes,
					}
					if r.staged {
						d.WorkElems = r.length
					}

					d.Name = kernelName(d.Key)
					emit(d)
				}
			}
		}
	}
}

func kernelName(k Key) string {
	dir := "fwd"
	if k.Direction == fftypes.Inverse {
		dir = "back"
	}

	place := "ip"
	if k.Placement == fftypes.OutOfPlace {
		place = "op"
	}

	var variant string

	switch {
	case k.Scheme == SchemeRadix:
		variant = "stockham"
	case k.Layout == fftypes.LayoutBlock:
		variant = "sbcc"
	default:
		variant = "sbrr"
	}

	var prec string

	switch k.Precision {
	case fftypes.PrecisionDouble:
		prec = "dp"
	case fftypes.PrecisionHalf:
		prec = "hp"
	default:
		prec = "sp"
	}

	return fmt.Sprintf("fft_%s_%s_len%d_%s_%s", dir, place, k.Length, variant, prec)
}
