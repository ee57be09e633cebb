package gpufft

import (
	"bytes"
	"errors"
	"fmt"
	"math/cmplx"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/gpufft/device"
)

func TestExecute_MatchesReference(t *testing.T) {
	t.Parallel()

	specs := []TransformSpec{
		spec1D(8, OutOfPlace),
		spec1D(8, InPlace),
		spec1D(1, OutOfPlace),
		spec1D(60, InPlace),
		spec1D(1800, OutOfPlace),
		spec1D(2048, OutOfPlace),
		spec1D(2048, InPlace),
		spec1D(4096, InPlace),
		spec1D(6144, OutOfPlace),
		spec1D(8192, InPlace),
		{Lengths: []int{8, 8}, Batch: 2, Placement: OutOfPlace},
		{Lengths: []int{4, 6}, Batch: 1, Placement: InPlace},
		{Lengths: []int{16, 27}, Batch: 3, BatchStride: 500, Placement: InPlace, Direction: Inverse},
		{Lengths: []int{5, 1, 7}, Batch: 2, Placement: OutOfPlace},
		{Lengths: []int{4, 6, 5}, Batch: 1, Placement: OutOfPlace, Precision: PrecisionDouble},
		{Lengths: []int{8, 16, 32}, Batch: 2, Placement: InPlace, Precision: PrecisionDouble},
		{Lengths: []int{2048}, Batch: 4, BatchStride: 2100, Placement: OutOfPlace, Precision: PrecisionDouble},
		{Lengths: []int{1000}, Batch: 2, Placement: OutOfPlace, Direction: Inverse, Scale: 1.0 / 1000},
		{Lengths: []int{12, 10}, Batch: 1, Placement: InPlace, Scale: -0.5},
	}

	for i, spec := range specs {
		t.Run(fmt.Sprintf("%d_%v", i, spec), func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, device.WithWorkers(2))
			p := h.compile(t, spec)

			x := randomSignal(uint64(i+1), spec.BufferElements())
			got := h.run(t, p, x)
			want := reference(spec, x)

			require.True(t, isFinite(got))

			if e := maxRelError(spec, got, want); e > tolerance(spec.Precision) {
				t.Errorf("max relative error %g exceeds %g", e, tolerance(spec.Precision))
			}
		})
	}
}

func TestExecute_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, prec := range []Precision{PrecisionSingle, PrecisionDouble, PrecisionHalf} {
		for _, n := range []int{8, 16, 64, 96} {
			t.Run(fmt.Sprintf("%s_%d", prec, n), func(t *testing.T) {
				t.Parallel()

				h := newHarness(t)

				fwd := h.compile(t, TransformSpec{Lengths: []int{n}, Batch: 1, Precision: prec, Placement: OutOfPlace})
				inv := h.compile(t, TransformSpec{
					Lengths: []int{n}, Batch: 1, Precision: prec, Placement: OutOfPlace,
					Direction: Inverse, Scale: 1 / float64(n),
				})

				x := randomSignal(uint64(n), n)
				got := h.run(t, inv, h.run(t, fwd, x))

				tol := 1e-5
				if prec == PrecisionHalf {
					tol = 1e-2
				}

				for i := range x {
					if d := cmplx.Abs(got[i] - x[i]); d > tol {
						t.Fatalf("sample %d: got %v want %v (diff %g)", i, got[i], x[i], d)
					}
				}
			})
		}
	}
}

func TestExecute_RoundTripRamp(t *testing.T) {
	t.Parallel()

	for _, placement := range []Placement{InPlace, OutOfPlace} {
		t.Run(placement.String(), func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)

			fwd := h.compile(t, spec1D(8, placement))
			inv := h.compile(t, TransformSpec{
				Lengths: []int{8}, Batch: 1, Precision: PrecisionSingle, Placement: placement,
				Direction: Inverse, Scale: 1.0 / 8,
			})

			x := make([]complex128, 8)
			for i := range x {
				x[i] = complex(float64(i), 0)
			}

			spectrum := h.run(t, fwd, x)
			assert.InDelta(t, 28, real(spectrum[0]), 1e-5)

			got := h.run(t, inv, spectrum)
			for i := range x {
				assert.InDelta(t, 0, cmplx.Abs(got[i]-x[i]), 1e-5, "sample %d", i)
			}
		})
	}
}

func TestExecute_Preconditions(t *testing.T) {
	t.Parallel()

	var launched atomic.Int64

	h := newHarness(t, device.WithFaultInjector(func(*device.Launch) error {
		launched.Add(1)
		return nil
	}))

	oop := h.compile(t, spec1D(8192, OutOfPlace))
	ip := h.compile(t, spec1D(16, InPlace))

	a := h.alloc(t, PrecisionSingle, 8192)
	b := h.alloc(t, PrecisionSingle, 8192)
	short := h.alloc(t, PrecisionSingle, 100)

	err := Execute(oop, a, b, h.ec)
	require.ErrorIs(t, err, ErrPlanNotReady, "scratch unbound")
	assert.Equal(t, StatusPlanNotReady, h.ec.Status())

	scratch := h.alloc(t, PrecisionSingle, 8192)
	require.NoError(t, h.ec.BindScratch(scratch, oop.WorkBufferSize()-8))

	err = Execute(oop, a, b, h.ec)
	require.ErrorIs(t, err, ErrInvalidArgument, "scratch undersized")
	assert.Equal(t, StatusInvalidArgument, h.ec.Status())

	require.NoError(t, h.ec.BindScratch(scratch, oop.WorkBufferSize()))

	cases := map[string]struct {
		plan    *Plan
		in, out device.Buffer
		want    error
	}{
		"in-place with two buffers": {ip, a, b, ErrInvalidArgument},
		"out-of-place aliased":      {oop, a, a, ErrInvalidArgument},
		"nil input":                 {oop, nil, b, ErrInvalidArgument},
		"short output":              {oop, a, short, ErrInvalidArgument},
		"nil plan":                  {nil, a, b, ErrPlanNotReady},
		"small in-place buffer":     {ip, short, short, nil},
		"out-of-place with scratch": {oop, a, b, nil},
		"in-place with one buffer":  {ip, a, a, nil},
	}

	for name, tc := range cases {
		err := Execute(tc.plan, tc.in, tc.out, h.ec)
		if tc.want == nil {
			require.NoError(t, err, name)
			continue
		}

		require.ErrorIs(t, err, tc.want, name)
	}

	require.NoError(t, h.ec.Synchronize())
	assert.Equal(t, int64(len(oop.stages)+2*len(ip.stages)), launched.Load())

	require.ErrorIs(t, h.ec.BindScratch(scratch, scratch.Size()+1), ErrInvalidArgument)
	require.ErrorIs(t, h.ec.BindScratch(scratch, -1), ErrInvalidArgument)
	require.ErrorIs(t, h.ec.BindScratch(nil, 8), ErrInvalidArgument)
	require.NoError(t, BindScratch(h.ec, nil, 0))
	require.ErrorIs(t, Execute(oop, a, b, h.ec), ErrPlanNotReady)

	require.ErrorIs(t, Execute(oop, a, b, nil), ErrPlanNotReady)
}

func TestExecutionContext_Stream(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	assert.Equal(t, h.stream, h.ec.Stream())

	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			if s := h.ec.Stream(); s != nil && s != h.stream {
				return fmt.Errorf("unexpected stream %v", s)
			}

			return nil
		})
	}

	g.Go(h.ec.Destroy)

	require.NoError(t, g.Wait())
	assert.Nil(t, h.ec.Stream())
}

func TestExecute_DestroyedPlanAndContext(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	p := h.compile(t, spec1D(8, InPlace))
	buf := h.alloc(t, PrecisionSingle, 8)

	require.NoError(t, p.Execute(buf, buf, h.ec))
	require.NoError(t, h.ec.Synchronize())

	require.NoError(t, Destroy(p))
	require.NoError(t, p.Destroy())
	require.ErrorIs(t, Execute(p, buf, buf, h.ec), ErrPlanNotReady)

	q := h.compile(t, spec1D(8, InPlace))
	require.NoError(t, h.ec.Destroy())
	require.ErrorIs(t, Execute(q, buf, buf, h.ec), ErrPlanNotReady)
	require.ErrorIs(t, h.ec.Synchronize(), ErrPlanNotReady)
	require.ErrorIs(t, h.ec.BindScratch(buf, 8), ErrPlanNotReady)
}

func TestExecute_DeviceFault(t *testing.T) {
	t.Parallel()

	boom := errors.New("injected")

	h := newHarness(t, device.WithFaultInjector(func(l *device.Launch) error {
		if l.Tag == 2 {
			return boom
		}

		return nil
	}))

	p := h.compile(t, spec1D(8192, OutOfPlace))
	require.Len(t, p.Stages(), 4)

	h.bindScratch(t, p)

	in := h.alloc(t, PrecisionSingle, 8192)
	out := h.alloc(t, PrecisionSingle, 8192)

	require.NoError(t, Execute(p, in, out, h.ec))

	err := h.ec.Synchronize()
	require.ErrorIs(t, err, ErrDeviceExecution)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StatusDeviceExecutionError, h.ec.Status())

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 2, e.Stage)

	require.NoError(t, h.ec.Synchronize())
	assert.Equal(t, StatusSuccess, h.ec.Status())
}

func TestExecute_LaunchRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	other := newHarness(t)

	p := h.compile(t, spec1D(8, OutOfPlace))
	in := other.alloc(t, PrecisionSingle, 8)
	out := other.alloc(t, PrecisionSingle, 8)

	err := Execute(p, in, out, other.ec)
	require.ErrorIs(t, err, ErrDeviceExecution)
	require.ErrorIs(t, err, device.ErrForeignBuffer)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 0, e.Stage)
}

func TestExecute_Concurrent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	p8 := h.compile(t, spec1D(8, OutOfPlace))
	p16 := h.compile(t, TransformSpec{Lengths: []int{16}, Batch: 1, Placement: InPlace, Precision: PrecisionDouble})

	inverse := func(p *Plan) *Plan {
		spec := p.Spec()
		spec.Direction = Inverse
		spec.Scale = 1 / float64(spec.Elements())

		return h.compile(t, spec)
	}

	i8, i16 := inverse(p8), inverse(p16)

	var g errgroup.Group

	for w := range 8 {
		p, inv := p8, i8
		if w%2 == 1 {
			p, inv = p16, i16
		}

		g.Go(func() error {
			stream, err := h.ctx.NewStream()
			if err != nil {
				return err
			}
			defer stream.Close()

			ec := NewExecutionContext(stream)
			spec := p.Spec()
			n := spec.BufferElements()

			in, err := h.ctx.Alloc(int64(n * spec.Precision.ElemSize()))
			if err != nil {
				return err
			}

			out := in
			if spec.Placement == OutOfPlace {
				if out, err = h.ctx.Alloc(in.Size()); err != nil {
					return err
				}
			}

			for iter := range 20 {
				x := randomSignal(uint64(w*100+iter), n)
				if err := device.WriteSamples(in, spec.Precision, 0, x); err != nil {
					return err
				}

				if err := Execute(p, in, out, ec); err != nil {
					return err
				}

				if err := ec.Synchronize(); err != nil {
					return err
				}

				got := make([]complex128, n)
				if err := device.ReadSamples(out, spec.Precision, 0, got); err != nil {
					return err
				}

				if e := maxRelError(spec, got, reference(spec, x)); e > tolerance(spec.Precision) {
					return fmt.Errorf("worker %d iteration %d: error %g", w, iter, e)
				}

				// out holds the spectrum; transform it back into in.
				if err := Execute(inv, out, in, ec); err != nil {
					return err
				}

				if err := ec.Synchronize(); err != nil {
					return err
				}

				if err := device.ReadSamples(in, spec.Precision, 0, got); err != nil {
					return err
				}

				if e := maxRelError(spec, got, x); e > tolerance(spec.Precision) {
					return fmt.Errorf("worker %d iteration %d: round trip error %g", w, iter, e)
				}
			}

			return nil
		})
	}

	require.NoError(t, g.Wait())
}

func TestPlanCache(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cache := NewPlanCache(WithDevice(h.ctx))

	spec := TransformSpec{Lengths: []int{64, 9}, Batch: 2}

	var (
		mu    sync.Mutex
		plans = make(map[*Plan]bool)
		g     errgroup.Group
	)

	for range 16 {
		g.Go(func() error {
			p, err := cache.Get(spec)
			if err != nil {
				return err
			}

			mu.Lock()
			plans[p] = true
			mu.Unlock()

			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Len(t, plans, 1)
	assert.Equal(t, 1, cache.Len())

	spec.BatchStride = spec.Elements()
	p, err := cache.Get(spec)
	require.NoError(t, err)
	assert.True(t, plans[p], "dense stride compiles to the same plan")

	_, err = cache.Get(TransformSpec{Lengths: []int{11}, Batch: 1})
	require.ErrorIs(t, err, ErrUnsupportedLength)

	_, err = cache.Get(TransformSpec{})
	require.ErrorIs(t, err, ErrInvalidArgument)

	require.NoError(t, cache.Close())
	assert.Zero(t, cache.Len())
	require.ErrorIs(t, Execute(p, nil, nil, h.ec), ErrPlanNotReady)

	_, err = cache.Get(spec)
	require.ErrorIs(t, err, ErrPlanNotReady)
	assert.Zero(t, cache.Len())
}

func TestPlanCache_GetRacingClose(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cache := NewPlanCache(WithDevice(h.ctx))

	var (
		g     errgroup.Group
		mu    sync.Mutex
		plans []*Plan
	)

	for i := range 32 {
		g.Go(func() error {
			p, err := cache.Get(TransformSpec{Lengths: []int{8 << (i % 8)}, Batch: 1})
			if err != nil {
				if errors.Is(err, ErrPlanNotReady) {
					return nil
				}

				return err
			}

			mu.Lock()
			plans = append(plans, p)
			mu.Unlock()

			return nil
		})
	}

	g.Go(cache.Close)

	require.NoError(t, g.Wait())
	require.NoError(t, cache.Close())
	assert.Zero(t, cache.Len())

	buf := h.alloc(t, PrecisionSingle, 1024)
	for _, p := range plans {
		require.ErrorIs(t, Execute(p, buf, buf, h.ec), ErrPlanNotReady, "plan %s outlived Close", p.Spec())
	}
}

func TestPlan_Describe(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	p := h.compile(t, TransformSpec{Lengths: []int{8192, 6}, Batch: 1, Placement: InPlace})

	var buf bytes.Buffer
	require.NoError(t, p.Describe(&buf))

	out := buf.String()
	assert.Contains(t, out, p.ID().String())
	assert.Contains(t, out, "fft_fwd_ip_len16_stockham_sp")
	assert.Contains(t, out, "transpose")
	assert.Contains(t, out, "scratch0")
	assert.Contains(t, p.String(), "stages")

	assert.Len(t, p.TwiddleValues(16), 16)
	assert.Nil(t, p.TwiddleValues(17))
	assert.InDelta(t, 1, real(p.TwiddleValues(16)[0]), 0)
}
