package device

import (
	"errors"
	"math/cmplx"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	fftmath "github.com/cwbudde/gpufft/internal/math"
)

func newTestContext(t *testing.T, opts ...HostOption) Context {
	t.Helper()

	ctx, err := NewHostBackend(opts...).NewContext(0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Close() })

	return ctx
}

func alloc(t *testing.T, ctx Context, p Precision, n int) Buffer {
	t.Helper()

	buf, err := ctx.Alloc(int64(n * p.ElemSize()))
	require.NoError(t, err)

	return buf
}

func TestHostBackendInfo(t *testing.T) {
	t.Parallel()

	b := NewHostBackend(WithMemoryLimit(64 << 20))
	assert.Equal(t, "host", b.Info().Name)
	assert.True(t, b.Available())

	devs, err := b.Devices()
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, 64, devs[0].MemoryMB)
	assert.NotEmpty(t, devs[0].ComputeCap)

	_, err = b.NewContext(1)
	assert.Error(t, err)
}

func TestBufferTransfers(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	for _, p := range []Precision{PrecisionSingle, PrecisionDouble, PrecisionHalf} {
		buf := alloc(t, ctx, p, 8)
		in := []complex128{1, 2i, -3, 0.5 - 0.25i}
		require.NoError(t, WriteSamples(buf, p, 2, in))

		out := make([]complex128, 4)
		require.NoError(t, ReadSamples(buf, p, 2, out))
		assert.Equal(t, in, out, p.String())

		err := WriteSamples(buf, p, 6, in)
		assert.ErrorIs(t, err, ErrOutOfRange)
	}

	c64 := alloc(t, ctx, PrecisionSingle, 2)
	require.NoError(t, WriteComplex64(c64, 0, []complex64{1 + 1i, -2}))
	got64 := make([]complex64, 2)
	require.NoError(t, ReadComplex64(c64, 0, got64))
	assert.Equal(t, []complex64{1 + 1i, -2}, got64)

	c128 := alloc(t, ctx, PrecisionDouble, 1)
	require.NoError(t, WriteComplex128(c128, 0, []complex128{3 - 4i}))
	got128 := make([]complex128, 1)
	require.NoError(t, ReadComplex128(c128, 0, got128))
	assert.Equal(t, complex128(3-4i), got128[0])

	half := alloc(t, ctx, PrecisionHalf, 2)
	vals := []float16.Float16{float16.Fromfloat32(1.5), float16.Fromfloat32(-2), float16.Fromfloat32(0.25), 0}
	require.NoError(t, WriteHalf(half, 0, vals))

	samples := make([]complex128, 2)
	require.NoError(t, ReadSamples(half, PrecisionHalf, 0, samples))
	assert.Equal(t, []complex128{1.5 - 2i, 0.25}, samples)

	gotHalf := make([]float16.Float16, 4)
	require.NoError(t, ReadHalf(half, 0, gotHalf))
	assert.Equal(t, vals, gotHalf)
	assert.ErrorIs(t, WriteHalf(half, 0, vals[:3]), ErrOutOfRange)
}

func TestMemoryLimit(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t, WithMemoryLimit(1024))

	a, err := ctx.Alloc(768)
	require.NoError(t, err)
	assert.Equal(t, int64(768), InUse(ctx))

	_, err = ctx.Alloc(512)
	require.ErrorIs(t, err, ErrOutOfMemory)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Zero(t, InUse(ctx))

	b, err := ctx.Alloc(1024)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), b.Size())

	_, err = ctx.Alloc(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

// dftLaunch builds a full length-n transform over one line.
func dftLaunch(t *testing.T, ctx Context, p Precision, n int, radixes []int) (*Launch, Buffer, Buffer) {
	t.Helper()

	src := alloc(t, ctx, p, n)
	dst := alloc(t, ctx, p, n)
	tw := alloc(t, ctx, p.TwiddlePrecision(), n)
	require.NoError(t, WriteSamples(tw, p.TwiddlePrecision(), 0, fftmath.Twiddles(n, -1)))

	return &Launch{
		Kernel:     "test",
		Op:         OpPasses,
		Precision:  p,
		Src:        Region{Buffer: src},
		Dst:        Region{Buffer: dst},
		Twiddles:   Region{Buffer: tw},
		TwiddleLen: n,
		Radixes:    radixes,
		Span:       1,
		Length:     n,
		Inner:      1,
		Outer:      1,
		Batch:      1,
	}, src, dst
}

func TestStreamRunsPasses(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	stream, err := ctx.NewStream()
	require.NoError(t, err)

	l, src, dst := dftLaunch(t, ctx, PrecisionDouble, 8, []int{2, 4})

	in := []complex128{1, 0, 0, 0, 0, 0, 0, 0}
	require.NoError(t, WriteSamples(src, PrecisionDouble, 0, in))
	require.NoError(t, stream.Launch(l))
	require.NoError(t, stream.Synchronize())

	out := make([]complex128, 8)
	require.NoError(t, ReadSamples(dst, PrecisionDouble, 0, out))

	for i, v := range out {
		assert.InDelta(t, 0, cmplx.Abs(v-1), 1e-12, "bin %d", i)
	}

	require.NoError(t, stream.Close())
	assert.ErrorIs(t, stream.Launch(l), ErrClosed)
	assert.ErrorIs(t, stream.Synchronize(), ErrClosed)
}

func TestLaunchValidation(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	stream, err := ctx.NewStream()
	require.NoError(t, err)

	cases := map[string]func(l *Launch){
		"radix does not divide": func(l *Launch) { l.Radixes = []int{3} },
		"short twiddles":        func(l *Launch) { l.TwiddleLen = 4 },
		"destination too small": func(l *Launch) { l.Batch = 2; l.OutDist = 8 },
		"negative offset":       func(l *Launch) { l.Src.Offset = -8 },
		"staged without work":   func(l *Launch) { l.Staged = true },
		"bad precision":         func(l *Launch) { l.Precision = Precision(42) },
	}

	for name, mutate := range cases {
		l, _, _ := dftLaunch(t, ctx, PrecisionSingle, 8, []int{8})
		l.Tag = 7
		mutate(l)

		err := stream.Launch(l)
		require.ErrorIs(t, err, ErrInvalidLaunch, name)

		var le *LaunchError
		require.ErrorAs(t, err, &le, name)
		assert.Equal(t, 7, le.Tag, name)
	}

	require.NoError(t, stream.Synchronize())
}

func TestLaunchForeignBuffer(t *testing.T) {
	t.Parallel()

	a := newTestContext(t)
	b := newTestContext(t)

	stream, err := a.NewStream()
	require.NoError(t, err)

	l, _, _ := dftLaunch(t, b, PrecisionSingle, 4, []int{4})
	assert.ErrorIs(t, stream.Launch(l), ErrForeignBuffer)

	l, src, _ := dftLaunch(t, a, PrecisionSingle, 4, []int{4})
	require.NoError(t, src.Close())
	assert.ErrorIs(t, stream.Launch(l), ErrClosed)
}

func TestFaultIsStickyUntilSynchronize(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	var mu sync.Mutex
	var ran []int

	ctx := newTestContext(t, WithFaultInjector(func(l *Launch) error {
		mu.Lock()
		defer mu.Unlock()

		ran = append(ran, l.Tag)
		if l.Tag == 1 {
			return boom
		}

		return nil
	}))

	stream, err := ctx.NewStream()
	require.NoError(t, err)

	l, _, _ := dftLaunch(t, ctx, PrecisionSingle, 4, []int{2, 2})
	for tag := range 3 {
		l.Tag = tag
		require.NoError(t, stream.Launch(l))
	}

	err = stream.Synchronize()
	require.ErrorIs(t, err, ErrDeviceFault)
	require.ErrorIs(t, err, boom)

	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 1, le.Tag)

	mu.Lock()
	assert.Equal(t, []int{0, 1}, ran)
	mu.Unlock()

	require.NoError(t, stream.Synchronize())

	l.Tag = 5
	require.NoError(t, stream.Launch(l))
	require.NoError(t, stream.Synchronize())
}

func TestContextCloseStopsStreams(t *testing.T) {
	t.Parallel()

	ctx, err := NewHostBackend().NewContext(0)
	require.NoError(t, err)

	stream, err := ctx.NewStream()
	require.NoError(t, err)

	require.NoError(t, ctx.Close())
	assert.ErrorIs(t, stream.Synchronize(), ErrClosed)

	_, err = ctx.Alloc(16)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = ctx.NewStream()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistry(t *testing.T) {
	RegisterBackend(nil)
	t.Cleanup(func() { RegisterBackend(nil) })

	_, err := DefaultContext()
	require.ErrorIs(t, err, ErrNoBackend)

	_, ok := CurrentBackendInfo()
	assert.False(t, ok)

	RegisterHostBackend()

	info, ok := CurrentBackendInfo()
	require.True(t, ok)
	assert.Equal(t, "host", info.Name)

	c1, err := DefaultContext()
	require.NoError(t, err)
	c2, err := DefaultContext()
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	RegisterHostBackend()

	c3, err := DefaultContext()
	require.NoError(t, err)
	assert.NotSame(t, c1, c3)

	_, err = c1.Alloc(8)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUse(t *testing.T) {
	RegisterBackend(nil)
	t.Cleanup(func() { RegisterBackend(nil) })

	assert.Contains(t, BackendNames(), "host")

	err := Use("quantum")
	require.ErrorIs(t, err, ErrNoBackend)
	assert.Nil(t, Current())

	require.NoError(t, Use("host"))

	info, ok := CurrentBackendInfo()
	require.True(t, ok)
	assert.Equal(t, "host", info.Name)
}
