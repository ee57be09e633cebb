package gpufft

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"os"
	"testing"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/cwbudde/gpufft/device"
)

func TestMain(m *testing.M) {
	if err := Setup(); err != nil {
		panic(err)
	}

	code := m.Run()

	Cleanup()
	os.Exit(code)
}

// harness is a private host device with one stream.
type harness struct {
	ctx    device.Context
	stream device.Stream
	ec     *ExecutionContext
}

func newHarness(t *testing.T, opts ...device.HostOption) *harness {
	t.Helper()

	ctx, err := device.NewHostBackend(opts...).NewContext(0)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	stream, err := ctx.NewStream()
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	t.Cleanup(func() { _ = ctx.Close() })

	return &harness{ctx: ctx, stream: stream, ec: NewExecutionContext(stream)}
}

func (h *harness) compile(t *testing.T, spec TransformSpec) *Plan {
	t.Helper()

	p, err := Compile(spec, WithDevice(h.ctx))
	if err != nil {
		t.Fatalf("Compile(%v): %v", spec, err)
	}

	t.Cleanup(func() { _ = p.Destroy() })

	return p
}

func (h *harness) alloc(t *testing.T, p Precision, n int) device.Buffer {
	t.Helper()

	buf, err := h.ctx.Alloc(int64(n * p.ElemSize()))
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	return buf
}

func (h *harness) bindScratch(t *testing.T, p *Plan) {
	t.Helper()

	scratch, err := p.AllocScratch()
	if err != nil {
		t.Fatalf("AllocScratch: %v", err)
	}

	if err := h.ec.BindScratch(scratch, p.WorkBufferSize()); err != nil {
		t.Fatalf("BindScratch: %v", err)
	}
}

// run executes p on a copy of input and returns the user output buffer's
// contents.
func (h *harness) run(t *testing.T, p *Plan, input []complex128) []complex128 {
	t.Helper()

	spec := p.Spec()
	n := spec.BufferElements()

	in := h.alloc(t, spec.Precision, n)
	out := in

	if spec.Placement == OutOfPlace {
		out = h.alloc(t, spec.Precision, n)
	}

	if err := device.WriteSamples(in, spec.Precision, 0, input); err != nil {
		t.Fatalf("WriteSamples: %v", err)
	}

	h.bindScratch(t, p)

	if err := Execute(p, in, out, h.ec); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if err := h.ec.Synchronize(); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}

	got := make([]complex128, n)
	if err := device.ReadSamples(out, spec.Precision, 0, got); err != nil {
		t.Fatalf("ReadSamples: %v", err)
	}

	return got
}

func randomSignal(seed uint64, n int) []complex128 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	x := make([]complex128, n)
	for i := range x {
		x[i] = complex(2*rng.Float64()-1, 2*rng.Float64()-1)
	}

	return x
}

// reference transforms every batch of x along each dimension with gonum.
func reference(spec TransformSpec, x []complex128) []complex128 {
	out := append([]complex128(nil), x...)
	dense := spec.Elements()
	dist := spec.Distance()

	inner := 1
	for _, n := range spec.Lengths {
		fft := fourier.NewCmplxFFT(n)
		line := make([]complex128, n)
		coeff := make([]complex128, n)
		outer := dense / (inner * n)

		for b := range spec.Batch {
			for o := range outer {
				for c := range inner {
					base := b*dist + o*n*inner + c
					for j := range n {
						line[j] = out[base+j*inner]
					}

					if spec.Direction == Forward {
						fft.Coefficients(coeff, line)
					} else {
						fft.Sequence(coeff, line)
					}

					for j := range n {
						out[base+j*inner] = coeff[j]
					}
				}
			}
		}

		inner *= n
	}

	scale := complex(spec.scale(), 0)
	for b := range spec.Batch {
		for i := range dense {
			out[b*dist+i] *= scale
		}
	}

	return out
}

// maxRelError compares the transformed samples of every batch.
func maxRelError(spec TransformSpec, got, want []complex128) float64 {
	var peak, worst float64

	for b := range spec.Batch {
		for i := range spec.Elements() {
			k := b*spec.Distance() + i
			peak = max(peak, cmplx.Abs(want[k]))
			worst = max(worst, cmplx.Abs(got[k]-want[k]))
		}
	}

	if peak == 0 {
		return worst
	}

	return worst / peak
}

func tolerance(p Precision) float64 {
	switch p {
	case PrecisionDouble:
		return 1e-12
	case PrecisionHalf:
		return 1e-2
	default:
		return 1e-5
	}
}

func isFinite(x []complex128) bool {
	for _, v := range x {
		if math.IsNaN(real(v)) || math.IsNaN(imag(v)) || math.IsInf(real(v), 0) || math.IsInf(imag(v), 0) {
			return false
		}
	}

	return true
}
