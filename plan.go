package gpufft

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/cwbudde/gpufft/device"
	"github.com/cwbudde/gpufft/internal/pool"
)

// BufferRole names the memory a stage reads or writes.
type BufferRole uint8

const (
	UserInput BufferRole = iota
	UserOutput
	Scratch0
	Scratch1
)

func (r BufferRole) String() string {
	switch r {
	case UserInput:
		return "input"
	case UserOutput:
		return "output"
	case Scratch0:
		return "scratch0"
	case Scratch1:
		return "scratch1"
	default:
		return fmt.Sprintf("BufferRole(%d)", int(r))
	}
}

func (r BufferRole) isScratch() bool {
	return r == Scratch0 || r == Scratch1
}

// StageKind is the kind of work a stage launches.
type StageKind uint8

const (
	// StageKernel runs a pool kernel along one dimension.
	StageKernel StageKind = iota
	// StageTranspose swaps a strided dimension with the contiguous one.
	StageTranspose
	// StageCopy moves the result into the user output.
	StageCopy
)

func (k StageKind) String() string {
	switch k {
	case StageKernel:
		return "kernel"
	case StageTranspose:
		return "transpose"
	case StageCopy:
		return "copy"
	default:
		return fmt.Sprintf("StageKind(%d)", int(k))
	}
}

// TwiddleRef locates a stage's twiddle table in the plan's twiddle buffer.
// Offset is in samples of the twiddle precision.
type TwiddleRef struct {
	Length int
	Offset int
}

// Stage is one kernel launch of a plan. Counts and distances are in
// samples.
type Stage struct {
	Kind StageKind
	// Kernel is the pool kernel name, or the kind for transposes and copies.
	Kernel string
	Dim    int
	In     BufferRole
	Out    BufferRole

	// Kernel stages transform lines of Length samples whose elements are
	// Inner apart, Outer groups of Inner lines per batch. Radixes are the
	// passes the launch performs, starting at Span.
	Length  int
	Radixes []int
	Span    int
	Inner   int
	Outer   int

	// Transpose stages swap Rows x Cols matrices, Outer per batch.
	Rows int
	Cols int

	// Copy stages move Count samples per batch.
	Count int

	InDist  int
	OutDist int

	Twiddle   TwiddleRef
	Scale     float64
	WorkBytes int64

	desc pool.Descriptor
}

func (s *Stage) aliasable() bool {
	return s.Kind == StageKernel && s.desc.Aliasable
}

func (s *Stage) lines(batch int) int {
	return batch * s.Outer * s.Inner
}

type twiddleTable struct {
	TwiddleRef
	values []complex128
}

// Plan is a compiled transform. It is immutable and safe for concurrent
// execution until Destroy.
type Plan struct {
	id   uuid.UUID
	spec TransformSpec

	stages       []Stage
	regions      int
	scratchBytes int64
	workOffset   int64

	twiddles   []twiddleTable
	twiddleBuf device.Buffer
	ctx        device.Context
	log        *slog.Logger

	mu        sync.RWMutex
	destroyed bool
}

// ID returns the plan's unique identifier.
func (p *Plan) ID() uuid.UUID {
	return p.id
}

// Spec returns a copy of the compiled description.
func (p *Plan) Spec() TransformSpec {
	return p.spec.clone()
}

// Stages returns a copy of the plan's stages in execution order.
func (p *Plan) Stages() []Stage {
	out := slices.Clone(p.stages)
	for i := range out {
		out[i].Radixes = slices.Clone(out[i].Radixes)
	}

	return out
}

// ScratchRegions returns the number of dense scratch regions the plan uses.
func (p *Plan) ScratchRegions() int {
	return p.regions
}

// Twiddles returns the plan's twiddle table references.
func (p *Plan) Twiddles() []TwiddleRef {
	out := make([]TwiddleRef, len(p.twiddles))
	for i, t := range p.twiddles {
		out[i] = t.TwiddleRef
	}

	return out
}

// TwiddleValues returns a copy of the host twiddle table of sub-transform
// length n, or nil.
func (p *Plan) TwiddleValues(n int) []complex128 {
	for _, t := range p.twiddles {
		if t.Length == n {
			return slices.Clone(t.values)
		}
	}

	return nil
}

// WorkBufferSize returns the scratch bytes an execution needs.
func (p *Plan) WorkBufferSize() int64 {
	if p == nil {
		return 0
	}

	return p.scratchBytes
}

// WorkBufferSize returns the scratch bytes an execution of p needs.
func WorkBufferSize(p *Plan) int64 {
	return p.WorkBufferSize()
}

// AllocScratch allocates a scratch buffer for p on the plan's device.
// It returns nil when the plan needs no scratch.
func (p *Plan) AllocScratch() (device.Buffer, error) {
	if p == nil {
		return nil, errorf(KindPlanNotReady, "alloc scratch", "nil plan")
	}

	if p.scratchBytes == 0 {
		return nil, nil
	}

	buf, err := p.ctx.Alloc(p.scratchBytes)
	if err != nil {
		return nil, deviceError("alloc scratch", err)
	}

	return buf, nil
}

// Context returns the device context the plan was compiled for.
func (p *Plan) Context() device.Context {
	return p.ctx
}

// Destroy releases the plan's device memory. Executions already enqueued
// must be synchronized first. Destroying twice is a no-op.
func (p *Plan) Destroy() error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return nil
	}

	p.destroyed = true

	if p.twiddleBuf != nil {
		if err := p.twiddleBuf.Close(); err != nil {
			return newError(KindDeviceExecution, "destroy", err)
		}
	}

	p.log.Debug("plan destroyed", "plan", p.id)

	return nil
}

// Destroy releases p.
func Destroy(p *Plan) error {
	return p.Destroy()
}

func (p *Plan) String() string {
	return fmt.Sprintf("plan %s: %v, %d stages, %d scratch bytes",
		p.id.String()[:8], p.spec, len(p.stages), p.scratchBytes)
}

func deviceError(op string, err error) *Error {
	kind := KindDeviceExecution
	if StatusOf(err) == StatusOutOfMemory {
		kind = KindOutOfMemory
	}

	return newError(kind, op, err)
}
