package gpufft

import (
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/cwbudde/gpufft/device"
	"github.com/cwbudde/gpufft/internal/factor"
	"github.com/cwbudde/gpufft/internal/fftypes"
	"github.com/cwbudde/gpufft/internal/pool"
)

// CompileOption configures Compile.
type CompileOption func(*compileConfig)

type compileConfig struct {
	ctx device.Context
	log *slog.Logger
}

// WithDevice compiles the plan for ctx instead of the default context of
// the registered backend.
func WithDevice(ctx device.Context) CompileOption {
	return func(c *compileConfig) { c.ctx = ctx }
}

// WithLogger sets the logger of the plan.
func WithLogger(l *slog.Logger) CompileOption {
	return func(c *compileConfig) { c.log = l }
}

// Compile builds a plan for spec. Setup must have been called.
func Compile(spec TransformSpec, opts ...CompileOption) (*Plan, error) {
	const op = "compile"

	if err := spec.Validate(); err != nil {
		return nil, newError(KindInvalidArgument, op, err)
	}

	pl := currentPool()
	if pl == nil {
		return nil, errorf(KindPlanNotReady, op, "library not initialized")
	}

	cfg := compileConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.log == nil {
		cfg.log = defaultLogger()
	}

	if cfg.ctx == nil {
		ctx, err := device.DefaultContext()
		if err != nil {
			return nil, newError(KindPlanNotReady, op, err)
		}

		cfg.ctx = ctx
	}

	spec = spec.clone()

	stages, err := buildStages(pl, spec)
	if err != nil {
		return nil, err
	}

	stages, regions, err := assignBuffers(stages, spec.Placement)
	if err != nil {
		return nil, newError(KindUnsupportedLength, op, err)
	}

	p := &Plan{
		id:      uuid.New(),
		spec:    spec,
		stages:  stages,
		regions: regions,
		ctx:     cfg.ctx,
		log:     cfg.log,
	}

	p.layout()
	p.twiddles = buildTwiddles(p.stages, spec.Direction)

	if p.twiddleBuf, err = uploadTwiddles(cfg.ctx, spec.Precision.TwiddlePrecision(), p.twiddles); err != nil {
		return nil, deviceError(op, err)
	}

	p.log.Debug("plan compiled",
		"plan", p.id,
		"lengths", spec.Lengths,
		"batch", spec.Batch,
		"precision", spec.Precision,
		"direction", spec.Direction,
		"placement", spec.Placement,
		"stages", len(p.stages),
		"scratch", p.scratchBytes,
		"twiddles", len(p.twiddles))

	return p, nil
}

// buildStages chains the kernel stages of every dimension, fastest first.
// Strided dimensions use a block kernel when the pool has one and are
// otherwise transposed to the contiguous position and back.
func buildStages(pl *pool.Pool, spec TransformSpec) ([]Stage, error) {
	q := pool.Query{
		Precision: spec.Precision,
		Direction: spec.Direction,
		Placement: spec.Placement,
		Layout:    fftypes.LayoutPlain,
	}

	dense := spec.Elements()

	var stages []Stage

	inner := 1
	for d, n := range spec.Lengths {
		if n == 1 {
			continue
		}

		outer := dense / (inner * n)

		if inner == 1 {
			plain, err := plainStages(pl, q, d, n, dense/n)
			if err != nil {
				return nil, err
			}

			stages = append(stages, plain...)
		} else if desc := blockKernel(pl, q, n); desc != nil {
			stages = append(stages, Stage{
				Kind:    StageKernel,
				Kernel:  desc.Name,
				Dim:     d,
				Length:  n,
				Radixes: slices.Clone(desc.Passes),
				Span:    1,
				Inner:   inner,
				Outer:   outer,
				desc:    *desc,
			})
		} else {
			plain, err := plainStages(pl, q, d, n, dense/n)
			if err != nil {
				return nil, err
			}

			stages = append(stages, transposeStage(d, n, inner, outer))
			stages = append(stages, plain...)
			stages = append(stages, transposeStage(d, inner, n, outer))
		}

		inner *= n
	}

	if len(stages) == 0 {
		return plainStages(pl, q, 0, 1, dense)
	}

	return stages, nil
}

func blockKernel(pl *pool.Pool, q pool.Query, n int) *pool.Descriptor {
	q.Layout = fftypes.LayoutBlock
	if d, ok := pl.Lookup(q.Key(pool.SchemeDirect, n)); ok {
		return &d
	}

	return nil
}

// plainStages factorizes a contiguous dimension of length n with lines
// lines per batch.
func plainStages(pl *pool.Pool, q pool.Query, dim, n, lines int) ([]Stage, error) {
	unsupported := func(err error) error {
		return &Error{Kind: KindUnsupportedLength, Op: "compile", Dim: dim, Length: n, Stage: -1, Err: err}
	}

	factors, err := factor.Factorize(pl, n, q)
	if err != nil {
		return nil, unsupported(err)
	}

	stages := make([]Stage, 0, len(factors))

	span := 1
	for _, f := range factors {
		desc, ok := pl.Lookup(q.Key(f.Scheme, f.Length))
		if !ok {
			return nil, unsupported(factor.ErrUnsupportedLength)
		}

		s := Stage{
			Kind:    StageKernel,
			Kernel:  desc.Name,
			Dim:     dim,
			Length:  n,
			Radixes: slices.Clone(desc.Passes),
			Span:    1,
			Inner:   1,
			Outer:   lines,
			desc:    desc,
		}

		if f.Scheme == pool.SchemeRadix {
			s.Span = span
			span *= f.Length
		}

		stages = append(stages, s)
	}

	return stages, nil
}

func transposeStage(dim, rows, cols, outer int) Stage {
	return Stage{
		Kind:   StageTranspose,
		Kernel: StageTranspose.String(),
		Dim:    dim,
		Rows:   rows,
		Cols:   cols,
		Outer:  outer,
		Inner:  1,
	}
}

// layout fills in batch distances, scale, work area and scratch size once
// roles are known.
func (p *Plan) layout() {
	dense := p.spec.Elements()
	es := int64(p.spec.Precision.ElemSize())
	denseBytes := int64(p.spec.Batch*dense) * es

	dist := func(r BufferRole) int {
		if r.isScratch() {
			return dense
		}

		return p.spec.Distance()
	}

	var work int64

	for i := range p.stages {
		s := &p.stages[i]
		s.InDist = dist(s.In)
		s.OutDist = dist(s.Out)
		s.Scale = 1

		if s.Kind == StageCopy {
			s.Count = dense
		}

		if s.Kind == StageKernel {
			s.WorkBytes = s.desc.WorkBytes(s.lines(p.spec.Batch))
			work = max(work, s.WorkBytes)
		}
	}

	p.stages[len(p.stages)-1].Scale = p.spec.scale()

	p.workOffset = int64(p.regions) * denseBytes
	p.scratchBytes = p.workOffset + work
}
