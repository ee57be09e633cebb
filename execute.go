package gpufft

import (
	"errors"
	"sync"

	"github.com/cwbudde/gpufft/device"
)

// ExecutionContext carries the per-stream state of executions: the stream
// stages are enqueued on, the bound scratch buffer and the last status.
// One execution at a time may use a context.
type ExecutionContext struct {
	mu sync.Mutex

	stream       device.Stream
	scratch      device.Buffer
	scratchBytes int64
	status       Status
	destroyed    bool
}

// NewExecutionContext returns a context enqueueing on stream.
func NewExecutionContext(stream device.Stream) *ExecutionContext {
	return &ExecutionContext{stream: stream}
}

// Stream returns the context's stream.
func (ec *ExecutionContext) Stream() device.Stream {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	return ec.stream
}

// Status returns the outcome of the context's last operation.
func (ec *ExecutionContext) Status() Status {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	return ec.status
}

// BindScratch makes the first bytes of buf the scratch memory of later
// executions. A nil buf unbinds the scratch.
func (ec *ExecutionContext) BindScratch(buf device.Buffer, bytes int64) error {
	const op = "bind scratch"

	if ec == nil {
		return errorf(KindPlanNotReady, op, "nil execution context")
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()

	err := ec.bind(buf, bytes)
	ec.status = StatusOf(err)

	return err
}

func (ec *ExecutionContext) bind(buf device.Buffer, bytes int64) error {
	const op = "bind scratch"

	if ec.destroyed {
		return errorf(KindPlanNotReady, op, "execution context destroyed")
	}

	if buf == nil {
		if bytes != 0 {
			return errorf(KindInvalidArgument, op, "%d bytes of nil buffer", bytes)
		}

		ec.scratch, ec.scratchBytes = nil, 0

		return nil
	}

	if bytes < 0 || bytes > buf.Size() {
		return errorf(KindInvalidArgument, op, "%d bytes of a %d byte buffer", bytes, buf.Size())
	}

	ec.scratch, ec.scratchBytes = buf, bytes
	defaultLogger().Debug("scratch bound", "bytes", bytes)

	return nil
}

// BindScratch binds buf as the scratch memory of ec.
func BindScratch(ec *ExecutionContext, buf device.Buffer, bytes int64) error {
	return ec.BindScratch(buf, bytes)
}

// Synchronize waits for the executions enqueued through ec and reports
// the first device failure among them.
func (ec *ExecutionContext) Synchronize() error {
	const op = "synchronize"

	if ec == nil {
		return errorf(KindPlanNotReady, op, "nil execution context")
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()

	var err error
	if ec.stream == nil {
		err = errorf(KindPlanNotReady, op, "no stream")
	} else if serr := ec.stream.Synchronize(); serr != nil {
		e := newError(KindDeviceExecution, op, serr)

		var le *device.LaunchError
		if errors.As(serr, &le) {
			e.Stage = le.Tag
		}

		err = e
	}

	ec.status = StatusOf(err)

	return err
}

// Destroy detaches the context from its stream and scratch. The stream is
// owned by the caller and stays open.
func (ec *ExecutionContext) Destroy() error {
	if ec == nil {
		return nil
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.destroyed = true
	ec.stream = nil
	ec.scratch, ec.scratchBytes = nil, 0

	return nil
}

// Execute enqueues every stage of p on ec's stream. in and out must be the
// same buffer for in-place plans and different buffers otherwise. Execute
// returns once the stages are enqueued; device failures during execution
// are reported by ec.Synchronize.
func Execute(p *Plan, in, out device.Buffer, ec *ExecutionContext) error {
	const op = "execute"

	if ec == nil {
		return errorf(KindPlanNotReady, op, "nil execution context")
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()

	err := ec.execute(p, in, out)
	ec.status = StatusOf(err)

	return err
}

// Execute runs p through ec. See the package-level Execute.
func (p *Plan) Execute(in, out device.Buffer, ec *ExecutionContext) error {
	return Execute(p, in, out, ec)
}

func (ec *ExecutionContext) execute(p *Plan, in, out device.Buffer) error {
	const op = "execute"

	if ec.destroyed || ec.stream == nil {
		return errorf(KindPlanNotReady, op, "execution context has no stream")
	}

	if p == nil {
		return errorf(KindPlanNotReady, op, "nil plan")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.destroyed {
		return errorf(KindPlanNotReady, op, "plan destroyed")
	}

	if in == nil || out == nil {
		return errorf(KindInvalidArgument, op, "nil buffer")
	}

	switch {
	case p.spec.Placement == InPlace && in != out:
		return errorf(KindInvalidArgument, op, "in-place plan with distinct input and output")
	case p.spec.Placement == OutOfPlace && in == out:
		return errorf(KindInvalidArgument, op, "out-of-place plan with aliased input and output")
	}

	need := int64(p.spec.BufferElements()) * int64(p.spec.Precision.ElemSize())
	if in.Size() < need || out.Size() < need {
		return errorf(KindInvalidArgument, op, "user buffers of %d and %d bytes, need %d", in.Size(), out.Size(), need)
	}

	if p.scratchBytes > 0 {
		if ec.scratch == nil {
			return errorf(KindPlanNotReady, op, "plan needs %d scratch bytes, none bound", p.scratchBytes)
		}

		if ec.scratchBytes < p.scratchBytes {
			return errorf(KindInvalidArgument, op, "scratch of %d bytes, need %d", ec.scratchBytes, p.scratchBytes)
		}
	}

	for _, l := range p.launches(in, out, ec.scratch) {
		if err := ec.stream.Launch(l); err != nil {
			p.log.Debug("stage failed", "plan", p.id, "stage", l.Tag, "kernel", l.Kernel, "error", err)

			e := newError(KindDeviceExecution, op, err)
			e.Stage = l.Tag

			return e
		}
	}

	return nil
}

// launches resolves the stages' roles against concrete buffers.
func (p *Plan) launches(in, out, scratch device.Buffer) []*device.Launch {
	prec := p.spec.Precision
	denseBytes := int64(p.spec.Batch*p.spec.Elements()) * int64(prec.ElemSize())
	twBytes := int64(prec.TwiddlePrecision().ElemSize())

	region := func(r BufferRole) device.Region {
		switch r {
		case UserInput:
			return device.Region{Buffer: in}
		case UserOutput:
			return device.Region{Buffer: out}
		case Scratch0:
			return device.Region{Buffer: scratch}
		default:
			return device.Region{Buffer: scratch, Offset: denseBytes}
		}
	}

	launches := make([]*device.Launch, len(p.stages))

	for i := range p.stages {
		s := &p.stages[i]
		l := &device.Launch{
			Tag:       i,
			Kernel:    s.Kernel,
			Precision: prec,
			Src:       region(s.In),
			Dst:       region(s.Out),
			Batch:     p.spec.Batch,
			InDist:    s.InDist,
			OutDist:   s.OutDist,
			Scale:     s.Scale,
		}

		switch {
		case s.Kind == StageTranspose:
			l.Op = device.OpTranspose
			l.Rows, l.Cols, l.Outer = s.Rows, s.Cols, s.Outer
		case s.Kind == StageCopy:
			l.Op = device.OpCopy
			l.Count = s.Count
		case len(s.Radixes) == 0:
			// length-1 transforms are the identity
			l.Op = device.OpCopy
			l.Count = s.Outer * s.Length * s.Inner
		default:
			l.Op = device.OpPasses
			l.Radixes = s.Radixes
			l.Span = s.Span
			l.Length, l.Inner, l.Outer = s.Length, s.Inner, s.Outer
			l.Twiddles = device.Region{Buffer: p.twiddleBuf, Offset: int64(s.Twiddle.Offset) * twBytes}
			l.TwiddleLen = s.Twiddle.Length

			if s.desc.WorkElems > 0 {
				l.Staged = true
				l.Work = device.Region{Buffer: scratch, Offset: p.workOffset}
			}
		}

		launches[i] = l
	}

	return launches
}
