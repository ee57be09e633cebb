package device

import (
	"fmt"
	"slices"
	"sync"

	"github.com/cwbudde/gpufft/internal/kernels"
)

const hostQueueDepth = 64

type hostTask struct {
	launch Launch
	fence  chan struct{}
}

// hostStream runs launches in order on its own goroutine. The first
// failure is kept until Synchronize reports it; launches enqueued after a
// failure are dropped.
type hostStream struct {
	ctx   *hostContext
	queue chan hostTask
	done  chan struct{}

	closeMu sync.RWMutex
	closed  bool

	errMu sync.Mutex
	err   error
}

func newHostStream(ctx *hostContext) *hostStream {
	s := &hostStream{
		ctx:   ctx,
		queue: make(chan hostTask, hostQueueDepth),
		done:  make(chan struct{}),
	}

	go s.run()

	return s
}

func (s *hostStream) run() {
	defer close(s.done)

	for task := range s.queue {
		if task.fence != nil {
			close(task.fence)
			continue
		}

		if s.failed() {
			continue
		}

		if err := s.execute(&task.launch); err != nil {
			s.fail(&LaunchError{Tag: task.launch.Tag, Kernel: task.launch.Kernel, Err: err})
		}
	}
}

func (s *hostStream) failed() bool {
	s.errMu.Lock()
	defer s.errMu.Unlock()

	return s.err != nil
}

func (s *hostStream) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

func (s *hostStream) Launch(l *Launch) error {
	if l == nil {
		return fmt.Errorf("%w: nil launch", ErrInvalidLaunch)
	}

	if err := s.owns(l); err != nil {
		return &LaunchError{Tag: l.Tag, Kernel: l.Kernel, Err: err}
	}

	if err := l.Validate(); err != nil {
		return &LaunchError{Tag: l.Tag, Kernel: l.Kernel, Err: err}
	}

	task := hostTask{launch: *l}
	task.launch.Radixes = slices.Clone(l.Radixes)

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	s.queue <- task

	return nil
}

func (s *hostStream) owns(l *Launch) error {
	regions := []Region{l.Src, l.Dst}
	if l.Op == OpPasses {
		regions = append(regions, l.Twiddles)
		if l.Staged {
			regions = append(regions, l.Work)
		}
	}

	for _, r := range regions {
		if r.Buffer == nil {
			continue
		}

		b, ok := r.Buffer.(*hostBuffer)
		if !ok || b.ctx != s.ctx {
			return ErrForeignBuffer
		}

		if _, err := b.bytes(); err != nil {
			return err
		}
	}

	return nil
}

func (s *hostStream) Synchronize() error {
	fence := make(chan struct{})

	s.closeMu.RLock()
	if s.closed {
		s.closeMu.RUnlock()
		return ErrClosed
	}
	s.queue <- hostTask{fence: fence}
	s.closeMu.RUnlock()

	<-fence

	s.errMu.Lock()
	defer s.errMu.Unlock()

	err := s.err
	s.err = nil

	return err
}

// Close drains the queue and stops the stream goroutine.
func (s *hostStream) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}

	s.closed = true
	close(s.queue)
	s.closeMu.Unlock()

	<-s.done
	s.ctx.forget(s)

	return nil
}

func (s *hostStream) execute(l *Launch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDeviceFault, r)
		}
	}()

	if f := s.ctx.backend.fault; f != nil {
		if ferr := f(l); ferr != nil {
			return fmt.Errorf("%w: %w", ErrDeviceFault, ferr)
		}
	}

	args := kernels.Args{
		Precision:  l.Precision,
		TwiddleLen: l.TwiddleLen,
		Scale:      l.Scale,
		Workers:    s.ctx.backend.workers,
	}

	if args.Src, err = memory(l.Src); err != nil {
		return err
	}

	if args.Dst, err = memory(l.Dst); err != nil {
		return err
	}

	switch l.Op {
	case OpPasses:
		if args.Twiddles, err = memory(l.Twiddles); err != nil {
			return err
		}

		if l.Staged {
			if args.Work, err = memory(l.Work); err != nil {
				return err
			}
		}

		return kernels.Passes(args, kernels.Lines{
			Length:  l.Length,
			Inner:   l.Inner,
			Outer:   l.Outer,
			Batch:   l.Batch,
			InDist:  l.InDist,
			OutDist: l.OutDist,
		}, l.Radixes, l.Span, l.Staged)
	case OpTranspose:
		return kernels.Transpose(args, kernels.Matrices{
			Rows:    l.Rows,
			Cols:    l.Cols,
			Outer:   l.Outer,
			Batch:   l.Batch,
			InDist:  l.InDist,
			OutDist: l.OutDist,
		})
	case OpCopy:
		return kernels.Copy(args, l.Count, l.Batch, l.InDist, l.OutDist)
	default:
		return fmt.Errorf("%w: unknown op %v", ErrInvalidLaunch, l.Op)
	}
}

func memory(r Region) ([]byte, error) {
	data, err := r.Buffer.(*hostBuffer).bytes()
	if err != nil {
		return nil, err
	}

	return data[r.Offset:], nil
}
