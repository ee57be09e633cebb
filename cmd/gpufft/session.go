package main

import (
	"errors"

	"github.com/cwbudde/gpufft"
	"github.com/cwbudde/gpufft/device"
)

// session is the library state a command works with: the default device
// context and one stream.
type session struct {
	ctx    device.Context
	stream device.Stream
	ec     *gpufft.ExecutionContext
}

func openSession() (*session, error) {
	if err := gpufft.Setup(); err != nil {
		return nil, err
	}

	ctx, err := device.DefaultContext()
	if err != nil {
		return nil, err
	}

	stream, err := ctx.NewStream()
	if err != nil {
		return nil, err
	}

	return &session{ctx: ctx, stream: stream, ec: gpufft.NewExecutionContext(stream)}, nil
}

func (s *session) Close() {
	_ = s.ec.Destroy()
	_ = s.stream.Close()
	gpufft.Cleanup()
}

// buffers are the device memory one plan executes against.
type buffers struct {
	in, out, scratch device.Buffer
}

func (b *buffers) Close() error {
	bufs := []device.Buffer{b.in, b.scratch}
	if b.out != b.in {
		bufs = append(bufs, b.out)
	}

	var errs []error
	for _, buf := range bufs {
		if buf != nil {
			errs = append(errs, buf.Close())
		}
	}

	return errors.Join(errs...)
}

// allocFor allocates user buffers and scratch for p and binds the scratch.
func (s *session) allocFor(p *gpufft.Plan) (*buffers, error) {
	spec := p.Spec()
	size := int64(spec.BufferElements() * spec.Precision.ElemSize())

	b := &buffers{}

	var err error
	if b.in, err = s.ctx.Alloc(size); err != nil {
		return nil, err
	}

	b.out = b.in
	if spec.Placement == gpufft.OutOfPlace {
		if b.out, err = s.ctx.Alloc(size); err != nil {
			_ = b.Close()
			return nil, err
		}
	}

	if b.scratch, err = p.AllocScratch(); err != nil {
		_ = b.Close()
		return nil, err
	}

	if err := s.ec.BindScratch(b.scratch, p.WorkBufferSize()); err != nil {
		_ = b.Close()
		return nil, err
	}

	return b, nil
}

// run executes p once and waits for it.
func (s *session) run(p *gpufft.Plan, b *buffers) error {
	if err := gpufft.Execute(p, b.in, b.out, s.ec); err != nil {
		return err
	}

	return s.ec.Synchronize()
}
