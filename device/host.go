package device

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/cwbudde/gpufft/internal/cpu"
	"github.com/cwbudde/gpufft/internal/envconfig"
)

// FaultInjector is consulted before a host stream runs a launch. A non-nil
// result fails the launch as if the device had faulted.
type FaultInjector func(l *Launch) error

// HostOption configures a HostBackend.
type HostOption func(*HostBackend)

// WithMemoryLimit caps the bytes a host context may have allocated at once.
// Zero means unlimited.
func WithMemoryLimit(bytes int64) HostOption {
	return func(b *HostBackend) { b.memLimit = bytes }
}

// WithWorkers bounds the goroutines a single launch fans out to.
func WithWorkers(n int) HostOption {
	return func(b *HostBackend) { b.workers = n }
}

// WithFaultInjector installs a hook that can fail launches at run time.
func WithFaultInjector(f FaultInjector) HostOption {
	return func(b *HostBackend) { b.fault = f }
}

// HostBackend emulates a device in host memory. Kernels run on the
// goroutine owning their stream and fan out across CPUs.
type HostBackend struct {
	memLimit int64
	workers  int
	fault    FaultInjector
}

// NewHostBackend returns a host backend. Defaults come from
// GPUFFT_HOST_MEMORY_MB and GPUFFT_HOST_WORKERS.
func NewHostBackend(opts ...HostOption) *HostBackend {
	b := &HostBackend{
		memLimit: int64(envconfig.HostMemoryMB()) << 20,
		workers:  int(envconfig.HostWorkers()),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// RegisterHostBackend registers a host backend as the active backend.
func RegisterHostBackend(opts ...HostOption) {
	RegisterBackend(NewHostBackend(opts...))
}

func (b *HostBackend) Info() BackendInfo {
	return BackendInfo{
		Name:        "host",
		Version:     "1.0",
		Description: "device emulated in host memory",
	}
}

func (b *HostBackend) Available() bool {
	return true
}

func (b *HostBackend) device() DeviceInfo {
	return DeviceInfo{
		Name:       "host",
		Vendor:     runtime.GOOS + "/" + runtime.GOARCH,
		Driver:     runtime.Version(),
		MemoryMB:   int(b.memLimit >> 20),
		ComputeCap: cpu.DetectFeatures().String(),
	}
}

func (b *HostBackend) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{b.device()}, nil
}

func (b *HostBackend) NewContext(deviceIndex int) (Context, error) {
	if deviceIndex != 0 {
		return nil, fmt.Errorf("host backend: device index %d out of range", deviceIndex)
	}

	return &hostContext{
		id:      uuid.New(),
		backend: b,
		info:    b.device(),
		streams: make(map[*hostStream]struct{}),
	}, nil
}

type hostContext struct {
	id      uuid.UUID
	backend *HostBackend
	info    DeviceInfo

	mu      sync.Mutex
	used    int64
	closed  bool
	streams map[*hostStream]struct{}
}

func (c *hostContext) Device() DeviceInfo {
	return c.info
}

func (c *hostContext) Alloc(size int64) (Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: allocation of %d bytes", ErrOutOfRange, size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if limit := c.backend.memLimit; limit > 0 && c.used+size > limit {
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d in use", ErrOutOfMemory, size, c.used, limit)
	}

	c.used += size

	return &hostBuffer{ctx: c, data: make([]byte, size)}, nil
}

func (c *hostContext) release(n int64) {
	c.mu.Lock()
	c.used -= n
	c.mu.Unlock()
}

// InUse reports the bytes currently allocated in ctx, which must come from
// a host backend.
func InUse(ctx Context) int64 {
	c, ok := ctx.(*hostContext)
	if !ok {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.used
}

func (c *hostContext) NewStream() (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	s := newHostStream(c)
	c.streams[s] = struct{}{}

	return s, nil
}

func (c *hostContext) forget(s *hostStream) {
	c.mu.Lock()
	delete(c.streams, s)
	c.mu.Unlock()
}

func (c *hostContext) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	streams := make([]*hostStream, 0, len(c.streams))
	for s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}

	return nil
}

// hostBuffer contents are not locked: streams and host transfers are
// ordered by Launch and Synchronize.
type hostBuffer struct {
	ctx *hostContext

	mu     sync.RWMutex
	data   []byte
	closed bool
}

func (b *hostBuffer) Size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return int64(len(b.data))
}

func (b *hostBuffer) bytes() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	return b.data, nil
}

func (b *hostBuffer) span(offset int64, n int) ([]byte, error) {
	data, err := b.bytes()
	if err != nil {
		return nil, err
	}

	if offset < 0 || offset+int64(n) > int64(len(data)) {
		return nil, fmt.Errorf("%w: %d bytes at offset %d of %d", ErrOutOfRange, n, offset, len(data))
	}

	return data[offset : offset+int64(n)], nil
}

func (b *hostBuffer) Write(offset int64, src []byte) error {
	dst, err := b.span(offset, len(src))
	if err != nil {
		return err
	}

	copy(dst, src)

	return nil
}

func (b *hostBuffer) Read(offset int64, dst []byte) error {
	src, err := b.span(offset, len(dst))
	if err != nil {
		return err
	}

	copy(dst, src)

	return nil
}

func (b *hostBuffer) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}

	n := int64(len(b.data))
	b.closed = true
	b.data = nil
	b.mu.Unlock()

	b.ctx.release(n)

	return nil
}
