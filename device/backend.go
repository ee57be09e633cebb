package device

import (
	"fmt"
	"slices"
	"sync"
)

// Backend is implemented by device backends (host, WebGPU, ...).
// It is responsible for device discovery and context creation.
type Backend interface {
	Info() BackendInfo
	Available() bool
	Devices() ([]DeviceInfo, error)
	NewContext(deviceIndex int) (Context, error)
}

// Context represents a backend-specific context tied to a device.
type Context interface {
	Device() DeviceInfo
	// Alloc allocates size bytes of device memory. Failures caused by
	// exhausted memory wrap ErrOutOfMemory.
	Alloc(size int64) (Buffer, error)
	// NewStream creates an in-order execution queue.
	NewStream() (Stream, error)
	Close() error
}

// Buffer is a region of device memory.
type Buffer interface {
	Size() int64
	// Write copies src from the host into the buffer at offset.
	Write(offset int64, src []byte) error
	// Read copies from the buffer at offset into dst on the host.
	Read(offset int64, dst []byte) error
	Close() error
}

// Stream is an in-order execution queue. Launch enqueues and returns
// without waiting; errors in launch parameters are returned immediately,
// errors raised while running surface from Synchronize.
type Stream interface {
	Launch(l *Launch) error
	// Synchronize blocks until all enqueued launches have finished and
	// returns the first asynchronous failure since the previous call.
	Synchronize() error
	Close() error
}

var (
	backendMu  sync.RWMutex
	backend    Backend
	defaultCtx Context

	factories = map[string]func() Backend{
		"host": func() Backend { return NewHostBackend() },
	}
)

// RegisterFactory makes a backend selectable by name through Use.
func RegisterFactory(name string, f func() Backend) {
	backendMu.Lock()
	defer backendMu.Unlock()

	factories[name] = f
}

// BackendNames lists the backends compiled into this binary.
func BackendNames() []string {
	backendMu.RLock()
	defer backendMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Use registers a new instance of the named backend.
func Use(name string) error {
	backendMu.RLock()
	f, ok := factories[name]
	backendMu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: unknown backend %q (have %v)", ErrNoBackend, name, BackendNames())
	}

	RegisterBackend(f())

	return nil
}

// RegisterBackend registers the active backend. Passing nil clears it.
// The cached default context of a previous backend is closed.
func RegisterBackend(b Backend) {
	backendMu.Lock()
	old := defaultCtx
	backend = b
	defaultCtx = nil
	backendMu.Unlock()

	if old != nil {
		_ = old.Close()
	}
}

// Current returns the registered backend or nil.
func Current() Backend {
	backendMu.RLock()
	defer backendMu.RUnlock()

	return backend
}

// CurrentBackendInfo reports the currently registered backend, if any.
func CurrentBackendInfo() (BackendInfo, bool) {
	b := Current()
	if b == nil {
		return BackendInfo{}, false
	}

	return b.Info(), true
}

// DefaultContext returns a shared context on device 0 of the registered
// backend, creating it on first use.
func DefaultContext() (Context, error) {
	backendMu.Lock()
	defer backendMu.Unlock()

	if defaultCtx != nil {
		return defaultCtx, nil
	}

	if backend == nil {
		return nil, ErrNoBackend
	}

	if !backend.Available() {
		return nil, ErrBackendUnavailable
	}

	ctx, err := backend.NewContext(0)
	if err != nil {
		return nil, err
	}

	defaultCtx = ctx

	return ctx, nil
}
