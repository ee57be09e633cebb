package device

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBackend is returned when no backend is registered.
	ErrNoBackend = errors.New("gpufft/device: no backend registered")

	// ErrBackendUnavailable is returned when the backend is registered but not available
	// on the current system (e.g., no device, driver missing).
	ErrBackendUnavailable = errors.New("gpufft/device: backend unavailable")

	// ErrNotImplemented is returned for operations a backend does not support.
	ErrNotImplemented = errors.New("gpufft/device: not implemented")

	// ErrOutOfMemory is returned when a device allocation cannot be satisfied.
	ErrOutOfMemory = errors.New("gpufft/device: out of memory")

	// ErrOutOfRange is returned for transfers outside a buffer.
	ErrOutOfRange = errors.New("gpufft/device: access out of range")

	// ErrInvalidLaunch is returned when a launch's parameters are inconsistent
	// or its regions do not fit the buffers.
	ErrInvalidLaunch = errors.New("gpufft/device: invalid launch parameters")

	// ErrForeignBuffer is returned when a buffer belongs to another context.
	ErrForeignBuffer = errors.New("gpufft/device: buffer belongs to another context")

	// ErrDeviceFault is the cause recorded when a kernel fails while running.
	ErrDeviceFault = errors.New("gpufft/device: kernel fault")

	// ErrClosed is returned when using a closed context, buffer or stream.
	ErrClosed = errors.New("gpufft/device: use of closed resource")
)

// LaunchError reports the failure of one launch. Tag is the value the
// submitter put into Launch.Tag.
type LaunchError struct {
	Tag    int
	Kernel string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("gpufft/device: launch %d (%s): %v", e.Tag, e.Kernel, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
