package device

import "github.com/cwbudde/gpufft/internal/fftypes"

// Precision is the storage format of complex samples in device memory.
type Precision = fftypes.Precision

const (
	PrecisionSingle = fftypes.PrecisionSingle
	PrecisionDouble = fftypes.PrecisionDouble
	PrecisionHalf   = fftypes.PrecisionHalf
)

// DeviceInfo describes a device.
type DeviceInfo struct {
	Name       string
	Vendor     string
	Driver     string
	MemoryMB   int
	ComputeCap string
}

// BackendInfo describes a backend implementation.
type BackendInfo struct {
	Name        string
	Version     string
	Description string
}
