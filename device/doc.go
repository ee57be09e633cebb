// Package device is the accelerator abstraction gpufft executes on.
//
// A Backend exposes devices; a Context owns device memory (Buffer) and
// execution queues (Stream). Work is described by Launch values that a
// stream runs asynchronously and in submission order. The package ships a
// host backend that emulates a device with byte-slice memory and one
// goroutine per stream, and a WebGPU backend behind the "webgpu" build tag.
package device
