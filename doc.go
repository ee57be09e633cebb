// Package gpufft compiles and executes complex FFTs on an accelerator.
//
// A TransformSpec describes the transforms. Compile decomposes every
// dimension into kernels of the kernel pool, chains them into stages,
// assigns each stage's input and output to the user buffers or to scratch
// regions, and uploads twiddle tables. The resulting Plan is immutable and
// may be executed from many goroutines, each with its own
// ExecutionContext:
//
//	if err := gpufft.Setup(); err != nil { ... }
//	defer gpufft.Cleanup()
//
//	plan, err := gpufft.Compile(gpufft.TransformSpec{
//		Lengths:   []int{1024},
//		Batch:     1,
//		Direction: gpufft.Forward,
//		Precision: gpufft.PrecisionSingle,
//		Placement: gpufft.OutOfPlace,
//	})
//	defer plan.Destroy()
//
//	ec := gpufft.NewExecutionContext(stream)
//	scratch, err := plan.AllocScratch()
//	err = ec.BindScratch(scratch, plan.WorkBufferSize())
//	err = gpufft.Execute(plan, in, out, ec)
//	err = ec.Synchronize()
//
// Devices are provided by package device. Setup registers the host backend
// when no backend is registered.
package gpufft
