package gpufft

import (
	"sync"

	"github.com/cwbudde/gpufft/device"
	"github.com/cwbudde/gpufft/internal/envconfig"
	"github.com/cwbudde/gpufft/internal/pool"
)

var (
	libMu      sync.Mutex
	kernelPool *pool.Pool
)

// Setup initializes the library: it builds the kernel pool and registers
// the backend named by GPUFFT_BACKEND (host by default) if no device
// backend is registered. Calling Setup again is a no-op.
func Setup() error {
	libMu.Lock()
	defer libMu.Unlock()

	if kernelPool != nil {
		return nil
	}

	if device.Current() == nil {
		if err := device.Use(envconfig.Backend()); err != nil {
			return newError(KindInvalidArgument, "setup", err)
		}
	}

	kernelPool = pool.New()
	defaultLogger().Debug("gpufft initialized", "kernels", kernelPool.Len())

	return nil
}

// Cleanup releases the kernel pool. Plans compiled earlier keep working;
// Compile fails with ErrPlanNotReady until Setup is called again.
func Cleanup() {
	libMu.Lock()
	defer libMu.Unlock()

	kernelPool = nil
}

func currentPool() *pool.Pool {
	libMu.Lock()
	defer libMu.Unlock()

	return kernelPool
}
