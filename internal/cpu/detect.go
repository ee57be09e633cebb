// Package cpu reports host CPU features for the host device's info.
package cpu

import (
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sys/cpu"
)

// Features describes the SIMD capabilities of the host CPU.
type Features struct {
	HasSSE2   bool
	HasSSE41  bool
	HasAVX    bool
	HasAVX2   bool
	HasFMA    bool
	HasAVX512 bool
	HasNEON   bool
	HasSVE    bool

	Architecture string
}

var (
	detectOnce sync.Once
	detected   Features
)

// DetectFeatures returns the features of the running CPU. Detection runs
// once per process.
func DetectFeatures() Features {
	detectOnce.Do(func() {
		detected = Features{
			HasSSE2:      cpu.X86.HasSSE2,
			HasSSE41:     cpu.X86.HasSSE41,
			HasAVX:       cpu.X86.HasAVX,
			HasAVX2:      cpu.X86.HasAVX2,
			HasFMA:       cpu.X86.HasFMA,
			HasAVX512:    cpu.X86.HasAVX512F,
			HasNEON:      cpu.ARM64.HasASIMD,
			HasSVE:       cpu.ARM64.HasSVE,
			Architecture: runtime.GOARCH,
		}
	})

	return detected
}

// String lists the detected feature names, e.g. "amd64+sse2+avx2+fma".
func (f Features) String() string {
	parts := []string{f.Architecture}

	for _, feat := range []struct {
		on   bool
		name string
	}{
		{f.HasSSE2, "sse2"},
		{f.HasSSE41, "sse4.1"},
		{f.HasAVX, "avx"},
		{f.HasAVX2, "avx2"},
		{f.HasFMA, "fma"},
		{f.HasAVX512, "avx512f"},
		{f.HasNEON, "neon"},
		{f.HasSVE, "sve"},
	} {
		if feat.on {
			parts = append(parts, feat.name)
		}
	}

	return strings.Join(parts, "+")
}
