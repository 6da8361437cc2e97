//go:build profile

package prof

import (
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
)

// Enabled reports whether profiling is compiled in.
const Enabled = true

var (
	cpuMu     sync.Mutex
	cpuFile   *os.File
	cpuActive bool
)

// StartCPU starts CPU profiling into the file at path.
// Returns [ErrCPUProfileActive] if CPU profiling is already active.
func StartCPU(path string) error {
	cpuMu.Lock()
	defer cpuMu.Unlock()

	if cpuActive {
		return ErrCPUProfileActive
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return err
	}
	cpuFile, cpuActive = f, true
	return nil
}

// StopCPU stops CPU profiling and closes the profile file. It does nothing
// if profiling is not active.
func StopCPU() {
	cpuMu.Lock()
	defer cpuMu.Unlock()

	if !cpuActive {
		return
	}
	pprof.StopCPUProfile()
	if cpuFile != nil {
		cpuFile.Close()
		cpuFile = nil
	}
	cpuActive = false
}

// IsCPUActive reports whether CPU profiling is active.
func IsCPUActive() bool {
	cpuMu.Lock()
	defer cpuMu.Unlock()
	return cpuActive
}

// Write writes a snapshot of profile to the file at path.
func Write(profile Profile, path string) error {
	p := lookup(profile)
	if p == nil {
		return ErrInvalidProfile
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.WriteTo(f, 0)
}

// WriteTo writes a snapshot of profile to w. Debug level 0 is the binary
// format read by go tool pprof; 1 is text.
func WriteTo(profile Profile, w io.Writer, debug int) error {
	p := lookup(profile)
	if p == nil {
		return ErrInvalidProfile
	}
	return p.WriteTo(w, debug)
}

func lookup(profile Profile) *pprof.Profile {
	if profile == ProfileCPU {
		return nil
	}
	return pprof.Lookup(string(profile))
}

// SetContentionRate enables block and mutex profiling. A rate of 1 records
// every event; 0 disables both.
func SetContentionRate(rate int) {
	runtime.SetBlockProfileRate(rate)
	runtime.SetMutexProfileFraction(rate)
}
