//go:build !profile

package prof

import "io"

// Enabled reports whether profiling is compiled in.
const Enabled = false

// StartCPU does nothing without the "profile" build tag.
func StartCPU(string) error { return nil }

// StopCPU does nothing without the "profile" build tag.
func StopCPU() {}

// IsCPUActive always returns false without the "profile" build tag.
func IsCPUActive() bool { return false }

// Write does nothing without the "profile" build tag.
func Write(Profile, string) error { return nil }

// WriteTo does nothing without the "profile" build tag.
func WriteTo(Profile, io.Writer, int) error { return nil }

// SetContentionRate does nothing without the "profile" build tag.
func SetContentionRate(int) {}
