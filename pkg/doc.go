// Package pkg provides shared utilities for the softmmc card-mode stack.
//
// This package contains common functionality used by the host adaptation
// layer, the controller HALs and the card driver:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for configuration, transport and card failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogDebug(pkg.ComponentHost, "command sent", "unit", 0, "cmd", 17)
//
// Logging is diagnostic only. Nothing in the command/response contract
// depends on it.
//
// # Errors
//
// Failures are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrCRC) {
//	    // retry at a lower clock
//	}
package pkg
