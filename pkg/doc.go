// Package pkg provides shared utilities for the usbcore USB device stack.
//
// This package contains common functionality used across the hal, device,
// and dfu packages, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for USB protocol errors
//   - Component identifiers for log filtering
//
// The package is designed to have zero external dependencies, relying
// only on the Go standard library.
//
// # Logging
//
// The logging subsystem wraps [log/slog] with USB-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentCore, "device configured", "config", 1)
//
// # Errors
//
// The handful of error conditions the parsing helpers in device can
// actually hit are sentinel values:
//
//	if errors.Is(err, pkg.ErrDescriptorTooShort) {
//	    // Handle a truncated descriptor buffer
//	}
package pkg
