// Package log provides structured protocol logging for SCP devices.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, protocol, service).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// Events never carry secrets: argument values, plaintexts, passwords and
// pre-shared keys are not recorded.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/scp/device.slog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
//   - Transport: HTTP route, method and argument names (RequestEvent)
//   - Protocol: decoded command types and results (MessageEvent)
//   - Service: mode, NVCN, password and power changes (StateChangeEvent)
//
// Errors at any layer have a dedicated event type.
//
// # File Format
//
// Log files use CBOR encoding with .slog extension. The scp-log CLI tool
// provides viewing and statistics.
package log
