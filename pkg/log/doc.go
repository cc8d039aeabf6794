// Package log provides the structured lifecycle event log.
//
// It is separate from operational logging (slog): the lifecycle log is a
// complete machine-readable trace of what the network stack reported, which
// commands were issued in response, and how the connection state moved.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// On a device with storage: write a binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/wifiprov/device.wlog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
//   - Network: an event received from the network stack (NetworkEvent)
//   - Command: a command issued to the network stack (CommandEvent)
//   - State: a connection or provisioning state change (StateChangeEvent)
//   - Error: a fault (ErrorEventData)
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with the .wlog extension.
// The wifiprov-log tool views, exports and summarizes them.
package log
