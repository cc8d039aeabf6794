// Package connection implements the station connection state machine.
//
// # States
//
//	IDLE -> PROVISIONING -> CONNECTING -> CONNECTED
//	                          ^              |
//	                          +--disconnect--+
//
// There is no terminal disconnected state: every station start and every
// disconnect issues a new connect command immediately. There is no backoff
// and no attempt limit.
//
// # Connected Signal
//
// The first IPv4 or IPv6 address acquisition sets the Signal and moves the
// machine to CONNECTED. The signal is never cleared: losing the address is
// logged and nothing else. Later acquisitions change state only when the
// machine has gone back to CONNECTING after a disconnect.
//
// # Faults
//
// A failing connect command is fatal. The machine does not retry it; the
// first fault is kept in Err and closes Failed, so every waiter observes it
// regardless of who looked first.
package connection
