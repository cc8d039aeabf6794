// Package event defines the notifications a network stack publishes and the
// dispatcher that routes them into the connection state machine.
//
// # Categories
//
// Events are grouped by base (category) and numbered by ID (subtype):
//
//   - WIFI_PROV_EVENT: provisioning manager progress (credentials received,
//     failed, succeeded, session ended)
//   - WIFI_EVENT: station lifecycle (start, associated, disconnected)
//   - IP_EVENT: address assignment (got IPv4, got IPv6, lost IPv4)
//
// # Delivery
//
// The network stack owns the goroutine that delivers events. Event.Data is
// borrowed for the duration of the handler call only: handlers copy what they
// need and never retain the pointer.
//
// # Dispatcher
//
// A Dispatcher is a callback table keyed by (Base, ID). One dispatcher exists
// per lifecycle module; it registers its subscriptions on a Bus exactly once
// and forwards every received event, untouched, to a single Sink.
package event
