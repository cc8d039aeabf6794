package log

import (
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/event"
)

// Event is one lifecycle log record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies one lifecycle module instance (UUID).
	SessionID string `cbor:"2,keyasint"`

	// DeviceName is the derived device name.
	DeviceName string `cbor:"3,keyasint,omitempty"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Type-specific payload (one of these will be set).
	Network     *NetworkEvent     `cbor:"10,keyasint,omitempty"`
	Command     *CommandEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryNetwork is an event received from the network stack.
	CategoryNetwork Category = 0
	// CategoryCommand is a command issued to the network stack.
	CategoryCommand Category = 1
	// CategoryState is a state change.
	CategoryState Category = 2
	// CategoryError is a fault.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "NETWORK"
	case CategoryCommand:
		return "COMMAND"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// NetworkEvent captures a dispatched network stack event. Only copies of the
// borrowed payload are kept.
type NetworkEvent struct {
	Base event.Base `cbor:"1,keyasint"`
	ID   event.ID   `cbor:"2,keyasint"`

	// Addr is the acquired address for IP events.
	Addr string `cbor:"3,keyasint,omitempty"`

	// SSID for association and provisioning events.
	SSID string `cbor:"4,keyasint,omitempty"`

	// Reason code for disconnect and provisioning failure events.
	Reason *uint8 `cbor:"5,keyasint,omitempty"`
}

// Name returns the symbolic event name.
func (n *NetworkEvent) Name() string {
	return event.Name(n.Base, n.ID)
}

// CommandEvent captures a command issued to the network stack.
type CommandEvent struct {
	// Command is the command name (e.g. "connect", "set_mode").
	Command string `cbor:"1,keyasint"`

	// Arg is an optional argument rendering (e.g. "STA").
	Arg string `cbor:"2,keyasint,omitempty"`

	// Err is the failure message, empty on success.
	Err string `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent captures connection and provisioning lifecycle changes.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection is the connection state machine.
	StateEntityConnection StateEntity = 0
	// StateEntityProvisioning is the provisioning session.
	StateEntityProvisioning StateEntity = 1
	// StateEntityModule is the lifecycle module itself.
	StateEntityModule StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityProvisioning:
		return "PROVISIONING"
	case StateEntityModule:
		return "MODULE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures faults.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`

	// Fatal is true when the fault aborts the lifecycle.
	Fatal bool `cbor:"3,keyasint,omitempty"`
}
