package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/event"
	"github.com/wifiprov/wifiprov-go/pkg/log"
)

// Connection errors.
var (
	ErrCommandFailed = errors.New("network command failed")
)

// State is the connection state.
type State uint8

const (
	// StateIdle is the state before provisioning or the first station start.
	StateIdle State = iota

	// StateProvisioning means an out-of-band provisioning session is open.
	StateProvisioning

	// StateConnecting means a connect command has been issued and no address
	// has been acquired since.
	StateConnecting

	// StateConnected means an address has been acquired.
	StateConnected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateProvisioning:
		return "PROVISIONING"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Commander issues commands to the network stack.
type Commander interface {
	Connect() error
}

// Config configures a Machine.
type Config struct {
	// Logger receives operational logs. If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives lifecycle events. If nil, they are dropped.
	ProtocolLogger log.Logger

	// SessionID and DeviceName tag lifecycle events.
	SessionID  string
	DeviceName string
}

// Machine is the connection state machine. HandleEvent runs on the network
// stack's delivery goroutine; all other methods are safe to call from any
// goroutine.
type Machine struct {
	mu sync.Mutex

	state    State
	attempts int
	err      error

	cmd    Commander
	signal *Signal
	failed chan struct{}

	logger     *slog.Logger
	plog       log.Logger
	sessionID  string
	deviceName string

	onStateChange func(oldState, newState State)
}

// NewMachine creates a machine in StateIdle that issues commands through cmd.
func NewMachine(cmd Commander, cfg Config) *Machine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	plog := cfg.ProtocolLogger
	if plog == nil {
		plog = log.NoopLogger{}
	}

	return &Machine{
		state:      StateIdle,
		cmd:        cmd,
		signal:     NewSignal(),
		failed:     make(chan struct{}),
		logger:     logger,
		plog:       plog,
		sessionID:  cfg.SessionID,
		deviceName: cfg.DeviceName,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Signal returns the connected signal.
func (m *Machine) Signal() *Signal {
	return m.signal
}

// Attempts returns the number of connect commands issued.
func (m *Machine) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Failed returns a channel closed once a fatal fault has been recorded.
// Every receiver observes the close; the fault itself is Err.
func (m *Machine) Failed() <-chan struct{} {
	return m.failed
}

// Err returns the first fatal fault, or nil.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// OnStateChange sets a callback for state changes. It runs on the goroutine
// that caused the change, outside the machine's lock.
func (m *Machine) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// EnterProvisioning moves an idle machine to StateProvisioning. It returns
// false if the machine was not idle.
func (m *Machine) EnterProvisioning() bool {
	return m.transitionFrom(StateIdle, StateProvisioning, "provisioning started")
}

// HandleEvent interprets one dispatched event.
func (m *Machine) HandleEvent(ev event.Event) {
	m.logNetwork(ev)

	switch ev.Base {
	case event.BaseWiFi:
		m.handleWiFi(ev)
	case event.BaseIP:
		m.handleIP(ev)
	case event.BaseProvisioning:
		m.handleProvisioning(ev)
	}
}

func (m *Machine) handleWiFi(ev event.Event) {
	switch ev.ID {
	case event.WiFiStaStart, event.WiFiStaDisconnected:
		if d, ok := ev.Data.(*event.StaDisconnected); ok && d != nil {
			m.logger.Info("Disconnected from Wi-Fi AP", slog.String("ssid", d.SSID), slog.Int("reason", int(d.Reason)))
		}
		m.logger.Info("Connecting to Wi-Fi AP...")
		m.connect(event.Name(ev.Base, ev.ID))

	case event.WiFiStaConnected:
		m.logger.Info("Connection established to Wi-Fi AP.")
	}
}

func (m *Machine) handleIP(ev event.Event) {
	switch ev.ID {
	case event.IPStaGotIP:
		if d, ok := ev.Data.(*event.GotIPv4); ok && d != nil {
			m.logger.Info("Connected with IPv4 address", slog.String("addr", d.Addr.String()))
		}
		m.acquired(event.Name(ev.Base, ev.ID))

	case event.IPGotIP6:
		if d, ok := ev.Data.(*event.GotIPv6); ok && d != nil {
			m.logger.Info("Connected with IPv6 address", slog.String("addr", d.Addr.String()))
		}
		m.acquired(event.Name(ev.Base, ev.ID))

	case event.IPStaLostIP:
		// The signal stays set: having been connected once is enough.
		m.logger.Debug("Lost IP address.")
	}
}

func (m *Machine) handleProvisioning(ev event.Event) {
	switch ev.ID {
	case event.ProvStart:
		m.logger.Info("Provisioning started")
	case event.ProvCredRecv:
		if d, ok := ev.Data.(*event.ProvCredentials); ok && d != nil {
			m.logger.Info("Received Wi-Fi credentials", slog.String("ssid", d.SSID))
		}
	case event.ProvCredFail:
		reason := "UNKNOWN"
		if d, ok := ev.Data.(*event.ProvFailure); ok && d != nil {
			reason = d.Reason.String()
		}
		m.logger.Warn("Provisioning failed, reset to factory and retry provisioning", slog.String("reason", reason))
	case event.ProvCredSuccess:
		m.logger.Info("Provisioning successful")
	case event.ProvEnd:
		m.logger.Info("Provisioning ended")
	}
}

// connect issues a connect command and moves to StateConnecting.
func (m *Machine) connect(reason string) {
	m.transitionTo(StateConnecting, reason)

	m.mu.Lock()
	m.attempts++
	m.mu.Unlock()

	err := m.cmd.Connect()
	cmdEv := &log.CommandEvent{Command: "connect"}
	if err != nil {
		cmdEv.Err = err.Error()
	}
	m.emit(log.Event{Category: log.CategoryCommand, Command: cmdEv})

	if err != nil {
		m.fault(fmt.Errorf("%w: connect: %w", ErrCommandFailed, err))
	}
}

// acquired records an address acquisition.
func (m *Machine) acquired(reason string) {
	if m.signal.Set() {
		m.logger.Debug("Connected signal set", slog.String("by", reason))
	}
	m.transitionTo(StateConnected, reason)
}

// fault records a fatal fault. The first one closes Failed; later faults
// are logged only.
func (m *Machine) fault(err error) {
	m.mu.Lock()
	first := m.err == nil
	if first {
		m.err = err
	}
	m.mu.Unlock()

	m.logger.Error("Fatal network fault", slog.Any("error", err))
	m.emit(log.Event{
		Category: log.CategoryError,
		Error:    &log.ErrorEventData{Message: err.Error(), Context: "event handler", Fatal: true},
	})

	if first {
		close(m.failed)
	}
}

// transitionTo moves to newState unless already there.
func (m *Machine) transitionTo(newState State, reason string) bool {
	m.mu.Lock()
	oldState := m.state
	if oldState == newState {
		m.mu.Unlock()
		return false
	}
	m.state = newState
	cb := m.onStateChange
	m.mu.Unlock()

	m.notify(oldState, newState, reason, cb)
	return true
}

// transitionFrom moves from oldState to newState only if currently in oldState.
func (m *Machine) transitionFrom(oldState, newState State, reason string) bool {
	m.mu.Lock()
	if m.state != oldState {
		m.mu.Unlock()
		return false
	}
	m.state = newState
	cb := m.onStateChange
	m.mu.Unlock()

	m.notify(oldState, newState, reason, cb)
	return true
}

func (m *Machine) notify(oldState, newState State, reason string, cb func(State, State)) {
	m.logger.Debug("Connection state changed",
		slog.String("from", oldState.String()),
		slog.String("to", newState.String()),
		slog.String("reason", reason))
	m.emit(log.Event{
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})
	if cb != nil {
		cb(oldState, newState)
	}
}

// logNetwork records a copy of the event; ev.Data is not retained.
func (m *Machine) logNetwork(ev event.Event) {
	n := &log.NetworkEvent{Base: ev.Base, ID: ev.ID}
	switch d := ev.Data.(type) {
	case *event.GotIPv4:
		if d != nil {
			n.Addr = d.Addr.String()
		}
	case *event.GotIPv6:
		if d != nil {
			n.Addr = d.Addr.String()
		}
	case *event.StaConnected:
		if d != nil {
			n.SSID = d.SSID
		}
	case *event.StaDisconnected:
		if d != nil {
			n.SSID = d.SSID
			r := d.Reason
			n.Reason = &r
		}
	case *event.ProvCredentials:
		if d != nil {
			n.SSID = d.SSID
		}
	case *event.ProvFailure:
		if d != nil {
			r := uint8(d.Reason)
			n.Reason = &r
		}
	}
	m.emit(log.Event{Category: log.CategoryNetwork, Network: n})
}

func (m *Machine) emit(ev log.Event) {
	ev.Timestamp = time.Now()
	ev.SessionID = m.sessionID
	ev.DeviceName = m.deviceName
	m.plog.Log(ev)
}

// Compile-time interface satisfaction check.
var _ event.Sink = (*Machine)(nil)
