package wifi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wifiprov/wifiprov-go/pkg/connection"
	"github.com/wifiprov/wifiprov-go/pkg/event"
	"github.com/wifiprov/wifiprov-go/pkg/identity"
	"github.com/wifiprov/wifiprov-go/pkg/log"
	"github.com/wifiprov/wifiprov-go/pkg/netstack"
	"github.com/wifiprov/wifiprov-go/pkg/provisioning"
)

// Module is the network identity lifecycle of one device session.
type Module struct {
	cfg       Config
	id        *identity.Identity
	sessionID string

	stack netstack.Stack
	prov  netstack.ProvisioningManager
	bus   event.Bus

	machine    *connection.Machine
	dispatcher *event.Dispatcher

	logger *slog.Logger
	plog   log.Logger

	mu          sync.Mutex
	initialized bool
	closed      bool

	// Resources acquired by Initialize, released by Close.
	netifUp bool
	wifiUp  bool
}

// New derives the device identity and proof-of-possession and wires the
// dispatcher to a fresh connection state machine. Nothing is registered or
// started until Initialize.
func New(cfg Config, hw identity.HardwareSource, stack netstack.Stack, prov netstack.ProvisioningManager, bus event.Bus) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if stack == nil || prov == nil || bus == nil {
		return nil, fmt.Errorf("%w: stack, provisioning manager and event bus are required", ErrInvalidConfig)
	}

	var idOpts []identity.Option
	if cfg.Random != nil {
		idOpts = append(idOpts, identity.WithRandom(cfg.Random))
	}
	id, err := identity.New(cfg.ServiceName, hw, idOpts...)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(slog.String("component", "wifi"))

	plog := cfg.ProtocolLogger
	if plog == nil {
		plog = log.NoopLogger{}
	}

	sessionID := uuid.NewString()
	machine := connection.NewMachine(stack, connection.Config{
		Logger:         logger,
		ProtocolLogger: plog,
		SessionID:      sessionID,
		DeviceName:     id.DeviceName(),
	})

	return &Module{
		cfg:        cfg,
		id:         id,
		sessionID:  sessionID,
		stack:      stack,
		prov:       prov,
		bus:        bus,
		machine:    machine,
		dispatcher: event.NewDispatcher(machine),
		logger:     logger,
		plog:       plog,
	}, nil
}

// Initialize brings up the network interface layer, registers the event
// dispatcher, creates the default station, initializes the Wi-Fi driver and
// the provisioning manager. Any failure is fatal and not retried.
func (m *Module) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.initialized {
		return ErrAlreadyInitialized
	}

	steps := []struct {
		name string
		fn   func() error
		up   *bool
	}{
		{"init netif", m.stack.InitNetif, &m.netifUp},
		{"register event handlers", func() error { return m.dispatcher.Register(m.bus) }, nil},
		{"create default station", m.stack.CreateDefaultStation, nil},
		{"init wifi", func() error { return m.stack.InitWiFi(m.cfg.WiFi) }, &m.wifiUp},
		{"init provisioning manager", func() error {
			return m.prov.Init(netstack.ManagerConfig{
				Scheme:             m.cfg.scheme(),
				SchemeEventHandler: m.cfg.SchemeEventHandler,
			})
		}, nil},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrInitFailed, step.name, err)
			m.emitFault(err, step.name)
			return err
		}
		if step.up != nil {
			*step.up = true
		}
	}

	m.initialized = true
	m.emitState(log.StateEntityModule, "", "INITIALIZED", "")
	m.logger.Info("Successfully initialized WiFi module.",
		slog.String("device", m.id.DeviceName()),
		slog.String("transport", string(m.cfg.Transport)))
	return nil
}

// Start provisions the device if needed, or starts the station directly,
// then blocks until the first address is acquired. It has no timeout.
func (m *Module) Start() error {
	return m.StartContext(context.Background())
}

// StartContext is Start bounded by ctx. Cancelling ctx abandons the wait; it
// does not stop reconnection attempts already driven by network events.
func (m *Module) StartContext(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case !m.initialized:
		m.mu.Unlock()
		return ErrNotInitialized
	}
	m.mu.Unlock()

	provisioned, err := m.prov.IsProvisioned()
	if err != nil {
		return m.startFault("query provisioning state", err)
	}

	if !provisioned {
		err = m.provision(ctx)
	} else {
		err = m.startStation()
	}
	m.prov.Deinit()
	if err != nil {
		return err
	}

	m.logger.Info("Waiting for WiFi to connect...")
	if err := m.waitConnected(ctx); err != nil {
		return err
	}

	m.emitState(log.StateEntityModule, "INITIALIZED", "STARTED", "")
	m.logger.Info("Successfully started WiFi module.", slog.Int("connect_attempts", m.machine.Attempts()))
	return nil
}

// provision runs one provisioning session to completion.
func (m *Module) provision(ctx context.Context) error {
	m.logger.Info("Not provisioned, beginning provisioning.")
	m.machine.EnterProvisioning()

	name := m.id.DeviceName()
	pop := m.id.ProofOfPossession()
	if err := m.prov.StartProvisioning(m.cfg.Security, pop, name, m.cfg.ServiceKey); err != nil {
		return m.startFault("start provisioning", err)
	}
	m.emitState(log.StateEntityProvisioning, "", "STARTED", m.cfg.Security.String())

	if err := provisioning.Present(ctx, m.Payload(), m.cfg.Renderer, m.logger); err != nil {
		m.emitFault(err, "render payload")
		return err
	}

	// The caller's prov.Deinit unblocks Wait if we return early.
	waitDone := make(chan struct{})
	go func() {
		m.prov.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-m.machine.Failed():
		return m.machine.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := m.machine.Err(); err != nil {
		return err
	}

	m.emitState(log.StateEntityProvisioning, "STARTED", "ENDED", "")
	m.logger.Info("Finished provisioning.")
	return nil
}

// startStation starts the driver in station mode with stored credentials.
func (m *Module) startStation() error {
	m.logger.Info("Already provisioned, starting station.")

	if err := m.command("set_mode", netstack.ModeStation.String(), func() error {
		return m.stack.SetMode(netstack.ModeStation)
	}); err != nil {
		return m.startFault("set mode", err)
	}
	if err := m.command("start", "", m.stack.Start); err != nil {
		return m.startFault("start wifi", err)
	}
	return nil
}

// waitConnected blocks on the connected signal. A fatal state machine fault
// aborts the wait.
func (m *Module) waitConnected(ctx context.Context) error {
	if err := m.machine.Err(); err != nil {
		return err
	}
	sig := m.machine.Signal()
	if sig.IsSet() {
		return nil
	}

	select {
	case <-sig.Done():
		return nil
	case <-m.machine.Failed():
		return m.machine.Err()
	case <-ctx.Done():
		if sig.IsSet() {
			return nil
		}
		return ctx.Err()
	}
}

// Close unregisters the event dispatcher and releases, in reverse order, the
// parts of the network stack that Initialize acquired, including after a
// failed Initialize. It is safe to call Close multiple times.
func (m *Module) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	netifUp, wifiUp := m.netifUp, m.wifiUp
	m.mu.Unlock()

	m.logger.Info("Stopping WiFi module.")

	var errs []error
	if m.dispatcher.Registered() {
		if err := m.dispatcher.Unregister(); err != nil {
			errs = append(errs, fmt.Errorf("unregister event handlers: %w", err))
		}
	}
	if wifiUp {
		if err := m.stack.DeinitWiFi(); err != nil {
			errs = append(errs, fmt.Errorf("deinit wifi: %w", err))
		}
	}
	if netifUp {
		if err := m.stack.DeinitNetif(); err != nil {
			errs = append(errs, fmt.Errorf("deinit netif: %w", err))
		}
	}

	m.emitState(log.StateEntityModule, "", "CLOSED", "")
	return errors.Join(errs...)
}

// Identity returns the derived device identity.
func (m *Module) Identity() *identity.Identity {
	return m.id
}

// SessionID returns the identifier tagging this module's lifecycle events.
func (m *Module) SessionID() string {
	return m.sessionID
}

// Payload returns the provisioning payload for this device.
func (m *Module) Payload() *provisioning.Payload {
	return provisioning.NewPayload(m.id, m.cfg.Transport)
}

// State returns the connection state.
func (m *Module) State() connection.State {
	return m.machine.State()
}

// Connected reports whether an address has ever been acquired.
func (m *Module) Connected() bool {
	return m.machine.Signal().IsSet()
}

// Done returns a channel closed once an address has been acquired.
func (m *Module) Done() <-chan struct{} {
	return m.machine.Signal().Done()
}

// Failed returns a channel closed once a fatal fault has been raised while
// handling events. Any number of observers may wait on it.
func (m *Module) Failed() <-chan struct{} {
	return m.machine.Failed()
}

// Err returns the fatal fault, or nil.
func (m *Module) Err() error {
	return m.machine.Err()
}

// Attempts returns the number of connect commands issued.
func (m *Module) Attempts() int {
	return m.machine.Attempts()
}

// OnStateChange sets a callback for connection state changes.
func (m *Module) OnStateChange(fn func(oldState, newState connection.State)) {
	m.machine.OnStateChange(fn)
}

// command runs a stack command and records it in the lifecycle log.
func (m *Module) command(name, arg string, fn func() error) error {
	err := fn()
	ev := &log.CommandEvent{Command: name, Arg: arg}
	if err != nil {
		ev.Err = err.Error()
	}
	m.emit(log.Event{Category: log.CategoryCommand, Command: ev})
	return err
}

func (m *Module) startFault(step string, err error) error {
	err = fmt.Errorf("%w: %s: %w", ErrStartFailed, step, err)
	m.emitFault(err, step)
	return err
}

func (m *Module) emitFault(err error, step string) {
	m.logger.Error("WiFi module fault", slog.String("step", step), slog.Any("error", err))
	m.emit(log.Event{
		Category: log.CategoryError,
		Error:    &log.ErrorEventData{Message: err.Error(), Context: step, Fatal: true},
	})
}

func (m *Module) emitState(entity log.StateEntity, oldState, newState, reason string) {
	m.emit(log.Event{
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (m *Module) emit(ev log.Event) {
	ev.Timestamp = time.Now()
	ev.SessionID = m.sessionID
	ev.DeviceName = m.id.DeviceName()
	m.plog.Log(ev)
}
