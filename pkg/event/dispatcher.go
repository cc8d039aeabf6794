package event

import (
	"errors"
	"fmt"
	"sync"
)

// Handler receives one event. It runs on the network stack's delivery
// goroutine and must not retain ev.Data after returning.
type Handler func(ev Event)

// Registration is a live subscription on a Bus.
type Registration interface {
	Unregister() error
}

// Bus is the network stack's event bus.
type Bus interface {
	// Register subscribes handler to (base, id). id may be AnyID.
	Register(base Base, id ID, handler Handler) (Registration, error)
}

// Sink consumes dispatched events.
type Sink interface {
	HandleEvent(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

// HandleEvent calls f(ev).
func (f SinkFunc) HandleEvent(ev Event) { f(ev) }

// Subscription names one (base, id) entry of the dispatch table.
type Subscription struct {
	Base Base
	ID   ID
}

// String returns "BASE/NAME".
func (s Subscription) String() string {
	return string(s.Base) + "/" + Name(s.Base, s.ID)
}

// DefaultSubscriptions is the table the lifecycle module registers:
// every provisioning and Wi-Fi event, plus the address events.
func DefaultSubscriptions() []Subscription {
	return []Subscription{
		{BaseProvisioning, AnyID},
		{BaseWiFi, AnyID},
		{BaseIP, IPStaGotIP},
		{BaseIP, IPGotIP6},
		{BaseIP, IPStaLostIP},
	}
}

// Dispatcher routes bus events to a single sink.
type Dispatcher struct {
	mu sync.Mutex

	sink  Sink
	table []Subscription
	regs  []Registration
	done  bool
}

// NewDispatcher creates a dispatcher for the default subscription table.
func NewDispatcher(sink Sink) *Dispatcher {
	return &Dispatcher{sink: sink, table: DefaultSubscriptions()}
}

// Register subscribes every table entry on bus. It may succeed only once per
// dispatcher. On a partial failure the entries registered so far are
// released before the error is returned.
func (d *Dispatcher) Register(bus Bus) error {
	if bus == nil {
		return ErrNilBus
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done || len(d.regs) > 0 {
		return ErrAlreadyRegistered
	}

	regs := make([]Registration, 0, len(d.table))
	for _, sub := range d.table {
		reg, err := bus.Register(sub.Base, sub.ID, d.Dispatch)
		if err != nil {
			for _, r := range regs {
				_ = r.Unregister()
			}
			return fmt.Errorf("register %s: %w", sub, err)
		}
		regs = append(regs, reg)
	}

	d.regs = regs
	d.done = true
	return nil
}

// Registered reports whether the dispatcher currently holds subscriptions.
func (d *Dispatcher) Registered() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.regs) > 0
}

// Unregister releases all subscriptions. The dispatcher cannot be registered
// again afterwards.
func (d *Dispatcher) Unregister() error {
	d.mu.Lock()
	regs := d.regs
	d.regs = nil
	d.mu.Unlock()

	if len(regs) == 0 {
		return ErrNotRegistered
	}

	var errs []error
	for _, r := range regs {
		if err := r.Unregister(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatch forwards ev to the sink unchanged.
func (d *Dispatcher) Dispatch(ev Event) {
	d.sink.HandleEvent(ev)
}
