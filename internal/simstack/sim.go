package simstack

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/wifiprov/wifiprov-go/pkg/event"
	"github.com/wifiprov/wifiprov-go/pkg/netstack"
	"github.com/wifiprov/wifiprov-go/pkg/persistence"
)

// Simulator errors.
var (
	ErrNetifNotReady    = errors.New("network interface layer not initialized")
	ErrNoStation        = errors.New("default station not created")
	ErrWiFiNotInit      = errors.New("wifi not initialized")
	ErrWiFiNotStarted   = errors.New("wifi not started")
	ErrAlreadyInit      = errors.New("already initialized")
	ErrUnsupportedMode  = errors.New("unsupported mode")
	ErrManagerNotInit   = errors.New("provisioning manager not initialized")
	ErrSessionActive    = errors.New("provisioning session already active")
	ErrNoSession        = errors.New("no provisioning session")
	ErrPoPMismatch      = errors.New("proof of possession mismatch")
	ErrStopped          = errors.New("simulator stopped")
	ErrNoCredentialPath = errors.New("credential store required")
)

// Disconnect reason codes carried in StaDisconnected events.
const (
	ReasonAuthExpire       uint8 = 2
	ReasonAssocLeave       uint8 = 8
	ReasonHandshakeTimeout uint8 = 15
	ReasonBeaconTimeout    uint8 = 200
	ReasonNoAPFound        uint8 = 201
	ReasonAuthFail         uint8 = 202
)

// Config configures a Sim.
type Config struct {
	// Credentials stores provisioned station credentials. Required.
	Credentials *persistence.CredentialStore

	// HardwareAddr is the simulated station MAC.
	HardwareAddr net.HardwareAddr

	// ConnectFailures is how many connect commands fail with a handshake
	// timeout before association succeeds.
	ConnectFailures int

	// IPv4 and IPv6 are the addresses handed out on association. An invalid
	// address disables that family. With both disabled the station associates
	// but never acquires an address.
	IPv4 netip.Addr
	IPv6 netip.Addr

	// Logger is the optional logger. If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a configuration with both address families enabled
// and no connect failures.
func DefaultConfig(store *persistence.CredentialStore) Config {
	return Config{
		Credentials:  store,
		HardwareAddr: net.HardwareAddr{0x24, 0x6f, 0x28, 0xab, 0xcd, 0xef},
		IPv4:         netip.MustParseAddr("192.168.4.2"),
		IPv6:         netip.MustParseAddr("fe80::266f:28ff:feab:cdef"),
	}
}

// Sim is a simulated network stack.
type Sim struct {
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex

	// Stack state
	netif       bool
	station     bool
	wifiInit    bool
	mode        netstack.Mode
	started     bool
	associated  bool
	hasAddr     bool
	failures    int
	connects    int
	ssid        string
	managerInit bool
	managerCfg  netstack.ManagerConfig
	session     *session

	// Bus
	handlers map[uint64]subscription
	nextID   uint64

	// Delivery queue. qmu is separate so commands holding mu can post.
	qmu      sync.Mutex
	queue    []func()
	wake     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	running  atomic.Bool
}

type subscription struct {
	base    event.Base
	id      event.ID
	handler event.Handler
}

// New creates a simulator and starts its delivery goroutine.
func New(cfg Config) (*Sim, error) {
	if cfg.Credentials == nil {
		return nil, ErrNoCredentialPath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sim{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "simstack")),
		failures: cfg.ConnectFailures,
		handlers: make(map[uint64]subscription),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
	s.running.Store(true)
	go s.loop()
	return s, nil
}

// HardwareAddr returns the simulated station MAC. It satisfies
// identity.HardwareSource.
func (s *Sim) HardwareAddr() (net.HardwareAddr, error) {
	if len(s.cfg.HardwareAddr) == 0 {
		return nil, errors.New("no hardware address configured")
	}
	return append(net.HardwareAddr(nil), s.cfg.HardwareAddr...), nil
}

// Close stops the delivery goroutine. Queued events are dropped.
func (s *Sim) Close() {
	if !s.running.Swap(false) {
		return
	}
	s.cancel()
	<-s.loopDone
}

// Flush blocks until every event queued before the call has been delivered.
func (s *Sim) Flush() error {
	done := make(chan struct{})
	if !s.enqueue(func() { close(done) }) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-s.loopDone:
		return ErrStopped
	}
}

// Register implements event.Bus.
func (s *Sim) Register(base event.Base, id event.ID, handler event.Handler) (event.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	key := s.nextID
	s.handlers[key] = subscription{base: base, id: id, handler: handler}
	return &registration{sim: s, key: key}, nil
}

// Handlers returns the number of registered handlers.
func (s *Sim) Handlers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

type registration struct {
	sim  *Sim
	key  uint64
	once sync.Once
}

func (r *registration) Unregister() error {
	err := event.ErrNotRegistered
	r.once.Do(func() {
		r.sim.mu.Lock()
		delete(r.sim.handlers, r.key)
		r.sim.mu.Unlock()
		err = nil
	})
	return err
}

// post queues ev for delivery to every matching handler.
func (s *Sim) post(base event.Base, id event.ID, data any) {
	ev := event.Event{Base: base, ID: id, Data: data}
	s.enqueue(func() { s.deliver(ev) })
}

func (s *Sim) enqueue(fn func()) bool {
	if !s.running.Load() {
		return false
	}
	s.qmu.Lock()
	s.queue = append(s.queue, fn)
	s.qmu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *Sim) deliver(ev event.Event) {
	s.mu.Lock()
	var hs []event.Handler
	for _, sub := range s.handlers {
		if sub.base == ev.Base && (sub.id == event.AnyID || sub.id == ev.ID) {
			hs = append(hs, sub.handler)
		}
	}
	s.mu.Unlock()

	s.logger.Debug("Delivering event", slog.String("event", ev.String()), slog.Int("handlers", len(hs)))
	for _, h := range hs {
		h(ev)
	}
}

// loop runs queued work serially until Close.
func (s *Sim) loop() {
	defer close(s.loopDone)

	for s.ctx.Err() == nil {
		s.qmu.Lock()
		var next func()
		if len(s.queue) > 0 {
			next = s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
		}
		s.qmu.Unlock()

		if next != nil {
			next()
			continue
		}

		select {
		case <-s.wake:
		case <-s.ctx.Done():
			return
		}
	}
}
