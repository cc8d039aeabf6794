package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// AnnouncerConfig configures an Announcer.
type AnnouncerConfig struct {
	// Interface restricts announcements to one network interface.
	// Empty string means all interfaces.
	Interface string

	// TTL overrides the record TTL. Zero keeps the zeroconf default.
	TTL time.Duration

	// Logger is the optional logger. If nil, logging is disabled.
	Logger *slog.Logger
}

// Announcer advertises a connected device over mDNS.
type Announcer struct {
	config AnnouncerConfig
	logger *slog.Logger

	mu     sync.Mutex
	server *zeroconf.Server
	info   DeviceInfo
}

// NewAnnouncer creates an announcer. Nothing is sent until Announce.
func NewAnnouncer(config AnnouncerConfig) *Announcer {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Announcer{config: config, logger: logger}
}

// interfaces returns the interfaces to announce on. nil means all.
func (a *Announcer) interfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Announce registers the device, replacing any previous announcement.
func (a *Announcer) Announce(info DeviceInfo) error {
	if err := ValidateInstanceName(info.Name); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	port := int(info.Port)
	if port == 0 {
		port = DefaultPort
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.Name,
		ServiceType,
		Domain,
		port,
		TXTRecordsToStrings(EncodeTXT(&info)),
		a.interfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register device service: %w", err)
	}

	a.server = server
	a.info = info
	a.logger.Info("Announced device", slog.String("instance", info.Name), slog.Int("port", port))
	return nil
}

// Update replaces the TXT records of the active announcement.
func (a *Announcer) Update(info DeviceInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotAnnounced
	}
	a.server.SetText(TXTRecordsToStrings(EncodeTXT(&info)))
	a.info = info
	return nil
}

// Announced reports whether an announcement is active, and what it carries.
func (a *Announcer) Announced() (DeviceInfo, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.info, a.server != nil
}

// Stop withdraws the announcement. Stopping an idle announcer is a no-op.
func (a *Announcer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.logger.Info("Withdrew device announcement", slog.String("instance", a.info.Name))
	}
}
