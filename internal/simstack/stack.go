package simstack

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/wifiprov/wifiprov-go/pkg/event"
	"github.com/wifiprov/wifiprov-go/pkg/netstack"
)

// InitNetif implements netstack.Stack.
func (s *Sim) InitNetif() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.netif {
		return fmt.Errorf("netif: %w", ErrAlreadyInit)
	}
	s.netif = true
	return nil
}

// CreateDefaultStation implements netstack.Stack.
func (s *Sim) CreateDefaultStation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.netif {
		return ErrNetifNotReady
	}
	s.station = true
	return nil
}

// InitWiFi implements netstack.Stack.
func (s *Sim) InitWiFi(cfg netstack.InitConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.station {
		return ErrNoStation
	}
	if s.wifiInit {
		return fmt.Errorf("wifi: %w", ErrAlreadyInit)
	}
	if cfg.StaticRxBuffers <= 0 {
		return fmt.Errorf("wifi: invalid static rx buffer count %d", cfg.StaticRxBuffers)
	}
	s.wifiInit = true
	s.post(event.BaseWiFi, event.WiFiReady, nil)
	return nil
}

// SetMode implements netstack.Stack.
func (s *Sim) SetMode(mode netstack.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.wifiInit {
		return ErrWiFiNotInit
	}
	if mode != netstack.ModeStation && mode != netstack.ModeAPStation {
		return fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}
	s.mode = mode
	return nil
}

// Start implements netstack.Stack. It loads the stored credentials the
// station will connect with.
func (s *Sim) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.wifiInit {
		return ErrWiFiNotInit
	}
	return s.startLocked()
}

func (s *Sim) startLocked() error {
	creds, err := s.cfg.Credentials.Load()
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if creds != nil {
		s.ssid = creds.SSID
	}
	if s.mode == netstack.ModeNull {
		s.mode = netstack.ModeStation
	}
	s.started = true
	s.post(event.BaseWiFi, event.WiFiStaStart, nil)
	return nil
}

// Connect implements netstack.Stack. The outcome arrives as events: a
// disconnect while configured failures remain or no credentials are stored,
// otherwise association followed by one event per enabled address family.
func (s *Sim) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrWiFiNotStarted
	}
	s.connects++

	switch {
	case s.ssid == "":
		s.post(event.BaseWiFi, event.WiFiStaDisconnected, &event.StaDisconnected{Reason: ReasonNoAPFound})
		return nil
	case s.failures > 0:
		s.failures--
		s.post(event.BaseWiFi, event.WiFiStaDisconnected, &event.StaDisconnected{
			SSID:   s.ssid,
			Reason: ReasonHandshakeTimeout,
			RSSI:   -67,
		})
		return nil
	}

	s.associated = true
	s.post(event.BaseWiFi, event.WiFiStaConnected, &event.StaConnected{SSID: s.ssid, Channel: 6})
	s.assignAddrsLocked()
	return nil
}

func (s *Sim) assignAddrsLocked() {
	if s.cfg.IPv4.IsValid() {
		s.hasAddr = true
		s.post(event.BaseIP, event.IPStaGotIP, &event.GotIPv4{
			Addr:    s.cfg.IPv4,
			Netmask: netip.MustParseAddr("255.255.255.0"),
			Gateway: gatewayFor(s.cfg.IPv4),
			Changed: true,
		})
	}
	if s.cfg.IPv6.IsValid() {
		s.hasAddr = true
		s.post(event.BaseIP, event.IPGotIP6, &event.GotIPv6{Addr: s.cfg.IPv6})
	}
}

// gatewayFor returns the .1 address of addr's /24.
func gatewayFor(addr netip.Addr) netip.Addr {
	b := addr.As4()
	b[3] = 1
	return netip.AddrFrom4(b)
}

// DeinitWiFi implements netstack.Stack.
func (s *Sim) DeinitWiFi() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.wifiInit {
		return ErrWiFiNotInit
	}
	if s.started {
		s.post(event.BaseWiFi, event.WiFiStaStop, nil)
	}
	s.wifiInit = false
	s.started = false
	s.associated = false
	s.hasAddr = false
	s.mode = netstack.ModeNull
	return nil
}

// DeinitNetif implements netstack.Stack.
func (s *Sim) DeinitNetif() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.netif {
		return ErrNetifNotReady
	}
	s.netif = false
	s.station = false
	return nil
}

// Disconnect drops the association as the access point would, with reason.
func (s *Sim) Disconnect(reason uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.associated {
		return ErrWiFiNotStarted
	}
	s.associated = false
	s.post(event.BaseWiFi, event.WiFiStaDisconnected, &event.StaDisconnected{SSID: s.ssid, Reason: reason})
	if s.hasAddr {
		s.hasAddr = false
		s.post(event.BaseIP, event.IPStaLostIP, nil)
	}
	return nil
}

// LoseIP expires the address lease while staying associated.
func (s *Sim) LoseIP() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasAddr {
		return fmt.Errorf("no address assigned")
	}
	s.hasAddr = false
	s.post(event.BaseIP, event.IPStaLostIP, nil)
	return nil
}

// RenewIP hands out the configured addresses again.
func (s *Sim) RenewIP() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.associated {
		return ErrWiFiNotStarted
	}
	s.assignAddrsLocked()
	return nil
}

// SetConnectFailures sets how many further connect commands fail.
func (s *Sim) SetConnectFailures(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

// Status is a snapshot of the simulated stack.
type Status struct {
	Mode        netstack.Mode
	Started     bool
	Associated  bool
	HasAddr     bool
	SSID        string
	Connects    int
	Provisioned bool
	Session     bool
}

// Status returns a snapshot of the simulated stack.
func (s *Sim) Status() Status {
	s.mu.Lock()
	st := Status{
		Mode:       s.mode,
		Started:    s.started,
		Associated: s.associated,
		HasAddr:    s.hasAddr,
		SSID:       s.ssid,
		Connects:   s.connects,
		Session:    s.session != nil,
	}
	s.mu.Unlock()

	provisioned, err := s.cfg.Credentials.Exists()
	if err != nil {
		s.logger.Warn("Failed to read credentials", slog.Any("error", err))
	}
	st.Provisioned = provisioned
	return st
}
