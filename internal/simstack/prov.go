package simstack

import (
	"fmt"
	"log/slog"

	"github.com/wifiprov/wifiprov-go/pkg/event"
	"github.com/wifiprov/wifiprov-go/pkg/netstack"
	"github.com/wifiprov/wifiprov-go/pkg/persistence"
)

// session is an open provisioning session.
type session struct {
	security    netstack.Security
	pop         string
	serviceName string
	serviceKey  string
	done        chan struct{}
}

// SessionInfo describes the open provisioning session.
type SessionInfo struct {
	Security    netstack.Security
	PoP         string
	ServiceName string
	ServiceKey  string
}

// Init implements netstack.ProvisioningManager.
func (s *Sim) Init(cfg netstack.ManagerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.wifiInit {
		return ErrWiFiNotInit
	}
	if s.managerInit {
		return fmt.Errorf("provisioning manager: %w", ErrAlreadyInit)
	}
	s.managerInit = true
	s.managerCfg = cfg
	s.post(event.BaseProvisioning, event.ProvInit, nil)
	return nil
}

// IsProvisioned implements netstack.ProvisioningManager.
func (s *Sim) IsProvisioned() (bool, error) {
	s.mu.Lock()
	initialized := s.managerInit
	s.mu.Unlock()
	if !initialized {
		return false, ErrManagerNotInit
	}
	return s.cfg.Credentials.Exists()
}

// StartProvisioning implements netstack.ProvisioningManager.
func (s *Sim) StartProvisioning(security netstack.Security, pop, serviceName, serviceKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.managerInit {
		return ErrManagerNotInit
	}
	if s.session != nil {
		return ErrSessionActive
	}

	// Provisioning runs the radio in station mode alongside the scheme.
	s.mode = netstack.ModeStation
	s.session = &session{
		security:    security,
		pop:         pop,
		serviceName: serviceName,
		serviceKey:  serviceKey,
		done:        make(chan struct{}),
	}
	s.logger.Info("Provisioning session open",
		slog.String("service", serviceName),
		slog.String("scheme", s.managerCfg.Scheme.String()),
		slog.String("security", security.String()))
	s.post(event.BaseProvisioning, event.ProvStart, nil)
	return nil
}

// Session returns the open provisioning session, if any.
func (s *Sim) Session() (SessionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return SessionInfo{}, false
	}
	return SessionInfo{
		Security:    s.session.security,
		PoP:         s.session.pop,
		ServiceName: s.session.serviceName,
		ServiceKey:  s.session.serviceKey,
	}, true
}

// ProvideCredentials plays the provisioning client: it proves possession
// with pop and hands over station credentials. On success the credentials
// are stored, the station is started and the session ends. A wrong pop
// leaves the session open.
func (s *Sim) ProvideCredentials(pop, ssid, passphrase string) error {
	creds := &persistence.Credentials{SSID: ssid, Passphrase: passphrase}
	if err := creds.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session
	if sess == nil {
		return ErrNoSession
	}
	if sess.security != netstack.Security0 && pop != sess.pop {
		s.post(event.BaseProvisioning, event.ProvCredFail, &event.ProvFailure{Reason: event.ProvFailAuthError})
		return ErrPoPMismatch
	}

	if err := s.cfg.Credentials.Save(creds); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	s.post(event.BaseProvisioning, event.ProvCredRecv, &event.ProvCredentials{SSID: ssid})

	if err := s.startLocked(); err != nil {
		return err
	}
	s.post(event.BaseProvisioning, event.ProvCredSuccess, nil)
	s.post(event.BaseProvisioning, event.ProvEnd, nil)

	s.session = nil
	close(sess.done)
	return nil
}

// Wait implements netstack.ProvisioningManager. It returns immediately when
// no session is open.
func (s *Sim) Wait() {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return
	}

	select {
	case <-sess.done:
	case <-s.loopDone:
	}
}

// Deinit implements netstack.ProvisioningManager. An open session is
// abandoned.
func (s *Sim) Deinit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.managerInit {
		return
	}
	if s.session != nil {
		close(s.session.done)
		s.session = nil
	}
	s.managerInit = false
	s.post(event.BaseProvisioning, event.ProvDeinit, nil)
}

// Reset erases stored credentials, as a factory reset would.
func (s *Sim) Reset() error {
	return s.cfg.Credentials.Erase()
}

// Compile-time interface satisfaction checks.
var (
	_ netstack.Stack               = (*Sim)(nil)
	_ netstack.ProvisioningManager = (*Sim)(nil)
	_ event.Bus                    = (*Sim)(nil)
)
