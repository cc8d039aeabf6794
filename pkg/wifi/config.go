package wifi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/wifiprov/wifiprov-go/pkg/log"
	"github.com/wifiprov/wifiprov-go/pkg/netstack"
	"github.com/wifiprov/wifiprov-go/pkg/provisioning"
)

// Module errors.
var (
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrInitFailed         = errors.New("initialization failed")
	ErrStartFailed        = errors.New("start failed")
	ErrNotInitialized     = errors.New("module not initialized")
	ErrAlreadyInitialized = errors.New("module already initialized")
	ErrClosed             = errors.New("module closed")
)

// Config configures a Module.
type Config struct {
	// ServiceName prefixes the device name, e.g. "Lamp" gives "Lamp 0007".
	ServiceName string

	// Transport is the out-of-band provisioning channel.
	Transport provisioning.Transport

	// Security is the provisioning session security level.
	Security netstack.Security

	// ServiceKey is passed to the provisioning scheme (empty for BLE).
	ServiceKey string

	// SchemeEventHandler selects which radio memory the provisioning scheme
	// releases once it is done.
	SchemeEventHandler netstack.SchemeEventHandler

	// WiFi is the driver configuration passed at initialization.
	WiFi netstack.InitConfig

	// Renderer presents the provisioning payload. Required when the device
	// is not provisioned.
	Renderer provisioning.Renderer

	// Random is the proof-of-possession seed source. Nil means crypto/rand.
	Random io.Reader

	// Logger is the optional logger for operational output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives lifecycle events. If nil, they are dropped.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config for BLE provisioning with security level 1.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "PROV",
		Transport:          provisioning.TransportBLE,
		Security:           netstack.Security1,
		SchemeEventHandler: netstack.HandlerFreeBTDM,
		WiFi:               netstack.DefaultInitConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("%w: service name is required", ErrInvalidConfig)
	}
	if !c.Transport.Valid() {
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	if c.Security > netstack.Security2 {
		return fmt.Errorf("%w: unknown security level %d", ErrInvalidConfig, c.Security)
	}
	return nil
}

// scheme maps the payload transport to the provisioning manager scheme.
func (c *Config) scheme() netstack.Scheme {
	if c.Transport == provisioning.TransportSoftAP {
		return netstack.SchemeSoftAP
	}
	return netstack.SchemeBLE
}
