package netstack

// Security is the provisioning session security level.
type Security uint8

const (
	// Security0 is an unencrypted session. Development only.
	Security0 Security = iota

	// Security1 is a Curve25519 key exchange authenticated by the proof of
	// possession.
	Security1

	// Security2 is SRP6a with a username and salt.
	Security2
)

// String returns the security level name.
func (s Security) String() string {
	switch s {
	case Security0:
		return "SECURITY_0"
	case Security1:
		return "SECURITY_1"
	case Security2:
		return "SECURITY_2"
	default:
		return "UNKNOWN"
	}
}

// Scheme is the out-of-band transport the provisioning manager serves.
type Scheme uint8

const (
	// SchemeBLE provisions over Bluetooth Low Energy.
	SchemeBLE Scheme = iota

	// SchemeSoftAP provisions over a temporary access point.
	SchemeSoftAP
)

// String returns the scheme name.
func (s Scheme) String() string {
	switch s {
	case SchemeBLE:
		return "BLE"
	case SchemeSoftAP:
		return "SOFTAP"
	default:
		return "UNKNOWN"
	}
}

// SchemeEventHandler selects what the scheme does with radio memory it does
// not need once provisioning ends.
type SchemeEventHandler uint8

const (
	// HandlerNone keeps all memory.
	HandlerNone SchemeEventHandler = iota

	// HandlerFreeBTDM releases both classic Bluetooth and BLE memory.
	HandlerFreeBTDM

	// HandlerFreeBLE releases BLE memory only.
	HandlerFreeBLE

	// HandlerFreeBT releases classic Bluetooth memory only.
	HandlerFreeBT
)

// String returns the handler name.
func (h SchemeEventHandler) String() string {
	switch h {
	case HandlerNone:
		return "NONE"
	case HandlerFreeBTDM:
		return "FREE_BTDM"
	case HandlerFreeBLE:
		return "FREE_BLE"
	case HandlerFreeBT:
		return "FREE_BT"
	default:
		return "UNKNOWN"
	}
}

// ManagerConfig configures the provisioning manager.
type ManagerConfig struct {
	Scheme             Scheme
	SchemeEventHandler SchemeEventHandler
}

// ProvisioningManager runs the out-of-band credential exchange.
type ProvisioningManager interface {
	// Init prepares the manager for the configured scheme.
	Init(cfg ManagerConfig) error

	// IsProvisioned reports whether station credentials are already stored.
	IsProvisioned() (bool, error)

	// StartProvisioning opens a session. serviceName identifies the session
	// to clients; serviceKey is scheme specific and may be empty.
	StartProvisioning(security Security, pop, serviceName, serviceKey string) error

	// Wait blocks until the session has ended. It must also return once
	// Deinit is called, since an abandoned session never ends by itself.
	Wait()

	// Deinit releases the manager and, per the scheme event handler, the
	// radio memory it used. It ends any open session and unblocks Wait.
	Deinit()
}
