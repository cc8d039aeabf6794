// Package netstack describes the network stack and provisioning manager the
// lifecycle module drives. Both are black boxes: this package only names the
// commands consumed and the configuration values passed to them.
//
// Every command is fallible. The lifecycle module treats a failure as fatal
// unless documented otherwise.
package netstack

// Mode is the radio operating mode.
type Mode uint8

const (
	// ModeNull disables the radio.
	ModeNull Mode = iota

	// ModeStation joins an existing access point.
	ModeStation

	// ModeAP acts as an access point.
	ModeAP

	// ModeAPStation runs both at once.
	ModeAPStation
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeNull:
		return "NULL"
	case ModeStation:
		return "STA"
	case ModeAP:
		return "AP"
	case ModeAPStation:
		return "APSTA"
	default:
		return "UNKNOWN"
	}
}

// InitConfig configures the Wi-Fi driver.
type InitConfig struct {
	StaticRxBuffers  int
	DynamicRxBuffers int
	DynamicTxBuffers int
	NVSEnabled       bool
}

// DefaultInitConfig mirrors the driver's default configuration.
func DefaultInitConfig() InitConfig {
	return InitConfig{
		StaticRxBuffers:  10,
		DynamicRxBuffers: 32,
		DynamicTxBuffers: 32,
		NVSEnabled:       true,
	}
}

// Stack is the network interface layer plus the Wi-Fi driver.
type Stack interface {
	// InitNetif brings up the network interface layer.
	InitNetif() error

	// CreateDefaultStation allocates the default station interface.
	CreateDefaultStation() error

	// InitWiFi initializes the Wi-Fi driver.
	InitWiFi(cfg InitConfig) error

	// SetMode selects the radio mode.
	SetMode(mode Mode) error

	// Start starts the driver in the selected mode.
	Start() error

	// Connect asks the station to associate with the configured access point.
	// Results arrive asynchronously as events.
	Connect() error

	// DeinitWiFi releases the Wi-Fi driver.
	DeinitWiFi() error

	// DeinitNetif releases the network interface layer.
	DeinitNetif() error
}
