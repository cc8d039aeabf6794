package discovery

import (
	"errors"
	"time"
)

const (
	// ServiceType is the DNS-SD service type of a connected device.
	ServiceType = "_wifiprov._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the port announced when none is configured.
	DefaultPort = 80

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63

	// BrowseTimeout is the default browse duration.
	BrowseTimeout = 3 * time.Second
)

// TXT record keys.
const (
	TXTKeyName      = "name"
	TXTKeySuffix    = "suffix"
	TXTKeyFirmware  = "fw"
	TXTKeyTransport = "tp"
)

// Discovery errors.
var (
	ErrMissingRequired     = errors.New("missing required TXT field")
	ErrInvalidSuffix       = errors.New("invalid suffix")
	ErrInvalidInstanceName = errors.New("invalid instance name")
	ErrNotAnnounced        = errors.New("not announced")
)

// DeviceInfo is what a connected device announces about itself.
type DeviceInfo struct {
	// Name is the device name, also used as the instance name.
	Name string

	// Suffix is the 4-digit hex suffix derived from the hardware address.
	Suffix string

	// Firmware is the firmware version. Optional.
	Firmware string

	// Transport is the provisioning transport. Optional.
	Transport string

	// Port is the announced service port. Zero means DefaultPort.
	Port uint16
}

// DeviceService is a device found by browsing.
type DeviceService struct {
	DeviceInfo

	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// Host is the announced host name.
	Host string

	// Addresses are the announced IPv4 and IPv6 addresses.
	Addresses []string
}
