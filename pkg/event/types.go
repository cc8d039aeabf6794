package event

import (
	"errors"
	"fmt"
	"net/netip"
)

// Dispatcher errors.
var (
	ErrAlreadyRegistered = errors.New("dispatcher already registered")
	ErrNotRegistered     = errors.New("dispatcher not registered")
	ErrNilBus            = errors.New("event bus is nil")
)

// Base identifies an event category.
type Base string

const (
	// BaseProvisioning carries provisioning manager events.
	BaseProvisioning Base = "WIFI_PROV_EVENT"

	// BaseWiFi carries Wi-Fi connection manager events.
	BaseWiFi Base = "WIFI_EVENT"

	// BaseIP carries address assignment events.
	BaseIP Base = "IP_EVENT"
)

// ID identifies an event subtype within a Base.
type ID int32

// AnyID subscribes to every ID of a base.
const AnyID ID = -1

// WIFI_EVENT subtypes.
const (
	WiFiReady ID = iota
	WiFiScanDone
	WiFiStaStart
	WiFiStaStop
	WiFiStaConnected
	WiFiStaDisconnected
)

// IP_EVENT subtypes.
const (
	IPStaGotIP ID = iota
	IPStaLostIP
	IPAPStaIPAssigned
	IPGotIP6
)

// WIFI_PROV_EVENT subtypes.
const (
	ProvInit ID = iota
	ProvStart
	ProvCredRecv
	ProvCredFail
	ProvCredSuccess
	ProvEnd
	ProvDeinit
)

// Name returns the symbolic name of id within base.
func Name(base Base, id ID) string {
	if id == AnyID {
		return "ANY"
	}
	switch base {
	case BaseWiFi:
		switch id {
		case WiFiReady:
			return "WIFI_READY"
		case WiFiScanDone:
			return "SCAN_DONE"
		case WiFiStaStart:
			return "STA_START"
		case WiFiStaStop:
			return "STA_STOP"
		case WiFiStaConnected:
			return "STA_CONNECTED"
		case WiFiStaDisconnected:
			return "STA_DISCONNECTED"
		}
	case BaseIP:
		switch id {
		case IPStaGotIP:
			return "STA_GOT_IP"
		case IPStaLostIP:
			return "STA_LOST_IP"
		case IPAPStaIPAssigned:
			return "AP_STAIPASSIGNED"
		case IPGotIP6:
			return "GOT_IP6"
		}
	case BaseProvisioning:
		switch id {
		case ProvInit:
			return "PROV_INIT"
		case ProvStart:
			return "PROV_START"
		case ProvCredRecv:
			return "PROV_CRED_RECV"
		case ProvCredFail:
			return "PROV_CRED_FAIL"
		case ProvCredSuccess:
			return "PROV_CRED_SUCCESS"
		case ProvEnd:
			return "PROV_END"
		case ProvDeinit:
			return "PROV_DEINIT"
		}
	}
	return fmt.Sprintf("UNKNOWN(%d)", int32(id))
}

// Event is a single notification from the network stack.
type Event struct {
	Base Base
	ID   ID

	// Data is the subtype-specific payload. It is owned by the network stack
	// and only valid until the handler returns.
	Data any
}

// String returns "BASE/NAME".
func (e Event) String() string {
	return string(e.Base) + "/" + Name(e.Base, e.ID)
}

// Is reports whether e has the given base and id.
func (e Event) Is(base Base, id ID) bool {
	return e.Base == base && e.ID == id
}

// GotIPv4 is the payload of IP_EVENT/STA_GOT_IP.
type GotIPv4 struct {
	Addr    netip.Addr
	Netmask netip.Addr
	Gateway netip.Addr

	// Changed is true when the address differs from the previous lease.
	Changed bool
}

// GotIPv6 is the payload of IP_EVENT/GOT_IP6.
type GotIPv6 struct {
	Addr netip.Addr

	// Index is the address slot in the interface's IPv6 table.
	Index int
}

// StaDisconnected is the payload of WIFI_EVENT/STA_DISCONNECTED.
type StaDisconnected struct {
	SSID   string
	Reason uint8
	RSSI   int8
}

// StaConnected is the payload of WIFI_EVENT/STA_CONNECTED.
type StaConnected struct {
	SSID    string
	Channel uint8
}

// ProvCredentials is the payload of WIFI_PROV_EVENT/PROV_CRED_RECV.
type ProvCredentials struct {
	SSID string
}

// ProvFailReason explains a PROV_CRED_FAIL event.
type ProvFailReason uint8

const (
	// ProvFailAuthError means the station rejected the passphrase.
	ProvFailAuthError ProvFailReason = iota

	// ProvFailAPNotFound means the access point was not found.
	ProvFailAPNotFound
)

// String returns the reason name.
func (r ProvFailReason) String() string {
	switch r {
	case ProvFailAuthError:
		return "AUTH_ERROR"
	case ProvFailAPNotFound:
		return "AP_NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// ProvFailure is the payload of WIFI_PROV_EVENT/PROV_CRED_FAIL.
type ProvFailure struct {
	Reason ProvFailReason
}
