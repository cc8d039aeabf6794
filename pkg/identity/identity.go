// Package identity derives the stable device name and the proof-of-possession
// secret used during out-of-band provisioning.
//
// The device name is "<service> <suffix>" where the 4-digit hex suffix folds
// the six hardware address bytes into two by XOR. It is a pure function of the
// hardware address and never random.
//
// The proof-of-possession is the 8-digit hex rendering of a 32-bit seed drawn
// once when the Identity is constructed and reused for every provisioning
// attempt made with it.
package identity

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// Identity errors.
var (
	ErrHardwareUnavailable = errors.New("hardware identity unavailable")
	ErrShortHardwareAddr   = errors.New("hardware address shorter than 6 bytes")
	ErrEmptyServiceName    = errors.New("service name is empty")
	ErrSeedUnavailable     = errors.New("random seed unavailable")
)

// HardwareAddrLen is the number of hardware bytes folded into the suffix.
const HardwareAddrLen = 6

// HardwareSource provides the device's hardware-unique bytes.
type HardwareSource interface {
	HardwareAddr() (net.HardwareAddr, error)
}

// StaticSource returns a fixed hardware address.
type StaticSource net.HardwareAddr

// HardwareAddr returns a copy of the static address.
func (s StaticSource) HardwareAddr() (net.HardwareAddr, error) {
	if len(s) == 0 {
		return nil, ErrHardwareUnavailable
	}
	out := make(net.HardwareAddr, len(s))
	copy(out, s)
	return out, nil
}

// InterfaceSource reads the hardware address of a named host interface.
type InterfaceSource string

// HardwareAddr looks up the interface's MAC address.
func (s InterfaceSource) HardwareAddr() (net.HardwareAddr, error) {
	iface, err := net.InterfaceByName(string(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHardwareUnavailable, err)
	}
	if len(iface.HardwareAddr) == 0 {
		return nil, fmt.Errorf("%w: interface %s has no hardware address", ErrHardwareUnavailable, s)
	}
	return iface.HardwareAddr, nil
}

// Identity holds the derived device identity. It is immutable after New and
// safe for concurrent use.
type Identity struct {
	serviceName string
	suffix      string
	seed        uint32
}

type options struct {
	random io.Reader
}

// Option configures New.
type Option func(*options)

// WithRandom sets the source the proof-of-possession seed is drawn from.
// The default is crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(o *options) { o.random = r }
}

// New reads the hardware address and draws the proof-of-possession seed.
// Any failure is fatal for the caller; nothing is retried.
func New(serviceName string, hw HardwareSource, opts ...Option) (*Identity, error) {
	if serviceName == "" {
		return nil, ErrEmptyServiceName
	}
	if hw == nil {
		return nil, ErrHardwareUnavailable
	}

	o := options{random: rand.Reader}
	for _, opt := range opts {
		opt(&o)
	}

	mac, err := hw.HardwareAddr()
	if err != nil {
		if errors.Is(err, ErrHardwareUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrHardwareUnavailable, err)
	}

	suffix, err := Suffix(mac)
	if err != nil {
		return nil, err
	}

	var buf [4]byte
	if _, err := io.ReadFull(o.random, buf[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSeedUnavailable, err)
	}

	return &Identity{
		serviceName: serviceName,
		suffix:      suffix,
		seed:        binary.BigEndian.Uint32(buf[:]),
	}, nil
}

// Suffix folds a hardware address into the 4-digit lowercase hex suffix:
// hex(b0^b1^b2) followed by hex(b3^b4^b5). Bytes past the sixth are ignored.
func Suffix(mac net.HardwareAddr) (string, error) {
	if len(mac) < HardwareAddrLen {
		return "", ErrShortHardwareAddr
	}
	hi := mac[0] ^ mac[1] ^ mac[2]
	lo := mac[3] ^ mac[4] ^ mac[5]
	return fmt.Sprintf("%02x%02x", hi, lo), nil
}

// ServiceName returns the configured service name.
func (id *Identity) ServiceName() string {
	return id.serviceName
}

// Suffix returns the hardware-derived 4-digit suffix.
func (id *Identity) Suffix() string {
	return id.suffix
}

// DeviceName returns "<service> <suffix>".
func (id *Identity) DeviceName() string {
	return id.serviceName + " " + id.suffix
}

// ProofOfPossession returns the seed as 8 lowercase hex digits.
func (id *Identity) ProofOfPossession() string {
	return fmt.Sprintf("%08x", id.seed)
}

// String returns the device name.
func (id *Identity) String() string {
	return id.DeviceName()
}
