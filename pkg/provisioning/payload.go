// Package provisioning builds the out-of-band provisioning payload and hands
// it to a renderer.
//
// The payload is a compact JSON document understood by provisioning client
// applications:
//
//	{"ver":"v1","name":"Lamp 0007","pop":"1a2b3c4d","transport":"ble"}
//
// The field names and the field set are a compatibility contract with those
// clients. Rendering (typically a QR code) is delegated to a Renderer.
package provisioning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// PayloadVersion is the protocol tag carried in the "ver" field.
const PayloadVersion = "v1"

// Transport identifies the out-of-band channel.
type Transport string

const (
	// TransportBLE provisions over Bluetooth Low Energy.
	TransportBLE Transport = "ble"

	// TransportSoftAP provisions over a temporary access point.
	TransportSoftAP Transport = "softap"
)

// Valid reports whether t is a known transport.
func (t Transport) Valid() bool {
	return t == TransportBLE || t == TransportSoftAP
}

// Payload errors.
var (
	ErrInvalidPayload   = errors.New("invalid provisioning payload")
	ErrUnsupportedVer   = errors.New("unsupported payload version")
	ErrInvalidPoP       = errors.New("invalid proof of possession")
	ErrUnknownTransport = errors.New("unknown transport")
	ErrRenderFailed     = errors.New("render failed")
)

// Identity is the part of a device identity the payload carries.
type Identity interface {
	DeviceName() string
	ProofOfPossession() string
}

// Payload is the provisioning document.
type Payload struct {
	Version   string    `json:"ver"`
	Name      string    `json:"name"`
	PoP       string    `json:"pop"`
	Transport Transport `json:"transport"`
}

// NewPayload builds a payload for id on the given transport.
func NewPayload(id Identity, transport Transport) *Payload {
	return &Payload{
		Version:   PayloadVersion,
		Name:      id.DeviceName(),
		PoP:       id.ProofOfPossession(),
		Transport: transport,
	}
}

// Encode serializes the payload to its compact JSON form.
func (p *Payload) Encode() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// String returns the encoded payload, or "" if it does not validate.
func (p *Payload) String() string {
	b, err := p.Encode()
	if err != nil {
		return ""
	}
	return string(b)
}

// Validate checks the fixed schema.
func (p *Payload) Validate() error {
	if p.Version != PayloadVersion {
		return fmt.Errorf("%w: %q", ErrUnsupportedVer, p.Version)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidPayload)
	}
	if !isPoP(p.PoP) {
		return fmt.Errorf("%w: %q", ErrInvalidPoP, p.PoP)
	}
	if !p.Transport.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTransport, p.Transport)
	}
	return nil
}

// ParsePayload decodes and validates a payload document.
func ParsePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// isPoP checks for exactly 8 lowercase hex digits.
func isPoP(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
