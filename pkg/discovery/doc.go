// Package discovery announces a connected device on the local network over
// mDNS/DNS-SD and finds announced devices.
//
// Once the station has an address, the device registers an instance of
// _wifiprov._tcp named after its device name:
//
//	Lamp 0007._wifiprov._tcp.local.
//
// The TXT record carries:
//
//	name=Lamp 0007   device name
//	suffix=0007      hardware-derived suffix
//	fw=1.0.0         firmware version (optional)
//	tp=ble           transport the device was provisioned over (optional)
package discovery
