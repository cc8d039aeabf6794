// Package wifi is the lifecycle controller of the device's station network
// identity.
//
// A Module owns the derived identity, the proof-of-possession, the event
// dispatcher and the connection state machine. Its lifecycle is:
//
//	m, err := wifi.New(cfg, hw, stack, prov, bus)
//	if err := m.Initialize(); err != nil { ... } // fatal
//	if err := m.Start(); err != nil { ... }      // blocks until connected
//	defer m.Close()
//
// Start asks the provisioning manager whether station credentials are
// stored. If not, it opens a provisioning session named after the device,
// renders the provisioning payload and waits for the session to end;
// otherwise it starts the station directly. In both cases it then blocks
// until the connection state machine reports the first address.
//
// Start has no timeout. A device that can never associate stays in Start
// forever, relying on the unconditional reconnect policy or an external
// watchdog. StartContext is the explicit bounded variant.
//
// Close unregisters the event subscriptions before releasing the network
// stack, so no handler can run against a released module.
package wifi
