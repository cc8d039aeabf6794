// Package simstack is an in-process network stack for running the lifecycle
// module without a radio.
//
// Sim implements netstack.Stack, netstack.ProvisioningManager and event.Bus.
// Events are delivered serially on one goroutine, like the real stack's
// event task. Handlers may issue commands from that goroutine; the events
// those commands cause are queued behind the current one.
//
// A provisioning session is completed by ProvideCredentials, which plays the
// part of the provisioning client. Stored credentials live in a
// persistence.CredentialStore, so a second run starts the station directly.
package simstack
