// Package persistence stores station credentials received during
// provisioning so the device can start the station directly on the next boot.
//
// Credentials are kept as a JSON file. An absent file means the device is not
// provisioned.
package persistence
