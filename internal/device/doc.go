// Package device implements the Fire Watch device registry.
//
// The registry is the authoritative mapping of device identifier to device
// record. It wraps a Repository for persistence and keeps an in-memory cache
// so the inbound message path never waits on disk reads.
//
// Device status is always one of the enumerated Status values; the
// reconciliation engine in the monitor package is the only writer of status
// transitions. User-facing operations (Add, Update, Remove) validate input
// and return sentinel errors from errors.go.
//
// Device identifiers are substituted literally into MQTT topics
// (devices/{id}/status), so validation rejects '/', '#' and '+'.
package device
