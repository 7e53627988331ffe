// Package alarm maintains the historical record of alarm events.
//
// Every transition into the alarm state produces one alarm entry. Entries
// are never mutated after creation except for the acknowledged flag, and
// they survive restarts through the SQLite-backed repository. The Ledger
// keeps a full in-memory copy so the inbound message path and the API
// never block on the database for reads.
package alarm
