// Package monitor owns the state-reconciliation core.
//
// A Session ties the broker transport, the device registry and the alarm
// ledger together. Inbound messages are funnelled into a single buffered
// channel and consumed by one loop goroutine, so status transitions for a
// device are always applied in arrival order. User commands (device
// lifecycle, acknowledgment, broker reconfiguration) run under the session
// command mutex and go through the same transition function as inbound
// traffic.
//
// The transition rules live in engine.go and are pure: given a topic kind
// and payload they produce a target status and alarm message. Alarm ledger
// entries are edge-triggered, created only on the transition into the alarm
// status, never while already in it.
package monitor
