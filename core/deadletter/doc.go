// Package deadletter archives records the reconciler gave up on.
//
// Every escalation becomes one JSON object in object storage, keyed by
// record kind, record id and escalation time. The archive can be listed,
// loaded back for replay, and purged.
package deadletter
