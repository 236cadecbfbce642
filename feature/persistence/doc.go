// Package persistence exposes the reconciler over HTTP.
//
// # HTTP Endpoints
//
//   - GET /persistence/status : Queue depths and dead-letter count.
//   - GET /persistence/records/:kind/:id : Stored state of one record.
//   - POST /persistence/records : Submit a record for insert, merge or delete
//     (body: {"action": "...", "record": {...}, "sync": false}).
//   - GET /persistence/deadletter : Archived escalations (supports ?kind=).
//
// The Service is also used by the deadletter CLI commands for replay.
package persistence
