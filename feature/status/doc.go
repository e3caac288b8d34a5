// Package status exposes the queue and the reconciliation of single records over HTTP.
//
// # Endpoints
//
//   - GET  /status/queue: pending rows per priority, claimed rows included
//   - GET  /status/cursors: detector lane watermarks
//   - POST /status/enqueue/:id: queue a record, optionally with ?type=<change type>
//   - GET  /status/records/:id: dry-run reconciliation of a record
//
// Concurrent previews of the same record share one upstream fetch.
package status
