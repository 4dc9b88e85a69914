// Package results persists the final step of completed jobs so that clients
// can fetch it independently of any live connection.
//
// Two backends implement Store:
//
//   - FileStore writes one pretty-printed <requestID>.json file per job.
//   - SQLiteStore keeps results in a task_results table (modernc.org/sqlite).
//
// Fetch returns the stored bytes verbatim, so repeated reads of the same
// identifier are identical. Failed jobs are never stored; Fetch reports
// ErrNotFound for them as for unknown identifiers.
package results
