// Package journal persists observed connection transitions to PostgreSQL
// for diagnostics.
//
// Rows are queued by the manager's dispatcher without blocking and written
// in batches with pgx. The manager's state never depends on the journal.
package journal
