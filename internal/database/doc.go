// Package database provides the PostgreSQL connection pool used by the
// transition journal.
package database
