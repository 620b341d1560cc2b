package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by the journal.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config contains configuration for the journal writer.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize is the maximum number of queued rows; further rows are dropped.
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

// Stats contains journal writer counters.
type Stats struct {
	Inserts int64
	Flushes int64
	Errors  int64
	Dropped int64
}

// transitionRow is a row of the connection_transitions table.
type transitionRow struct {
	SessionID  uuid.UUID
	Seq        int64
	At         time.Time
	Event      string
	FromState  string
	ToState    string
	RetryCount int
	LastError  string
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS connection_transitions (
	session_id  UUID        NOT NULL,
	seq         BIGINT      NOT NULL,
	at          TIMESTAMPTZ NOT NULL,
	event       TEXT        NOT NULL,
	from_state  TEXT        NOT NULL,
	to_state    TEXT        NOT NULL,
	retry_count INTEGER     NOT NULL,
	last_error  TEXT        NOT NULL DEFAULT '',
	PRIMARY KEY (session_id, seq)
)`

const insertSQL = `
INSERT INTO connection_transitions (session_id, seq, at, event, from_state, to_state, retry_count, last_error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (session_id, seq) DO NOTHING`
