package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/langlink/internal/lifecycle"
	"github.com/rickgao/langlink/internal/queue"
)

// Writer records connection transitions and writes them in batches.
// It implements the manager's Observer interface.
type Writer struct {
	cfg     Config
	db      DB
	logger  *slog.Logger
	session uuid.UUID
	now     func() time.Time

	// Input from the dispatcher
	input *queue.Queue[transitionRow]
	seq   int64 // Only touched by ObserveChange

	// Batching
	batch   []transitionRow
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats Stats
}

// NewWriter creates a journal writer with a fresh session id.
func NewWriter(cfg Config, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	session := uuid.New()
	return &Writer{
		cfg:     cfg,
		db:      db,
		logger:  logger.With("session_id", session.String()),
		session: session,
		now:     time.Now,
		input:   queue.New[transitionRow](64),
		batch:   make([]transitionRow, 0, cfg.BatchSize),
	}
}

// Session returns the id written with every row.
func (w *Writer) Session() uuid.UUID {
	return w.session
}

// EnsureSchema creates the connection_transitions table if needed.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create connection_transitions: %w", err)
	}
	return nil
}

// ObserveChange queues a row when the connection state or error log
// changed. It never blocks.
func (w *Writer) ObserveChange(change lifecycle.Change) {
	from, to := change.From, change.To
	if from.ConnPath() == to.ConnPath() && from.Ctx.RetryCount == to.Ctx.RetryCount {
		return
	}

	if w.input.Len() >= w.cfg.BufferSize {
		w.batchMu.Lock()
		w.stats.Dropped++
		w.batchMu.Unlock()
		return
	}

	w.seq++
	w.input.Push(transitionRow{
		SessionID:  w.session,
		Seq:        w.seq,
		At:         w.now(),
		Event:      change.Event.Name(),
		FromState:  from.ConnPath(),
		ToState:    to.ConnPath(),
		RetryCount: to.Ctx.RetryCount,
		LastError:  to.LastError(),
	})
}

// Start begins consuming rows and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer and flushes what is left.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	if w.cancel != nil {
		w.cancel()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
	}

	w.input.Close()
	w.collect()

	// Final flush
	w.flush(ctx)

	w.logger.Info("journal writer stopped")
	return nil
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop moves queued rows into the batch.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.input.Ready():
			if w.collect() {
				w.flush(w.ctx)
			}
		}
	}
}

// collect drains the input into the batch and reports whether the batch
// reached BatchSize.
func (w *Writer) collect() bool {
	rows := w.input.Drain(0)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, rows...)
	return len(w.batch) >= w.cfg.BatchSize
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]transitionRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	inserted, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.stats.Inserts += int64(inserted)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed transitions",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []transitionRow) (inserted int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSQL,
			r.SessionID, r.Seq, r.At, r.Event, r.FromState, r.ToState, r.RetryCount, r.LastError)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(ct.RowsAffected())
	}

	return inserted, nil
}
