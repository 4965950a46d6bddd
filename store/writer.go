package store

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"timeline-api/domain"
	"timeline-api/storage"
)

const defaultWriteTimeout = 30 * time.Second

// snapshot is the full board state handed to the writer.
type snapshot struct {
	lanes []domain.Lane
	tasks []domain.Task
}

// snapshotWriter persists board snapshots on a dedicated goroutine. A
// single-slot buffer keeps only the latest snapshot while a write is in
// flight, so bursts of mutations coalesce into one write and completed
// writes can never reorder. Failed writes are logged and dropped; the next
// mutation produces a fresh snapshot anyway.
type snapshotWriter struct {
	boardID string
	adapter storage.Adapter
	logger  *log.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending *snapshot
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newSnapshotWriter(boardID string, adapter storage.Adapter, logger *log.Logger) *snapshotWriter {
	w := &snapshotWriter{
		boardID: boardID,
		adapter: adapter,
		logger:  logger,
		timeout: defaultWriteTimeout,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue replaces the pending snapshot. It never blocks.
func (w *snapshotWriter) Enqueue(snap snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending = &snap
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Close flushes the pending snapshot and stops the writer goroutine. It is
// idempotent.
func (w *snapshotWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.wake)
	w.mu.Unlock()
	<-w.done
}

func (w *snapshotWriter) run() {
	defer close(w.done)
	for range w.wake {
		w.flush()
	}
	// Final drain after Close so the last snapshot is not lost.
	w.flush()
}

func (w *snapshotWriter) flush() {
	w.mu.Lock()
	snap := w.pending
	w.pending = nil
	w.mu.Unlock()
	if snap == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.adapter.SaveTasks(ctx, w.boardID, snap.tasks); err != nil {
		w.logger.WithFields(log.Fields{"board": w.boardID, "error": err}).Error("task snapshot write failed")
	}
	if err := w.adapter.SaveLanes(ctx, w.boardID, snap.lanes); err != nil {
		w.logger.WithFields(log.Fields{"board": w.boardID, "error": err}).Error("lane snapshot write failed")
	}
}
