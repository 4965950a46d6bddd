package store

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"timeline-api/storage"
)

// Registry hands out one Board per board id, creating and loading it on
// first use. Load failures are logged and the board starts from its sample
// data; the UI stays available regardless of storage health.
type Registry struct {
	adapter storage.Adapter
	logger  *log.Logger

	mu     sync.Mutex
	boards map[string]*Board
}

// NewRegistry creates a registry backed by the given adapter.
func NewRegistry(adapter storage.Adapter, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Registry{
		adapter: adapter,
		logger:  logger,
		boards:  make(map[string]*Board),
	}
}

// Board returns the board for the given id, creating it from storage on
// first access.
func (r *Registry) Board(ctx context.Context, id string) *Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.boards[id]; ok {
		return b
	}
	b := New(id, r.adapter, r.logger)
	if err := b.LoadFromStorage(ctx); err != nil {
		r.logger.WithFields(log.Fields{"board": id, "error": err}).Error("board load failed, starting from defaults")
	}
	r.boards[id] = b
	return b
}

// Close flushes and stops every board's snapshot writer.
func (r *Registry) Close() {
	r.mu.Lock()
	boards := make([]*Board, 0, len(r.boards))
	for _, b := range r.boards {
		boards = append(boards, b)
	}
	r.mu.Unlock()
	for _, b := range boards {
		b.Close()
	}
}
