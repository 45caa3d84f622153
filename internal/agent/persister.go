// ABOUTME: Coalescing write-behind persister for agent records.
// ABOUTME: Keeps SQLite I/O off the registry lock; only the latest state per agent is written.

package agent

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/2389/coven-board/internal/store"
)

const persistTimeout = 5 * time.Second

type persister struct {
	store  store.Store
	logger *slog.Logger

	mu      sync.Mutex
	pending map[int64]store.AgentRecord

	signal    chan struct{} // capacity 1; a queued signal covers every pending write
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func newPersister(s store.Store, logger *slog.Logger) *persister {
	p := &persister{
		store:   s,
		logger:  logger,
		pending: make(map[int64]store.AgentRecord),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go p.run()
	return p
}

// enqueue replaces any pending write for the same agent.
func (p *persister) enqueue(rec store.AgentRecord) {
	p.mu.Lock()
	p.pending[rec.ID] = rec
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.stopped)
	for {
		select {
		case <-p.signal:
			p.flush()
		case <-p.done:
			p.flush()
			return
		}
	}
}

func (p *persister) flush() {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	batch := make([]store.AgentRecord, 0, len(p.pending))
	for _, rec := range p.pending {
		batch = append(batch, rec)
	}
	p.pending = make(map[int64]store.AgentRecord)
	p.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })

	for _, rec := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := p.store.SaveAgent(ctx, &rec)
		cancel()
		if err != nil {
			p.logger.Error("failed to persist agent", "id", rec.ID, "name", rec.Name, "error", err)
			p.requeue(rec)
		}
	}
}

// requeue puts back a failed write unless a newer one arrived meanwhile.
// It is retried with the next change rather than in a loop.
func (p *persister) requeue(rec store.AgentRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, newer := p.pending[rec.ID]; !newer {
		p.pending[rec.ID] = rec
	}
}

// close flushes pending writes and stops the goroutine. Safe to call multiple times.
func (p *persister) close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	<-p.stopped
}
