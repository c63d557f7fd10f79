package workers

import (
	"context"
	"log/slog"
	"sync"

	"signalhub/internal/domain"

	"github.com/google/uuid"
)

type CacheInvalidatorStore interface {
	Invalidate(ctx context.Context, id uuid.UUID) error
}

type Subscriber interface {
	Subscribe(h func(domain.ChangeEvent)) (unsubscribe func())
}

// CacheInvalidator evicts cached reports touched by updates and deletes
// from other writers. A small pool drains the jobs queue.
type CacheInvalidator struct {
	cache    CacheInvalidatorStore
	feed     Subscriber
	jobs     chan uuid.UUID
	poolSize int
	logger   *slog.Logger
}

func NewCacheInvalidator(cache CacheInvalidatorStore, feed Subscriber, poolSize int, logger *slog.Logger) *CacheInvalidator {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &CacheInvalidator{
		cache:    cache,
		feed:     feed,
		jobs:     make(chan uuid.UUID, 100),
		poolSize: poolSize,
		logger:   logger,
	}
}

func (w *CacheInvalidator) Run(ctx context.Context) {
	unsubscribe := w.feed.Subscribe(w.producer)
	defer unsubscribe()

	var wg sync.WaitGroup
	for i := 0; i < w.poolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.worker(ctx)
		}()
	}
	wg.Wait()
}

func (w *CacheInvalidator) producer(ev domain.ChangeEvent) {
	if ev.Kind == domain.EventInsert || ev.Report == nil {
		return
	}
	select {
	case w.jobs <- ev.Report.ID:
	default:
		w.logger.Warn("invalidation queue full", slog.String("id", ev.Report.ID.String()))
	}
}

func (w *CacheInvalidator) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-w.jobs:
			if err := w.cache.Invalidate(ctx, id); err != nil {
				w.logger.Warn("cache invalidate failed", slog.String("id", id.String()), slog.Any("error", err))
			}
		}
	}
}
