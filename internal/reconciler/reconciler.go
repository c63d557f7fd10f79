// Package reconciler keeps a paginated, filtered view of reports in sync
// with the change feed without re-querying on every event.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"signalhub/internal/domain"
)

var (
	// ErrStaleQuery is returned by SetFilter when a newer filter was set
	// while its query was in flight. The newer view wins.
	ErrStaleQuery = errors.New("reconciler: query superseded by a newer filter")
	ErrNoView     = errors.New("reconciler: no filter set")
)

const DefaultBuffer = 256

type Querier interface {
	List(ctx context.Context, f domain.Filter) (*domain.ReportPage, error)
}

type Source interface {
	Subscribe(h func(domain.ChangeEvent)) (unsubscribe func())
}

type tagged struct {
	gen uint64
	ev  domain.ChangeEvent
}

// Reconciler owns a single View. Event application and view installation
// are serialized by mu; generations are minted before a query starts so a
// late result or a stale event can be recognised and dropped. Events tagged
// with the generation of a query still in flight are held and folded into
// that query's result when it is installed.
type Reconciler struct {
	querier Querier
	source  Source
	logger  *slog.Logger

	minted atomic.Uint64
	events chan tagged

	mu         sync.Mutex
	view       View
	hasView    bool
	inFlight   uint64
	pendingGen uint64
	pending    []domain.ChangeEvent
	onChange   func(View)
	onDrop     func()
}

func New(q Querier, src Source, buffer int, logger *slog.Logger) *Reconciler {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Reconciler{
		querier:  q,
		source:   src,
		logger:   logger,
		events:   make(chan tagged, buffer),
		onChange: func(View) {},
		onDrop:   func() {},
	}
}

// OnChange registers fn to receive a copy of the view after every change.
// fn runs on the goroutine that made the change.
func (r *Reconciler) OnChange(fn func(View)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

func (r *Reconciler) OnDropped(fn func()) {
	r.mu.Lock()
	r.onDrop = fn
	r.mu.Unlock()
}

// Generation is the most recently minted generation, which may belong to a
// query still in flight.
func (r *Reconciler) Generation() uint64 {
	return r.minted.Load()
}

// View returns a copy of the installed view and whether one exists.
func (r *Reconciler) View() (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view.clone(), r.hasView
}

// SetFilter mints a new generation, queries, and installs the result unless
// another SetFilter or Refresh started meanwhile.
func (r *Reconciler) SetFilter(ctx context.Context, f domain.Filter) (View, error) {
	r.mu.Lock()
	gen := r.minted.Add(1)
	r.inFlight = gen
	r.mu.Unlock()

	page, err := r.querier.List(ctx, f)
	if err != nil {
		r.mu.Lock()
		r.release(gen)
		r.mu.Unlock()
		r.logger.Warn("view query failed", slog.Uint64("generation", gen), slog.Any("error", err))
		return View{}, err
	}

	r.mu.Lock()
	if r.minted.Load() != gen {
		r.release(gen)
		r.mu.Unlock()
		r.logger.Debug("discarding superseded query result", slog.Uint64("generation", gen))
		return View{}, ErrStaleQuery
	}
	items := make([]*domain.Report, 0, len(page.Reports))
	items = append(items, page.Reports...)
	r.view = View{Filter: f, Generation: gen, Items: items, Total: page.Total}
	r.hasView = true
	if r.pendingGen == gen {
		// Held events may already be in the snapshot. Item replacement is
		// idempotent; any count overshoot is healed by the next refresh.
		for _, ev := range r.pending {
			Fold(&r.view, ev)
		}
	}
	r.release(gen)
	snapshot, notify := r.view.clone(), r.onChange
	r.mu.Unlock()

	notify(snapshot)
	return snapshot, nil
}

// Refresh re-runs the current filter under a new generation. This is the
// point where tolerated count drift is corrected.
func (r *Reconciler) Refresh(ctx context.Context) (View, error) {
	r.mu.Lock()
	f, ok := r.view.Filter, r.hasView
	r.mu.Unlock()
	if !ok {
		return View{}, ErrNoView
	}
	return r.SetFilter(ctx, f)
}

// Apply folds ev into the view if gen is the installed generation. Events
// for the newest generation, whose query has not returned yet, are held
// until it is installed; events from any other generation are dropped.
func (r *Reconciler) Apply(gen uint64, ev domain.ChangeEvent) bool {
	r.mu.Lock()
	if !r.hasView || gen != r.view.Generation {
		pending := gen != 0 && gen == r.inFlight
		dropped := pending && !r.hold(gen, ev)
		drop := r.onDrop
		r.mu.Unlock()
		if dropped {
			drop()
		}
		return false
	}
	if !Fold(&r.view, ev) {
		r.mu.Unlock()
		return false
	}
	snapshot, notify := r.view.clone(), r.onChange
	r.mu.Unlock()

	notify(snapshot)
	return true
}

// hold buffers ev for the in-flight generation gen and reports whether it
// fit. Callers hold mu.
func (r *Reconciler) hold(gen uint64, ev domain.ChangeEvent) bool {
	if r.pendingGen != gen {
		r.pendingGen = gen
		r.pending = r.pending[:0]
	}
	if len(r.pending) >= cap(r.events) {
		r.logger.Warn("pending buffer full, event dropped", slog.Uint64("generation", gen))
		return false
	}
	r.pending = append(r.pending, ev)
	return true
}

// release ends generation gen's query and forgets events held for it.
// Callers hold mu.
func (r *Reconciler) release(gen uint64) {
	if r.inFlight == gen {
		r.inFlight = 0
	}
	if r.pendingGen == gen {
		r.pendingGen = 0
		r.pending = nil
	}
}

// receive tags ev with the generation current at arrival and queues it
// without blocking the feed.
func (r *Reconciler) receive(ev domain.ChangeEvent) {
	t := tagged{gen: r.minted.Load(), ev: ev}
	select {
	case r.events <- t:
	default:
		r.logger.Warn("reconciler queue full, event dropped", slog.String("kind", string(ev.Kind)))
		r.mu.Lock()
		drop := r.onDrop
		r.mu.Unlock()
		drop()
	}
}

// Run subscribes to the source and applies events until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	unsubscribe := r.source.Subscribe(r.receive)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-r.events:
			r.Apply(t.gen, t.ev)
		}
	}
}

// RefreshEvery calls Refresh on each tick until ctx is done. Failures are
// logged and the next tick tries again.
func (r *Reconciler) RefreshEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx); err != nil && !errors.Is(err, ErrStaleQuery) && !errors.Is(err, ErrNoView) {
				r.logger.Warn("periodic refresh failed", slog.Any("error", err))
			}
		}
	}
}
