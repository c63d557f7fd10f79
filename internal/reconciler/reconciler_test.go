package reconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalhub/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type querierFunc func(ctx context.Context, f domain.Filter) (*domain.ReportPage, error)

func (q querierFunc) List(ctx context.Context, f domain.Filter) (*domain.ReportPage, error) {
	return q(ctx, f)
}

func fixedPage(total int64, items ...*domain.Report) querierFunc {
	return func(_ context.Context, f domain.Filter) (*domain.ReportPage, error) {
		return &domain.ReportPage{Reports: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
	}
}

// fakeSource hands events straight to the last subscriber.
type fakeSource struct {
	mu      sync.Mutex
	handler func(domain.ChangeEvent)
	ready   chan struct{}
}

func newFakeSource() *fakeSource { return &fakeSource{ready: make(chan struct{})} }

func (s *fakeSource) Subscribe(h func(domain.ChangeEvent)) func() {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
	close(s.ready)
	return func() {
		s.mu.Lock()
		s.handler = nil
		s.mu.Unlock()
	}
}

func (s *fakeSource) emit(ev domain.ChangeEvent) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func threeOfTen() (querierFunc, []*domain.Report) {
	items := []*domain.Report{
		report(3, domain.ReportRoad, domain.StatusNew),
		report(2, domain.ReportRoad, domain.StatusNew),
		report(1, domain.ReportRoad, domain.StatusNew),
	}
	return fixedPage(10, items...), items
}

func TestReconciler_InsertOnFirstPage(t *testing.T) {
	q, items := threeOfTen()
	r := New(q, newFakeSource(), 0, discard)

	v, err := r.SetFilter(context.Background(), domain.Filter{Page: 1, Limit: 3})
	require.NoError(t, err)
	require.Len(t, v.Items, 3)

	fresh := report(10, domain.ReportRoad, domain.StatusNew)
	require.True(t, r.Apply(v.Generation, domain.ChangeEvent{Kind: domain.EventInsert, Report: fresh}))

	got, ok := r.View()
	require.True(t, ok)
	assert.Equal(t, []uuid.UUID{fresh.ID, items[0].ID, items[1].ID}, ids(got))
	assert.Equal(t, int64(11), got.Total)
}

func TestReconciler_StaleGenerationIsNoop(t *testing.T) {
	q, _ := threeOfTen()
	r := New(q, newFakeSource(), 0, discard)

	old, err := r.SetFilter(context.Background(), domain.Filter{Page: 1, Limit: 3})
	require.NoError(t, err)
	cur, err := r.SetFilter(context.Background(), domain.Filter{Page: 2, Limit: 3})
	require.NoError(t, err)
	require.Equal(t, old.Generation+1, cur.Generation)

	assert.False(t, r.Apply(old.Generation, domain.ChangeEvent{Kind: domain.EventInsert, Report: report(10, domain.ReportRoad, domain.StatusNew)}))

	got, _ := r.View()
	assert.Equal(t, cur.Generation, got.Generation)
	assert.Equal(t, int64(10), got.Total)
	assert.Equal(t, ids(cur), ids(got))
}

func TestReconciler_ApplyBeforeAnyView(t *testing.T) {
	r := New(fixedPage(0), newFakeSource(), 0, discard)
	assert.False(t, r.Apply(0, domain.ChangeEvent{Kind: domain.EventInsert, Report: report(1, domain.ReportRoad, domain.StatusNew)}))

	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoView)
}

func TestReconciler_SupersededQueryDiscarded(t *testing.T) {
	slow := report(1, domain.ReportWaste, domain.StatusNew)
	fast := report(2, domain.ReportRoad, domain.StatusNew)

	release := make(chan struct{})
	started := make(chan struct{})
	q := querierFunc(func(_ context.Context, f domain.Filter) (*domain.ReportPage, error) {
		if f.Type == domain.ReportWaste {
			close(started)
			<-release
			return &domain.ReportPage{Reports: []*domain.Report{slow}, Total: 1}, nil
		}
		return &domain.ReportPage{Reports: []*domain.Report{fast}, Total: 1}, nil
	})
	r := New(q, newFakeSource(), 0, discard)

	errCh := make(chan error, 1)
	go func() {
		_, err := r.SetFilter(context.Background(), domain.Filter{Page: 1, Limit: 5, Type: domain.ReportWaste})
		errCh <- err
	}()
	<-started

	newer, err := r.SetFilter(context.Background(), domain.Filter{Page: 1, Limit: 5, Type: domain.ReportRoad})
	require.NoError(t, err)
	close(release)

	assert.ErrorIs(t, <-errCh, ErrStaleQuery)

	got, _ := r.View()
	assert.Equal(t, newer.Generation, got.Generation)
	assert.Equal(t, []uuid.UUID{fast.ID}, ids(got))
}

func TestReconciler_QueryErrorKeepsPreviousView(t *testing.T) {
	calls := 0
	boom := errors.New("storage unavailable")
	q := querierFunc(func(_ context.Context, f domain.Filter) (*domain.ReportPage, error) {
		calls++
		if calls > 1 {
			return nil, boom
		}
		return &domain.ReportPage{Reports: []*domain.Report{}, Total: 0}, nil
	})
	r := New(q, newFakeSource(), 0, discard)

	first, err := r.SetFilter(context.Background(), domain.Filter{Page: 1, Limit: 5})
	require.NoError(t, err)

	_, err = r.Refresh(context.Background())
	assert.ErrorIs(t, err, boom)

	got, ok := r.View()
	require.True(t, ok)
	assert.Equal(t, first.Generation, got.Generation)
	// The failed refresh still minted a generation, so the old view no
	// longer accepts events until the next successful query.
	assert.Greater(t, r.Generation(), got.Generation)
}

func TestReconciler_RefreshCorrectsDrift(t *testing.T) {
	var total atomic.Int64
	total.Store(5)
	q := querierFunc(func(_ context.Context, f domain.Filter) (*domain.ReportPage, error) {
		return &domain.ReportPage{Reports: []*domain.Report{}, Total: total.Load()}, nil
	})
	r := New(q, newFakeSource(), 0, discard)

	v, err := r.SetFilter(context.Background(), domain.Filter{Page: 3, Limit: 5})
	require.NoError(t, err)
	r.Apply(v.Generation, domain.ChangeEvent{Kind: domain.EventInsert, Report: report(1, domain.ReportRoad, domain.StatusNew)})

	got, _ := r.View()
	assert.Equal(t, int64(6), got.Total)

	total.Store(42)
	refreshed, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), refreshed.Total)
	assert.Equal(t, v.Filter, refreshed.Filter)
}

func TestReconciler_ViewIsACopy(t *testing.T) {
	q, _ := threeOfTen()
	r := New(q, newFakeSource(), 0, discard)
	_, err := r.SetFilter(context.Background(), domain.Filter{Page: 1, Limit: 3})
	require.NoError(t, err)

	v, _ := r.View()
	v.Items[0].Description = "mutated by caller"
	v.Items = v.Items[:1]

	again, _ := r.View()
	assert.Len(t, again.Items, 3)
	assert.NotEqual(t, "mutated by caller", again.Items[0].Description)
}

func TestReconciler_RunAppliesFeedEvents(t *testing.T) {
	src := newFakeSource()
	r := New(fixedPage(0), src, 8, discard)

	changes := make(chan View, 8)
	r.OnChange(func(v View) { changes <- v })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := r.SetFilter(ctx, domain.Filter{Page: 1, Limit: 5, Status: domain.StatusNew})
	require.NoError(t, err)
	<-changes

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	<-src.ready

	matching := report(1, domain.ReportRoad, domain.StatusNew)
	src.emit(domain.ChangeEvent{Kind: domain.EventInsert, Report: report(2, domain.ReportRoad, domain.StatusResolved)})
	src.emit(domain.ChangeEvent{Kind: domain.EventInsert, Report: matching})

	select {
	case v := <-changes:
		assert.Equal(t, []uuid.UUID{matching.ID}, ids(v))
		assert.Equal(t, int64(1), v.Total)
	case <-time.After(2 * time.Second):
		t.Fatal("view was not updated from the feed")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestReconciler_EventsQueuedForOldFilterAreDropped(t *testing.T) {
	src := newFakeSource()
	r := New(fixedPage(0), src, 8, discard)

	_, err := r.SetFilter(context.Background(), domain.Filter{Page: 1, Limit: 5})
	require.NoError(t, err)

	// Subscribe without draining, so the event sits in the queue.
	unsub := src.Subscribe(r.receive)
	defer unsub()
	src.emit(domain.ChangeEvent{Kind: domain.EventInsert, Report: report(1, domain.ReportRoad, domain.StatusNew)})

	_, err = r.SetFilter(context.Background(), domain.Filter{Page: 1, Limit: 5})
	require.NoError(t, err)

	queued := <-r.events
	assert.False(t, r.Apply(queued.gen, queued.ev))

	got, _ := r.View()
	assert.Empty(t, got.Items)
	assert.Equal(t, int64(0), got.Total)
}

func TestReconciler_FullQueueDrops(t *testing.T) {
	r := New(fixedPage(0), newFakeSource(), 1, discard)

	var dropped atomic.Int32
	r.OnDropped(func() { dropped.Add(1) })

	r.receive(domain.ChangeEvent{Kind: domain.EventInsert, Report: report(1, domain.ReportRoad, domain.StatusNew)})
	r.receive(domain.ChangeEvent{Kind: domain.EventInsert, Report: report(2, domain.ReportRoad, domain.StatusNew)})

	assert.Equal(t, int32(1), dropped.Load())
	assert.Len(t, r.events, 1)
}

func TestReconciler_RefreshEvery(t *testing.T) {
	var calls atomic.Int32
	q := querierFunc(func(_ context.Context, f domain.Filter) (*domain.ReportPage, error) {
		calls.Add(1)
		return &domain.ReportPage{Reports: []*domain.Report{}}, nil
	})
	r := New(q, newFakeSource(), 0, discard)
	_, err := r.SetFilter(context.Background(), domain.Filter{Page: 1, Limit: 5})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	r.RefreshEvery(ctx, 20*time.Millisecond)

	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

// blockingSecondQuery answers the first List with page and parks every
// later one until release is closed, then answers with page again or err.
func blockingSecondQuery(page *domain.ReportPage, err error) (querierFunc, chan struct{}, chan struct{}) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	q := querierFunc(func(_ context.Context, f domain.Filter) (*domain.ReportPage, error) {
		if calls.Add(1) > 1 {
			close(started)
			<-release
			if err != nil {
				return nil, err
			}
		}
		out := *page
		out.Reports = append([]*domain.Report(nil), page.Reports...)
		return &out, nil
	})
	return q, started, release
}

func TestReconciler_EventDuringInFlightQueryIsReplayed(t *testing.T) {
	_, items := threeOfTen()
	q, started, release := blockingSecondQuery(&domain.ReportPage{Reports: items, Total: 10}, nil)
	r := New(q, newFakeSource(), 8, discard)

	first, err := r.SetFilter(context.Background(), domain.Filter{Page: 1, Limit: 3, Type: domain.ReportRoad})
	require.NoError(t, err)

	done := make(chan View, 1)
	go func() {
		v, err := r.Refresh(context.Background())
		assert.NoError(t, err)
		done <- v
	}()
	<-started

	fresh := report(10, domain.ReportRoad, domain.StatusNew)
	r.receive(domain.ChangeEvent{Kind: domain.EventInsert, Report: fresh})
	queued := <-r.events
	assert.Equal(t, first.Generation+1, queued.gen)
	assert.False(t, r.Apply(queued.gen, queued.ev))

	got, _ := r.View()
	assert.Equal(t, first.Generation, got.Generation)

	close(release)
	installed := <-done

	assert.Equal(t, first.Generation+1, installed.Generation)
	assert.Equal(t, []uuid.UUID{fresh.ID, items[0].ID, items[1].ID}, ids(installed))
	assert.Equal(t, int64(11), installed.Total)
}

func TestReconciler_HeldEventAlreadyInSnapshotIsNotDuplicated(t *testing.T) {
	_, items := threeOfTen()
	q, started, release := blockingSecondQuery(&domain.ReportPage{Reports: items, Total: 10}, nil)
	r := New(q, newFakeSource(), 8, discard)

	_, err := r.SetFilter(context.Background(), domain.Filter{Page: 1, Limit: 3})
	require.NoError(t, err)

	done := make(chan View, 1)
	go func() {
		v, _ := r.Refresh(context.Background())
		done <- v
	}()
	<-started

	r.receive(domain.ChangeEvent{Kind: domain.EventInsert, Report: items[0]})
	queued := <-r.events
	r.Apply(queued.gen, queued.ev)
	close(release)

	installed := <-done
	assert.Equal(t, ids(View{Items: items}), ids(installed))
	assert.Equal(t, int64(10), installed.Total)
}

func TestReconciler_FailedQueryDiscardsHeldEvents(t *testing.T) {
	boom := errors.New("storage unavailable")
	q, started, release := blockingSecondQuery(&domain.ReportPage{Reports: []*domain.Report{}, Total: 0}, boom)
	r := New(q, newFakeSource(), 8, discard)

	first, err := r.SetFilter(context.Background(), domain.Filter{Page: 1, Limit: 5})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Refresh(context.Background())
		errCh <- err
	}()
	<-started

	r.receive(domain.ChangeEvent{Kind: domain.EventInsert, Report: report(1, domain.ReportRoad, domain.StatusNew)})
	queued := <-r.events
	assert.False(t, r.Apply(queued.gen, queued.ev))

	close(release)
	assert.ErrorIs(t, <-errCh, boom)

	got, _ := r.View()
	assert.Equal(t, first.Generation, got.Generation)
	assert.Empty(t, got.Items)
	assert.Equal(t, int64(0), got.Total)

	r.mu.Lock()
	assert.Empty(t, r.pending)
	assert.Zero(t, r.inFlight)
	r.mu.Unlock()
}
