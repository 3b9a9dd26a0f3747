// Package store keeps a cached, month-ordered snapshot of all usage rows so
// dashboard requests filter locally instead of refetching from the backend.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"carbontrack/internal/core"
	"carbontrack/internal/log"
	"carbontrack/internal/remote"
)

// Snapshot is an immutable, month-sorted copy of the usage rows.
type Snapshot struct {
	records   []core.UsageRecord
	fetchedAt time.Time
	stale     bool
}

func newSnapshot(records []core.UsageRecord, fetchedAt time.Time) Snapshot {
	sorted := make([]core.UsageRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Month < sorted[j].Month })
	return Snapshot{records: sorted, fetchedAt: fetchedAt}
}

// Records returns every row. Callers must not modify the slice.
func (s Snapshot) Records() []core.UsageRecord {
	return s.records
}

// Range returns the rows whose month string lies in p, using binary search
// over the sorted snapshot. It is equivalent to filtering with p.Contains.
func (s Snapshot) Range(p core.Period) []core.UsageRecord {
	lo := sort.Search(len(s.records), func(i int) bool { return s.records[i].Month >= p.Start })
	hi := sort.Search(len(s.records), func(i int) bool { return s.records[i].Month >= p.End })
	if hi < lo {
		hi = lo
	}
	return s.records[lo:hi]
}

func (s Snapshot) Len() int { return len(s.records) }

func (s Snapshot) FetchedAt() time.Time { return s.fetchedAt }

// Stale is true when the last refresh failed and this snapshot predates it.
func (s Snapshot) Stale() bool { return s.stale }

// Stats describes the store for readiness and admin views.
type Stats struct {
	Records   int
	FetchedAt time.Time
	Fetches   int64
	Failures  int64
	Loaded    bool
}

// Observer receives fetch outcomes, typically to feed metrics.
type Observer interface {
	ObserveFetch(d time.Duration, err error)
}

// DefaultFetchTimeout bounds a remote fetch when no WithFetchTimeout is given.
const DefaultFetchTimeout = 30 * time.Second

// RecordStore caches the result of UsageReader.FetchUsage for ttl.
type RecordStore struct {
	reader       remote.UsageReader
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *log.Logger
	observer     Observer

	group singleflight.Group

	mu       sync.RWMutex
	snap     Snapshot
	loaded   bool
	expires  time.Time
	fetches  int64
	failures int64
}

// Option configures a RecordStore.
type Option func(*RecordStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *RecordStore) { s.now = now }
}

// WithObserver reports each remote fetch.
func WithObserver(o Observer) Option {
	return func(s *RecordStore) { s.observer = o }
}

// WithFetchTimeout bounds a single remote fetch. The fetch is shared by
// every waiting caller, so it is not tied to any one request's context.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *RecordStore) { s.fetchTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *RecordStore) { s.logger = l }
}

func New(reader remote.UsageReader, ttl time.Duration, opts ...Option) *RecordStore {
	s := &RecordStore{
		reader:       reader,
		ttl:          ttl,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		logger:       log.New(log.DefaultConfig()).WithComponent(log.ComponentStore),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Records returns the current snapshot, refetching when it has expired.
// A failed refresh, or one still running when ctx is done, returns the
// previous snapshot marked stale; without any previous snapshot the error
// is returned.
func (s *RecordStore) Records(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	if s.loaded && s.now().Before(s.expires) {
		snap := s.snap
		s.mu.RUnlock()
		return snap, nil
	}
	s.mu.RUnlock()

	ch := s.group.DoChan("usage", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.refresh(fetchCtx)
	})

	var err error
	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(Snapshot), nil
		}
		err = res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	return s.fallback(ctx, err)
}

func (s *RecordStore) fallback(ctx context.Context, err error) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return Snapshot{}, err
	}
	s.logger.WarnContext(ctx, "Serving stale usage snapshot",
		log.FieldError, err,
		"fetched_at", s.snap.fetchedAt)
	snap := s.snap
	snap.stale = true
	return snap, nil
}

func (s *RecordStore) refresh(ctx context.Context) (Snapshot, error) {
	start := s.now()
	records, err := s.reader.FetchUsage(ctx)
	if s.observer != nil {
		s.observer.ObserveFetch(s.now().Sub(start), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if err != nil {
		s.failures++
		s.logger.ErrorContext(ctx, "Usage fetch failed",
			log.FieldError, err,
			log.FieldOperation, log.OpFetch)
		return Snapshot{}, fmt.Errorf("fetch usage: %w", err)
	}

	fetchedAt := s.now()
	s.snap = newSnapshot(records, fetchedAt)
	s.loaded = true
	s.expires = fetchedAt.Add(s.ttl)
	s.logger.DebugContext(ctx, "Usage snapshot refreshed",
		"records", len(records),
		log.FieldDuration, fetchedAt.Sub(start).Milliseconds())
	return s.snap, nil
}

// Invalidate forces the next Records call to refetch. The current snapshot
// stays available as a stale fallback.
func (s *RecordStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expires = time.Time{}
}

func (s *RecordStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Records:   s.snap.Len(),
		FetchedAt: s.snap.fetchedAt,
		Fetches:   s.fetches,
		Failures:  s.failures,
		Loaded:    s.loaded,
	}
}
