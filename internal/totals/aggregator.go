package totals

import (
	"context"
	"strconv"
	"time"

	"carbontrack/internal/cache"
	"carbontrack/internal/core"
	"carbontrack/internal/log"
	"carbontrack/internal/store"
)

// Source supplies the usage snapshot. *store.RecordStore implements it.
type Source interface {
	Records(ctx context.Context) (store.Snapshot, error)
}

// Result is a computed summary plus how it was obtained.
type Result struct {
	Summary core.TotalsSummary
	// Stale is true when the figures predate a failed refresh.
	Stale bool
	// Unavailable is true when no usage data has loaded yet; Summary is zero.
	Unavailable bool
	Records     int
}

// cachedSummary is a memoized computation for one snapshot.
type cachedSummary struct {
	summary core.TotalsSummary
	records int
}

// Aggregator computes totals and department breakdowns from a Source.
type Aggregator struct {
	source    Source
	summaries *cache.LRUCache[cachedSummary]
	logger    *log.Logger
	now       func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

func WithNow(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

func WithAggregatorLogger(l *log.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = l }
}

// WithSummaryCacheSize sets how many computed summaries are memoized and
// for how long.
func WithSummaryCacheSize(entries int, ttl time.Duration) AggregatorOption {
	return func(a *Aggregator) { a.summaries = cache.NewLRUCache[cachedSummary](entries, ttl) }
}

func NewAggregator(source Source, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		source:    source,
		summaries: cache.NewLRUCache[cachedSummary](64, time.Hour),
		logger:    log.New(log.DefaultConfig()).WithComponent(log.ComponentTotals),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SummaryCache exposes the memoized summaries so the cache can be
// registered for cleanup.
func (a *Aggregator) SummaryCache() cache.Cleaner {
	return a.summaries
}

// Totals returns the summary for sel. A fetch error never reaches the
// caller: a stale snapshot is summarized as usual, and with no snapshot at
// all the zero summary is returned marked Unavailable.
func (a *Aggregator) Totals(ctx context.Context, sel core.MonthSelector) Result {
	now := a.now()

	snap, err := a.source.Records(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "Totals computation skipped",
			log.FieldError, err,
			log.FieldMonth, sel.String(),
			log.FieldOperation, log.OpAggregate)
		return Result{Unavailable: true}
	}

	key := summaryKey(sel, now, snap.FetchedAt())
	computed, ok := a.summaries.Get(key)
	if !ok {
		if current, prior, ok := Periods(sel, now); ok {
			cur := snap.Range(current)
			computed = cachedSummary{summary: ComputeFromSets(cur, snap.Range(prior)), records: len(cur)}
		} else {
			computed = cachedSummary{summary: Compute(sel, snap.Records(), now), records: snap.Len()}
		}
		a.summaries.Set(key, computed)
		log.NewStructuredLogger(a.logger).LogTotalsComputed(ctx, sel.String(), computed.records, snap.Stale())
	}
	return Result{Summary: computed.summary, Stale: snap.Stale(), Records: computed.records}
}

// Departments returns the per-department breakdown of the current period
// of sel. Unlike Totals it reports fetch errors.
func (a *Aggregator) Departments(ctx context.Context, sel core.MonthSelector) ([]core.DepartmentTotal, error) {
	snap, err := a.source.Records(ctx)
	if err != nil {
		return nil, err
	}
	records := snap.Records()
	if current, _, ok := Periods(sel, a.now()); ok {
		records = snap.Range(current)
	}
	return ByDepartment(records), nil
}

// summaryKey identifies a computation: the same selector, year and
// snapshot always produce the same summary.
func summaryKey(sel core.MonthSelector, now time.Time, fetchedAt time.Time) string {
	return sel.String() + ":" + strconv.Itoa(now.Year()) + ":" + strconv.FormatInt(fetchedAt.UnixNano(), 10)
}
