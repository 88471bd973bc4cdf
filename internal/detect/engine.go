package detect

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"

	"queue-market-watch/internal/domain"
	"queue-market-watch/internal/ledger"
	"queue-market-watch/internal/observability"
	"queue-market-watch/internal/storage"
)

// Default configuration values.
const (
	DefaultWorkers      = 4
	DefaultQueueRefresh = 30 * time.Second
)

// Options configures the Engine.
type Options struct {
	// Source is the remote queue state gateway. Required.
	Source ledger.Source

	// Store is the bounded activity history. Required.
	Store storage.ActivityStore

	// Checkpoints persists per-queue snapshots so a restart resumes
	// diffing from the last observed state instead of re-seeding.
	// Optional.
	Checkpoints storage.CheckpointStore

	// Archive receives every detected activity for long-term analytics.
	// Optional.
	Archive storage.ArchiveStore

	// Metrics receives detection counters and gauges. Optional.
	Metrics *observability.Metrics

	// Logger for operational messages. Defaults to stderr.
	Logger *log.Logger

	// Workers bounds per-queue fetch concurrency within one cycle.
	Workers int

	// QueueRefresh is how long a fetched queue list stays fresh before
	// the next cycle re-queries it.
	QueueRefresh time.Duration

	// OnActivities is invoked after each cycle that produced activities,
	// with the committed batch. Optional.
	OnActivities func([]*domain.Activity)

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// queueState is the retained previous snapshot for one queue. The mutex
// serializes fetch+diff+commit for the queue across overlapping ticks.
type queueState struct {
	mu   sync.Mutex
	prev domain.Snapshot
	seen bool
}

// Engine derives marketplace activities by diffing consecutive snapshots
// of every known queue. It is safe for concurrent use; overlapping cycles
// skip queues that still have a cycle in flight.
type Engine struct {
	source       ledger.Source
	store        storage.ActivityStore
	checkpoints  storage.CheckpointStore
	archive      storage.ArchiveStore
	metrics      *observability.Metrics
	logger       *log.Logger
	pool         pond.Pool
	queueRefresh time.Duration
	onActivities func([]*domain.Activity)
	now          func() time.Time

	states *xsync.Map[uint32, *queueState]
	seq    atomic.Uint64

	queuesMu  sync.RWMutex
	queues    []domain.Queue
	queuesAt  time.Time
	queueByID map[uint32]domain.Queue
}

// NewEngine creates a detection engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Source == nil {
		return nil, errors.New("source is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[detect] ", log.LstdFlags)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	refresh := opts.QueueRefresh
	if refresh <= 0 {
		refresh = DefaultQueueRefresh
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		source:       opts.Source,
		store:        opts.Store,
		checkpoints:  opts.Checkpoints,
		archive:      opts.Archive,
		metrics:      opts.Metrics,
		logger:       logger,
		pool:         pond.NewPool(workers),
		queueRefresh: refresh,
		onActivities: opts.OnActivities,
		now:          now,
		states:       xsync.NewMap[uint32, *queueState](),
		queueByID:    make(map[uint32]domain.Queue),
	}, nil
}

// nextActivityID returns a process-unique activity id combining detection
// time with a monotonic counter.
func (e *Engine) nextActivityID(ts time.Time) string {
	return fmt.Sprintf("act-%d-%d", ts.UnixMilli(), e.seq.Add(1))
}

// refreshQueues returns the known queue set, re-querying the gateway when
// the cached list is older than the refresh interval.
func (e *Engine) refreshQueues(ctx context.Context, force bool) ([]domain.Queue, error) {
	e.queuesMu.RLock()
	if !force && e.queues != nil && e.now().Sub(e.queuesAt) < e.queueRefresh {
		queues := e.queues
		e.queuesMu.RUnlock()
		return queues, nil
	}
	e.queuesMu.RUnlock()

	start := e.now()
	queues, err := e.source.ListQueues(ctx)
	if e.metrics != nil {
		e.metrics.FetchDuration.WithLabelValues("listQueues").Observe(e.now().Sub(start).Seconds())
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.FetchErrors.WithLabelValues("listQueues").Inc()
		}
		// Serve the stale list if we have one; detection degrades to
		// the queues we already know about.
		e.queuesMu.RLock()
		stale := e.queues
		e.queuesMu.RUnlock()
		if stale != nil {
			e.logger.Printf("queue list refresh failed, using cached list: %v", err)
			return stale, nil
		}
		return nil, fmt.Errorf("list queues: %w", err)
	}

	e.queuesMu.Lock()
	e.queues = queues
	e.queuesAt = e.now()
	e.queueByID = make(map[uint32]domain.Queue, len(queues))
	for _, q := range queues {
		e.queueByID[q.QueueID] = q
	}
	e.queuesMu.Unlock()

	if e.metrics != nil {
		e.metrics.QueuesTracked.Set(float64(len(queues)))
	}
	return queues, nil
}

// Initialize seeds the previous snapshot for every known queue without
// emitting activities. When a checkpoint store is configured, persisted
// snapshots are restored first so activity between restarts is detected
// on the next poll rather than silently re-seeded.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.checkpoints != nil {
		snaps, queues, err := e.checkpoints.LoadSnapshots(ctx)
		if err != nil {
			return fmt.Errorf("load checkpoints: %w", err)
		}
		for queueID, snap := range snaps {
			st, _ := e.states.LoadOrStore(queueID, &queueState{})
			st.mu.Lock()
			st.prev = snap
			st.seen = true
			st.mu.Unlock()
		}
		if len(snaps) > 0 {
			e.logger.Printf("restored %d queue snapshots from checkpoint", len(snaps))
		}
		if len(queues) > 0 {
			list := make([]domain.Queue, 0, len(queues))
			for _, q := range queues {
				list = append(list, q)
			}
			e.queuesMu.Lock()
			if e.queues == nil {
				e.queues = list
				e.queueByID = queues
				// Leave queuesAt zero so the first poll refreshes.
			}
			e.queuesMu.Unlock()
		}
	}

	queues, err := e.refreshQueues(ctx, true)
	if err != nil {
		return err
	}

	group := e.pool.NewGroupContext(ctx)
	for _, q := range queues {
		queue := q
		group.Submit(func() {
			st, _ := e.states.LoadOrStore(queue.QueueID, &queueState{})
			st.mu.Lock()
			defer st.mu.Unlock()
			if st.seen {
				return
			}
			snap, err := e.source.ListTokens(ctx, queue.QueueID)
			if err != nil {
				// First poll will seed this queue silently instead.
				e.logger.Printf("seed queue %d (%s): %v", queue.QueueID, queue.Name, err)
				return
			}
			st.prev = snap
			st.seen = true
			e.checkpoint(ctx, queue, snap)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	e.logger.Printf("initialized with %d queues", len(queues))
	return nil
}

// PollOnce runs one detection cycle across all known queues and returns
// the newly committed activities, newest last in detection order. The
// batch is also appended to the history store and, when configured, the
// archive.
func (e *Engine) PollOnce(ctx context.Context) ([]*domain.Activity, error) {
	cycleStart := e.now()

	queues, err := e.refreshQueues(ctx, false)
	if err != nil {
		return nil, err
	}

	// Each worker writes only its own index.
	results := make([][]*domain.Activity, len(queues))
	group := e.pool.NewGroupContext(ctx)
	for i, q := range queues {
		idx, queue := i, q
		group.Submit(func() {
			results[idx] = e.pollQueue(ctx, queue)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		e.logger.Printf("poll cycle worker error: %v", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var batch []*domain.Activity
	for _, acts := range results {
		batch = append(batch, acts...)
	}

	// Stamp ids and timestamps in batch order so the counter stays
	// monotonic within the committed history.
	stamp := e.now()
	for _, a := range batch {
		a.Timestamp = stamp.UnixMilli()
		a.ActivityID = e.nextActivityID(stamp)
	}

	if len(batch) > 0 {
		if err := e.store.Append(ctx, batch); err != nil {
			return nil, fmt.Errorf("append history: %w", err)
		}
		if e.archive != nil {
			if err := e.archive.InsertBulk(ctx, batch); err != nil {
				e.logger.Printf("archive insert: %v", err)
			} else if e.metrics != nil {
				e.metrics.ArchiveInserts.Add(float64(len(batch)))
			}
		}
		if e.metrics != nil {
			for _, a := range batch {
				e.metrics.ActivitiesDetected.WithLabelValues(string(a.Kind)).Inc()
			}
		}
		if e.onActivities != nil {
			e.onActivities(batch)
		}
	}

	if e.metrics != nil {
		var tokens int
		e.states.Range(func(_ uint32, st *queueState) bool {
			st.mu.Lock()
			tokens += len(st.prev)
			st.mu.Unlock()
			return true
		})
		e.metrics.TokensTracked.Set(float64(tokens))
		e.metrics.PollCyclesTotal.Inc()
		e.metrics.PollCycleDuration.Observe(e.now().Sub(cycleStart).Seconds())
		e.metrics.LastSuccessfulPoll.Set(float64(e.now().Unix()))
		if hist, err := e.store.All(ctx); err == nil {
			e.metrics.HistorySize.Set(float64(len(hist)))
		}
	}

	return batch, nil
}

// pollQueue runs fetch, diff and commit for one queue. Any failure leaves
// the previous snapshot untouched and yields no activities; the queue is
// retried on the next tick.
func (e *Engine) pollQueue(ctx context.Context, queue domain.Queue) []*domain.Activity {
	st, _ := e.states.LoadOrStore(queue.QueueID, &queueState{})
	if !st.mu.TryLock() {
		// A prior tick is still working on this queue.
		if e.metrics != nil {
			e.metrics.QueueCyclesSkipped.WithLabelValues("in_flight").Inc()
		}
		return nil
	}
	defer st.mu.Unlock()

	start := e.now()
	snap, err := e.source.ListTokens(ctx, queue.QueueID)
	if e.metrics != nil {
		e.metrics.FetchDuration.WithLabelValues("listTokens").Observe(e.now().Sub(start).Seconds())
	}
	if err != nil {
		e.logger.Printf("fetch queue %d (%s): %v", queue.QueueID, queue.Name, err)
		if e.metrics != nil {
			e.metrics.FetchErrors.WithLabelValues("listTokens").Inc()
			e.metrics.QueueCyclesSkipped.WithLabelValues("fetch_error").Inc()
		}
		return nil
	}

	if !st.seen {
		// First observation seeds silently. History only reflects
		// changes after observation starts.
		st.prev = snap
		st.seen = true
		e.checkpoint(ctx, queue, snap)
		return nil
	}

	acts := DiffSnapshots(queue, st.prev, snap)
	st.prev = snap
	e.checkpoint(ctx, queue, snap)
	return acts
}

func (e *Engine) checkpoint(ctx context.Context, queue domain.Queue, snap domain.Snapshot) {
	if e.checkpoints == nil {
		return
	}
	if err := e.checkpoints.SaveSnapshot(ctx, queue, snap); err != nil {
		e.logger.Printf("checkpoint queue %d: %v", queue.QueueID, err)
		if e.metrics != nil {
			e.metrics.CheckpointErrors.Inc()
		}
	}
}

// History returns the current contents of the activity store, newest
// first.
func (e *Engine) History(ctx context.Context) ([]*domain.Activity, error) {
	return e.store.All(ctx)
}

// Queues returns the most recently fetched queue list.
func (e *Engine) Queues() []domain.Queue {
	e.queuesMu.RLock()
	defer e.queuesMu.RUnlock()
	out := make([]domain.Queue, len(e.queues))
	copy(out, e.queues)
	return out
}

// Queue returns the cached queue with the given id.
func (e *Engine) Queue(queueID uint32) (domain.Queue, bool) {
	e.queuesMu.RLock()
	defer e.queuesMu.RUnlock()
	q, ok := e.queueByID[queueID]
	return q, ok
}

// Snapshot returns a copy of the last observed snapshot for a queue.
func (e *Engine) Snapshot(queueID uint32) (domain.Snapshot, bool) {
	st, ok := e.states.Load(queueID)
	if !ok {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.seen {
		return nil, false
	}
	return st.prev.Clone(), true
}

// Close releases the worker pool. The engine must not be used after
// Close returns.
func (e *Engine) Close() {
	e.pool.StopAndWait()
}
