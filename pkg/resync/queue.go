package resync

import (
	"time"

	"github.com/cuemby/blockd/pkg/metrics"
	"github.com/cuemby/blockd/pkg/store"
	"github.com/cuemby/blockd/pkg/types"
)

// Queue is the durable min-priority queue ordered by due time, backed by
// the block_local_resync_queue bbolt bucket. Duplicate entries for the
// same hash are permitted and expected; reconcile is idempotent.
type Queue struct {
	st     *store.Store
	notify chan struct{}
}

// NewQueue wraps st as a resync Queue.
func NewQueue(st *store.Store) *Queue {
	return &Queue{
		st:     st,
		notify: make(chan struct{}, 1),
	}
}

// Enqueue implements types.Enqueuer: push hash due after delay from now.
func (q *Queue) Enqueue(h types.Hash, delay time.Duration) error {
	return q.Push(h, delay)
}

// Push inserts a task for hash due after delay from now and wakes a
// parked worker.
func (q *Queue) Push(h types.Hash, delay time.Duration) error {
	due := time.Now().Add(delay).UnixMilli()
	if err := q.st.QueuePush(due, h); err != nil {
		return err
	}
	metrics.ResyncTasksEnqueuedTotal.Inc()
	q.Notify()
	return nil
}

// PopDue removes and returns the earliest-due task if it is due by now.
func (q *Queue) PopDue(now time.Time) (types.Task, bool, error) {
	return q.st.QueuePopDue(now.UnixMilli())
}

// Peek returns the earliest-due task without removing it.
func (q *Queue) Peek() (types.Task, bool, error) {
	return q.st.QueuePeek()
}

// Reinsert puts a previously-peeked task back unchanged. Since Peek does
// not remove the entry, Reinsert is a no-op provided between the two
// no intervening Pop for the same key has happened; it exists to mirror
// the spec's pop_due/reinsert pairing for callers that pop speculatively.
func (q *Queue) Reinsert(task types.Task) error {
	return q.st.QueuePush(task.DueMS, task.Hash)
}

// Len returns the exact number of pending tasks.
func (q *Queue) Len() (int, error) {
	return q.st.QueueLen()
}

// Notify wakes exactly one parked worker, non-blockingly.
func (q *Queue) Notify() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// NotifyChan exposes the notify channel for a worker to select on.
func (q *Queue) NotifyChan() <-chan struct{} {
	return q.notify
}
