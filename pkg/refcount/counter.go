package refcount

import (
	"github.com/cuemby/blockd/pkg/config"
	"github.com/cuemby/blockd/pkg/log"
	"github.com/cuemby/blockd/pkg/metrics"
	"github.com/cuemby/blockd/pkg/store"
	"github.com/cuemby/blockd/pkg/types"
)

// Counter is the persistent hash -> refcount table. Both operations are
// atomic against the underlying bbolt store: the before-value used to
// decide whether a resync task is enqueued is read inside the same
// update transaction as the mutation, not via a separate fetch, so the
// global mutation lock is not required here.
type Counter struct {
	st    *store.Store
	queue types.Enqueuer
}

// NewCounter returns a Counter backed by st, enqueuing resync work on
// queue whenever a hash crosses the zero boundary.
func NewCounter(st *store.Store, queue types.Enqueuer) *Counter {
	return &Counter{st: st, queue: queue}
}

// Incref fetches-and-updates the count for hash: absent or zero becomes
// one, otherwise it is incremented. When the prior value was zero, a
// resync task is enqueued with delay config.BlockRwTimeout.
func (c *Counter) Incref(h types.Hash) (uint64, error) {
	before, after, err := c.st.RefIncr(h)
	if err != nil {
		return 0, err
	}

	metrics.RefcountIncrefTotal.Inc()

	if before == 0 {
		if err := c.queue.Enqueue(h, config.BlockRwTimeout); err != nil {
			log.WithComponent("refcount").Error().Err(err).Str("hash", h.String()).Msg("failed to enqueue resync on incref-from-zero")
		}
	}

	return after, nil
}

// Decref updates-and-fetches the count for hash: greater than one is
// decremented, equal to one removes the entry, absent is a no-op. When
// the entry is removed (refcount reached zero), a resync task is
// enqueued with delay config.BlockGcTimeout.
func (c *Counter) Decref(h types.Hash) (uint64, error) {
	before, after, err := c.st.RefDecr(h)
	if err != nil {
		return 0, err
	}
	if before == 0 {
		return 0, nil
	}

	metrics.RefcountDecrefTotal.Inc()

	if after == 0 {
		if err := c.queue.Enqueue(h, config.BlockGcTimeout); err != nil {
			log.WithComponent("refcount").Error().Err(err).Str("hash", h.String()).Msg("failed to enqueue resync on decref-to-zero")
		}
	}

	return after, nil
}

// Get returns the current reference count for hash, 0 if absent.
func (c *Counter) Get(h types.Hash) (uint64, error) {
	return c.st.RefGet(h)
}
