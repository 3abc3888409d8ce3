package metrics

import "time"

// QueueDepther reports the current number of pending resync tasks.
// Implemented by *resync.Queue.
type QueueDepther interface {
	Len() (int, error)
}

// StoreSizer reports the approximate size of the local block store.
// Implemented by *blob.Store.
type StoreSizer interface {
	SizeBytes() (int64, error)
}

// Collector periodically polls blockd's own state and updates the gauges
// that can't be set inline at the point of mutation (queue depth, store
// size) because the poller, not the mutator, owns the cadence.
type Collector struct {
	queue  QueueDepther
	store  StoreSizer
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(queue QueueDepther, store StoreSizer) *Collector {
	return &Collector{
		queue:  queue,
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a fixed interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectQueueDepth()
	c.collectStoreSize()
}

func (c *Collector) collectQueueDepth() {
	if c.queue == nil {
		return
	}
	n, err := c.queue.Len()
	if err != nil {
		return
	}
	ResyncQueueDepth.Set(float64(n))
}

func (c *Collector) collectStoreSize() {
	if c.store == nil {
		return
	}
	n, err := c.store.SizeBytes()
	if err != nil {
		return
	}
	BlockStoreBytes.Set(float64(n))
}
