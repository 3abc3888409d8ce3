package resync

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/blockd/pkg/blockerr"
	"github.com/cuemby/blockd/pkg/config"
	"github.com/cuemby/blockd/pkg/log"
	"github.com/cuemby/blockd/pkg/metrics"
	"github.com/cuemby/blockd/pkg/rpc"
	"github.com/cuemby/blockd/pkg/topology"
	"github.com/cuemby/blockd/pkg/types"
	"github.com/rs/zerolog"
)

// iterStatus is the outcome of one Engine.iter call.
type iterStatus int

const (
	idle iterStatus = iota
	processedOne
)

// BlobAccess is the subset of *blob.Store the engine needs.
type BlobAccess interface {
	Exists(h types.Hash) bool
	Read(h types.Hash) ([]byte, error)
	Write(h types.Hash, data []byte) error
	DeleteIfUnneeded(h types.Hash, needed func() bool) (bool, error)
}

// RefAccess is the subset of *refcount.Counter the engine needs.
type RefAccess interface {
	Get(h types.Hash) (uint64, error)
}

// Engine runs BackgroundWorkers worker loops draining Queue, reconciling
// each due hash's on-disk presence against whether it is still needed.
type Engine struct {
	queue     *Queue
	blob      BlobAccess
	refs      RefAccess
	topo      topology.Oracle
	transport rpc.PeerTransport

	workers     int
	tranquility int

	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// tranquilizer smooths one worker's self-throttle over a sliding window
// of its own recent reconcile durations instead of reacting to the single
// most recent one, so one unusually slow reconcile doesn't stall the
// whole loop and one unusually fast one doesn't spin it. It is owned by a
// single worker goroutine, never shared, so it needs no locking. reset
// clears the window on an idle iteration or an error, matching the
// treatment an idle/errored poll gets in the upstream resync loop this is
// modeled on.
type tranquilizer struct {
	samples []time.Duration
}

func newTranquilizer() *tranquilizer {
	return &tranquilizer{samples: make([]time.Duration, 0, config.TranquilizerWindow)}
}

func (t *tranquilizer) observe(d time.Duration) time.Duration {
	t.samples = append(t.samples, d)
	if len(t.samples) > config.TranquilizerWindow {
		t.samples = t.samples[len(t.samples)-config.TranquilizerWindow:]
	}
	var sum time.Duration
	for _, s := range t.samples {
		sum += s
	}
	return sum / time.Duration(len(t.samples))
}

func (t *tranquilizer) reset() {
	t.samples = t.samples[:0]
}

// NewEngine builds an Engine. workers and tranquility default to
// config.BackgroundWorkers / config.BackgroundTranquility when <= 0.
func NewEngine(queue *Queue, blob BlobAccess, refs RefAccess, topo topology.Oracle, transport rpc.PeerTransport, workers, tranquility int) *Engine {
	if workers <= 0 {
		workers = config.BackgroundWorkers
	}
	if tranquility <= 0 {
		tranquility = config.BackgroundTranquility
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		queue:       queue,
		blob:        blob,
		refs:        refs,
		topo:        topo,
		transport:   transport,
		workers:     workers,
		tranquility: tranquility,
		logger:      log.WithComponent("resync"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker goroutines, staggering each one's first queue
// poll by config.WorkerStartupStagger so a cold start with many workers
// doesn't have every worker contend for the same due task at once.
func (e *Engine) Start() {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.run(i)
	}
}

// Stop signals all workers to finish their current iteration and exit,
// then waits for them.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) run(index int) {
	defer e.wg.Done()

	if stagger := time.Duration(index) * config.WorkerStartupStagger; stagger > 0 {
		timer := time.NewTimer(stagger)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-e.ctx.Done():
			return
		}
	}

	tq := newTranquilizer()

	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		start := time.Now()
		status, err := e.iter()
		if err != nil {
			e.logger.Error().Err(err).Msg("iter failed")
			tq.reset()
			continue
		}

		if status == processedOne {
			avg := tq.observe(time.Since(start))
			e.tranquilize(avg)
		} else {
			tq.reset()
		}
	}
}

// tranquilize sleeps for tranquility * avgDuration, interruptible by
// shutdown.
func (e *Engine) tranquilize(avgDuration time.Duration) {
	sleepFor := time.Duration(e.tranquility) * avgDuration
	if sleepFor <= 0 {
		return
	}
	timer := time.NewTimer(sleepFor)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-e.ctx.Done():
	}
}

// iter implements spec §4.4: park on an empty or not-yet-due queue, else
// pop and reconcile the due hash.
func (e *Engine) iter() (iterStatus, error) {
	task, ok, err := e.queue.Peek()
	if err != nil {
		return idle, err
	}
	if !ok {
		select {
		case <-e.queue.NotifyChan():
		case <-e.ctx.Done():
		}
		return idle, nil
	}

	now := time.Now()
	if task.DueMS > now.UnixMilli() {
		wait := time.Until(time.UnixMilli(task.DueMS))
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-e.queue.NotifyChan():
		case <-e.ctx.Done():
		}
		return idle, nil
	}

	due, popped, err := e.queue.PopDue(now)
	if err != nil {
		return idle, err
	}
	if !popped {
		// another worker already took it
		return idle, nil
	}

	timer := metrics.NewTimer()
	rerr := e.reconcile(due.Hash)
	timer.ObserveDuration(metrics.ReconciliationDuration)
	metrics.ReconciliationCyclesTotal.Inc()

	if rerr != nil {
		e.logger.Error().Err(rerr).Str("hash", due.Hash.String()).Msg("reconcile failed, re-enqueuing")
		if err := e.queue.Push(due.Hash, config.ResyncRetryTimeout); err != nil {
			e.logger.Error().Err(err).Str("hash", due.Hash.String()).Msg("failed to re-enqueue after reconcile error")
		}
	}

	return processedOne, nil
}

// reconcile computes the atomic BlockStatus snapshot for hash and drives
// it toward exists == needed.
func (e *Engine) reconcile(h types.Hash) error {
	count, err := e.refs.Get(h)
	if err != nil {
		return err
	}
	status := types.BlockStatus{
		Exists: e.blob.Exists(h),
		Needed: count > 0,
	}

	if status.Exists == status.Needed {
		return nil
	}
	if status.Exists && !status.Needed {
		return e.offloadThenDelete(h)
	}
	return e.fetch(h)
}

// offloadThenDelete implements spec §4.4's offload-then-delete branch.
func (e *Engine) offloadThenDelete(h types.Hash) error {
	writeNodes := e.topo.WriteNodes(h)
	if len(writeNodes) < e.topo.WriteQuorum() {
		metrics.ResyncQuorumUnavailableTotal.Inc()
		e.logger.Warn().Str("hash", h.String()).Msg("write quorum unavailable, aborting offload")
		return blockerr.ErrQuorumUnavailable
	}

	self := e.topo.SelfID()
	who := excludeSelf(writeNodes, self)

	needNodes := e.queryNeedBlock(who, h, config.NeedBlockQueryTimeout)

	if len(needNodes) > 0 {
		data, err := e.blob.Read(h)
		if err != nil {
			return err
		}
		if err := e.putToAll(needNodes, h, data, config.BlockRwTimeout); err != nil {
			return err
		}
		metrics.ResyncOffloadsTotal.Inc()
	}

	_, err := e.blob.DeleteIfUnneeded(h, func() bool {
		count, _ := e.refs.Get(h)
		return count > 0
	})
	return err
}

// fetch implements spec §4.4's fetch branch.
func (e *Engine) fetch(h types.Hash) error {
	readNodes := e.topo.ReadNodes(h)

	data, err := e.getFirstSuccess(readNodes, h, config.BlockRwTimeout)
	if err != nil {
		return err
	}

	metrics.ResyncFetchesTotal.Inc()
	return e.blob.Write(h, data)
}

func excludeSelf(nodes []types.NodeID, self types.NodeID) []types.NodeID {
	out := make([]types.NodeID, 0, len(nodes))
	for _, n := range nodes {
		if n != self {
			out = append(out, n)
		}
	}
	return out
}

// queryNeedBlock sends NeedBlockQuery to every node in parallel and
// collects the set of respondents that replied true within timeout.
// Non-responding or erroring peers are simply omitted.
func (e *Engine) queryNeedBlock(nodes []types.NodeID, h types.Hash, timeout time.Duration) []types.NodeID {
	type result struct {
		node types.NodeID
		need bool
	}
	results := make(chan result, len(nodes))

	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		go func(node types.NodeID) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			resp, err := e.transport.Send(ctx, node, rpc.NeedBlockQuery(h))
			if err != nil || resp.Kind != rpc.KindNeedBlockReply {
				return
			}
			results <- result{node: node, need: resp.Need}
		}(n)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var needNodes []types.NodeID
	for r := range results {
		if r.need {
			needNodes = append(needNodes, r.node)
		}
	}
	return needNodes
}

// putToAll sends PutBlock to every node in nodes and requires all of them
// to succeed within timeout; any failure aborts the offload.
func (e *Engine) putToAll(nodes []types.NodeID, h types.Hash, data []byte, timeout time.Duration) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(nodes))

	for _, n := range nodes {
		wg.Add(1)
		go func(node types.NodeID) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			resp, err := e.transport.Send(ctx, node, rpc.PutBlock(h, data))
			if err != nil {
				errs <- err
				return
			}
			if resp.Kind != rpc.KindOk {
				errs <- blockerr.ErrRpc
				return
			}
			errs <- nil
		}(n)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// getFirstSuccess sends GetBlock to every node in parallel and returns
// the data from the first PutBlock reply, interrupting the rest.
func (e *Engine) getFirstSuccess(nodes []types.NodeID, h types.Hash, timeout time.Duration) ([]byte, error) {
	if len(nodes) == 0 {
		return nil, blockerr.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	results := make(chan result, len(nodes))

	for _, n := range nodes {
		go func(node types.NodeID) {
			resp, err := e.transport.Send(ctx, node, rpc.GetBlock(h))
			if err != nil {
				results <- result{err: err}
				return
			}
			if resp.Kind != rpc.KindPutBlock {
				results <- result{err: blockerr.ErrBadRpc}
				return
			}
			results <- result{data: resp.Data}
		}(n)
	}

	var lastErr error = blockerr.ErrNotFound
	for i := 0; i < len(nodes); i++ {
		r := <-results
		if r.err == nil {
			cancel() // interrupt the remaining in-flight requests
			return r.data, nil
		}
		lastErr = r.err
	}
	return nil, lastErr
}
