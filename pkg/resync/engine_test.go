package resync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/blockd/pkg/rpc"
	"github.com/cuemby/blockd/pkg/store"
	"github.com/cuemby/blockd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlob struct {
	mu     sync.Mutex
	data   map[types.Hash][]byte
	exists map[types.Hash]bool
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{data: map[types.Hash][]byte{}, exists: map[types.Hash]bool{}}
}

func (f *fakeBlob) Exists(h types.Hash) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists[h]
}

func (f *fakeBlob) Read(h types.Hash) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[h], nil
}

func (f *fakeBlob) Write(h types.Hash, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[h] = data
	f.exists[h] = true
	return nil
}

func (f *fakeBlob) DeleteIfUnneeded(h types.Hash, needed func() bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists[h] || needed() {
		return false, nil
	}
	delete(f.data, h)
	delete(f.exists, h)
	return true, nil
}

type fakeRefs struct {
	mu     sync.Mutex
	counts map[types.Hash]uint64
}

func newFakeRefs() *fakeRefs {
	return &fakeRefs{counts: map[types.Hash]uint64{}}
}

func (f *fakeRefs) Get(h types.Hash) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[h], nil
}

func (f *fakeRefs) set(h types.Hash, n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[h] = n
}

type fakeOracle struct {
	self        types.NodeID
	writeNodes  []types.NodeID
	readNodes   []types.NodeID
	writeQuorum int
}

func (o *fakeOracle) WriteNodes(types.Hash) []types.NodeID { return o.writeNodes }
func (o *fakeOracle) ReadNodes(types.Hash) []types.NodeID  { return o.readNodes }
func (o *fakeOracle) WriteQuorum() int                     { return o.writeQuorum }
func (o *fakeOracle) SelfID() types.NodeID                 { return o.self }

type fakeTransport struct {
	mu        sync.Mutex
	handlers  map[types.NodeID]func(rpc.Envelope) (rpc.Envelope, error)
	callCount int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: map[types.NodeID]func(rpc.Envelope) (rpc.Envelope, error){}}
}

func (t *fakeTransport) on(node types.NodeID, fn func(rpc.Envelope) (rpc.Envelope, error)) {
	t.handlers[node] = fn
}

func (t *fakeTransport) Send(ctx context.Context, peer types.NodeID, req rpc.Envelope) (rpc.Envelope, error) {
	t.mu.Lock()
	t.callCount++
	t.mu.Unlock()
	fn, ok := t.handlers[peer]
	if !ok {
		return rpc.Envelope{}, assertAnError
	}
	return fn(req)
}

var assertAnError = &simpleErr{"fakeTransport: no handler for peer"}

type simpleErr struct{ msg string }

func (e *simpleErr) Error() string { return e.msg }

func newTestEngine(t *testing.T, blob BlobAccess, refs RefAccess, topo *fakeOracle, transport rpc.PeerTransport) (*Engine, *Queue) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q := NewQueue(st)
	e := NewEngine(q, blob, refs, topo, transport, 1, 0)
	return e, q
}

var zeroHash = func() types.Hash {
	var h types.Hash
	h[0] = 7
	return h
}()

func TestReconcileNoopWhenExistsMatchesNeeded(t *testing.T) {
	blob := newFakeBlob()
	refs := newFakeRefs()
	topo := &fakeOracle{self: "self", writeQuorum: 1}
	e, _ := newTestEngine(t, blob, refs, topo, newFakeTransport())

	// not present, not needed: no-op.
	require.NoError(t, e.reconcile(zeroHash))
	assert.False(t, blob.Exists(zeroHash))
}

func TestReconcileFetchesWhenNeededButAbsent(t *testing.T) {
	blob := newFakeBlob()
	refs := newFakeRefs()
	refs.set(zeroHash, 1)

	peer := types.NodeID("peer-a")
	topo := &fakeOracle{self: "self", readNodes: []types.NodeID{peer}, writeQuorum: 1}

	transport := newFakeTransport()
	transport.on(peer, func(req rpc.Envelope) (rpc.Envelope, error) {
		return rpc.PutBlock(zeroHash, []byte("payload")), nil
	})

	e, _ := newTestEngine(t, blob, refs, topo, transport)

	require.NoError(t, e.reconcile(zeroHash))
	assert.True(t, blob.Exists(zeroHash))
	data, _ := blob.Read(zeroHash)
	assert.Equal(t, []byte("payload"), data)
}

func TestReconcileOffloadsThenDeletesWhenUnneeded(t *testing.T) {
	blob := newFakeBlob()
	require.NoError(t, blob.Write(zeroHash, []byte("local")))
	refs := newFakeRefs() // count 0: unneeded

	peer := types.NodeID("peer-b")
	topo := &fakeOracle{self: "self", writeNodes: []types.NodeID{"self", peer}, writeQuorum: 2}

	transport := newFakeTransport()
	transport.on(peer, func(req rpc.Envelope) (rpc.Envelope, error) {
		switch req.Kind {
		case rpc.KindNeedBlockQuery:
			return rpc.NeedBlockReply(true), nil
		case rpc.KindPutBlock:
			return rpc.Ok(), nil
		}
		return rpc.BadRpc(), nil
	})

	e, _ := newTestEngine(t, blob, refs, topo, transport)

	require.NoError(t, e.reconcile(zeroHash))
	assert.False(t, blob.Exists(zeroHash))
}

func TestReconcileAbortsOffloadWithoutQuorum(t *testing.T) {
	blob := newFakeBlob()
	require.NoError(t, blob.Write(zeroHash, []byte("local")))
	refs := newFakeRefs()

	topo := &fakeOracle{self: "self", writeNodes: []types.NodeID{"self"}, writeQuorum: 2}

	e, _ := newTestEngine(t, blob, refs, topo, newFakeTransport())

	err := e.reconcile(zeroHash)
	require.Error(t, err)
	assert.True(t, blob.Exists(zeroHash))
}

func TestEngineDrainsQueueEndToEnd(t *testing.T) {
	blob := newFakeBlob()
	refs := newFakeRefs()
	refs.set(zeroHash, 1)

	peer := types.NodeID("peer-c")
	topo := &fakeOracle{self: "self", readNodes: []types.NodeID{peer}, writeQuorum: 1}

	transport := newFakeTransport()
	transport.on(peer, func(req rpc.Envelope) (rpc.Envelope, error) {
		return rpc.PutBlock(zeroHash, []byte("fetched")), nil
	})

	e, q := newTestEngine(t, blob, refs, topo, transport)
	require.NoError(t, q.Push(zeroHash, 0))

	e.Start()
	defer e.Stop()

	require.Eventually(t, func() bool {
		return blob.Exists(zeroHash)
	}, time.Second, 5*time.Millisecond)
}

func TestTranquilizerAveragesOverWindow(t *testing.T) {
	tq := newTranquilizer()

	assert.Equal(t, 10*time.Millisecond, tq.observe(10*time.Millisecond))
	assert.Equal(t, 15*time.Millisecond, tq.observe(20*time.Millisecond))
	assert.Equal(t, 20*time.Millisecond, tq.observe(30*time.Millisecond))
}

func TestTranquilizerDropsOldestSampleBeyondWindow(t *testing.T) {
	tq := newTranquilizer()

	for i := 0; i < 30; i++ {
		tq.observe(10 * time.Millisecond)
	}
	assert.Equal(t, 10*time.Millisecond, tq.observe(10*time.Millisecond))

	// A single huge outlier only moves the average by 1/30th of the gap,
	// since the window is full and the oldest sample is evicted.
	avg := tq.observe(10 * time.Second)
	assert.Less(t, avg, time.Second)
	assert.Greater(t, avg, 10*time.Millisecond)
}

func TestTranquilizerResetClearsWindow(t *testing.T) {
	tq := newTranquilizer()

	tq.observe(time.Second)
	tq.observe(time.Second)
	tq.reset()

	assert.Equal(t, 5*time.Millisecond, tq.observe(5*time.Millisecond))
}

// TestEngineDrainsQueueEndToEnd above runs a single worker (index 0,
// stagger == 0) and already regresses Start() delaying the first worker;
// a real multi-worker stagger would need to wait out
// config.WorkerStartupStagger (10s) to observe, which isn't worth the
// wall-clock cost in a unit test.
