package blob

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/blockd/pkg/blockerr"
	"github.com/cuemby/blockd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []types.Hash
}

func (f *fakeEnqueuer) Enqueue(h types.Hash, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, h)
	return nil
}

func newTestStore(t *testing.T) (*Store, *fakeEnqueuer) {
	t.Helper()
	q := &fakeEnqueuer{}
	st, err := NewStore(t.TempDir(), &sync.Mutex{}, q)
	require.NoError(t, err)
	return st, q
}

func TestWriteReadRoundTrip(t *testing.T) {
	st, _ := newTestStore(t)

	data := []byte("hello")
	h := Hash(data)

	require.NoError(t, st.Write(h, data))
	assert.True(t, st.Exists(h))

	got, err := st.Read(h)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteIdempotent(t *testing.T) {
	st, _ := newTestStore(t)

	data := []byte("hello")
	h := Hash(data)

	require.NoError(t, st.Write(h, data))
	require.NoError(t, st.Write(h, data))

	got, err := st.Read(h)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReadNotFoundEnqueues(t *testing.T) {
	st, q := newTestStore(t)

	var h types.Hash
	h[0] = 0xAB

	_, err := st.Read(h)
	assert.ErrorIs(t, err, blockerr.ErrNotFound)
	assert.Len(t, q.calls, 1)
	assert.Equal(t, h, q.calls[0])
}

func TestReadCorruptionQuarantines(t *testing.T) {
	st, q := newTestStore(t)

	data := []byte("hello")
	h := Hash(data)

	// Pre-seed the canonical path with mismatched content.
	require.NoError(t, st.Write(h, []byte("world")))

	_, err := st.Read(h)
	require.Error(t, err)

	// canonical file should be gone, .corrupted sibling present
	assert.False(t, st.Exists(h))
	_, statErr := os.Stat(st.path(h) + ".corrupted")
	require.NoError(t, statErr)

	assert.Len(t, q.calls, 1)
}

func TestDeleteIfUnneeded(t *testing.T) {
	st, _ := newTestStore(t)

	data := []byte("hello")
	h := Hash(data)
	require.NoError(t, st.Write(h, data))

	deleted, err := st.DeleteIfUnneeded(h, func() bool { return true })
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, st.Exists(h))

	deleted, err = st.DeleteIfUnneeded(h, func() bool { return false })
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, st.Exists(h))
}
