package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/blockd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	enqueued []types.Hash
}

func (f *fakeEnqueuer) Enqueue(h types.Hash, _ time.Duration) error {
	f.enqueued = append(f.enqueued, h)
	return nil
}

type fakeRefTable struct {
	entries []refEntry
}

type refEntry struct {
	hash    types.Hash
	deleted bool
}

func (t *fakeRefTable) ForEach(fn func(hash types.Hash, deleted bool) error) error {
	for _, e := range t.entries {
		if err := fn(e.hash, e.deleted); err != nil {
			return err
		}
	}
	return nil
}

type fakeBlobReader struct {
	data  map[types.Hash][]byte
	reads []types.Hash
}

func (f *fakeBlobReader) Read(h types.Hash) ([]byte, error) {
	f.reads = append(f.reads, h)
	return f.data[h], nil
}

func hashOf(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

func writeBlockFile(t *testing.T, dataDir string, h types.Hash) {
	t.Helper()
	name := h.String()
	dir := filepath.Join(dataDir, name[0:2], name[2:4])
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
}

func TestRepairEnqueuesReferencedAndOnDiskHashes(t *testing.T) {
	dataDir := t.TempDir()
	referenced := hashOf(1)
	onDisk := hashOf(2)
	deleted := hashOf(3)

	writeBlockFile(t, dataDir, onDisk)

	queue := &fakeEnqueuer{}
	m := New(dataDir, queue, &fakeBlobReader{data: map[types.Hash][]byte{}})
	m.SetReferenceTable(&fakeRefTable{entries: []refEntry{
		{hash: referenced, deleted: false},
		{hash: deleted, deleted: true},
	}})

	require.NoError(t, m.Repair(context.Background()))

	assert.Contains(t, queue.enqueued, referenced)
	assert.Contains(t, queue.enqueued, onDisk)
	assert.NotContains(t, queue.enqueued, deleted)
}

func TestRepairWithoutReferenceTableErrors(t *testing.T) {
	m := New(t.TempDir(), &fakeEnqueuer{}, &fakeBlobReader{})
	err := m.Repair(context.Background())
	require.Error(t, err)
}

func TestScrubReadsEveryBlockFile(t *testing.T) {
	dataDir := t.TempDir()
	h := hashOf(9)
	writeBlockFile(t, dataDir, h)

	blob := &fakeBlobReader{data: map[types.Hash][]byte{h: []byte("ok")}}
	m := New(dataDir, &fakeEnqueuer{}, blob)

	require.NoError(t, m.Scrub(context.Background(), 0))
	assert.Equal(t, []types.Hash{h}, blob.reads)
}

func TestWalkDataDirSkipsNonHexEntries(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "zz"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "stray.txt"), []byte("x"), 0644))

	h := hashOf(5)
	writeBlockFile(t, dataDir, h)

	m := New(dataDir, &fakeEnqueuer{}, &fakeBlobReader{data: map[types.Hash][]byte{}})

	var seen []types.Hash
	err := m.walkDataDir(context.Background(), func(hash types.Hash) error {
		seen = append(seen, hash)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []types.Hash{h}, seen)
}

func TestRepairHonoursShutdown(t *testing.T) {
	dataDir := t.TempDir()
	var entries []refEntry
	for i := 0; i < shutdownCheckInterval+10; i++ {
		h := hashOf(byte(i % 251))
		h[1] = byte(i)
		entries = append(entries, refEntry{hash: h})
	}

	queue := &fakeEnqueuer{}
	m := New(dataDir, queue, &fakeBlobReader{})
	m.SetReferenceTable(&fakeRefTable{entries: entries})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Repair(ctx)
	require.Error(t, err)
}
