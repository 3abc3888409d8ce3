package blob

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/blockd/pkg/blockerr"
	"github.com/cuemby/blockd/pkg/log"
	"github.com/cuemby/blockd/pkg/metrics"
	"github.com/cuemby/blockd/pkg/types"
	"golang.org/x/crypto/blake2b"
)

// Store is the node-local content-addressed block store. All mutating
// filesystem operations go through mu, the single process-wide mutation
// lock shared with the resync engine's reconcile step (spec §5); reads do
// not take it.
type Store struct {
	dataDir string
	mu      *sync.Mutex
	queue   types.Enqueuer
}

// NewStore opens a Store rooted at dataDir. mu is the node's mutation
// lock; the resync engine takes it through this Store's Write and
// DeleteIfUnneeded.
func NewStore(dataDir string, mu *sync.Mutex, queue types.Enqueuer) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dataDir: dataDir, mu: mu, queue: queue}, nil
}

// Hash returns the BLAKE2b-256 digest of b.
func Hash(b []byte) types.Hash {
	return types.Hash(blake2b.Sum256(b))
}

func (s *Store) path(h types.Hash) string {
	hex := h.String()
	return filepath.Join(s.dataDir, hex[0:2], hex[2:4], hex)
}

// Write persists bytes under hash, atomically. A pre-existing file at the
// canonical path is left untouched and treated as success, since writes
// are idempotent under content addressing.
func (s *Store) Write(h types.Hash, data []byte) error {
	final := s.path(h)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(final); err == nil {
		return nil
	}

	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return blockerr.Message("blob: mkdir " + dir + ": " + err.Error())
	}

	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return blockerr.Message("blob: write tmp: " + err.Error())
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return blockerr.Message("blob: rename: " + err.Error())
	}

	metrics.BlocksStoredTotal.Inc()
	log.WithComponent("blob").Debug().Str("hash", h.String()).Int("bytes", len(data)).Msg("block stored")
	return nil
}

// Read returns the bytes stored under hash after verifying them against
// the hash. On ENOENT it enqueues a zero-delay resync task and returns
// blockerr.ErrNotFound. On a hash mismatch it quarantines the file and
// returns a *blockerr.CorruptDataError.
func (s *Store) Read(h types.Hash) ([]byte, error) {
	data, err := os.ReadFile(s.path(h))
	if err != nil {
		if os.IsNotExist(err) {
			if qerr := s.queue.Enqueue(h, 0); qerr != nil {
				log.WithComponent("blob").Error().Err(qerr).Str("hash", h.String()).Msg("failed to enqueue resync on not-found read")
			}
			return nil, blockerr.ErrNotFound
		}
		return nil, blockerr.Message("blob: read: " + err.Error())
	}

	if Hash(data) != h {
		if err := s.Quarantine(h); err != nil {
			log.WithComponent("blob").Error().Err(err).Str("hash", h.String()).Msg("failed to quarantine corrupt block")
		}
		return nil, &blockerr.CorruptDataError{Hash: h}
	}

	return data, nil
}

// Quarantine renames the canonical file to its .corrupted sibling and
// enqueues a zero-delay resync so the engine repairs it from peers.
func (s *Store) Quarantine(h types.Hash) error {
	final := s.path(h)

	s.mu.Lock()
	err := os.Rename(final, final+".corrupted")
	s.mu.Unlock()

	if err != nil && !os.IsNotExist(err) {
		return blockerr.Message("blob: quarantine: " + err.Error())
	}

	metrics.BlocksQuarantinedTotal.Inc()
	log.WithComponent("blob").Warn().Str("hash", h.String()).Msg("block quarantined")
	return s.queue.Enqueue(h, 0)
}

// Exists reports whether the canonical file for hash is present. It does
// not take the mutation lock, matching the spec's read/mutation split.
func (s *Store) Exists(h types.Hash) bool {
	_, err := os.Stat(s.path(h))
	return err == nil
}

// DeleteIfUnneeded atomically re-checks exists ∧ ¬needed under the
// mutation lock and, if still true, removes the file. needed is invoked
// while the lock is held so the exists/needed pair is a single atomic
// snapshot; it must not block on I/O or acquire other locks.
func (s *Store) DeleteIfUnneeded(h types.Hash, needed func() bool) (deleted bool, err error) {
	final := s.path(h)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, statErr := os.Stat(final); statErr != nil {
		return false, nil
	}
	if needed() {
		return false, nil
	}
	if rmErr := os.Remove(final); rmErr != nil {
		return false, blockerr.Message("blob: delete: " + rmErr.Error())
	}

	metrics.BlocksDeletedTotal.Inc()
	log.WithComponent("blob").Info().Str("hash", h.String()).Msg("block deleted")
	return true, nil
}

// SizeBytes walks the data directory and sums the size of every regular
// file under it, for the /metrics block_store_bytes gauge. Approximate:
// in-flight .tmp and .corrupted files are included, as is any other file
// in the directory, such as the blockd.db store file.
func (s *Store) SizeBytes() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// DataDir returns the root directory this store was opened on.
func (s *Store) DataDir() string {
	return s.dataDir
}
