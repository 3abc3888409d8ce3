package store

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/cuemby/blockd/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketRefcounts   = []byte("block_local_rc")
	bucketResyncQueue = []byte("block_local_resync_queue")
)

// Store is the BoltDB-backed persistence layer for a node's reference
// counts and its durable resync queue. A single *bolt.DB instance backs
// both buckets; a refcount update and the resync task it triggers are
// committed in separate transactions.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the BoltDB file under dataDir and
// ensures both buckets exist.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "blockd.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRefcounts); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketRefcounts, err)
		}
		if _, err := tx.CreateBucketIfNotExists(bucketResyncQueue); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketResyncQueue, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RefGet returns the current reference count for hash, or 0 if absent.
func (s *Store) RefGet(hash types.Hash) (uint64, error) {
	var count uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRefcounts)
		v := b.Get(hash[:])
		if v == nil {
			return nil
		}
		count = binary.BigEndian.Uint64(v)
		return nil
	})
	return count, err
}

// RefIncr atomically fetches and increments the reference count for hash
// within a single bbolt transaction, returning both the count observed
// before the increment and the count after it. Callers that need to act
// on a zero-boundary crossing must use before, not a separately-fetched
// value, since a separate RefGet/RefIncr pair races against concurrent
// Incref/Decref calls on the same hash.
func (s *Store) RefIncr(hash types.Hash) (before, after uint64, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRefcounts)
		before = getCount(b, hash)
		after = before + 1
		return putCount(b, hash, after)
	})
	return before, after, err
}

// RefDecr atomically fetches and decrements the reference count for hash
// within a single bbolt transaction, returning both the count observed
// before the decrement and the count after it. Decrementing a hash
// already at zero is a no-op that returns (0, 0), since a duplicate
// decref must not underflow the stored count.
func (s *Store) RefDecr(hash types.Hash) (before, after uint64, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRefcounts)
		before = getCount(b, hash)
		if before == 0 {
			after = 0
			return nil
		}
		after = before - 1
		if after == 0 {
			return b.Delete(hash[:])
		}
		return putCount(b, hash, after)
	})
	return before, after, err
}

// RefForEach visits every hash currently holding a non-zero reference
// count. Iteration order is the bucket's key order (by raw hash bytes).
func (s *Store) RefForEach(fn func(hash types.Hash, count uint64) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRefcounts)
		return b.ForEach(func(k, v []byte) error {
			var h types.Hash
			copy(h[:], k)
			return fn(h, binary.BigEndian.Uint64(v))
		})
	})
}

func getCount(b *bolt.Bucket, hash types.Hash) uint64 {
	v := b.Get(hash[:])
	if v == nil {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func putCount(b *bolt.Bucket, hash types.Hash, count uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], count)
	return b.Put(hash[:], buf[:])
}

// queueKey builds the sort key due_ms(8, BE) ‖ hash(32) used by the resync
// queue bucket. Big-endian encoding of the (non-negative) due time keeps
// bbolt's natural key ordering equal to due-time ordering.
func queueKey(dueMS int64, hash types.Hash) []byte {
	key := make([]byte, 8+types.HashSize)
	binary.BigEndian.PutUint64(key[:8], uint64(dueMS))
	copy(key[8:], hash[:])
	return key
}

// QueuePush durably enqueues a resync task due at dueMS for hash.
func (s *Store) QueuePush(dueMS int64, hash types.Hash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResyncQueue)
		return b.Put(queueKey(dueMS, hash), hash[:])
	})
}

// QueueRemove removes the specific (dueMS, hash) entry, if present.
func (s *Store) QueueRemove(dueMS int64, hash types.Hash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResyncQueue)
		return b.Delete(queueKey(dueMS, hash))
	})
}

// QueuePeek returns the earliest-due task without removing it. ok is
// false if the queue is empty.
func (s *Store) QueuePeek() (task types.Task, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResyncQueue)
		c := b.Cursor()
		k, v := c.First()
		if k == nil {
			return nil
		}
		task = taskFromKV(k, v)
		ok = true
		return nil
	})
	return task, ok, err
}

// QueuePopDue removes and returns the earliest-due task if its due time
// has arrived (dueMS <= nowMS). ok is false if the queue is empty or the
// earliest task is not yet due.
func (s *Store) QueuePopDue(nowMS int64) (task types.Task, ok bool, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResyncQueue)
		c := b.Cursor()
		k, v := c.First()
		if k == nil {
			return nil
		}
		t := taskFromKV(k, v)
		if t.DueMS > nowMS {
			return nil
		}
		if err := b.Delete(k); err != nil {
			return err
		}
		task = t
		ok = true
		return nil
	})
	return task, ok, err
}

// QueueLen returns the number of pending resync tasks.
func (s *Store) QueueLen() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResyncQueue)
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// Len satisfies metrics.QueueDepther.
func (s *Store) Len() (int, error) {
	return s.QueueLen()
}

func taskFromKV(k, v []byte) types.Task {
	var h types.Hash
	copy(h[:], v)
	return types.Task{
		DueMS: int64(binary.BigEndian.Uint64(k[:8])),
		Hash:  h,
	}
}
