// Package types defines the core data structures shared across blockd's
// storage, resync, and RPC packages: the block hash, resync task tuple, and
// block status snapshot.
package types

import (
	"encoding/hex"
	"time"
)

// HashSize is the length in bytes of a block hash (BLAKE2b-256).
const HashSize = 32

// Hash is the content-address of a block: the BLAKE2b-256 digest of its
// bytes. It is the primary key of the system everywhere a block is named.
type Hash [HashSize]byte

// String renders the hash as 64 lowercase hex characters, the canonical
// form used for filesystem paths and log fields.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash (never a valid content hash,
// used as a sentinel for "no hash").
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash decodes a 64-character lowercase hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != HashSize {
		return h, errInvalidHashLength
	}
	copy(h[:], b)
	return h, nil
}

var errInvalidHashLength = hashLenError{}

type hashLenError struct{}

func (hashLenError) Error() string { return "types: hash must decode to exactly 32 bytes" }

// NodeID identifies a peer in the cluster's replica set. Ownership of the
// cluster membership and routing table lives outside the Block Manager;
// NodeID is just the key that table is indexed by.
type NodeID string

// Task is a persisted unit of resync work: "by DueMS, reconcile Hash's
// on-disk presence against its desired state."
type Task struct {
	DueMS int64
	Hash  Hash
}

// BlockStatus is the snapshot the resync engine's reconcile step computes
// before deciding what to do with a hash. It is taken without the mutation
// lock; the delete step re-checks exists and needed under the lock.
type BlockStatus struct {
	Exists bool
	Needed bool
}

// Enqueuer schedules a resync task for hash, due after delay. BlobStore and
// RefCounter both depend on this narrow interface rather than the concrete
// resync queue, so that package can in turn depend on them without an
// import cycle.
type Enqueuer interface {
	Enqueue(hash Hash, delay time.Duration) error
}
