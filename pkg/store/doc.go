/*
Package store provides BoltDB-backed persistence for blockd's node-local
state: the per-hash reference count and the durable resync queue.

blockd uses BoltDB (bbolt) for embedded, transactional storage with zero
external dependencies:

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Store                             │          │
	│  │  - File: <dataDir>/blockd.db                 │          │
	│  │  - Format: B+tree with MVCC                 │          │
	│  │  - Transactions: ACID with fsync            │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure                │          │
	│  │  ┌────────────────────────────┐             │          │
	│  │  │ block_local_rc             │             │          │
	│  │  │   key:   hash (32 bytes)   │             │          │
	│  │  │   value: count (8 bytes BE)│             │          │
	│  │  │                             │             │          │
	│  │  │ block_local_resync_queue   │             │          │
	│  │  │   key:   due_ms(8) ‖ hash  │             │          │
	│  │  │   value: hash (32 bytes)   │             │          │
	│  │  └────────────────────────────┘             │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

The resync queue's key is the sort key: bbolt buckets iterate keys in
lexicographic order, so a big-endian due-time prefix gives the queue
earliest-due-first iteration for free, with no secondary index.

# Usage

	st, err := store.Open(dataDir)
	if err != nil {
		log.Fatal(err.Error())
	}
	defer st.Close()

	before, after, err := st.RefIncr(hash)
	task, ok, err := st.QueuePeek()
*/
package store
