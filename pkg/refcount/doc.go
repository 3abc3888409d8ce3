/*
Package refcount implements the Block Manager's reference-counting store:
a persistent map from hash to reference count, with incref/decref
primitives that emit resync work whenever a hash crosses the zero
boundary.

A hash is absent from the underlying table iff its refcount is zero;
refcounts never go negative. incref-from-zero enqueues a delayed resync
task (config.BlockRwTimeout) giving the caller time to upload the block
before the engine tries to fetch it from peers. decref-to-zero enqueues a
delayed resync task (config.BlockGcTimeout) so a rapidly oscillating
refcount does not cause immediate disk churn.
*/
package refcount
