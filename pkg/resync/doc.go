/*
Package resync implements the Block Manager's resync subsystem: a durable,
time-ordered work queue (Queue) and the worker loop that drains it
(Engine).

Queue is a thin wrapper over the bbolt-backed store.Store queue bucket,
adding an in-memory notify channel so a push can wake a parked worker
without polling. Engine runs a small number of long-running goroutines,
each looping: pop the earliest-due task (parking on notify/timer/shutdown
if none is due), and reconcile the on-disk presence of that hash against
whether it is still needed, fetching from or offloading to peers as
necessary.
*/
package resync
