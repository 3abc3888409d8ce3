// Package maintenance implements the Block Manager's two offline sweep
// operations: repair, which re-enqueues every hash the node might be
// missing or might be holding unnecessarily, and scrub, which walks every
// block file on disk and integrity-checks it at a throttled rate.
//
// Neither operation owns its inputs. repair needs the external
// block-reference table, which in turn is owned by the outer system that
// embeds the Block Manager; rather than accept it at construction time
// (which would create an import cycle, since the reference table
// implementation typically also holds a handle back into this node),
// Maintenance exposes a settable field populated once at wiring time,
// mirroring how the teacher wires a *manager.Manager into satellite
// components post-construction.
package maintenance
