// Package topology defines the Block Manager's external replication
// oracle collaborator: the cluster membership, routing table, and
// replication-factor logic that decides which nodes should hold, or may
// be asked for, a given hash. The Block Manager only consumes this
// interface; ownership of the routing table lives in the outer system.
package topology

import "github.com/cuemby/blockd/pkg/types"

// Oracle answers the placement questions the resync engine needs to
// reconcile a single hash, without knowing anything about how placement
// is computed.
type Oracle interface {
	// WriteNodes returns the set of nodes that should hold hash under the
	// current replication policy.
	WriteNodes(hash types.Hash) []types.NodeID

	// ReadNodes returns the set of nodes that may be queried for hash.
	ReadNodes(hash types.Hash) []types.NodeID

	// WriteQuorum returns the minimum number of write nodes required
	// before a local copy may be safely deleted.
	WriteQuorum() int

	// SelfID returns this node's identity, used to exclude self from
	// offload targets.
	SelfID() types.NodeID
}

// Static is a fixed-membership Oracle useful for tests and for simple
// deployments that configure the replica set once at startup rather than
// through a live routing table.
type Static struct {
	self        types.NodeID
	members     []types.NodeID
	writeQuorum int
}

// NewStatic returns a Static oracle where every hash is replicated across
// all of members, with the given write quorum.
func NewStatic(self types.NodeID, members []types.NodeID, writeQuorum int) *Static {
	cp := make([]types.NodeID, len(members))
	copy(cp, members)
	return &Static{self: self, members: cp, writeQuorum: writeQuorum}
}

// WriteNodes returns all configured members for every hash.
func (s *Static) WriteNodes(types.Hash) []types.NodeID {
	return s.members
}

// ReadNodes returns all configured members for every hash.
func (s *Static) ReadNodes(types.Hash) []types.NodeID {
	return s.members
}

// WriteQuorum returns the configured write quorum.
func (s *Static) WriteQuorum() int {
	return s.writeQuorum
}

// SelfID returns this node's identity.
func (s *Static) SelfID() types.NodeID {
	return s.self
}
