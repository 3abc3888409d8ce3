// Package blockerr defines the sentinel error kinds visible at the Block
// Manager's boundary: NotFound, CorruptData, IoError, RpcError, BadRpc,
// QuorumUnavailable, and a catch-all Message.
package blockerr

import (
	"errors"
	"fmt"

	"github.com/cuemby/blockd/pkg/types"
)

// Sentinel errors matched with errors.Is.
var (
	ErrNotFound         = errors.New("blockd: block not found")
	ErrIo               = errors.New("blockd: io error")
	ErrRpc              = errors.New("blockd: rpc error")
	ErrBadRpc           = errors.New("blockd: bad rpc pairing")
	ErrQuorumUnavailable = errors.New("blockd: write quorum unavailable")
)

// CorruptDataError reports that a block file's contents no longer match
// the hash encoded in its name.
type CorruptDataError struct {
	Hash types.Hash
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("blockd: corrupt data for block %s", e.Hash)
}

// Message is the catch-all error kind for conditions with no dedicated
// sentinel.
type Message string

func (m Message) Error() string { return string(m) }
