package maintenance

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/blockd/pkg/blockerr"
	"github.com/cuemby/blockd/pkg/log"
	"github.com/cuemby/blockd/pkg/metrics"
	"github.com/cuemby/blockd/pkg/types"
	"github.com/rs/zerolog"
)

// shutdownCheckInterval is how many entries a scan processes between
// shutdown-signal checks.
const shutdownCheckInterval = 256

// ReferenceTable is the external block-reference table owned by the
// outer system. ForEach must visit every distinct referenced hash in
// some order, reporting whether its reference entry is marked deleted.
// Returning an error from fn stops the scan and surfaces that error from
// ForEach, matching the filepath.WalkDir short-circuit convention.
type ReferenceTable interface {
	ForEach(fn func(hash types.Hash, deleted bool) error) error
}

// BlobReader is the subset of *blob.Store that scrub needs.
type BlobReader interface {
	Read(h types.Hash) ([]byte, error)
}

// Maintenance runs the repair and scrub sweeps against a node's data
// directory, queue, and blob store.
type Maintenance struct {
	dataDir  string
	queue    types.Enqueuer
	blob     BlobReader
	refTable ReferenceTable
	logger   zerolog.Logger
}

// New builds a Maintenance sweep runner. SetReferenceTable must be called
// before Repair, since the reference table is wired in after
// construction to avoid a cyclic import between the Block Manager and
// the outer system that owns it.
func New(dataDir string, queue types.Enqueuer, blob BlobReader) *Maintenance {
	return &Maintenance{
		dataDir: dataDir,
		queue:   queue,
		blob:    blob,
		logger:  log.WithComponent("maintenance"),
	}
}

// SetReferenceTable wires the external block-reference table in. Must be
// called once, before Repair.
func (m *Maintenance) SetReferenceTable(rt ReferenceTable) {
	m.refTable = rt
}

// Repair scans the reference table for every distinct non-deleted
// referenced hash and enqueues a zero-delay resync for it, then walks
// data_dir and enqueues a zero-delay resync for every block file found.
// Together these surface both missing-but-needed and
// present-but-unneeded blocks to the ResyncEngine.
func (m *Maintenance) Repair(ctx context.Context) error {
	if m.refTable == nil {
		return fmt.Errorf("maintenance: reference table not set")
	}

	m.logger.Info().Msg("repair scan starting")
	metrics.RepairRunsTotal.Inc()

	entries := 0
	err := m.refTable.ForEach(func(hash types.Hash, deleted bool) error {
		entries++
		if entries%shutdownCheckInterval == 0 {
			if err := checkShutdown(ctx); err != nil {
				return err
			}
		}
		if deleted {
			return nil
		}
		return m.queue.Enqueue(hash, 0)
	})
	if err != nil {
		return fmt.Errorf("maintenance: reference table scan: %w", err)
	}

	err = m.walkDataDir(ctx, func(hash types.Hash) error {
		return m.queue.Enqueue(hash, 0)
	})
	if err != nil {
		return fmt.Errorf("maintenance: data dir walk: %w", err)
	}

	metrics.RepairRunsTotal.Inc()
	m.logger.Info().Int("reference_entries", entries).Msg("repair scan complete")
	return nil
}

// Scrub walks every block file under data_dir, reading it back through
// BlobReader (which quarantines and re-enqueues on corruption), sleeping
// tranquility x last_read_duration between files so the sweep stays
// self-throttling against I/O cost.
func (m *Maintenance) Scrub(ctx context.Context, tranquility int) error {
	m.logger.Info().Int("tranquility", tranquility).Msg("scrub starting")

	count := 0
	err := m.walkDataDir(ctx, func(hash types.Hash) error {
		count++
		start := time.Now()
		_, readErr := m.blob.Read(hash)
		elapsed := time.Since(start)

		metrics.ScrubRunsTotal.Inc()
		if readErr != nil {
			var corrupt *blockerr.CorruptDataError
			if errors.As(readErr, &corrupt) {
				metrics.ScrubCorruptionsTotal.Inc()
				log.WithHash(hash.String()).Warn().Msg("scrub found corrupted block")
			}
			// NotFound and CorruptData already enqueue their own resync
			// as a side effect of Read; scrub keeps walking.
		}

		return m.tranquilize(ctx, tranquility, elapsed)
	})
	if err != nil {
		return fmt.Errorf("maintenance: scrub: %w", err)
	}

	m.logger.Info().Int("files_scrubbed", count).Msg("scrub complete")
	return nil
}

func (m *Maintenance) tranquilize(ctx context.Context, tranquility int, lastDuration time.Duration) error {
	sleepFor := time.Duration(tranquility) * lastDuration
	if sleepFor <= 0 {
		return nil
	}
	timer := time.NewTimer(sleepFor)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// walkDataDir enforces the two-level hex fan-out walk rule: at depth 1
// and 2 only exactly-two-lowercase-hex-character directories are
// descended into; at depth 3 only exactly-64-hex-character regular
// files are yielded. Anything else is skipped.
func (m *Maintenance) walkDataDir(ctx context.Context, fn func(hash types.Hash) error) error {
	entries := 0
	return filepath.WalkDir(m.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == m.dataDir {
			return nil
		}

		name := d.Name()

		rel, relErr := filepath.Rel(m.dataDir, path)
		if relErr != nil {
			return relErr
		}
		depth := len(strings.Split(rel, string(filepath.Separator)))

		if d.IsDir() {
			if depth > 2 || !isHexFanoutDir(name) {
				return filepath.SkipDir
			}
			return nil
		}

		if depth != 3 || !d.Type().IsRegular() || !isHashFilename(name) {
			return nil
		}

		entries++
		if entries%shutdownCheckInterval == 0 {
			if err := checkShutdown(ctx); err != nil {
				return err
			}
		}

		hash, err := types.ParseHash(name)
		if err != nil {
			return nil
		}
		return fn(hash)
	})
}

func isHexFanoutDir(name string) bool {
	return len(name) == 2 && isLowerHex(name)
}

func isHashFilename(name string) bool {
	return len(name) == types.HashSize*2 && isLowerHex(name)
}

func isLowerHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

func checkShutdown(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
