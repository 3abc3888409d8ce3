package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/cuemby/blockd/pkg/blob"
	"github.com/cuemby/blockd/pkg/config"
	"github.com/cuemby/blockd/pkg/log"
	"github.com/cuemby/blockd/pkg/maintenance"
	"github.com/cuemby/blockd/pkg/metrics"
	"github.com/cuemby/blockd/pkg/refcount"
	"github.com/cuemby/blockd/pkg/resync"
	"github.com/cuemby/blockd/pkg/rpc"
	"github.com/cuemby/blockd/pkg/store"
	"github.com/cuemby/blockd/pkg/topology"
	"github.com/cuemby/blockd/pkg/types"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "blockd",
	Short:   "blockd - node-local content-addressed block storage and replication",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"blockd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(scrubCmd)
	rootCmd.AddCommand(statCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// peerAddrBook parses "node-id=host:port" entries into a node -> address
// map and the member list the Static replication oracle needs.
func peerAddrBook(self types.NodeID, entries []string) (map[types.NodeID]string, []types.NodeID, error) {
	addrs := map[types.NodeID]string{}
	members := []types.NodeID{self}
	for _, e := range entries {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("invalid --peer %q, want node-id=host:port", e)
		}
		node := types.NodeID(parts[0])
		addrs[node] = parts[1]
		members = append(members, node)
	}
	return addrs, members, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the block manager daemon: accept peer RPCs and resync the local replica set",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		selfID, _ := cmd.Flags().GetString("self-id")
		peers, _ := cmd.Flags().GetStringSlice("peer")
		workers, _ := cmd.Flags().GetInt("workers")
		tranquility, _ := cmd.Flags().GetInt("tranquility")
		writeQuorum, _ := cmd.Flags().GetInt("write-quorum")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg := config.Serve{
			DataDir:     dataDir,
			BindAddr:    bindAddr,
			PeerAddrs:   peers,
			SelfID:      selfID,
			Workers:     workers,
			Tranquility: tranquility,
			WriteQuorum: writeQuorum,
			MetricsAddr: metricsAddr,
		}

		self := types.NodeID(cfg.SelfID)
		addrs, members, err := peerAddrBook(self, cfg.PeerAddrs)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}

		var mu sync.Mutex
		queue := resync.NewQueue(st)
		blobStore, err := blob.NewStore(cfg.DataDir, &mu, queue)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		refs := refcount.NewCounter(st, queue)

		topo := topology.NewStatic(self, members, cfg.WriteQuorum)
		transport := rpc.NewTCPTransport(addrs)

		handler := rpc.NewLocalHandler(blobStore, refs)
		server, err := rpc.NewServer(cfg.BindAddr, handler)
		if err != nil {
			return fmt.Errorf("bind rpc server: %w", err)
		}

		engine := resync.NewEngine(queue, blobStore, refs, topo, transport, cfg.Workers, cfg.Tranquility)

		collector := metrics.NewCollector(queue, blobStore)

		metrics.SetVersion(Version)
		metrics.RegisterComponent("store", true, "open")
		metrics.RegisterComponent("rpc", false, "starting")
		metrics.RegisterComponent("resync", false, "starting")

		errCh := make(chan error, 1)
		go func() {
			if err := server.Serve(); err != nil {
				errCh <- fmt.Errorf("rpc server error: %w", err)
			}
		}()
		metrics.RegisterComponent("rpc", true, fmt.Sprintf("listening on %s", server.Addr()))

		engine.Start()
		metrics.RegisterComponent("resync", true, "running")

		collector.Start()

		go func() {
			http.Handle("/metrics", metrics.Handler())
			http.Handle("/healthz", metrics.HealthHandler())
			http.Handle("/ready", metrics.ReadyHandler())
			http.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()

		fmt.Printf("blockd starting: self=%s data_dir=%s bind=%s metrics=%s\n", self, dataDir, bindAddr, metricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("shutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}

		// Graceful shutdown: stop accepting new peer RPCs, signal the
		// resync workers and wait for any in-flight reconcile, then close
		// the durable store. Mirrors a stop-then-drain-with-timeout shape.
		_ = server.Close()
		collector.Stop()
		engine.Stop()
		if err := st.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}

		fmt.Println("blockd stopped")
		return nil
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Scan the reference table and data directory, enqueueing a resync for every hash found",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")

		st, err := store.Open(dataDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		queue := resync.NewQueue(st)
		m := maintenance.New(dataDir, queue, nil)
		m.SetReferenceTable(localRefTable{st: st})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		trapSignals(cancel)

		if err := m.Repair(ctx); err != nil {
			return fmt.Errorf("repair: %w", err)
		}
		fmt.Println("repair complete")
		return nil
	},
}

var scrubCmd = &cobra.Command{
	Use:   "scrub",
	Short: "Walk the data directory and integrity-check every block file at a throttled rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		tranquility, _ := cmd.Flags().GetInt("tranquility")

		st, err := store.Open(dataDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		var mu sync.Mutex
		queue := resync.NewQueue(st)
		blobStore, err := blob.NewStore(dataDir, &mu, queue)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}

		m := maintenance.New(dataDir, queue, blobStore)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		trapSignals(cancel)

		if err := m.Scrub(ctx, tranquility); err != nil {
			return fmt.Errorf("scrub: %w", err)
		}
		fmt.Println("scrub complete")
		return nil
	},
}

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Print the resync queue depth, on-disk bytes, and refcount table size",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")

		st, err := store.Open(dataDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		var mu sync.Mutex
		queue := resync.NewQueue(st)
		blobStore, err := blob.NewStore(dataDir, &mu, queue)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}

		queueLen, err := queue.Len()
		if err != nil {
			return fmt.Errorf("queue length: %w", err)
		}
		sizeBytes, err := blobStore.SizeBytes()
		if err != nil {
			return fmt.Errorf("store size: %w", err)
		}

		refEntries := 0
		if err := st.RefForEach(func(types.Hash, uint64) error {
			refEntries++
			return nil
		}); err != nil {
			return fmt.Errorf("refcount scan: %w", err)
		}

		fmt.Printf("resync queue depth: %d\n", queueLen)
		fmt.Printf("blocks on disk:     %d bytes\n", sizeBytes)
		fmt.Printf("refcount entries:   %d\n", refEntries)
		return nil
	},
}

func init() {
	serveCmd.Flags().String("data-dir", "./blockd-data", "Data directory for blocks and the bbolt store")
	serveCmd.Flags().String("bind-addr", "127.0.0.1:7880", "Address for peer RPC")
	serveCmd.Flags().String("self-id", "node-1", "This node's identity")
	serveCmd.Flags().StringSlice("peer", []string{}, "Peer as node-id=host:port, repeatable")
	serveCmd.Flags().Int("workers", config.BackgroundWorkers, "Resync worker concurrency")
	serveCmd.Flags().Int("tranquility", config.BackgroundTranquility, "Resync backpressure factor")
	serveCmd.Flags().Int("write-quorum", 1, "Minimum write nodes required before a local offload delete")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9091", "Address for the /metrics, /healthz, /ready, /live endpoints")

	repairCmd.Flags().String("data-dir", "./blockd-data", "Data directory for blocks and the bbolt store")

	scrubCmd.Flags().String("data-dir", "./blockd-data", "Data directory for blocks and the bbolt store")
	scrubCmd.Flags().Int("tranquility", config.BackgroundTranquility, "Scrub backpressure factor")

	statCmd.Flags().String("data-dir", "./blockd-data", "Data directory for blocks and the bbolt store")
}

// trapSignals cancels ctx on SIGINT/SIGTERM so repair/scrub's directory
// walks exit cleanly instead of leaving partial state.
func trapSignals(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
}

// localRefTable adapts the node's own refcount bucket into a
// maintenance.ReferenceTable for single-binary deployments that have no
// separate outer object/version layer to supply one. A hash present in
// the bucket always has a positive count, so nothing is ever reported as
// deleted.
type localRefTable struct {
	st *store.Store
}

func (t localRefTable) ForEach(fn func(hash types.Hash, deleted bool) error) error {
	return t.st.RefForEach(func(hash types.Hash, _ uint64) error {
		return fn(hash, false)
	})
}
