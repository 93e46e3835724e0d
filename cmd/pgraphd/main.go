// Package main provides the pgraphd server entry point.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pgraph/pgraph/pkg/auth"
	"github.com/pgraph/pgraph/pkg/config"
	"github.com/pgraph/pgraph/pkg/log"
	"github.com/pgraph/pgraph/pkg/memory"
	"github.com/pgraph/pgraph/pkg/metrics"
	"github.com/pgraph/pgraph/pkg/query"
	"github.com/pgraph/pgraph/pkg/raftfsm"
	"github.com/pgraph/pgraph/pkg/txn"
	"github.com/pgraph/pgraph/pkg/wire"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pgraphd",
		Short: "pgraph - a card/link graph database server",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pgraphd v%s (%s)\n", version, commit)
		},
	})

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new pgraph data directory",
		RunE:  runInit,
	}
	initCmd.Flags().String("data-dir", "./data", "data directory")
	rootCmd.AddCommand(initCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pgraph server",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("pgraphd: create data dir: %w", err)
	}
	fmt.Printf("initialized pgraph data directory at %s\n", dataDir)
	fmt.Println("start the server with: pgraphd serve (configured via PGRAPH_* env vars)")
	return nil
}

// runServe wires the whole pgraph process together: configuration, the
// transactional graph store, an optional Raft cluster, the wire protocol
// server, and metrics collection.
func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("pgraphd: invalid configuration: %w", err)
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Logging.Level),
		JSONOutput: cfg.Logging.JSON,
		Output:     os.Stdout,
	})

	logger := log.WithComponent("pgraphd")
	logger.Info().Str("config", cfg.String()).Msg("starting pgraph")

	if err := os.MkdirAll(cfg.Database.DataDir, 0o755); err != nil {
		return fmt.Errorf("pgraphd: create data dir: %w", err)
	}

	memCfg := memory.Config{
		FullVertexLRUSize:  cfg.Memory.FullVertexLRUSize,
		DescriptionLRUSize: cfg.Memory.DescriptionLRUSize,
	}
	store, err := txn.Open(cfg.Database.DataDir, memCfg)
	if err != nil {
		return fmt.Errorf("pgraphd: open store: %w", err)
	}
	defer store.Close()

	authr, err := setupAuth(cfg)
	if err != nil {
		return fmt.Errorf("pgraphd: setup auth: %w", err)
	}

	var cluster *raftfsm.Cluster
	if cfg.Raft.Enabled {
		cluster, err = setupRaft(cfg, store)
		if err != nil {
			return fmt.Errorf("pgraphd: setup raft: %w", err)
		}
		defer cluster.Shutdown()
	}

	h := &handler{
		store:        store,
		cluster:      cluster,
		authr:        authr,
		planCache:    query.NewPlanCache(cfg.Memory.PlanCacheSize, cfg.Memory.PlanCacheTTL),
		applyTimeout: cfg.Database.TransactionTimeout,
	}

	var collector *metrics.Collector
	if cfg.Server.MetricsEnabled {
		var clusterStats metrics.ClusterStatsFunc
		if cluster != nil {
			clusterStats = cluster.Stats
		}
		collector = metrics.NewCollector(store, clusterStats)
		collector.Start()
		defer collector.Stop()
		go serveMetricsHTTP(cfg.Server.MetricsPort)
	}

	var server *wire.Server
	if cfg.Server.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddress, cfg.Server.Port)
		server = wire.NewServer(addr, h, cfg.Server.RequestTimeout)
		go func() {
			if err := server.ListenAndServe(); err != nil {
				logger.Error().Err(err).Msg("wire server stopped")
			}
		}()
		logger.Info().Str("addr", addr).Msg("wire server listening")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	if server != nil {
		server.Close()
	}
	return nil
}

// setupAuth constructs the Authenticator described by cfg.Auth, bootstrapping
// the configured initial user when auth is enabled.
func setupAuth(cfg *config.Config) (*auth.Authenticator, error) {
	authCfg := auth.DefaultAuthConfig()
	authCfg.SecurityEnabled = cfg.Auth.Enabled
	authCfg.MinPasswordLength = cfg.Auth.MinPasswordLength
	authCfg.TokenExpiry = cfg.Auth.TokenExpiry
	authCfg.JWTSecret = []byte(cfg.Auth.JWTSecret)

	authr, err := auth.NewAuthenticator(authCfg)
	if err != nil {
		return nil, err
	}
	if !cfg.Auth.Enabled {
		return authr, nil
	}

	if _, err := authr.CreateUser(cfg.Auth.InitialUsername, cfg.Auth.InitialPassword, []auth.Role{auth.RoleAdmin}); err != nil {
		log.WithComponent("pgraphd").Warn().Err(err).Msg("initial user not created (may already exist)")
	}
	return authr, nil
}

// setupRaft prepares the FSM and Cluster and either bootstraps a
// single-node cluster or joins an existing one
func setupRaft(cfg *config.Config, store *txn.Store) (*raftfsm.Cluster, error) {
	if err := os.MkdirAll(cfg.Raft.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raft data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.Raft.SnapshotBaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	fsm := raftfsm.NewFSM(store, cfg.Raft.SnapshotBaseDir, cfg.Raft.MaxSnapshotFiles)
	if err := fsm.RestoreLatestSnapshot(); err != nil {
		return nil, fmt.Errorf("restore latest snapshot: %w", err)
	}
	cluster := raftfsm.NewCluster(cfg.Raft.NodeID, cfg.Raft.BindAddress, cfg.Raft.DataDir, fsm)

	if cfg.Raft.JoinAddress != "" {
		if err := cluster.Join(); err != nil {
			return nil, fmt.Errorf("join cluster: %w", err)
		}
		return cluster, nil
	}
	if err := cluster.Bootstrap(); err != nil {
		return nil, fmt.Errorf("bootstrap cluster: %w", err)
	}
	return cluster, nil
}

// serveMetricsHTTP runs a bare HTTP server exposing metrics.Handler() on
// its own port, independent of the wire protocol listener.
func serveMetricsHTTP(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	addr := fmt.Sprintf(":%d", port)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithComponent("metrics").Error().Err(err).Msg("metrics http server stopped")
	}
}
