package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tx-orderer/core"
	"tx-orderer/internal/rpcserver"
	"tx-orderer/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{Use: "tx-orderer"}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(bootstrapCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("tx-orderer " + config.Version)
		},
	}
}

// serveCmd loads configuration, wires core.AppState, and starts the three
// RPC surfaces (external, cluster, internal) plus the decryptor poll loop.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [env]",
		Short: "start the transaction ordering service",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := ""
			if len(args) > 0 {
				env = args[0]
			}
			return runServe(env)
		},
	}
	return cmd
}

func runServe(env string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(env)
	if err != nil {
		return err
	}

	log := logrus.New()
	lv, err := logrus.ParseLevel(viper.GetString("logging.level"))
	if err != nil {
		lv = logrus.InfoLevel
	}
	log.SetLevel(lv)
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return core.WrapError(core.KindDatabase, "open log file", err)
		}
		log.SetOutput(f)
	}

	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = "./data"
	}
	kv, err := core.OpenKVStore(dbPath, log)
	if err != nil {
		return err
	}
	defer kv.Close()

	signer, self, err := buildSigner(cfg)
	if err != nil {
		return err
	}

	rpcClient := core.NewHTTPRPCClient(log)
	app := core.NewAppState(kv, log, self, signer, rpcClient, cfg.KeyGenRPCURL)
	app.BuilderRPCURL = cfg.BuilderRPCURL

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go app.Decryptor.Run(ctx, 2*time.Second)

	workerHigh, workerNormal := cfg.RPC.WorkerHigh, cfg.RPC.WorkerNormal
	if workerHigh <= 0 {
		workerHigh = 4
	}
	if workerNormal <= 0 {
		workerNormal = 8
	}

	external := rpcserver.NewServer(log, workerHigh, workerNormal)
	rpcserver.RegisterExternalMethods(external, app)
	rpcserver.RegisterWatchRoute(external, app, 2*time.Second)

	cluster := rpcserver.NewServer(log, workerHigh, workerNormal)
	rpcserver.RegisterClusterMethods(cluster, app)

	internal := rpcserver.NewServer(log, 1, workerNormal)
	rpcserver.RegisterInternalMethods(internal, app)

	servers := []*http.Server{
		{Addr: addrOrDefault(cfg.RPC.ExternalListenAddr, ":8080"), Handler: external.Router()},
		{Addr: addrOrDefault(cfg.RPC.ClusterListenAddr, ":8081"), Handler: cluster.Router()},
		{Addr: addrOrDefault(cfg.RPC.InternalListenAddr, ":8082"), Handler: internal.Router()},
	}
	for _, srv := range servers {
		srv := srv
		go func() {
			log.WithField("addr", srv.Addr).Info("rpc listener starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).WithField("addr", srv.Addr).Error("rpc listener stopped")
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	return nil
}

// buildSigner decodes the node's hex-encoded signing key from config and
// derives the local-chain Signer and Address used to authenticate cluster
// messages (spec §4.5, §4.6).
func buildSigner(cfg *config.Config) (core.Signer, core.Address, error) {
	raw, err := hex.DecodeString(cfg.Self.SigningKey)
	if err != nil {
		return nil, core.Address{}, core.WrapError(core.KindDeserialize, "decode signing_key", err)
	}
	signer, err := core.NewLocalSigner(raw)
	if err != nil {
		return nil, core.Address{}, err
	}
	return signer, signer.Address(), nil
}

func addrOrDefault(addr, fallback string) string {
	if addr == "" {
		return fallback
	}
	return addr
}

// bootstrapSpec is the on-disk shape of a cluster/rollup registration file,
// the offline counterpart to the add_cluster/add_rollup operator RPCs for
// standing up a fresh node's initial state in one pass.
type bootstrapSpec struct {
	Clusters []clusterSpec `yaml:"clusters"`
}

type clusterSpec struct {
	ClusterID   string       `yaml:"cluster_id"`
	BlockMargin uint64       `yaml:"block_margin"`
	Rollups     []rollupSpec `yaml:"rollups"`
}

type rollupSpec struct {
	RollupID                    string   `yaml:"rollup_id"`
	Platform                    string   `yaml:"platform"`
	LivenessServiceProvider     string   `yaml:"liveness_service_provider"`
	OrderCommitmentType         string   `yaml:"order_commitment_type"`
	EncryptedTransactionType    string   `yaml:"encrypted_transaction_type"`
	MaxTransactionCountPerBatch uint64   `yaml:"max_transaction_count_per_batch"`
	MaxGasLimit                 uint64   `yaml:"max_gas_limit"`
	ExecutorAddresses           []string `yaml:"executor_addresses"`
}

// bootstrapCmd registers every cluster and rollup named in a YAML manifest
// directly against this node's local store, mirroring the teacher's
// devnet.go pattern of driving chain setup from a yaml config file.
func bootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap <manifest.yaml> [env]",
		Short: "register clusters and rollups from a YAML manifest",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := ""
			if len(args) > 1 {
				env = args[1]
			}
			return runBootstrap(args[0], env)
		},
	}
}

func runBootstrap(manifestPath, env string) error {
	_ = godotenv.Load()
	cfg, err := config.Load(env)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return core.WrapError(core.KindDeserialize, "read bootstrap manifest", err)
	}
	var spec bootstrapSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return core.WrapError(core.KindDeserialize, "parse bootstrap manifest", err)
	}

	log := logrus.New()
	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = "./data"
	}
	kv, err := core.OpenKVStore(dbPath, log)
	if err != nil {
		return err
	}
	defer kv.Close()

	op := core.NewOperator(core.NewClusterStore(kv), core.NewRollupStore(kv), core.NewClusterMetadataStore(kv))
	for _, cs := range spec.Clusters {
		c := core.NewCluster(cs.ClusterID, cs.BlockMargin)
		if err := op.AddCluster(c); err != nil {
			return core.WrapError(core.KindInvalidTransaction, "add_cluster "+cs.ClusterID, err)
		}
		for _, rs := range cs.Rollups {
			r, err := rollupFromSpec(cs.ClusterID, rs)
			if err != nil {
				return err
			}
			if err := op.AddRollup(r); err != nil {
				return core.WrapError(core.KindInvalidTransaction, "add_rollup "+rs.RollupID, err)
			}
			log.WithField("rollup_id", rs.RollupID).WithField("cluster_id", cs.ClusterID).Info("registered rollup")
		}
	}
	return nil
}

func rollupFromSpec(clusterID string, rs rollupSpec) (core.Rollup, error) {
	chain := core.ChainTypeEthereum
	if core.Platform(rs.Platform) == core.PlatformLocal {
		chain = core.ChainTypeLocal
	}
	executors := make([]core.Address, 0, len(rs.ExecutorAddresses))
	for _, hexAddr := range rs.ExecutorAddresses {
		b, err := hex.DecodeString(trimHexPrefix(hexAddr))
		if err != nil {
			return core.Rollup{}, core.WrapError(core.KindDeserialize, "decode executor address", err)
		}
		addr, err := core.NewAddress(chain, b)
		if err != nil {
			return core.Rollup{}, err
		}
		executors = append(executors, addr)
	}
	return core.Rollup{
		RollupID:                    rs.RollupID,
		ClusterID:                   clusterID,
		Platform:                    core.Platform(rs.Platform),
		LivenessServiceProvider:     rs.LivenessServiceProvider,
		OrderCommitmentType:         core.OrderCommitmentType(rs.OrderCommitmentType),
		EncryptedTransactionType:    core.EncryptedTransactionType(rs.EncryptedTransactionType),
		MaxTransactionCountPerBatch: rs.MaxTransactionCountPerBatch,
		MaxGasLimit:                 rs.MaxGasLimit,
		ExecutorAddressList:         executors,
	}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
