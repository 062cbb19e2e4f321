package config

// Package config loads a node's configuration file and environment overrides,
// mirroring the teacher's pkg/config loader but replaced field-for-field with
// the values spec §6's "Environment" names: RPC listen addresses, the
// signing key, per-platform L1 endpoints, and the external service URLs the
// ordering service depends on.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"tx-orderer/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// PlatformEndpoint names one L1 network's RPC endpoint and the liveness
// contract address this node watches for leader-rotation events (spec §4.6).
type PlatformEndpoint struct {
	RPCURL          string `mapstructure:"rpc_url" json:"rpc_url"`
	ContractAddress string `mapstructure:"contract_address" json:"contract_address"`
}

// Config is the unified configuration for one tx-orderer node.
type Config struct {
	Self struct {
		ChainType string `mapstructure:"chain_type" json:"chain_type"`
		SigningKey string `mapstructure:"signing_key" json:"signing_key"`
	} `mapstructure:"self" json:"self"`

	RPC struct {
		ExternalListenAddr string `mapstructure:"external_listen_addr" json:"external_listen_addr"`
		ClusterListenAddr  string `mapstructure:"cluster_listen_addr" json:"cluster_listen_addr"`
		InternalListenAddr string `mapstructure:"internal_listen_addr" json:"internal_listen_addr"`
		ExternalURL        string `mapstructure:"external_url" json:"external_url"`
		ClusterURL         string `mapstructure:"cluster_url" json:"cluster_url"`
		WorkerHigh         int    `mapstructure:"worker_high" json:"worker_high"`
		WorkerNormal       int    `mapstructure:"worker_normal" json:"worker_normal"`
	} `mapstructure:"rpc" json:"rpc"`

	Storage struct {
		DBPath string `mapstructure:"db_path" json:"db_path"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`

	// BuilderRPCURL, if set, receives a best-effort relay of every accepted
	// raw transaction (spec §4.3 step 10). Optional.
	BuilderRPCURL string `mapstructure:"builder_rpc_url" json:"builder_rpc_url"`

	// KeyGenRPCURL is the external key-generation service the decryptor
	// polls for SKDE decryption keys (spec §4.9). Optional: if empty,
	// encrypted transactions are accepted but never become providable.
	KeyGenRPCURL string `mapstructure:"key_gen_rpc_url" json:"key_gen_rpc_url"`

	// SeederURL names the external seeder directory. It is loaded but not
	// read by any code path in this module.
	SeederURL string `mapstructure:"seeder_url" json:"seeder_url"`

	// RewardManagerURL names the external reward manager. It is loaded but
	// not read by any code path in this module.
	RewardManagerURL string `mapstructure:"reward_manager_url" json:"reward_manager_url"`

	// ValidatorURL and ValidatorContractAddress name the external
	// validation-service-manager. They are loaded but not read: the batch
	// finalizer submits to each rollup's ValidationInfo.ValidatorURL and does
	// not fall back to these values (spec §4.7 step 7).
	ValidatorURL             string `mapstructure:"validator_url" json:"validator_url"`
	ValidatorContractAddress string `mapstructure:"validator_contract_address" json:"validator_contract_address"`

	// Platforms maps a Platform tag (spec §3's "ethereum", "holesky",
	// "local") to its L1 RPC endpoint and liveness contract address.
	Platforms map[string]PlatformEndpoint `mapstructure:"platforms" json:"platforms"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads the node's configuration file and merges any environment
// specific overrides. The resulting configuration is stored in AppConfig and
// returned. If env is empty, only the default configuration file is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // env vars named after the config keys (no prefix is set); .env is loaded via godotenv at startup

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the TXORDERER_ENV environment
// variable to select the environment-specific override file.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("TXORDERER_ENV", ""))
}
