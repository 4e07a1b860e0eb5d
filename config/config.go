package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// FlagHome is the root directory of the node.
	FlagHome = "home"
	// FlagLogLevel sets the log level, e.g. "info" or "main:info,state:debug,*:error".
	FlagLogLevel = "log_level"
	// FlagLogFormat is either "plain" or "json".
	FlagLogFormat = "log_format"

	flagDBPath           = "poe.db_path"
	flagBlockTime        = "poe.block_time"
	flagLazyAggregator   = "poe.lazy_aggregator"
	flagLazyBlockTime    = "poe.lazy_block_time"
	flagMempoolSize      = "poe.mempool_size"
	flagRPCListenAddress = "rpc.laddr"
	flagRPCCORSOrigins   = "rpc.cors_allowed_origins"
	flagRPCMaxOpenConns  = "rpc.max_open_connections"
	flagPrometheus       = "instrumentation.prometheus"
	flagPrometheusAddr   = "instrumentation.prometheus_listen_addr"
)

// NodeConfig stores poe node configuration.
type NodeConfig struct {
	// RootDir holds config/, data/ and the key and genesis files.
	RootDir string `mapstructure:"home"`
	DBPath  string `mapstructure:"db_path"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	BlockManagerConfig `mapstructure:",squash"`
	// MempoolSize bounds the number of pending transactions.
	MempoolSize int `mapstructure:"mempool_size"`

	RPC             RPCConfig              `mapstructure:"rpc"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// BlockManagerConfig consists of all parameters required by BlockManagerConfig
type BlockManagerConfig struct {
	// BlockTime defines how often new blocks are produced
	BlockTime time.Duration `mapstructure:"block_time"`
	// LazyAggregator produces blocks only when transactions are available,
	// and at least every LazyBlockTime.
	LazyAggregator bool `mapstructure:"lazy_aggregator"`
	// LazyBlockTime is the maximum time between blocks in lazy mode.
	LazyBlockTime time.Duration `mapstructure:"lazy_block_time"`
}

// GenesisFile returns the path of the genesis document.
func (nc *NodeConfig) GenesisFile() string {
	return filepath.Join(nc.RootDir, DefaultConfigDir, DefaultGenesisName)
}

// KeyFile returns the path of the node key.
func (nc *NodeConfig) KeyFile() string {
	return filepath.Join(nc.RootDir, DefaultConfigDir, DefaultKeyName)
}

// ConfigFile returns the path of the optional TOML configuration file.
func (nc *NodeConfig) ConfigFile() string {
	return filepath.Join(nc.RootDir, DefaultConfigDir, DefaultConfigName)
}

// GetViperConfig reads configuration parameters from Viper instance.
func (nc *NodeConfig) GetViperConfig(v *viper.Viper) error {
	nc.RootDir = v.GetString(FlagHome)
	nc.LogLevel = v.GetString(FlagLogLevel)
	nc.LogFormat = v.GetString(FlagLogFormat)
	nc.DBPath = v.GetString(flagDBPath)
	nc.BlockTime = v.GetDuration(flagBlockTime)
	nc.LazyAggregator = v.GetBool(flagLazyAggregator)
	nc.LazyBlockTime = v.GetDuration(flagLazyBlockTime)
	nc.MempoolSize = v.GetInt(flagMempoolSize)
	nc.RPC.ListenAddress = v.GetString(flagRPCListenAddress)
	nc.RPC.CORSAllowedOrigins = v.GetStringSlice(flagRPCCORSOrigins)
	nc.RPC.MaxOpenConnections = v.GetInt(flagRPCMaxOpenConns)
	if nc.Instrumentation == nil {
		nc.Instrumentation = DefaultInstrumentationConfig()
	}
	nc.Instrumentation.Prometheus = v.GetBool(flagPrometheus)
	nc.Instrumentation.PrometheusListenAddr = v.GetString(flagPrometheusAddr)
	return nil
}

// ReadConfigFile merges the TOML file in the node home into v. A missing file is not an error.
func ReadConfigFile(v *viper.Viper) error {
	path := filepath.Join(v.GetString(FlagHome), DefaultConfigDir, DefaultConfigName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// WriteConfigFile writes the node settings held by v into the node home.
func WriteConfigFile(v *viper.Viper) error {
	path := filepath.Join(v.GetString(FlagHome), DefaultConfigDir, DefaultConfigName)
	out := viper.New()
	for _, key := range []string{
		FlagLogLevel, FlagLogFormat, flagDBPath, flagBlockTime, flagLazyAggregator,
		flagLazyBlockTime, flagMempoolSize, flagRPCListenAddress, flagRPCCORSOrigins,
		flagRPCMaxOpenConns, flagPrometheus, flagPrometheusAddr,
	} {
		out.Set(key, v.Get(key))
	}
	return out.WriteConfigAs(path)
}

// ValidateBasic performs basic validation of the configuration.
func (nc *NodeConfig) ValidateBasic() error {
	if nc.BlockTime <= 0 {
		return errors.New("block_time must be positive")
	}
	if nc.LazyAggregator && nc.LazyBlockTime < nc.BlockTime {
		return errors.New("lazy_block_time must not be shorter than block_time")
	}
	if nc.MempoolSize < 0 {
		return errors.New("mempool_size can't be negative")
	}
	if nc.RPC.MaxOpenConnections < 0 {
		return errors.New("rpc.max_open_connections can't be negative")
	}
	if nc.Instrumentation != nil {
		return nc.Instrumentation.ValidateBasic()
	}
	return nil
}

// AddFlags adds poe specific configuration options to cobra Command.
func AddFlags(cmd *cobra.Command) {
	def := DefaultNodeConfig()
	cmd.Flags().String(flagDBPath, def.DBPath, "database path relative to home")
	cmd.Flags().Duration(flagBlockTime, def.BlockTime, "block time")
	cmd.Flags().Bool(flagLazyAggregator, def.LazyAggregator, "produce blocks only when transactions are available")
	cmd.Flags().Duration(flagLazyBlockTime, def.LazyBlockTime, "maximum time between blocks in lazy mode")
	cmd.Flags().Int(flagMempoolSize, def.MempoolSize, "maximum number of pending transactions")
	cmd.Flags().String(flagRPCListenAddress, def.RPC.ListenAddress, "RPC listen address")
	cmd.Flags().StringSlice(flagRPCCORSOrigins, def.RPC.CORSAllowedOrigins, "origins allowed for cross-domain RPC requests")
	cmd.Flags().Int(flagRPCMaxOpenConns, def.RPC.MaxOpenConnections, "maximum number of simultaneous RPC connections (0 - unlimited)")
	cmd.Flags().Bool(flagPrometheus, def.Instrumentation.Prometheus, "serve Prometheus metrics")
	cmd.Flags().String(flagPrometheusAddr, def.Instrumentation.PrometheusListenAddr, "Prometheus listen address")
}

// AddGlobalFlags adds flags shared by every command.
func AddGlobalFlags(cmd *cobra.Command, defaultHome string) {
	def := DefaultNodeConfig()
	cmd.PersistentFlags().String(FlagHome, defaultHome, "directory for config and data")
	cmd.PersistentFlags().String(FlagLogLevel, def.LogLevel, "log level")
	cmd.PersistentFlags().String(FlagLogFormat, def.LogFormat, "log format (plain or json)")
}
