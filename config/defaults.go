package config

import (
	"time"
)

const (
	// Version is the current poe version.
	Version = "0.1.0"

	// DefaultConfigDir is the directory in home holding configuration files.
	DefaultConfigDir = "config"
	// DefaultConfigName is the name of the optional TOML configuration file.
	DefaultConfigName = "poed.toml"
	// DefaultGenesisName is the name of the genesis document.
	DefaultGenesisName = "genesis.json"
	// DefaultKeyName is the name of the node key file.
	DefaultKeyName = "node_key.json"

	// DefaultListenAddress is a default listen address for the RPC server.
	DefaultListenAddress = "tcp://127.0.0.1:26657"
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"
)

// DefaultNodeConfig returns default values of NodeConfig.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		DBPath:    "data",
		LogLevel:  "info",
		LogFormat: LogFormatPlain,
		BlockManagerConfig: BlockManagerConfig{
			BlockTime:      1 * time.Second,
			LazyAggregator: false,
			LazyBlockTime:  60 * time.Second,
		},
		MempoolSize: 10000,
		RPC: RPCConfig{
			ListenAddress:      DefaultListenAddress,
			CORSAllowedOrigins: []string{},
			CORSAllowedMethods: []string{"HEAD", "GET", "POST"},
			CORSAllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "X-Server-Time"},
			MaxOpenConnections: 900,
		},
		Instrumentation: DefaultInstrumentationConfig(),
	}
}
