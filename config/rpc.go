package config

// RPCConfig holds RPC configuration params.
type RPCConfig struct {
	ListenAddress string `mapstructure:"laddr"`

	// Cross Origin Resource Sharing settings
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods []string `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders []string `mapstructure:"cors_allowed_headers"`

	// Maximum number of simultaneous connections (including WebSocket).
	// If you want to accept a larger number than the default, make sure
	// you increase your OS limits.
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max_open_connections"`
}

// IsCorsEnabled returns true if cross-origin requests are allowed from some origin.
func (cfg RPCConfig) IsCorsEnabled() bool {
	return len(cfg.CORSAllowedOrigins) != 0
}
