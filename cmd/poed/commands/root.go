package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	tmflags "github.com/tendermint/tendermint/libs/cli/flags"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/rollkit/poe/config"
)

// EnvPrefix is prepended to environment variables overriding flags, e.g. POE_HOME.
const EnvPrefix = "POE"

// DefaultHome returns the default node directory, ~/.poe.
func DefaultHome() string {
	return os.ExpandEnv(filepath.Join("$HOME", ".poe"))
}

// NewRootCmd returns the poed command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "poed",
		Short: "Proof-of-existence registry node",
		Long: `
poed runs a single-producer chain recording who claimed which proof first.
Claiming a proof reserves a deposit from the claimant until the claim is revoked.
If the --home flag is not specified, poed stores its config, keys and data in ~/.poe.
`,
		SilenceUsage: true,
	}
	config.AddGlobalFlags(rootCmd, DefaultHome())

	rootCmd.AddCommand(
		NewInitCmd(),
		NewStartCmd(),
		NewKeysCmd(),
		NewTxCmd(),
		NewQueryCmd(),
		NewProofCmd(),
		NewVersionCmd(),
	)
	return rootCmd
}

// newViper binds the flags of cmd and POE_* environment variables, then
// merges the config file found in the node home.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := config.ReadConfigFile(v); err != nil {
		return nil, err
	}
	return v, nil
}

// loadNodeConfig returns the validated node configuration for cmd.
func loadNodeConfig(cmd *cobra.Command) (config.NodeConfig, error) {
	v, err := newViper(cmd)
	if err != nil {
		return config.NodeConfig{}, err
	}
	nc := config.DefaultNodeConfig()
	if err := nc.GetViperConfig(v); err != nil {
		return config.NodeConfig{}, err
	}
	if err := nc.ValidateBasic(); err != nil {
		return config.NodeConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return nc, nil
}

// newLogger builds the node logger honoring log_format and log_level.
func newLogger(nc config.NodeConfig, out io.Writer) (log.Logger, error) {
	var logger log.Logger
	switch nc.LogFormat {
	case config.LogFormatJSON:
		logger = log.NewTMJSONLogger(log.NewSyncWriter(out))
	case config.LogFormatPlain, "":
		logger = log.NewTMLogger(log.NewSyncWriter(out))
	default:
		return nil, fmt.Errorf("unsupported log format %q", nc.LogFormat)
	}
	logger, err := tmflags.ParseLogLevel(nc.LogLevel, logger, config.DefaultNodeConfig().LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	return logger, nil
}
