package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ahmadzakiakmal/scrumchain/app"
	cfg "github.com/cometbft/cometbft/config"
	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	nm "github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"
	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewNodeCommand runs a CometBFT node hosting the scrumchain contract
func NewNodeCommand(rootOpts *RootOptions) *cobra.Command {
	var homeDir string
	cmd := &cobra.Command{
		Use:          "node",
		Short:        "Run a CometBFT node with the scrumchain contract application",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runNode(cmd, homeDir, rootOpts.LogLevel)
		},
	}
	cmd.Flags().StringVar(&homeDir, "cmt-home", "", "Path to the CometBFT config directory (default $HOME/.cometbft)")
	return cmd
}

func runNode(cmd *cobra.Command, homeDir, logLevel string) error {
	if homeDir == "" {
		homeDir = os.ExpandEnv("$HOME/.cometbft")
	}
	config := cfg.DefaultConfig()
	config.SetRoot(homeDir)

	v := viper.New()
	v.SetConfigFile(filepath.Join(homeDir, "config", "config.toml"))
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	if err := config.ValidateBasic(); err != nil {
		return fmt.Errorf("invalid configuration data: %w", err)
	}

	if logLevel != "" {
		config.LogLevel = logLevel
	}
	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	logger, err := cmtflags.ParseLogLevel(config.LogLevel, logger, cfg.DefaultLogLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	db, err := badger.Open(badger.DefaultOptions(filepath.Join(homeDir, "badger")).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Closing database", "err", err)
		}
	}()

	contract := app.NewApplication(db, logger)

	pv := privval.LoadFilePV(
		config.PrivValidatorKeyFile(),
		config.PrivValidatorStateFile(),
	)
	nodeKey, err := p2p.LoadNodeKey(config.NodeKeyFile())
	if err != nil {
		return fmt.Errorf("failed to load node's key: %w", err)
	}

	node, err := nm.NewNode(
		cmd.Context(),
		config,
		pv,
		nodeKey,
		proxy.NewLocalClientCreator(contract),
		nm.DefaultGenesisDocProviderFunc(config),
		cfg.DefaultDBProvider,
		nm.DefaultMetricsProvider(config.Instrumentation),
		logger,
	)
	if err != nil {
		return fmt.Errorf("creating node: %w", err)
	}

	if err := node.Start(); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	logger.Info("Node started", "id", node.NodeInfo().ID(), "home", homeDir)
	defer func() {
		if err := node.Stop(); err != nil {
			logger.Error("Stopping node", "err", err)
		}
		node.Wait()
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	return nil
}
