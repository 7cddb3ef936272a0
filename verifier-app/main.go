package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/verifier/log"
	"github.com/compose-network/verifier/verifier-app/config"
)

const defaultConfigPath = "verifier-app/configs/config.yaml"

var (
	cfgFile string
	envFile string
	rootCmd = &cobra.Command{
		Use:   "verifier",
		Short: "Aligned proof verification gateway",
		Long: "Accepts proofs over HTTP on POST /verify, submits them to the Aligned batcher " +
			"and answers once the batch including them is reported.",
		PersistentPreRunE: loadEnvFile,
		RunE:              runApp,
		SilenceUsage:      true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE:  runConfig,
	}
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "config file path (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// Server flags
	rootCmd.PersistentFlags().String("listen-addr", "", "HTTP listen address")

	// Chain and batcher flags
	rootCmd.PersistentFlags().String("rpc-url", "", "Ethereum RPC URL")
	rootCmd.PersistentFlags().String("network", "", "Aligned network (devnet, holesky, holesky-stage, mainnet)")
	rootCmd.PersistentFlags().String("batcher-url", "", "batcher websocket URL override")
	rootCmd.PersistentFlags().Duration("wait-timeout", 0, "max wait for batch inclusion (0 waits indefinitely)")
	rootCmd.PersistentFlags().String("fee-strategy", "", "fee strategy (default, instant, custom:<n>)")
	rootCmd.PersistentFlags().Bool("await-onchain", false, "confirm batches on-chain before answering")

	// Metrics flags
	rootCmd.PersistentFlags().Bool("metrics", false, "expose prometheus metrics")
}

// loadEnvFile loads the dotenv file without overriding variables that are
// already set.
func loadEnvFile(*cobra.Command, []string) error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadWithOverrides(cfgFile, func(cfg *config.Config) {
		applyFlags(cmd, cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runApp(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := log.New(cfg.Log.Level, cfg.Log.Pretty)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	logger.Info().
		Str("config_file", cfgFile).
		Str("listen_addr", cfg.API.ListenAddr).
		Str("network", cfg.Verifier.Network).
		Str("proving_system", cfg.Verifier.ProvingSystem).
		Str("fee_strategy", cfg.Verifier.FeeStrategy).
		Dur("wait_timeout", cfg.Batcher.WaitTimeout).
		Bool("await_onchain", cfg.Verifier.AwaitOnchain).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")

	application, err := NewApp(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Printf("Aligned verification gateway\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-pretty") {
		cfg.Log.Pretty, _ = flags.GetBool("log-pretty")
	}

	if flags.Changed("listen-addr") {
		cfg.API.ListenAddr, _ = flags.GetString("listen-addr")
	}

	if flags.Changed("rpc-url") {
		cfg.Chain.RPCURL, _ = flags.GetString("rpc-url")
	}
	if flags.Changed("network") {
		cfg.Verifier.Network, _ = flags.GetString("network")
	}
	if flags.Changed("batcher-url") {
		cfg.Batcher.URL, _ = flags.GetString("batcher-url")
	}
	if flags.Changed("wait-timeout") {
		cfg.Batcher.WaitTimeout, _ = flags.GetDuration("wait-timeout")
	}
	if flags.Changed("fee-strategy") {
		cfg.Verifier.FeeStrategy, _ = flags.GetString("fee-strategy")
	}
	if flags.Changed("await-onchain") {
		cfg.Verifier.AwaitOnchain, _ = flags.GetBool("await-onchain")
	}

	if flags.Changed("metrics") {
		cfg.Metrics.Enabled, _ = flags.GetBool("metrics")
	}
}
