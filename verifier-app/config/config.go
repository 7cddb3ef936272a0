package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	apisrv "github.com/compose-network/verifier/server/api"
	"github.com/compose-network/verifier/x/aligned"
	"github.com/compose-network/verifier/x/batcher"
	"github.com/compose-network/verifier/x/chain"
	"github.com/compose-network/verifier/x/verifier"
)

const redacted = "<redacted>"

// Config holds the complete application configuration
type Config struct {
	API      apisrv.Config   `mapstructure:"api"      yaml:"api"`
	Chain    chain.Config    `mapstructure:"chain"    yaml:"chain"`
	Batcher  batcher.Config  `mapstructure:"batcher"  yaml:"batcher"`
	Verifier verifier.Config `mapstructure:"verifier" yaml:"verifier"`
	Identity IdentityConfig  `mapstructure:"identity" yaml:"identity"`
	Metrics  MetricsConfig   `mapstructure:"metrics"  yaml:"metrics"`
	Log      LogConfig       `mapstructure:"log"      yaml:"log"`
}

// IdentityConfig holds the signing key.
type IdentityConfig struct {
	PrivateKey string `mapstructure:"private_key" yaml:"private_key" env:"PRIVATE_KEY"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// Load reads configuration from the optional file at configPath, the
// environment and defaults, then validates it. A missing file is not an
// error; an unreadable or malformed one is.
func Load(configPath string) (*Config, error) {
	return LoadWithOverrides(configPath, nil)
}

// LoadWithOverrides is Load with override applied before validation.
func LoadWithOverrides(configPath string, override func(*Config)) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	if err := bindEnvAliases(v); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if override != nil {
		override(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindEnvAliases accepts the short variable names next to the nested ones.
func bindEnvAliases(v *viper.Viper) error {
	aliases := map[string][]string{
		"chain.rpc_url":        {"CHAIN_RPC_URL", "RPC_URL"},
		"identity.private_key": {"IDENTITY_PRIVATE_KEY", "PRIVATE_KEY"},
		"verifier.network":     {"VERIFIER_NETWORK", "NETWORK"},
	}
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	api := apisrv.DefaultConfig()
	v.SetDefault("api.listen_addr", api.ListenAddr)
	v.SetDefault("api.read_header_timeout", api.ReadHeaderTimeout)
	v.SetDefault("api.read_timeout", api.ReadTimeout)
	v.SetDefault("api.write_timeout", api.WriteTimeout)
	v.SetDefault("api.idle_timeout", api.IdleTimeout)
	v.SetDefault("api.shutdown_timeout", api.ShutdownTimeout)
	v.SetDefault("api.max_header_bytes", api.MaxHeaderBytes)
	v.SetDefault("api.max_body_bytes", api.MaxBodyBytes)
	v.SetDefault("api.enable_cors", api.EnableCORS)

	ch := chain.DefaultConfig()
	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.request_timeout", ch.RequestTimeout)
	v.SetDefault("chain.confirmation.poll_interval", ch.Confirmation.PollInterval)
	v.SetDefault("chain.confirmation.timeout", ch.Confirmation.Timeout)

	b := batcher.DefaultConfig()
	v.SetDefault("batcher.url", "")
	v.SetDefault("batcher.dial_timeout", b.DialTimeout)
	v.SetDefault("batcher.handshake_timeout", b.HandshakeTimeout)
	v.SetDefault("batcher.write_timeout", b.WriteTimeout)
	v.SetDefault("batcher.wait_timeout", b.WaitTimeout)
	v.SetDefault("batcher.min_protocol_version", b.MinProtocolVersion)
	v.SetDefault("batcher.max_message_size", b.MaxMessageSize)

	vf := verifier.DefaultConfig()
	v.SetDefault("verifier.network", vf.Network)
	v.SetDefault("verifier.proving_system", vf.ProvingSystem)
	v.SetDefault("verifier.fee_strategy", vf.FeeStrategy)
	v.SetDefault("verifier.await_onchain", vf.AwaitOnchain)

	v.SetDefault("identity.private_key", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate validates the configuration. Failures are KindConfiguration
// errors.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return aligned.NewError(aligned.KindConfiguration, "config validation failed").WithCause(err)
	}
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return errors.New("RPC_URL (chain.rpc_url) is required")
	}
	if strings.TrimSpace(c.Identity.PrivateKey) == "" {
		return errors.New("PRIVATE_KEY (identity.private_key) is required")
	}
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Verifier.Validate(); err != nil {
		return fmt.Errorf("verifier: %w", err)
	}
	if err := c.validateBatcher(); err != nil {
		return fmt.Errorf("batcher: %w", err)
	}
	if c.Chain.RequestTimeout < 0 {
		return errors.New("chain: request_timeout must not be negative")
	}
	if c.Verifier.AwaitOnchain && c.Chain.Confirmation.PollInterval <= 0 {
		return errors.New("chain: confirmation.poll_interval must be positive when await_onchain is set")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics: path %q must start with /", c.Metrics.Path)
	}
	return nil
}

func (c *Config) validateBatcher() error {
	if u := c.Batcher.URL; u != "" && !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
		return fmt.Errorf("url %q must use ws:// or wss://", u)
	}
	if c.Batcher.WaitTimeout < 0 {
		return errors.New("wait_timeout must not be negative")
	}
	if c.Batcher.DialTimeout <= 0 {
		return errors.New("dial_timeout must be positive")
	}
	if c.API.WriteTimeout > 0 {
		worst, bounded := c.requestBudget()
		if !bounded {
			return errors.New("api.write_timeout cuts off unbounded requests; bound chain.request_timeout, " +
				"the batcher handshake, write and wait timeouts, and chain.confirmation.timeout with await_onchain")
		}
		if c.API.WriteTimeout <= worst {
			return fmt.Errorf("api.write_timeout %s does not outlast a request, which may take %s",
				c.API.WriteTimeout, worst)
		}
	}
	return nil
}

// requestBudget is the longest a single verify request may run: the nonce
// and fee RPC calls, the batcher dial, handshake, submission write and
// inclusion wait, and the on-chain confirmation when enabled. bounded is
// false when any of those stages has no limit.
func (c *Config) requestBudget() (worst time.Duration, bounded bool) {
	if c.Chain.RequestTimeout <= 0 || c.Batcher.HandshakeTimeout <= 0 ||
		c.Batcher.WriteTimeout <= 0 || c.Batcher.WaitTimeout <= 0 {
		return 0, false
	}
	worst = 2*c.Chain.RequestTimeout +
		c.Batcher.DialTimeout +
		c.Batcher.HandshakeTimeout +
		c.Batcher.WriteTimeout +
		c.Batcher.WaitTimeout
	if c.Verifier.AwaitOnchain {
		if c.Chain.Confirmation.Timeout <= 0 {
			return 0, false
		}
		worst += c.Chain.Confirmation.Timeout
	}
	return worst, true
}

// Network returns the parsed verifier network.
func (c *Config) Network() aligned.Network {
	n, _ := aligned.ParseNetwork(c.Verifier.Network)
	return n
}

// ChainID returns the chain id of the configured network.
func (c *Config) ChainID() uint64 {
	d, _ := c.Network().Deployment()
	return d.ChainID
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Identity.PrivateKey != "" {
		c.Identity.PrivateKey = redacted
	}
	return c
}

// ShutdownTimeout bounds graceful shutdown of the whole application.
func (c *Config) ShutdownTimeout() time.Duration {
	if c.API.ShutdownTimeout > 0 {
		return c.API.ShutdownTimeout
	}
	return 15 * time.Second
}
