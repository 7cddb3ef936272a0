package chain

import "time"

// Config holds chain RPC settings.
type Config struct {
	// RPCURL of an Ethereum node on the target network.
	RPCURL string `mapstructure:"rpc_url" yaml:"rpc_url"`

	// RequestTimeout bounds each RPC call. Zero leaves calls bounded only by the caller's context.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	Confirmation ConfirmationConfig `mapstructure:"confirmation" yaml:"confirmation"`
}

// ConfirmationConfig controls polling of the service manager for batch verification.
type ConfirmationConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"       yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		RequestTimeout: 30 * time.Second,
		Confirmation: ConfirmationConfig{
			PollInterval: 12 * time.Second,
			Timeout:      10 * time.Minute,
		},
	}
}
