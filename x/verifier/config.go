package verifier

import (
	"fmt"

	"github.com/compose-network/verifier/x/aligned"
	"github.com/compose-network/verifier/x/chain"
)

// Config selects what every request is submitted as.
type Config struct {
	Network       string `mapstructure:"network"        yaml:"network"`
	ProvingSystem string `mapstructure:"proving_system" yaml:"proving_system"`
	FeeStrategy   string `mapstructure:"fee_strategy"   yaml:"fee_strategy"`
	// AwaitOnchain additionally waits for verifyBatchInclusion to pass
	// before a request succeeds.
	AwaitOnchain bool `mapstructure:"await_onchain" yaml:"await_onchain"`
}

func DefaultConfig() Config {
	return Config{
		Network:       string(aligned.Holesky),
		ProvingSystem: aligned.Groth16Bn254.String(),
		FeeStrategy:   chain.DefaultEstimate.String(),
	}
}

// settings is the parsed form of Config.
type settings struct {
	network       aligned.Network
	provingSystem aligned.ProvingSystem
	feeStrategy   chain.PriceEstimate
	awaitOnchain  bool
}

func (c Config) parse() (settings, error) {
	network, err := aligned.ParseNetwork(c.Network)
	if err != nil {
		return settings{}, err
	}
	ps, err := aligned.ParseProvingSystem(c.ProvingSystem)
	if err != nil {
		return settings{}, err
	}
	strategy, err := chain.ParsePriceEstimate(c.FeeStrategy)
	if err != nil {
		return settings{}, fmt.Errorf("fee_strategy: %w", err)
	}
	return settings{
		network:       network,
		provingSystem: ps,
		feeStrategy:   strategy,
		awaitOnchain:  c.AwaitOnchain,
	}, nil
}

// Validate checks that every field parses.
func (c Config) Validate() error {
	_, err := c.parse()
	return err
}
