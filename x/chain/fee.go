package chain

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/verifier/x/aligned"
)

// Aligned protocol gas constants.
const (
	aggregatorGasCost                   = 400_000
	aggregatorFeePercentageMultiplier   = 125
	percentageDivider                   = 100
	batcherSubmissionBaseGasCost        = 125_000
	additionalSubmissionGasCostPerProof = 13_000

	constantGasCost = aggregatorGasCost*aggregatorFeePercentageMultiplier/percentageDivider +
		batcherSubmissionBaseGasCost

	defaultEstimateProofs = 10
	instantEstimateProofs = 1
)

// PriceEstimate selects how many proofs the batch cost is amortised over.
type PriceEstimate struct {
	name   string
	proofs uint64
}

var (
	// DefaultEstimate assumes a batch shared with other submissions.
	DefaultEstimate = PriceEstimate{name: "default", proofs: defaultEstimateProofs}
	// InstantEstimate pays for a batch on its own.
	InstantEstimate = PriceEstimate{name: "instant", proofs: instantEstimateProofs}
)

// CustomEstimate amortises the batch cost over n proofs.
func CustomEstimate(n uint64) (PriceEstimate, error) {
	if n == 0 {
		return PriceEstimate{}, fmt.Errorf("custom estimate needs at least one proof")
	}
	return PriceEstimate{name: "custom", proofs: n}, nil
}

// ParsePriceEstimate parses default, instant or custom:<n>.
func ParsePriceEstimate(s string) (PriceEstimate, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "" || s == DefaultEstimate.name:
		return DefaultEstimate, nil
	case s == InstantEstimate.name:
		return InstantEstimate, nil
	case strings.HasPrefix(s, "custom:"):
		n, err := strconv.ParseUint(strings.TrimPrefix(s, "custom:"), 10, 64)
		if err != nil {
			return PriceEstimate{}, fmt.Errorf("invalid custom estimate %q: %w", s, err)
		}
		return CustomEstimate(n)
	}
	return PriceEstimate{}, fmt.Errorf("unknown fee strategy %q", s)
}

// Proofs returns the number of proofs the batch cost is split across.
func (p PriceEstimate) Proofs() uint64 { return p.proofs }

func (p PriceEstimate) String() string {
	if p.name == "custom" {
		return fmt.Sprintf("custom:%d", p.proofs)
	}
	return p.name
}

// FeePerProof returns the max fee for one proof at gasPrice.
func FeePerProof(gasPrice *big.Int, numProofs uint64) *big.Int {
	if numProofs == 0 {
		numProofs = 1
	}
	gasPerProof := new(big.Int).Div(big.NewInt(constantGasCost), new(big.Int).SetUint64(numProofs))
	gasPerProof.Add(gasPerProof, big.NewInt(additionalSubmissionGasCostPerProof))
	return gasPerProof.Mul(gasPerProof, gasPrice)
}

// FeeEstimator derives the max fee from the current gas price.
type FeeEstimator struct {
	client  EthClient
	timeout time.Duration
	log     zerolog.Logger
}

func NewFeeEstimator(client EthClient, cfg Config, log zerolog.Logger) *FeeEstimator {
	return &FeeEstimator{
		client:  client,
		timeout: cfg.RequestTimeout,
		log:     log.With().Str("component", "fee-estimator").Logger(),
	}
}

// EstimateFee returns the max fee for one submission under strategy.
// Failures are KindFeeEstimation errors.
func (f *FeeEstimator) EstimateFee(ctx context.Context, strategy PriceEstimate) (*big.Int, error) {
	if strategy.proofs == 0 {
		strategy = DefaultEstimate
	}

	ctx, cancel := withTimeout(ctx, f.timeout)
	defer cancel()

	gasPrice, err := f.client.SuggestGasPrice(ctx)
	if err != nil {
		f.log.Error().Err(err).Msg("gas price query failed")
		return nil, aligned.NewError(aligned.KindFeeEstimation, "failed to fetch gas price").WithCause(err)
	}
	if gasPrice == nil || gasPrice.Sign() < 0 {
		return nil, aligned.NewError(aligned.KindFeeEstimation, "failed to fetch gas price: malformed response")
	}

	fee := FeePerProof(gasPrice, strategy.proofs)

	f.log.Debug().
		Str("strategy", strategy.String()).
		Str("gas_price", gasPrice.String()).
		Str("max_fee", fee.String()).
		Msg("estimated max fee")

	return fee, nil
}
