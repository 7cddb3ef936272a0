package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/verifier/x/aligned"
)

// NonceSequencer reads the next unused submission nonce of an address from
// the network's BatcherPaymentService. Nothing is cached between calls.
type NonceSequencer struct {
	client  EthClient
	timeout time.Duration
	log     zerolog.Logger
}

// NewNonceSequencer creates a sequencer over client.
func NewNonceSequencer(client EthClient, cfg Config, log zerolog.Logger) *NonceSequencer {
	return &NonceSequencer{
		client:  client,
		timeout: cfg.RequestTimeout,
		log:     log.With().Str("component", "nonce-sequencer").Logger(),
	}
}

// NextNonce returns the nonce the next submission of address must use.
// Every failure is a KindNonceFetch error; no default nonce is ever guessed.
func (s *NonceSequencer) NextNonce(ctx context.Context, address common.Address, network aligned.Network) (*big.Int, error) {
	deployment, err := network.Deployment()
	if err != nil {
		return nil, aligned.NewError(aligned.KindNonceFetch, "resolve network").WithCause(err)
	}

	calldata, err := batcherPaymentServiceABI.Pack("user_nonces", address)
	if err != nil {
		return nil, aligned.NewError(aligned.KindNonceFetch, "encode user_nonces call").WithCause(err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	to := deployment.BatcherPaymentService
	out, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: calldata}, nil)
	if err != nil {
		s.log.Error().Err(err).
			Str("address", address.Hex()).
			Str("network", network.String()).
			Msg("nonce query failed")
		return nil, aligned.NewError(aligned.KindNonceFetch, "failed to fetch next nonce").WithCause(err)
	}
	if len(out) == 0 {
		return nil, aligned.NewError(aligned.KindNonceFetch, "failed to fetch next nonce: empty response")
	}

	values, err := batcherPaymentServiceABI.Unpack("user_nonces", out)
	if err != nil || len(values) != 1 {
		return nil, aligned.NewError(aligned.KindNonceFetch, "failed to fetch next nonce: malformed response").WithCause(err)
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, aligned.Errorf(aligned.KindNonceFetch, "failed to fetch next nonce: unexpected type %T", values[0])
	}

	s.log.Debug().
		Str("address", address.Hex()).
		Str("network", network.String()).
		Str("nonce", nonce.String()).
		Msg("fetched next nonce")

	return nonce, nil
}
