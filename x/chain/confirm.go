package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/verifier/x/aligned"
)

var errNotVerified = errors.New("batch not verified yet")

// Inclusion describes a submission's position in a batch.
type Inclusion struct {
	Network         aligned.Network
	Commitment      aligned.Commitment
	BatchMerkleRoot common.Hash
	MerklePath      []common.Hash
	IndexInBatch    uint64
	Sender          common.Address
}

// BatchVerifier asks the service manager whether a batch containing a
// submission has been verified on-chain.
type BatchVerifier struct {
	client  EthClient
	cfg     ConfirmationConfig
	timeout time.Duration
	log     zerolog.Logger
}

func NewBatchVerifier(client EthClient, cfg Config, log zerolog.Logger) *BatchVerifier {
	return &BatchVerifier{
		client:  client,
		cfg:     cfg.Confirmation,
		timeout: cfg.RequestTimeout,
		log:     log.With().Str("component", "batch-verifier").Logger(),
	}
}

// IsVerified performs a single verifyBatchInclusion call.
func (v *BatchVerifier) IsVerified(ctx context.Context, inc Inclusion) (bool, error) {
	deployment, err := inc.Network.Deployment()
	if err != nil {
		return false, err
	}

	proof := make([]byte, 0, len(inc.MerklePath)*common.HashLength)
	for _, h := range inc.MerklePath {
		proof = append(proof, h.Bytes()...)
	}

	calldata, err := serviceManagerABI.Pack(
		"verifyBatchInclusion",
		[32]byte(inc.Commitment.ProofCommitment),
		[32]byte(inc.Commitment.PubInputCommitment),
		[32]byte(inc.Commitment.ProvingSystemAuxDataCommitment),
		[20]byte(inc.Commitment.ProofGeneratorAddress),
		[32]byte(inc.BatchMerkleRoot),
		proof,
		new(big.Int).SetUint64(inc.IndexInBatch),
		inc.Sender,
	)
	if err != nil {
		return false, err
	}

	ctx, cancel := withTimeout(ctx, v.timeout)
	defer cancel()

	to := deployment.ServiceManager
	out, err := v.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: calldata}, nil)
	if err != nil {
		return false, err
	}
	values, err := serviceManagerABI.Unpack("verifyBatchInclusion", out)
	if err != nil {
		return false, err
	}
	if len(values) != 1 {
		return false, errors.New("unexpected verifyBatchInclusion output")
	}
	verified, ok := values[0].(bool)
	if !ok {
		return false, errors.New("unexpected verifyBatchInclusion output type")
	}
	return verified, nil
}

// AwaitVerification polls IsVerified until it reports true, the configured
// timeout elapses or ctx is done. Failures are KindOnchain errors.
func (v *BatchVerifier) AwaitVerification(ctx context.Context, inc Inclusion) error {
	pollCtx, cancel := withTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	interval := v.cfg.PollInterval
	if interval <= 0 {
		interval = DefaultConfig().Confirmation.PollInterval
	}

	attempts := 0
	op := func() error {
		attempts++
		ok, err := v.IsVerified(pollCtx, inc)
		if err != nil {
			return err
		}
		if !ok {
			return errNotVerified
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		v.log.Debug().
			Err(err).
			Int("attempt", attempts).
			Dur("next_in", next).
			Str("batch_merkle_root", inc.BatchMerkleRoot.Hex()).
			Msg("batch not confirmed on-chain yet")
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.NewConstantBackOff(interval), pollCtx), notify)
	if err == nil {
		v.log.Info().
			Int("attempts", attempts).
			Str("batch_merkle_root", inc.BatchMerkleRoot.Hex()).
			Msg("batch verified on-chain")
		return nil
	}

	if ctx.Err() != nil {
		return aligned.NewError(aligned.KindCanceled, "on-chain confirmation canceled").WithCause(ctx.Err())
	}
	return aligned.NewError(aligned.KindOnchain, "batch was not verified on-chain in time").WithCause(err)
}
