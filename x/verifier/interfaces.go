package verifier

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/verifier/x/aligned"
	"github.com/compose-network/verifier/x/batcher"
	"github.com/compose-network/verifier/x/chain"
)

// NonceSource returns the next nonce the payment service expects.
type NonceSource interface {
	NextNonce(ctx context.Context, address common.Address, network aligned.Network) (*big.Int, error)
}

// FeeSource estimates the max fee for one submission.
type FeeSource interface {
	EstimateFee(ctx context.Context, strategy chain.PriceEstimate) (*big.Int, error)
}

// Submitter sends a signed submission and waits for its batch.
type Submitter interface {
	SubmitAndWait(ctx context.Context, req batcher.SubmitRequest, signer batcher.Signer) (*batcher.Outcome, error)
}

// Confirmer checks that an included batch was verified on-chain.
type Confirmer interface {
	AwaitVerification(ctx context.Context, inc chain.Inclusion) error
}

// Verifier is the operation served by POST /verify.
type Verifier interface {
	Verify(ctx context.Context, req Request) (*Result, error)
	Info() Info
}
