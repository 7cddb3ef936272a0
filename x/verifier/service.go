package verifier

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/verifier/x/aligned"
	"github.com/compose-network/verifier/x/batcher"
	"github.com/compose-network/verifier/x/chain"
)

// Request is one proof to submit. Absent fields are empty.
type Request struct {
	RequestID       string
	Proof           aligned.Bytes
	VerificationKey aligned.Bytes
	PublicInput     aligned.Bytes
	VMProgramCode   aligned.Bytes
}

// Result reports the batch a proof was included in.
type Result struct {
	SubmissionID    string
	BatchMerkleRoot common.Hash
	IndexInBatch    uint64
	MerklePath      []common.Hash
	Commitment      aligned.Commitment
	Nonce           *big.Int
	MaxFee          *big.Int
	OnchainVerified bool
	Elapsed         time.Duration
}

// Info describes the identity and network requests are submitted with.
type Info struct {
	Address       common.Address `json:"address"`
	ChainID       *big.Int       `json:"chain_id"`
	Network       string         `json:"network"`
	ProvingSystem string         `json:"proving_system"`
	FeeStrategy   string         `json:"fee_strategy"`
}

// Service runs the submission flow for each request. It holds no
// per-request state and is safe for concurrent use.
type Service struct {
	settings settings
	deps     deps
	log      zerolog.Logger
	metrics  *Metrics
}

var _ Verifier = (*Service)(nil)

func New(cfg Config, log zerolog.Logger, opts ...Option) (*Service, error) {
	s, err := cfg.parse()
	if err != nil {
		return nil, aligned.NewError(aligned.KindConfiguration, "invalid verifier config").WithCause(err)
	}

	var d deps
	for _, opt := range opts {
		opt(&d)
	}
	switch {
	case d.signer == nil:
		return nil, aligned.NewError(aligned.KindConfiguration, "signer is required")
	case d.nonces == nil:
		return nil, aligned.NewError(aligned.KindConfiguration, "nonce source is required")
	case d.fees == nil:
		return nil, aligned.NewError(aligned.KindConfiguration, "fee source is required")
	case d.submitter == nil:
		return nil, aligned.NewError(aligned.KindConfiguration, "submitter is required")
	case s.awaitOnchain && d.confirmer == nil:
		return nil, aligned.NewError(aligned.KindConfiguration, "await_onchain requires a confirmer")
	}

	deployment, err := s.network.Deployment()
	if err != nil {
		return nil, aligned.NewError(aligned.KindConfiguration, "invalid network").WithCause(err)
	}
	if chainID := d.signer.ChainID(); chainID.Uint64() != deployment.ChainID {
		return nil, aligned.Errorf(aligned.KindConfiguration,
			"identity chain id %s does not match network %s (%d)", chainID, s.network, deployment.ChainID)
	}

	return &Service{
		settings: s,
		deps:     d,
		log:      log.With().Str("component", "verifier").Logger(),
		metrics:  NewMetrics(),
	}, nil
}

func (s *Service) Info() Info {
	return Info{
		Address:       s.deps.signer.Address(),
		ChainID:       s.deps.signer.ChainID(),
		Network:       s.settings.network.String(),
		ProvingSystem: s.settings.provingSystem.String(),
		FeeStrategy:   s.settings.feeStrategy.String(),
	}
}

// flow tracks one request through its states.
type flow struct {
	state State
	log   zerolog.Logger
}

func (f *flow) advance(to State) {
	f.log.Debug().Str("from", f.state.String()).Str("to", to.String()).Msg("state transition")
	f.state = to
}

// Verify validates req, fetches the nonce, estimates the fee, submits the
// proof and waits for the batcher's answer. Validation happens before any
// remote call. Errors are *aligned.Error.
func (s *Service) Verify(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	s.metrics.InFlight.Inc()
	defer s.metrics.InFlight.Dec()

	f := &flow{
		state: StateReceived,
		log:   s.log.With().Str("request_id", req.RequestID).Logger(),
	}
	f.log.Info().
		Int("proof_size", len(req.Proof)).
		Int("pub_input_size", len(req.PublicInput)).
		Str("proving_system", s.settings.provingSystem.String()).
		Msg("verify request received")

	result, err := s.run(ctx, f, req)

	elapsed := time.Since(start)
	s.metrics.RequestDuration.Observe(elapsed.Seconds())
	if err != nil {
		kind := aligned.KindOf(err)
		if kind == aligned.KindRejected {
			f.advance(StateRejected)
		} else {
			f.advance(StateFailed)
		}
		s.metrics.RequestsTotal.WithLabelValues(f.state.String(), kind.String()).Inc()

		level := zerolog.WarnLevel
		if kind.IsInfrastructure() {
			level = zerolog.ErrorLevel
		}
		f.log.WithLevel(level).Err(err).Str("error_kind", kind.String()).Dur("elapsed", elapsed).Msg("verify request failed")
		return nil, err
	}

	f.advance(StateIncluded)
	s.metrics.RequestsTotal.WithLabelValues(f.state.String(), "").Inc()
	result.Elapsed = elapsed
	f.log.Info().
		Str("batch_merkle_root", result.BatchMerkleRoot.Hex()).
		Uint64("index_in_batch", result.IndexInBatch).
		Bool("onchain_verified", result.OnchainVerified).
		Dur("elapsed", elapsed).
		Msg("proof included in batch")
	return result, nil
}

func (s *Service) run(ctx context.Context, f *flow, req Request) (*Result, error) {
	address := s.deps.signer.Address()
	data := aligned.VerificationData{
		ProvingSystem:         s.settings.provingSystem,
		Proof:                 req.Proof,
		PublicInput:           req.PublicInput,
		VerificationKey:       req.VerificationKey,
		VMProgramCode:         req.VMProgramCode,
		ProofGeneratorAddress: address,
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	stageStart := time.Now()
	nonce, err := s.deps.nonces.NextNonce(ctx, address, s.settings.network)
	s.metrics.StageDuration.WithLabelValues("nonce").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return nil, asKind(err, aligned.KindNonceFetch, "fetch nonce")
	}
	f.advance(StateNonceFetched)
	f.log.Debug().Str("nonce", nonce.String()).Msg("nonce fetched")

	stageStart = time.Now()
	maxFee, err := s.deps.fees.EstimateFee(ctx, s.settings.feeStrategy)
	s.metrics.StageDuration.WithLabelValues("fee").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return nil, asKind(err, aligned.KindFeeEstimation, "estimate fee")
	}
	f.advance(StateFeeEstimated)
	f.log.Debug().Str("max_fee", maxFee.String()).Str("strategy", s.settings.feeStrategy.String()).Msg("fee estimated")

	f.advance(StateSubmitted)
	outcome, err := s.deps.submitter.SubmitAndWait(ctx, batcher.SubmitRequest{
		Network: s.settings.network,
		Data:    data,
		MaxFee:  maxFee,
		Nonce:   nonce,
	}, s.deps.signer)
	if err != nil {
		return nil, asKind(err, aligned.KindConnection, "submit proof")
	}

	result := &Result{
		SubmissionID:    outcome.SubmissionID,
		BatchMerkleRoot: outcome.BatchMerkleRoot,
		IndexInBatch:    outcome.IndexInBatch,
		MerklePath:      outcome.MerklePath,
		Commitment:      outcome.Commitment,
		Nonce:           nonce,
		MaxFee:          maxFee,
	}

	if s.settings.awaitOnchain {
		err := s.deps.confirmer.AwaitVerification(ctx, chain.Inclusion{
			Network:         s.settings.network,
			Commitment:      outcome.Commitment,
			BatchMerkleRoot: outcome.BatchMerkleRoot,
			MerklePath:      outcome.MerklePath,
			IndexInBatch:    outcome.IndexInBatch,
			Sender:          address,
		})
		if err != nil {
			return nil, asKind(err, aligned.KindOnchain, "confirm batch on-chain")
		}
		result.OnchainVerified = true
	}
	return result, nil
}

// asKind keeps structured errors as they are and classifies foreign ones.
func asKind(err error, kind aligned.ErrorKind, msg string) error {
	if _, ok := aligned.AsError(err); ok {
		return err
	}
	return aligned.NewError(kind, msg).WithCause(err)
}
