package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/verifier/x/aligned"
	"github.com/compose-network/verifier/x/batcher"
	"github.com/compose-network/verifier/x/chain"
	"github.com/compose-network/verifier/x/identity"
)

const testKey = "3afc6aa26dcfb78f93b2df978e41b2d89449e7951670763717265ab0a552aae0"

type fakeNonces struct {
	nonce *big.Int
	err   error
	calls atomic.Int32
}

func (f *fakeNonces) NextNonce(context.Context, common.Address, aligned.Network) (*big.Int, error) {
	f.calls.Add(1)
	return f.nonce, f.err
}

type fakeFees struct {
	fee      *big.Int
	err      error
	calls    atomic.Int32
	strategy chain.PriceEstimate
}

func (f *fakeFees) EstimateFee(_ context.Context, strategy chain.PriceEstimate) (*big.Int, error) {
	f.calls.Add(1)
	f.strategy = strategy
	return f.fee, f.err
}

type fakeSubmitter struct {
	outcome *batcher.Outcome
	err     error
	calls   atomic.Int32
	last    batcher.SubmitRequest
}

func (f *fakeSubmitter) SubmitAndWait(_ context.Context, req batcher.SubmitRequest, _ batcher.Signer) (*batcher.Outcome, error) {
	f.calls.Add(1)
	f.last = req
	return f.outcome, f.err
}

type fakeConfirmer struct {
	err  error
	last chain.Inclusion
}

func (f *fakeConfirmer) AwaitVerification(_ context.Context, inc chain.Inclusion) error {
	f.last = inc
	return f.err
}

type fixture struct {
	signer    *identity.Identity
	nonces    *fakeNonces
	fees      *fakeFees
	submitter *fakeSubmitter
	confirmer *fakeConfirmer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	signer, err := identity.FromHex(testKey, 17000)
	require.NoError(t, err)
	return &fixture{
		signer: signer,
		nonces: &fakeNonces{nonce: big.NewInt(3)},
		fees:   &fakeFees{fee: big.NewInt(1_000)},
		submitter: &fakeSubmitter{outcome: &batcher.Outcome{
			SubmissionID:    "sub-1",
			BatchMerkleRoot: common.HexToHash("0xabc"),
			IndexInBatch:    2,
		}},
		confirmer: &fakeConfirmer{},
	}
}

func (f *fixture) service(t *testing.T, cfg Config) *Service {
	t.Helper()
	return f.serviceWithLogger(t, cfg, zerolog.Nop())
}

func (f *fixture) serviceWithLogger(t *testing.T, cfg Config, log zerolog.Logger) *Service {
	t.Helper()
	svc, err := New(cfg, log,
		WithSigner(f.signer),
		WithNonceSource(f.nonces),
		WithFeeSource(f.fees),
		WithSubmitter(f.submitter),
		WithConfirmer(f.confirmer),
	)
	require.NoError(t, err)
	return svc
}

func validRequest() Request {
	return Request{
		RequestID:       "req-1",
		Proof:           aligned.Bytes{1, 2, 3},
		VerificationKey: aligned.Bytes{4, 5, 6},
		PublicInput:     aligned.Bytes{18},
	}
}

func TestVerify_Included(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, DefaultConfig())

	res, err := svc.Verify(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0xabc"), res.BatchMerkleRoot)
	require.Equal(t, uint64(2), res.IndexInBatch)
	require.Equal(t, big.NewInt(3), res.Nonce)
	require.Equal(t, big.NewInt(1_000), res.MaxFee)
	require.False(t, res.OnchainVerified)

	sent := f.submitter.last
	require.Equal(t, aligned.Holesky, sent.Network)
	require.Equal(t, aligned.Groth16Bn254, sent.Data.ProvingSystem)
	require.Equal(t, f.signer.Address(), sent.Data.ProofGeneratorAddress)
	require.Equal(t, []byte{18}, []byte(sent.Data.PublicInput))
	require.Equal(t, big.NewInt(3), sent.Nonce)
	require.Equal(t, big.NewInt(1_000), sent.MaxFee)
	require.Equal(t, chain.DefaultEstimate, f.fees.strategy)
}

func TestVerify_ValidationRunsFirst(t *testing.T) {
	cases := map[string]func(*Request){
		"empty proof":       func(r *Request) { r.Proof = nil },
		"missing vk":        func(r *Request) { r.VerificationKey = nil },
		"missing pub input": func(r *Request) { r.PublicInput = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			svc := f.service(t, DefaultConfig())

			req := validRequest()
			mutate(&req)
			_, err := svc.Verify(context.Background(), req)
			require.ErrorIs(t, err, aligned.ErrValidation)
			require.Zero(t, f.nonces.calls.Load())
			require.Zero(t, f.fees.calls.Load())
			require.Zero(t, f.submitter.calls.Load())
		})
	}
}

func TestVerify_NonceFailureStopsFlow(t *testing.T) {
	f := newFixture(t)
	f.nonces.err = errors.New("dial tcp: connection refused")
	svc := f.service(t, DefaultConfig())

	_, err := svc.Verify(context.Background(), validRequest())
	require.Equal(t, aligned.KindNonceFetch, aligned.KindOf(err))
	require.Zero(t, f.fees.calls.Load())
	require.Zero(t, f.submitter.calls.Load())
}

func TestVerify_FeeFailureStopsFlow(t *testing.T) {
	f := newFixture(t)
	f.fees.err = aligned.NewError(aligned.KindFeeEstimation, "gas price unavailable")
	svc := f.service(t, DefaultConfig())

	_, err := svc.Verify(context.Background(), validRequest())
	require.Equal(t, aligned.KindFeeEstimation, aligned.KindOf(err))
	require.Equal(t, int32(1), f.nonces.calls.Load())
	require.Zero(t, f.submitter.calls.Load())
}

func TestVerify_RejectionPassesThrough(t *testing.T) {
	f := newFixture(t)
	f.submitter.outcome = nil
	f.submitter.err = aligned.Rejected("invalid_nonce", "Invalid nonce")
	svc := f.service(t, DefaultConfig())

	_, err := svc.Verify(context.Background(), validRequest())
	require.ErrorIs(t, err, aligned.ErrRejected)
	require.Equal(t, "Invalid nonce", err.Error())
}

func TestVerify_ForeignSubmitErrorIsConnection(t *testing.T) {
	f := newFixture(t)
	f.submitter.outcome = nil
	f.submitter.err = errors.New("broken pipe")
	svc := f.service(t, DefaultConfig())

	_, err := svc.Verify(context.Background(), validRequest())
	require.Equal(t, aligned.KindConnection, aligned.KindOf(err))
}

func TestVerify_AwaitOnchain(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.AwaitOnchain = true
	svc := f.service(t, cfg)

	res, err := svc.Verify(context.Background(), validRequest())
	require.NoError(t, err)
	require.True(t, res.OnchainVerified)
	require.Equal(t, common.HexToHash("0xabc"), f.confirmer.last.BatchMerkleRoot)
	require.Equal(t, f.signer.Address(), f.confirmer.last.Sender)

	f.confirmer.err = errors.New("call reverted")
	_, err = svc.Verify(context.Background(), validRequest())
	require.Equal(t, aligned.KindOnchain, aligned.KindOf(err))
}

func TestVerify_CustomProvingSystem(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.ProvingSystem = "sp1"
	svc := f.service(t, cfg)

	req := Request{Proof: aligned.Bytes{1}, VMProgramCode: aligned.Bytes{2}}
	_, err := svc.Verify(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, aligned.SP1, f.submitter.last.Data.ProvingSystem)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	f := newFixture(t)

	_, err := New(DefaultConfig(), zerolog.Nop(), WithSigner(f.signer))
	require.Equal(t, aligned.KindConfiguration, aligned.KindOf(err))

	cfg := DefaultConfig()
	cfg.Network = "sepolia"
	_, err = New(cfg, zerolog.Nop(), WithSigner(f.signer))
	require.Equal(t, aligned.KindConfiguration, aligned.KindOf(err))

	cfg = DefaultConfig()
	cfg.Network = "mainnet"
	_, err = New(cfg, zerolog.Nop(),
		WithSigner(f.signer), WithNonceSource(f.nonces), WithFeeSource(f.fees), WithSubmitter(f.submitter))
	require.Equal(t, aligned.KindConfiguration, aligned.KindOf(err))
	require.Contains(t, err.Error(), "chain id")

	cfg = DefaultConfig()
	cfg.AwaitOnchain = true
	_, err = New(cfg, zerolog.Nop(),
		WithSigner(f.signer), WithNonceSource(f.nonces), WithFeeSource(f.fees), WithSubmitter(f.submitter))
	require.Equal(t, aligned.KindConfiguration, aligned.KindOf(err))
}

func TestState_Terminal(t *testing.T) {
	require.False(t, StateSubmitted.Terminal())
	require.True(t, StateIncluded.Terminal())
	require.True(t, StateRejected.Terminal())
	require.Equal(t, "fee_estimated", StateFeeEstimated.String())
}

// transitions returns the from/to pairs of the state transition entries in
// a JSON log stream.
func transitions(t *testing.T, logs *bytes.Buffer) [][2]string {
	t.Helper()
	var out [][2]string
	dec := json.NewDecoder(logs)
	for dec.More() {
		var entry struct {
			Message string `json:"message"`
			From    string `json:"from"`
			To      string `json:"to"`
		}
		require.NoError(t, dec.Decode(&entry))
		if entry.Message == "state transition" {
			out = append(out, [2]string{entry.From, entry.To})
		}
	}
	return out
}

func TestVerify_StateSequence(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fixture, *Request)
		want   []string
	}{
		{
			name: "included",
			want: []string{"nonce_fetched", "fee_estimated", "submitted", "included"},
		},
		{
			name: "rejected",
			mutate: func(f *fixture, _ *Request) {
				f.submitter.err = aligned.Rejected("invalid_nonce", "Invalid nonce")
			},
			want: []string{"nonce_fetched", "fee_estimated", "submitted", "rejected"},
		},
		{
			name: "fee failure",
			mutate: func(f *fixture, _ *Request) {
				f.fees.err = errors.New("rpc down")
			},
			want: []string{"nonce_fetched", "failed"},
		},
		{
			name: "invalid payload",
			mutate: func(_ *fixture, r *Request) {
				r.Proof = nil
			},
			want: []string{"failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := validRequest()
			if tt.mutate != nil {
				tt.mutate(f, &req)
			}

			var logs bytes.Buffer
			svc := f.serviceWithLogger(t, DefaultConfig(), zerolog.New(&logs).Level(zerolog.DebugLevel))
			_, _ = svc.Verify(context.Background(), req)

			got := transitions(t, &logs)
			require.Len(t, got, len(tt.want))
			from := StateReceived.String()
			for i, step := range got {
				require.Equal(t, from, step[0], "transition %d", i)
				require.Equal(t, tt.want[i], step[1], "transition %d", i)
				from = step[1]
			}
		})
	}
}
