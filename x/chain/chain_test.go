package chain

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/verifier/x/aligned"
)

type mockEthClient struct {
	gasPrice    *big.Int
	gasPriceErr error
	call        func(msg ethereum.CallMsg) ([]byte, error)
	calls       atomic.Int32
	lastCall    ethereum.CallMsg
}

func (m *mockEthClient) ChainID(context.Context) (*big.Int, error) { return big.NewInt(17000), nil }

func (m *mockEthClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return m.gasPrice, m.gasPriceErr
}

func (m *mockEthClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	m.calls.Add(1)
	m.lastCall = msg
	return m.call(msg)
}

var testAddr = common.HexToAddress("0x0123456789abcdef0123456789abcdef01234567")

func TestNextNonce_QueriesPaymentService(t *testing.T) {
	client := &mockEthClient{call: func(ethereum.CallMsg) ([]byte, error) {
		return common.LeftPadBytes(big.NewInt(7).Bytes(), 32), nil
	}}
	seq := NewNonceSequencer(client, DefaultConfig(), zerolog.Nop())

	nonce, err := seq.NextNonce(context.Background(), testAddr, aligned.Holesky)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(7), nonce)

	deployment, err := aligned.Holesky.Deployment()
	require.NoError(t, err)
	require.Equal(t, deployment.BatcherPaymentService, *client.lastCall.To)
	require.Equal(t, batcherPaymentServiceABI.Methods["user_nonces"].ID, client.lastCall.Data[:4])
	require.Equal(t, common.LeftPadBytes(testAddr.Bytes(), 32), client.lastCall.Data[4:])
}

func TestNextNonce_FailuresAreNonceFetchErrors(t *testing.T) {
	cases := map[string]func(ethereum.CallMsg) ([]byte, error){
		"unreachable": func(ethereum.CallMsg) ([]byte, error) { return nil, errors.New("connection refused") },
		"empty":       func(ethereum.CallMsg) ([]byte, error) { return nil, nil },
		"malformed":   func(ethereum.CallMsg) ([]byte, error) { return []byte{0x01}, nil },
	}
	for name, call := range cases {
		t.Run(name, func(t *testing.T) {
			seq := NewNonceSequencer(&mockEthClient{call: call}, DefaultConfig(), zerolog.Nop())
			nonce, err := seq.NextNonce(context.Background(), testAddr, aligned.Holesky)
			require.Nil(t, nonce)
			require.Equal(t, aligned.KindNonceFetch, aligned.KindOf(err))
		})
	}
}

func TestNextNonce_UnknownNetwork(t *testing.T) {
	client := &mockEthClient{call: func(ethereum.CallMsg) ([]byte, error) { return nil, nil }}
	seq := NewNonceSequencer(client, DefaultConfig(), zerolog.Nop())

	_, err := seq.NextNonce(context.Background(), testAddr, aligned.Network("sepolia"))
	require.Equal(t, aligned.KindNonceFetch, aligned.KindOf(err))
	require.Zero(t, client.calls.Load())
}

func TestParsePriceEstimate(t *testing.T) {
	p, err := ParsePriceEstimate("")
	require.NoError(t, err)
	require.Equal(t, DefaultEstimate, p)

	p, err = ParsePriceEstimate("Instant")
	require.NoError(t, err)
	require.Equal(t, InstantEstimate, p)

	p, err = ParsePriceEstimate("custom:4")
	require.NoError(t, err)
	require.Equal(t, uint64(4), p.Proofs())
	require.Equal(t, "custom:4", p.String())

	_, err = ParsePriceEstimate("custom:0")
	require.Error(t, err)
	_, err = ParsePriceEstimate("cheap")
	require.Error(t, err)
}

func TestFeePerProof(t *testing.T) {
	gasPrice := big.NewInt(1_000_000_000)

	// (625_000/10 + 13_000) * 1 gwei
	require.Equal(t, big.NewInt(75_500_000_000_000), FeePerProof(gasPrice, 10))
	// (625_000 + 13_000) * 1 gwei
	require.Equal(t, big.NewInt(638_000_000_000_000), FeePerProof(gasPrice, 1))
}

func TestEstimateFee(t *testing.T) {
	client := &mockEthClient{gasPrice: big.NewInt(2_000_000_000)}
	est := NewFeeEstimator(client, DefaultConfig(), zerolog.Nop())

	fee, err := est.EstimateFee(context.Background(), DefaultEstimate)
	require.NoError(t, err)
	require.Equal(t, FeePerProof(big.NewInt(2_000_000_000), 10), fee)

	instant, err := est.EstimateFee(context.Background(), InstantEstimate)
	require.NoError(t, err)
	require.Equal(t, 1, instant.Cmp(fee))
}

func TestEstimateFee_Unreachable(t *testing.T) {
	client := &mockEthClient{gasPriceErr: errors.New("dial tcp: i/o timeout")}
	est := NewFeeEstimator(client, DefaultConfig(), zerolog.Nop())

	fee, err := est.EstimateFee(context.Background(), DefaultEstimate)
	require.Nil(t, fee)
	require.Equal(t, aligned.KindFeeEstimation, aligned.KindOf(err))
	require.ErrorContains(t, err, "i/o timeout")
}

func boolResult(v bool) []byte {
	out := make([]byte, 32)
	if v {
		out[31] = 1
	}
	return out
}

func testInclusion() Inclusion {
	return Inclusion{
		Network:         aligned.Holesky,
		Commitment:      aligned.Commitment{ProofCommitment: common.Hash{1}, ProofGeneratorAddress: testAddr},
		BatchMerkleRoot: common.Hash{2},
		MerklePath:      []common.Hash{{3}, {4}},
		IndexInBatch:    1,
		Sender:          testAddr,
	}
}

func TestIsVerified(t *testing.T) {
	client := &mockEthClient{call: func(ethereum.CallMsg) ([]byte, error) { return boolResult(true), nil }}
	v := NewBatchVerifier(client, DefaultConfig(), zerolog.Nop())

	ok, err := v.IsVerified(context.Background(), testInclusion())
	require.NoError(t, err)
	require.True(t, ok)

	deployment, _ := aligned.Holesky.Deployment()
	require.Equal(t, deployment.ServiceManager, *client.lastCall.To)
	require.Equal(t, serviceManagerABI.Methods["verifyBatchInclusion"].ID, client.lastCall.Data[:4])
}

func TestAwaitVerification_PollsUntilVerified(t *testing.T) {
	var polls atomic.Int32
	client := &mockEthClient{call: func(ethereum.CallMsg) ([]byte, error) {
		return boolResult(polls.Add(1) >= 3), nil
	}}
	cfg := DefaultConfig()
	cfg.Confirmation.PollInterval = 5 * time.Millisecond
	cfg.Confirmation.Timeout = time.Second

	v := NewBatchVerifier(client, cfg, zerolog.Nop())
	require.NoError(t, v.AwaitVerification(context.Background(), testInclusion()))
	require.Equal(t, int32(3), polls.Load())
}

func TestAwaitVerification_Timeout(t *testing.T) {
	client := &mockEthClient{call: func(ethereum.CallMsg) ([]byte, error) { return boolResult(false), nil }}
	cfg := DefaultConfig()
	cfg.Confirmation.PollInterval = 5 * time.Millisecond
	cfg.Confirmation.Timeout = 30 * time.Millisecond

	v := NewBatchVerifier(client, cfg, zerolog.Nop())
	err := v.AwaitVerification(context.Background(), testInclusion())
	require.Equal(t, aligned.KindOnchain, aligned.KindOf(err))
}

func TestAwaitVerification_Canceled(t *testing.T) {
	client := &mockEthClient{call: func(ethereum.CallMsg) ([]byte, error) { return boolResult(false), nil }}
	cfg := DefaultConfig()
	cfg.Confirmation.PollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := NewBatchVerifier(client, cfg, zerolog.Nop())
	err := v.AwaitVerification(ctx, testInclusion())
	require.Equal(t, aligned.KindCanceled, aligned.KindOf(err))
}
