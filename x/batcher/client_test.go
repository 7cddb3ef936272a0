package batcher

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/verifier/x/aligned"
	"github.com/compose-network/verifier/x/identity"
)

const testKey = "3afc6aa26dcfb78f93b2df978e41b2d89449e7951670763717265ab0a552aae0"

// respond reacts to a decoded submission on the server side.
type respond func(ws *websocket.Conn, sub SubmitProofMessage)

type fakeBatcher struct {
	url         string
	submissions chan SubmitProofMessage
}

func newFakeBatcher(t *testing.T, version uint16, fn respond) *fakeBatcher {
	t.Helper()

	fb := &fakeBatcher{submissions: make(chan SubmitProofMessage, 1)}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		if err := writeFrame(ws, MsgProtocolVersion, ProtocolVersionMessage{Version: version}); err != nil {
			return
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if json.Unmarshal(data, &env) != nil || env.Type != MsgSubmitProof {
			return
		}
		var sub SubmitProofMessage
		if env.Decode(&sub) != nil {
			return
		}
		fb.submissions <- sub

		if fn != nil {
			fn(ws, sub)
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	fb.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return fb
}

func writeFrame(ws *websocket.Conn, t MessageType, payload any) error {
	env, err := NewEnvelope(t, payload)
	if err != nil {
		return err
	}
	return ws.WriteJSON(env)
}

func testSigner(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.FromHex(testKey, 17000)
	require.NoError(t, err)
	return id
}

func testRequest(signer Signer) SubmitRequest {
	return SubmitRequest{
		Network: aligned.Holesky,
		Data: aligned.VerificationData{
			ProvingSystem:         aligned.Groth16Bn254,
			Proof:                 aligned.Bytes{1, 2, 3},
			PublicInput:           aligned.Bytes{18},
			VerificationKey:       aligned.Bytes{4, 5, 6},
			ProofGeneratorAddress: signer.Address(),
		},
		MaxFee: big.NewInt(75_500_000_000_000),
		Nonce:  big.NewInt(7),
	}
}

func testClient(url string, wait time.Duration) *Client {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.DialTimeout = 2 * time.Second
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.WaitTimeout = wait
	return NewClient(cfg, zerolog.Nop())
}

func includeAt(index int) respond {
	return func(ws *websocket.Conn, sub SubmitProofMessage) {
		leaves := []common.Hash{
			crypto.Keccak256Hash([]byte("a")),
			crypto.Keccak256Hash([]byte("b")),
			crypto.Keccak256Hash([]byte("c")),
		}
		leaves[index] = sub.VerificationData.VerificationDataHash()
		_ = writeFrame(ws, MsgBatchInclusionData, BatchInclusionData{
			BatchMerkleRoot:     aligned.MerkleRoot(leaves),
			BatchInclusionProof: InclusionProof{MerklePath: aligned.MerkleProof(leaves, index)},
			IndexInBatch:        uint64(index),
		})
	}
}

func TestSubmitAndWait_Included(t *testing.T) {
	signer := testSigner(t)
	fb := newFakeBatcher(t, 1, includeAt(1))
	client := testClient(fb.url, 5*time.Second)
	req := testRequest(signer)

	out, err := client.SubmitAndWait(context.Background(), req, signer)
	require.NoError(t, err)
	require.NotEmpty(t, out.SubmissionID)
	require.Equal(t, uint64(1), out.IndexInBatch)
	require.Len(t, out.MerklePath, 2)
	require.Equal(t, req.Data.Commitment(), out.Commitment)

	leaves := []common.Hash{
		crypto.Keccak256Hash([]byte("a")),
		req.Data.Commitment().Leaf(),
		crypto.Keccak256Hash([]byte("c")),
	}
	require.Equal(t, aligned.MerkleRoot(leaves), out.BatchMerkleRoot)

	sub := <-fb.submissions
	require.Equal(t, big.NewInt(7), sub.VerificationData.Nonce.ToInt())
	require.Equal(t, big.NewInt(75_500_000_000_000), sub.VerificationData.MaxFee.ToInt())
	require.Equal(t, big.NewInt(17000), sub.VerificationData.ChainID.ToInt())
	require.Equal(t, common.HexToAddress("0x815aeCA64a974297942D2Bbf034ABEe22a38A003"), sub.VerificationData.PaymentServiceAddr)
	require.Equal(t, []byte{18}, []byte(sub.VerificationData.VerificationData.PublicInput))

	digest, _, err := apitypes.TypedDataAndHash(sub.VerificationData.TypedData())
	require.NoError(t, err)
	signerAddr, err := identity.RecoverAddress(digest, sub.Signature)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), signerAddr)
}

func TestSubmitAndWait_Rejected(t *testing.T) {
	signer := testSigner(t)
	fb := newFakeBatcher(t, 1, func(ws *websocket.Conn, _ SubmitProofMessage) {
		_ = ws.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = writeFrame(ws, MsgInsufficientBalance, ErrorMessage{Message: "Insufficient balance for 0xabc"})
	})

	_, err := testClient(fb.url, 5*time.Second).SubmitAndWait(context.Background(), testRequest(signer), signer)
	require.Error(t, err)
	require.ErrorIs(t, err, aligned.ErrRejected)
	e, ok := aligned.AsError(err)
	require.True(t, ok)
	require.Equal(t, "insufficient_balance", e.Code)
	require.Equal(t, "Insufficient balance for 0xabc", err.Error())
}

func TestSubmitAndWait_RejectionDefaultMessage(t *testing.T) {
	signer := testSigner(t)
	fb := newFakeBatcher(t, 1, func(ws *websocket.Conn, _ SubmitProofMessage) {
		_ = writeFrame(ws, MsgInvalidNonce, nil)
	})

	_, err := testClient(fb.url, 5*time.Second).SubmitAndWait(context.Background(), testRequest(signer), signer)
	require.ErrorIs(t, err, &aligned.Error{Kind: aligned.KindRejected, Code: "invalid_nonce"})
	require.Equal(t, "Invalid nonce", err.Error())
}

func TestSubmitAndWait_ConnectionLost(t *testing.T) {
	signer := testSigner(t)
	fb := newFakeBatcher(t, 1, func(ws *websocket.Conn, _ SubmitProofMessage) {
		_ = ws.UnderlyingConn().Close()
	})

	_, err := testClient(fb.url, 5*time.Second).SubmitAndWait(context.Background(), testRequest(signer), signer)
	require.ErrorIs(t, err, aligned.ErrConnectionLost)
}

func TestSubmitAndWait_Timeout(t *testing.T) {
	signer := testSigner(t)
	fb := newFakeBatcher(t, 1, nil)

	start := time.Now()
	_, err := testClient(fb.url, 100*time.Millisecond).SubmitAndWait(context.Background(), testRequest(signer), signer)
	require.ErrorIs(t, err, aligned.ErrTimeout)
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestSubmitAndWait_Canceled(t *testing.T) {
	signer := testSigner(t)
	fb := newFakeBatcher(t, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := testClient(fb.url, 0).SubmitAndWait(ctx, testRequest(signer), signer)
	require.Equal(t, aligned.KindCanceled, aligned.KindOf(err))
}

func TestSubmitAndWait_ProtocolVersionTooOld(t *testing.T) {
	signer := testSigner(t)
	fb := newFakeBatcher(t, 0, nil)

	_, err := testClient(fb.url, 5*time.Second).SubmitAndWait(context.Background(), testRequest(signer), signer)
	require.Equal(t, aligned.KindProtocol, aligned.KindOf(err))
	require.Contains(t, err.Error(), "protocol version 0")
}

func TestSubmitAndWait_NonJSONGreetingIsProtocolError(t *testing.T) {
	signer := testSigner(t)
	received := make(chan struct{}, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		// CBOR map {"ProtocolVersion": 1}
		greeting := append([]byte{0xa1, 0x6f}, append([]byte("ProtocolVersion"), 0x01)...)
		if err := ws.WriteMessage(websocket.BinaryMessage, greeting); err != nil {
			return
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
			received <- struct{}{}
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, err := testClient(url, 5*time.Second).SubmitAndWait(context.Background(), testRequest(signer), signer)
	require.Equal(t, aligned.KindProtocol, aligned.KindOf(err))
	require.Contains(t, err.Error(), "malformed protocol version greeting")
	require.Empty(t, received)
}

func TestSubmitAndWait_BadInclusionProof(t *testing.T) {
	signer := testSigner(t)
	fb := newFakeBatcher(t, 1, func(ws *websocket.Conn, _ SubmitProofMessage) {
		_ = writeFrame(ws, MsgBatchInclusionData, BatchInclusionData{
			BatchMerkleRoot:     crypto.Keccak256Hash([]byte("other batch")),
			BatchInclusionProof: InclusionProof{MerklePath: []common.Hash{crypto.Keccak256Hash([]byte("x"))}},
			IndexInBatch:        0,
		})
	})

	_, err := testClient(fb.url, 5*time.Second).SubmitAndWait(context.Background(), testRequest(signer), signer)
	require.Equal(t, aligned.KindProtocol, aligned.KindOf(err))
}

func TestSubmitAndWait_DialFailure(t *testing.T) {
	signer := testSigner(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err := testClient(url, time.Second).SubmitAndWait(context.Background(), testRequest(signer), signer)
	require.Equal(t, aligned.KindConnection, aligned.KindOf(err))
}

func TestSubmitAndWait_RequiresNonceAndFee(t *testing.T) {
	signer := testSigner(t)
	req := testRequest(signer)
	req.Nonce = nil

	_, err := testClient("ws://127.0.0.1:1", time.Second).SubmitAndWait(context.Background(), req, signer)
	require.Equal(t, aligned.KindConfiguration, aligned.KindOf(err))
}

func TestRejectionError(t *testing.T) {
	env, err := NewEnvelope(MsgUnderpricedProof, "below 0.1 gwei")
	require.NoError(t, err)
	rejected, ok := rejectionError(env)
	require.True(t, ok)
	require.Equal(t, "underpriced_proof", rejected.Code)
	require.Equal(t, "below 0.1 gwei", rejected.Message)

	env, err = NewEnvelope(MsgError, ErrorMessage{Message: "boom", Reason: "disk full"})
	require.NoError(t, err)
	rejected, ok = rejectionError(env)
	require.True(t, ok)
	require.Equal(t, "boom: disk full", rejected.Message)

	_, ok = rejectionError(Envelope{Type: MsgBatchInclusionData})
	require.False(t, ok)
}
