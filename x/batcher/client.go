package batcher

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/compose-network/verifier/x/aligned"
)

// SubmitRequest is one proof submission.
type SubmitRequest struct {
	Network aligned.Network
	Data    aligned.VerificationData
	MaxFee  *big.Int
	Nonce   *big.Int
}

// Outcome describes the batch a submission was included in.
type Outcome struct {
	SubmissionID    string
	BatchMerkleRoot common.Hash
	IndexInBatch    uint64
	MerklePath      []common.Hash
	Commitment      aligned.Commitment
	Elapsed         time.Duration
}

// Client submits proofs to the batcher and waits for their inclusion. It
// opens one connection per submission and is safe for concurrent use.
type Client struct {
	cfg     Config
	log     zerolog.Logger
	metrics *Metrics
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	return &Client{
		cfg:     cfg,
		log:     log.With().Str("component", "batcher-client").Logger(),
		metrics: NewMetrics(),
	}
}

// URL returns the batcher endpoint used for network.
func (c *Client) URL(network aligned.Network) (string, error) {
	if c.cfg.URL != "" {
		return c.cfg.URL, nil
	}
	deployment, err := network.Deployment()
	if err != nil {
		return "", err
	}
	return deployment.BatcherURL, nil
}

// SubmitAndWait signs req, sends it and blocks until the batcher reports
// the batch including it, rejects it, drops the connection, the wait
// timeout elapses or ctx is done. Every failure is an *aligned.Error.
func (c *Client) SubmitAndWait(ctx context.Context, req SubmitRequest, signer Signer) (*Outcome, error) {
	outcome, err := c.submitAndWait(ctx, req, signer)
	c.metrics.SubmissionsTotal.WithLabelValues(resultLabel(err)).Inc()
	return outcome, err
}

func (c *Client) submitAndWait(ctx context.Context, req SubmitRequest, signer Signer) (*Outcome, error) {
	if req.Nonce == nil || req.MaxFee == nil {
		return nil, aligned.NewError(aligned.KindConfiguration, "nonce and max fee are required")
	}
	deployment, err := req.Network.Deployment()
	if err != nil {
		return nil, aligned.NewError(aligned.KindConfiguration, "unknown network").WithCause(err)
	}
	url, err := c.URL(req.Network)
	if err != nil {
		return nil, aligned.NewError(aligned.KindConfiguration, "resolve batcher url").WithCause(err)
	}

	id := uuid.NewString()
	log := c.log.With().Str("submission_id", id).Logger()

	nonced := NoncedVerificationData{
		VerificationData:   req.Data,
		Nonce:              (*hexutil.Big)(new(big.Int).Set(req.Nonce)),
		MaxFee:             (*hexutil.Big)(new(big.Int).Set(req.MaxFee)),
		ChainID:            (*hexutil.Big)(signer.ChainID()),
		PaymentServiceAddr: deployment.BatcherPaymentService,
	}
	signature, _, err := signer.SignTypedData(nonced.TypedData())
	if err != nil {
		return nil, aligned.NewError(aligned.KindConfiguration, "sign submission").WithCause(err)
	}
	env, err := NewEnvelope(MsgSubmitProof, SubmitProofMessage{
		VerificationData: nonced,
		Signature:        signature,
	})
	if err != nil {
		return nil, aligned.NewError(aligned.KindProtocol, "encode submission").WithCause(err)
	}

	conn, err := dial(ctx, url, c.cfg, id, log)
	if err != nil {
		if ctx.Err() != nil {
			return nil, aligned.NewError(aligned.KindCanceled, "submission canceled").WithCause(ctx.Err())
		}
		return nil, aligned.NewError(aligned.KindConnection, "could not connect to batcher").WithCause(err)
	}
	c.metrics.ConnectionsActive.Inc()
	defer func() {
		conn.close()
		c.metrics.ConnectionsActive.Dec()
	}()

	if err := c.handshake(conn); err != nil {
		return nil, err
	}

	if err := conn.send(env); err != nil {
		return nil, aligned.NewError(aligned.KindConnectionLost, "send submission").WithCause(err)
	}
	c.metrics.MessagesTotal.WithLabelValues(string(MsgSubmitProof), "out").Inc()
	c.metrics.ProofSizeBytes.Observe(float64(len(req.Data.Proof)))

	sentAt := time.Now()
	log.Info().
		Str("network", req.Network.String()).
		Str("nonce", req.Nonce.String()).
		Str("max_fee", req.MaxFee.String()).
		Int("proof_size", len(req.Data.Proof)).
		Msg("submission sent, waiting for batch inclusion")

	commitment := req.Data.Commitment()
	outcome, err := c.wait(ctx, conn, commitment, log)
	c.metrics.InclusionWait.Observe(time.Since(sentAt).Seconds())
	if err != nil {
		return nil, err
	}
	outcome.SubmissionID = id
	outcome.Elapsed = time.Since(sentAt)
	return outcome, nil
}

// handshake consumes the protocol version greeting.
func (c *Client) handshake(conn *connection) error {
	env, err := conn.readHandshake()
	if err != nil {
		if errors.Is(err, errMalformedFrame) {
			return aligned.NewError(aligned.KindProtocol, "malformed protocol version greeting").WithCause(err)
		}
		return aligned.NewError(aligned.KindConnectionLost, "no protocol version greeting from batcher").WithCause(err)
	}
	c.metrics.MessagesTotal.WithLabelValues(string(env.Type), "in").Inc()

	if rejected, ok := rejectionError(env); ok {
		return rejected
	}
	if env.Type != MsgProtocolVersion {
		return aligned.Errorf(aligned.KindProtocol, "expected %s greeting, got %s", MsgProtocolVersion, env.Type)
	}
	var greeting ProtocolVersionMessage
	if err := env.Decode(&greeting); err != nil {
		return aligned.NewError(aligned.KindProtocol, "malformed protocol version greeting").WithCause(err)
	}
	if greeting.Version < c.cfg.MinProtocolVersion {
		return aligned.Errorf(aligned.KindProtocol,
			"batcher protocol version %d is below the supported minimum %d",
			greeting.Version, c.cfg.MinProtocolVersion)
	}
	conn.log.Debug().Uint16("protocol_version", greeting.Version).Msg("batcher handshake complete")
	return nil
}

// wait blocks for the single terminal frame of the submission.
func (c *Client) wait(ctx context.Context, conn *connection, commitment aligned.Commitment, log zerolog.Logger) (*Outcome, error) {
	frames := make(chan inbound)
	done := make(chan struct{})
	defer close(done)
	go conn.readLoop(frames, done)

	var timeout <-chan time.Time
	if c.cfg.WaitTimeout > 0 {
		timer := time.NewTimer(c.cfg.WaitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	leaf := commitment.Leaf()
	for {
		select {
		case <-ctx.Done():
			return nil, aligned.NewError(aligned.KindCanceled, "submission canceled").WithCause(ctx.Err())

		case <-timeout:
			return nil, aligned.Errorf(aligned.KindTimeout,
				"no response from batcher within %s", c.cfg.WaitTimeout)

		case in := <-frames:
			if in.err != nil {
				if errors.Is(in.err, errMalformedFrame) {
					log.Warn().Err(in.err).Msg("ignoring malformed batcher frame")
					continue
				}
				if websocket.IsCloseError(in.err, websocket.CloseNormalClosure) {
					return nil, aligned.NewError(aligned.KindConnectionLost,
						"batcher closed the connection before responding").WithCause(in.err)
				}
				return nil, aligned.NewError(aligned.KindConnectionLost,
					"connection to batcher lost").WithCause(in.err)
			}

			env := in.env
			c.metrics.MessagesTotal.WithLabelValues(string(env.Type), "in").Inc()

			if rejected, ok := rejectionError(env); ok {
				log.Warn().Str("code", rejected.Code).Str("reason", rejected.Message).Msg("submission rejected")
				return nil, rejected
			}

			switch env.Type {
			case MsgBatchInclusionData:
				return c.included(env, commitment, leaf, log)
			case MsgProtocolVersion:
				continue
			default:
				log.Debug().Str("type", string(env.Type)).Msg("ignoring unexpected batcher frame")
			}
		}
	}
}

func (c *Client) included(env Envelope, commitment aligned.Commitment, leaf common.Hash, log zerolog.Logger) (*Outcome, error) {
	var data BatchInclusionData
	if err := env.Decode(&data); err != nil {
		return nil, aligned.NewError(aligned.KindProtocol, "malformed batch inclusion data").WithCause(err)
	}
	path := data.BatchInclusionProof.MerklePath
	if !aligned.VerifyMerkleProof(data.BatchMerkleRoot, leaf, data.IndexInBatch, path) {
		return nil, aligned.Errorf(aligned.KindProtocol,
			"batch inclusion proof does not match batch %s", data.BatchMerkleRoot.Hex())
	}

	log.Info().
		Str("batch_merkle_root", data.BatchMerkleRoot.Hex()).
		Uint64("index_in_batch", data.IndexInBatch).
		Msg("submission included in batch")

	return &Outcome{
		BatchMerkleRoot: data.BatchMerkleRoot,
		IndexInBatch:    data.IndexInBatch,
		MerklePath:      path,
		Commitment:      commitment,
	}, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "included"
	}
	return aligned.KindOf(err).String()
}
