package batcher

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/compose-network/verifier/x/aligned"
)

// MessageType tags every frame exchanged with the batcher.
type MessageType string

const (
	MsgSubmitProof        MessageType = "SubmitProof"
	MsgProtocolVersion    MessageType = "ProtocolVersion"
	MsgBatchInclusionData MessageType = "BatchInclusionData"

	MsgInvalidNonce                 MessageType = "InvalidNonce"
	MsgInvalidSignature             MessageType = "InvalidSignature"
	MsgInvalidMaxFee                MessageType = "InvalidMaxFee"
	MsgInsufficientBalance          MessageType = "InsufficientBalance"
	MsgInvalidChainID               MessageType = "InvalidChainId"
	MsgInvalidProof                 MessageType = "InvalidProof"
	MsgProofTooLarge                MessageType = "ProofTooLarge"
	MsgUnderpricedProof             MessageType = "UnderpricedProof"
	MsgInvalidPaymentServiceAddress MessageType = "InvalidPaymentServiceAddress"
	MsgInvalidReplacementMessage    MessageType = "InvalidReplacementMessage"
	MsgAddToBatchError              MessageType = "AddToBatchError"
	MsgEthRPCError                  MessageType = "EthRpcError"
	MsgCreateNewTaskError           MessageType = "CreateNewTaskError"
	MsgError                        MessageType = "Error"
)

type rejection struct {
	code    string
	message string
}

// rejections maps batcher error frames to rejection codes and the message
// used when the frame carries none.
var rejections = map[MessageType]rejection{
	MsgInvalidNonce:                 {"invalid_nonce", "Invalid nonce"},
	MsgInvalidSignature:             {"invalid_signature", "Invalid signature"},
	MsgInvalidMaxFee:                {"invalid_max_fee", "Invalid max fee"},
	MsgInsufficientBalance:          {"insufficient_balance", "Insufficient balance in the payment service"},
	MsgInvalidChainID:               {"invalid_chain_id", "Invalid chain id"},
	MsgInvalidProof:                 {"invalid_proof", "Invalid proof"},
	MsgProofTooLarge:                {"proof_too_large", "Proof too large"},
	MsgUnderpricedProof:             {"underpriced_proof", "Max fee is below the batch price"},
	MsgInvalidPaymentServiceAddress: {"invalid_payment_service_address", "Invalid payment service address"},
	MsgInvalidReplacementMessage:    {"invalid_replacement", "Invalid replacement message"},
	MsgAddToBatchError:              {"add_to_batch_error", "Failed to add proof to batch"},
	MsgEthRPCError:                  {"eth_rpc_error", "Batcher could not reach Ethereum"},
	MsgCreateNewTaskError:           {"create_task_error", "Batcher failed to create the verification task"},
	MsgError:                        {"error", "Batcher reported an error"},
}

// Envelope is one websocket text frame.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload under type t.
func NewEnvelope(t MessageType, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: t}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", t, err)
	}
	return Envelope{Type: t, Data: data}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s frame has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return nil
}

// NoncedVerificationData is the signed part of a submission.
type NoncedVerificationData struct {
	VerificationData   aligned.VerificationData `json:"verification_data"`
	Nonce              *hexutil.Big             `json:"nonce"`
	MaxFee             *hexutil.Big             `json:"max_fee"`
	ChainID            *hexutil.Big             `json:"chain_id"`
	PaymentServiceAddr common.Address           `json:"payment_service_addr"`
}

// SubmitProofMessage is the payload of MsgSubmitProof.
type SubmitProofMessage struct {
	VerificationData NoncedVerificationData `json:"verification_data"`
	Signature        hexutil.Bytes          `json:"signature"`
}

// ProtocolVersionMessage is the greeting the batcher sends on connect.
type ProtocolVersionMessage struct {
	Version uint16 `json:"version"`
}

// InclusionProof is the sibling path of a leaf, from the leaf level up.
type InclusionProof struct {
	MerklePath []common.Hash `json:"merkle_path"`
}

// BatchInclusionData reports the batch a submission landed in.
type BatchInclusionData struct {
	BatchMerkleRoot     common.Hash    `json:"batch_merkle_root"`
	BatchInclusionProof InclusionProof `json:"batch_inclusion_proof"`
	IndexInBatch        uint64         `json:"index_in_batch"`
}

// ErrorMessage is the payload of every rejection frame.
type ErrorMessage struct {
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// rejectionError turns a rejection frame into a KindRejected error. ok is
// false when env is not a rejection frame.
func rejectionError(env Envelope) (err *aligned.Error, ok bool) {
	r, ok := rejections[env.Type]
	if !ok {
		return nil, false
	}

	var payload ErrorMessage
	if len(env.Data) > 0 {
		// A string payload is accepted as the message itself.
		if decodeErr := json.Unmarshal(env.Data, &payload); decodeErr != nil {
			var s string
			if json.Unmarshal(env.Data, &s) == nil {
				payload.Message = s
			}
		}
	}

	msg := payload.Message
	if msg == "" {
		msg = r.message
	}
	if payload.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, payload.Reason)
	}
	return aligned.Rejected(r.code, msg), true
}
