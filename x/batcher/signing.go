package batcher

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	domainName    = "Aligned"
	domainVersion = "1"
	primaryType   = "NoncedVerificationData"
)

// Signer authenticates submissions. *identity.Identity implements it.
type Signer interface {
	Address() common.Address
	ChainID() *big.Int
	SignTypedData(data apitypes.TypedData) ([]byte, common.Hash, error)
}

// VerificationDataHash is the digest of the verification data that gets
// signed; it equals the submission's merkle leaf.
func (n NoncedVerificationData) VerificationDataHash() common.Hash {
	return n.VerificationData.Commitment().Leaf()
}

// TypedData returns the EIP-712 structure binding the verification data,
// nonce and max fee to the chain and payment service.
func (n NoncedVerificationData) TypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			primaryType: {
				{Name: "verification_data_hash", Type: "bytes32"},
				{Name: "nonce", Type: "bytes32"},
				{Name: "max_fee", Type: "bytes32"},
			},
		},
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(bigOrZero(n.ChainID))),
			VerifyingContract: n.PaymentServiceAddr.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"verification_data_hash": n.VerificationDataHash().Hex(),
			"nonce":                  word(bigOrZero(n.Nonce)),
			"max_fee":                word(bigOrZero(n.MaxFee)),
		},
	}
}

// word encodes v as a 0x-prefixed 32-byte big-endian word.
func word(v *big.Int) string {
	return hexutil.Encode(math.U256Bytes(new(big.Int).Set(v)))
}

func bigOrZero(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToInt()
}
