// Package identity holds the signing key the gateway submits proofs with.
package identity

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Identity is a secp256k1 key bound to a chain ID. It is immutable and safe
// for concurrent use.
type Identity struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// New binds key to chainID.
func New(key *ecdsa.PrivateKey, chainID *big.Int) (*Identity, error) {
	if key == nil {
		return nil, errors.New("private key is required")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("chain id must be positive")
	}
	return &Identity{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}, nil
}

// FromHex parses a hex private key, with or without 0x prefix.
func FromHex(hexKey string, chainID uint64) (*Identity, error) {
	hexKey = strings.TrimSpace(hexKey)
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	if hexKey == "" {
		return nil, errors.New("private key is empty")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return New(key, new(big.Int).SetUint64(chainID))
}

// Address returns the Ethereum address of the key.
func (i *Identity) Address() common.Address {
	return i.address
}

// ChainID returns a copy of the bound chain ID.
func (i *Identity) ChainID() *big.Int {
	return new(big.Int).Set(i.chainID)
}

// SignHash signs a 32-byte digest. The recovery id is shifted to 27/28.
func (i *Identity) SignHash(hash []byte) ([]byte, error) {
	sig, err := crypto.Sign(hash, i.key)
	if err != nil {
		return nil, fmt.Errorf("sign hash: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SignTypedData signs an EIP-712 payload and returns the signature and the
// digest that was signed.
func (i *Identity) SignTypedData(data apitypes.TypedData) ([]byte, common.Hash, error) {
	if data.Domain.ChainId != nil && (*big.Int)(data.Domain.ChainId).Cmp(i.chainID) != 0 {
		return nil, common.Hash{}, fmt.Errorf(
			"typed data chain id %s does not match identity chain id %s",
			(*big.Int)(data.Domain.ChainId), i.chainID,
		)
	}
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := i.SignHash(digest)
	if err != nil {
		return nil, common.Hash{}, err
	}
	return sig, common.BytesToHash(digest), nil
}

// String never includes key material.
func (i *Identity) String() string {
	return fmt.Sprintf("identity(%s, chain=%s)", i.address.Hex(), i.chainID)
}

// RecoverAddress returns the signer of a signature produced by SignHash.
func RecoverAddress(hash []byte, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
