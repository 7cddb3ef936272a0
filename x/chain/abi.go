package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const batcherPaymentServiceABIJSON = `[
 {"inputs":[{"internalType":"address","name":"","type":"address"}],"name":"user_nonces",
  "outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const serviceManagerABIJSON = `[
 {"inputs":[
   {"internalType":"bytes32","name":"proofCommitment","type":"bytes32"},
   {"internalType":"bytes32","name":"pubInputCommitment","type":"bytes32"},
   {"internalType":"bytes32","name":"provingSystemAuxDataCommitment","type":"bytes32"},
   {"internalType":"bytes20","name":"proofGeneratorAddr","type":"bytes20"},
   {"internalType":"bytes32","name":"batchMerkleRoot","type":"bytes32"},
   {"internalType":"bytes","name":"merkleProof","type":"bytes"},
   {"internalType":"uint256","name":"verificationDataBatchIndex","type":"uint256"},
   {"internalType":"address","name":"senderAddress","type":"address"}],
  "name":"verifyBatchInclusion",
  "outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`

var (
	batcherPaymentServiceABI = mustParseABI(batcherPaymentServiceABIJSON)
	serviceManagerABI        = mustParseABI(serviceManagerABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
