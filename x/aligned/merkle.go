package aligned

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// VerifyMerkleProof checks that leaf sits at index in the keccak256 tree
// committed to by root. Siblings are ordered from the leaf level upwards.
func VerifyMerkleProof(root, leaf common.Hash, index uint64, path []common.Hash) bool {
	cur := leaf
	for _, sibling := range path {
		if index%2 == 0 {
			cur = hashPair(cur, sibling)
		} else {
			cur = hashPair(sibling, cur)
		}
		index /= 2
	}
	return index == 0 && cur == root
}

// MerkleRoot computes the root over leaves. Odd levels repeat their last node.
func MerkleRoot(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return common.Hash{}
	}
	level := append([]common.Hash(nil), leaves...)
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

// MerkleProof returns the sibling path for leaves[index].
func MerkleProof(leaves []common.Hash, index int) []common.Hash {
	if index < 0 || index >= len(leaves) {
		return nil
	}
	var path []common.Hash
	level := append([]common.Hash(nil), leaves...)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		path = append(path, level[index^1])
		level = nextLevel(level)
		index /= 2
	}
	return path
}

func nextLevel(level []common.Hash) []common.Hash {
	if len(level)%2 == 1 {
		level = append(level, level[len(level)-1])
	}
	next := make([]common.Hash, 0, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		next = append(next, hashPair(level[i], level[i+1]))
	}
	return next
}

func hashPair(a, b common.Hash) common.Hash {
	return crypto.Keccak256Hash(a.Bytes(), b.Bytes())
}
