package verifier

import (
	"golang.org/x/crypto/sha3"

	"github.com/cuprate/cuprate/internal/chainmodel"
)

func keccak256(data []byte) chainmodel.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out chainmodel.Hash
	h.Sum(out[:0])
	return out
}

// merkleRoot computes Monero's tree_hash over leaves: a single leaf
// passes through unchanged; a pair hashes directly; otherwise the
// largest power of two not exceeding len(leaves) splits the input, the
// excess leading leaves combine pairwise once, and the result recurses.
func merkleRoot(leaves []chainmodel.Hash) chainmodel.Hash {
	switch len(leaves) {
	case 0:
		return chainmodel.Hash{}
	case 1:
		return leaves[0]
	case 2:
		return keccak256(append(append([]byte{}, leaves[0][:]...), leaves[1][:]...))
	}

	count := 1
	for count*2 <= len(leaves) {
		count *= 2
	}

	cur := make([]chainmodel.Hash, count)
	overflow := len(leaves) - count
	copy(cur[overflow:], leaves[overflow*2:])
	for i := 0; i < overflow; i++ {
		cur[i] = keccak256(append(append([]byte{}, leaves[i*2][:]...), leaves[i*2+1][:]...))
	}

	for len(cur) > 1 {
		next := make([]chainmodel.Hash, len(cur)/2)
		for i := range next {
			next[i] = keccak256(append(append([]byte{}, cur[i*2][:]...), cur[i*2+1][:]...))
		}
		cur = next
	}
	return cur[0]
}
