package chain

import "sort"

// ValidatorSet is the fixed, lexicographically-ordered set of validator
// public keys for one epoch. The ordering defines both round-robin
// proposer selection and the required commit signature order.
type ValidatorSet struct {
	keys  [][]byte
	index map[string]int
}

// NewValidatorSet copies and sorts keys ascending by pubkey bytes.
func NewValidatorSet(keys [][]byte) *ValidatorSet {
	sorted := make([][]byte, len(keys))
	for i, k := range keys {
		sorted[i] = append([]byte(nil), k...)
	}
	sort.Slice(sorted, func(i, j int) bool { return lessBytes(sorted[i], sorted[j]) })

	idx := make(map[string]int, len(sorted))
	for i, k := range sorted {
		idx[string(k)] = i
	}
	return &ValidatorSet{keys: sorted, index: idx}
}

// Len returns the validator set size N.
func (vs *ValidatorSet) Len() int { return len(vs.keys) }

// Quorum returns floor(2N/3)+1, the minimum signer count that two
// disjoint quorums at the same height cannot both be reached under a
// Byzantine minority (the standard BFT 2f+1 bound for N=3f+1).
func (vs *ValidatorSet) Quorum() int {
	n := vs.Len()
	return (2*n)/3 + 1
}

// Contains reports whether pub is a member of the set.
func (vs *ValidatorSet) Contains(pub []byte) bool {
	_, ok := vs.index[string(pub)]
	return ok
}

// IndexOf returns the validator's position in the sorted set, or -1.
func (vs *ValidatorSet) IndexOf(pub []byte) int {
	i, ok := vs.index[string(pub)]
	if !ok {
		return -1
	}
	return i
}

// At returns the validator key at position i.
func (vs *ValidatorSet) At(i int) []byte { return vs.keys[i] }

// ProposerAt returns the designated proposer for height: round-robin on
// the sorted validator list, index = height mod N.
func (vs *ValidatorSet) ProposerAt(height uint64) []byte {
	n := uint64(vs.Len())
	if n == 0 {
		return nil
	}
	return vs.keys[height%n]
}
