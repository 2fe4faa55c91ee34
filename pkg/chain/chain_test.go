package chain

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amunchain/amunchain/pkg/codec"
	"github.com/amunchain/amunchain/pkg/cryptography"
)

func genValidators(t *testing.T, n int) ([]ed25519.PrivateKey, *ValidatorSet) {
	privs := make([]ed25519.PrivateKey, n)
	pubs := make([][]byte, n)
	for i := 0; i < n; i++ {
		pub, priv, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		privs[i] = priv
		pubs[i] = []byte(pub)
	}
	return privs, NewValidatorSet(pubs)
}

func TestBlockEncodeDecodeRoundTrip(t *testing.T) {
	_, vs := genValidators(t, 1)
	b := &Block{
		Epoch:       1,
		Height:      5,
		Proposer:    vs.At(0),
		TimestampMs: 1234,
	}
	enc, err := EncodeBlock(b)
	require.NoError(t, err)

	got, err := DecodeBlock(enc, 1<<20)
	require.NoError(t, err)
	require.Equal(t, b.Epoch, got.Epoch)
	require.Equal(t, b.Height, got.Height)
	require.Equal(t, b.Proposer, got.Proposer)
	require.Equal(t, b.TimestampMs, got.TimestampMs)

	enc2, err := EncodeBlock(got)
	require.NoError(t, err)
	require.Equal(t, enc, enc2)
}

func TestBlockHashIsDeterministic(t *testing.T) {
	_, vs := genValidators(t, 1)
	b := &Block{Epoch: 1, Height: 1, Proposer: vs.At(0)}
	h1, err := b.Hash()
	require.NoError(t, err)
	h2, err := b.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestVoteSignVerifyAndRoundTrip(t *testing.T) {
	privs, vs := genValidators(t, 1)
	blockHash := cryptography.SHA256([]byte("block"))

	v := &Vote{Epoch: 1, Height: 1, BlockHash: blockHash, Voter: vs.At(0)}
	v.Sign(privs[0])
	require.True(t, v.VerifySignature())

	enc, err := EncodeVote(v)
	require.NoError(t, err)
	got, err := DecodeVote(enc, 1<<20)
	require.NoError(t, err)
	require.True(t, got.VerifySignature())
}

func TestCommitVerifyAcceptsQuorum(t *testing.T) {
	privs, vs := genValidators(t, 4)
	blockHash := cryptography.SHA256([]byte("block-1"))
	quorum := vs.Quorum()
	require.Equal(t, 3, quorum)

	c := &Commit{Epoch: 1, Height: 1, BlockHash: blockHash}
	for i := 0; i < 3; i++ {
		v := &Vote{Epoch: 1, Height: 1, BlockHash: blockHash, Voter: vs.At(i)}
		v.Sign(privs[i])
		c.Signatures = append(c.Signatures, SignedVote{Voter: v.Voter, Signature: v.Signature})
	}
	c.SortSignatures()
	require.NoError(t, c.Verify(vs, quorum))
}

func TestCommitVerifyRejectsBelowQuorum(t *testing.T) {
	privs, vs := genValidators(t, 4)
	blockHash := cryptography.SHA256([]byte("block-1"))

	c := &Commit{Epoch: 1, Height: 1, BlockHash: blockHash}
	for i := 0; i < 2; i++ {
		v := &Vote{Epoch: 1, Height: 1, BlockHash: blockHash, Voter: vs.At(i)}
		v.Sign(privs[i])
		c.Signatures = append(c.Signatures, SignedVote{Voter: v.Voter, Signature: v.Signature})
	}
	c.SortSignatures()
	require.ErrorIs(t, c.Verify(vs, vs.Quorum()), ErrQuorumNotMet)
}

func TestCommitVerifyRejectsUnsortedSignatures(t *testing.T) {
	privs, vs := genValidators(t, 4)
	blockHash := cryptography.SHA256([]byte("block-1"))

	c := &Commit{Epoch: 1, Height: 1, BlockHash: blockHash}
	for i := 0; i < 3; i++ {
		v := &Vote{Epoch: 1, Height: 1, BlockHash: blockHash, Voter: vs.At(i)}
		v.Sign(privs[i])
		c.Signatures = append(c.Signatures, SignedVote{Voter: v.Voter, Signature: v.Signature})
	}
	// reverse to break ascending order
	c.Signatures[0], c.Signatures[2] = c.Signatures[2], c.Signatures[0]
	require.Error(t, c.Verify(vs, vs.Quorum()))
}

func TestCommitVerifyRejectsUnknownValidator(t *testing.T) {
	_, vs := genValidators(t, 4)
	outsiderPub, outsiderPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	blockHash := cryptography.SHA256([]byte("block-1"))

	v := &Vote{Epoch: 1, Height: 1, BlockHash: blockHash, Voter: []byte(outsiderPub)}
	v.Sign(outsiderPriv)
	c := &Commit{Epoch: 1, Height: 1, BlockHash: blockHash, Signatures: []SignedVote{{Voter: v.Voter, Signature: v.Signature}}}
	require.ErrorIs(t, c.Verify(vs, 1), ErrUnknownValidator)
}

func TestConsensusMsgRoundTripAllKinds(t *testing.T) {
	privs, vs := genValidators(t, 4)
	blockHash := cryptography.SHA256([]byte("block-1"))

	block := &Block{Epoch: 1, Height: 1, Proposer: vs.At(0)}
	mProposal := &ConsensusMsg{Kind: KindProposal, Proposal: block}
	enc, err := EncodeConsensusMsg(mProposal)
	require.NoError(t, err)
	got, err := DecodeConsensusMsg(enc, 1<<20)
	require.NoError(t, err)
	require.Equal(t, KindProposal, got.Kind)
	require.Equal(t, block.Height, got.Proposal.Height)

	v := &Vote{Epoch: 1, Height: 1, BlockHash: blockHash, Voter: vs.At(0)}
	v.Sign(privs[0])
	mVote := &ConsensusMsg{Kind: KindVote, Vote: v}
	enc, err = EncodeConsensusMsg(mVote)
	require.NoError(t, err)
	got, err = DecodeConsensusMsg(enc, 1<<20)
	require.NoError(t, err)
	require.Equal(t, KindVote, got.Kind)
	require.True(t, got.Vote.VerifySignature())

	c := &Commit{Epoch: 1, Height: 1, BlockHash: blockHash, Signatures: []SignedVote{{Voter: v.Voter, Signature: v.Signature}}}
	mCommit := &ConsensusMsg{Kind: KindCommit, Commit: c}
	enc, err = EncodeConsensusMsg(mCommit)
	require.NoError(t, err)
	got, err = DecodeConsensusMsg(enc, 1<<20)
	require.NoError(t, err)
	require.Equal(t, KindCommit, got.Kind)
	require.Len(t, got.Commit.Signatures, 1)
}

func TestConsensusMsgRejectsInvalidTag(t *testing.T) {
	_, err := DecodeConsensusMsg([]byte{0xFF}, 1<<20)
	require.ErrorIs(t, err, codec.ErrInvalidTag)
}

func TestValidatorSetProposerRoundRobin(t *testing.T) {
	_, vs := genValidators(t, 4)
	seen := map[int]bool{}
	for h := uint64(0); h < 4; h++ {
		p := vs.ProposerAt(h)
		idx := vs.IndexOf(p)
		require.False(t, seen[idx])
		seen[idx] = true
	}
	require.Equal(t, vs.ProposerAt(0), vs.ProposerAt(4))
}

func TestValidatorSetQuorumFormula(t *testing.T) {
	cases := []struct {
		n, want int
	}{
		{1, 1}, {3, 3}, {4, 3}, {7, 5}, {10, 7}, {6, 5},
	}
	for _, c := range cases {
		keys := make([][]byte, c.n)
		for i := range keys {
			pub, _, err := ed25519.GenerateKey(nil)
			require.NoError(t, err)
			keys[i] = []byte(pub)
		}
		vs := NewValidatorSet(keys)
		require.Equal(t, c.want, vs.Quorum(), "n=%d", c.n)
	}
}
