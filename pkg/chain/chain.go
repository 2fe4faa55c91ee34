// Package chain defines the wire data model shared by the gossip and
// consensus layers: Block, Vote, Commit, the ConsensusMsg tagged union they
// travel in, and the validator set that orders them.
package chain

import (
	"crypto/ed25519"
	"sort"

	"github.com/pkg/errors"

	"github.com/amunchain/amunchain/pkg/codec"
	"github.com/amunchain/amunchain/pkg/cryptography"
)

// Domain-separation labels. Every signed tuple in the system is prefixed
// with exactly one of these before signing, per the crypto primitives in
// pkg/cryptography.
const (
	DomainVote     = "amunchain/vote/v1"
	DomainCommit   = "amunchain/commit/v1"
	DomainRegistry = "amunchain/registry/v1"
)

// Block is the proposed unit of the chain. Its identity is the canonical
// encoding hashed with SHA-256.
type Block struct {
	Epoch       uint64
	Height      uint64
	ParentHash  cryptography.Hash32
	PayloadRoot cryptography.Hash32
	Proposer    []byte // 32-byte Ed25519 public key
	TimestampMs uint64
}

// Hash returns the canonical block identity.
func (b *Block) Hash() (cryptography.Hash32, error) {
	enc, err := EncodeBlock(b)
	if err != nil {
		return cryptography.Hash32{}, err
	}
	return cryptography.SHA256(enc), nil
}

// EncodeBlock writes the canonical encoding of b.
func EncodeBlock(b *Block) ([]byte, error) {
	if len(b.Proposer) != cryptography.PubKeySize {
		return nil, errors.Errorf("block: proposer key must be %d bytes, got %d", cryptography.PubKeySize, len(b.Proposer))
	}
	w := codec.NewWriter(32 + 8*3 + 32*2 + cryptography.PubKeySize)
	w.WriteU64(b.Epoch)
	w.WriteU64(b.Height)
	w.WriteFixed(b.ParentHash[:])
	w.WriteFixed(b.PayloadRoot[:])
	w.WriteFixed(b.Proposer)
	w.WriteU64(b.TimestampMs)
	return w.Bytes(), nil
}

// DecodeBlock parses the canonical encoding produced by EncodeBlock. budget
// bounds the input size; callers pass the configured max_wire_bytes.
func DecodeBlock(data []byte, budget int) (*Block, error) {
	r, err := codec.NewReader(data, budget)
	if err != nil {
		return nil, err
	}
	b, err := decodeBlockBody(r)
	if err != nil {
		return nil, err
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return b, nil
}

func decodeBlockBody(r *codec.Reader) (*Block, error) {
	epoch, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	height, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	parent, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	payload, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	proposer, err := r.ReadFixed(cryptography.PubKeySize)
	if err != nil {
		return nil, err
	}
	ts, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	b := &Block{
		Epoch:       epoch,
		Height:      height,
		Proposer:    append([]byte(nil), proposer...),
		TimestampMs: ts,
	}
	copy(b.ParentHash[:], parent)
	copy(b.PayloadRoot[:], payload)
	return b, nil
}

// Vote is a single validator's signed assertion that block_hash is the
// block at (epoch, height).
type Vote struct {
	Epoch     uint64
	Height    uint64
	BlockHash cryptography.Hash32
	Voter     []byte // 32-byte Ed25519 public key
	Signature []byte // 64-byte Ed25519 signature
}

// signingParts returns the canonical-encoded (epoch, height, block_hash)
// tuple that Sign/VerifySignature sign under DomainVote.
func (v *Vote) signingParts() []byte {
	w := codec.NewWriter(24)
	w.WriteU64(v.Epoch)
	w.WriteU64(v.Height)
	w.WriteFixed(v.BlockHash[:])
	return w.Bytes()
}

// Sign fills in v.Signature by signing under priv.
func (v *Vote) Sign(priv ed25519.PrivateKey) {
	v.Signature = cryptography.SignDomain(priv, DomainVote, v.signingParts())
}

// VerifySignature reports whether v.Signature is valid for v.Voter.
func (v *Vote) VerifySignature() bool {
	return cryptography.VerifyDomain(v.Voter, DomainVote, v.Signature, v.signingParts())
}

// EncodeVote writes the canonical encoding of v.
func EncodeVote(v *Vote) ([]byte, error) {
	if len(v.Voter) != cryptography.PubKeySize {
		return nil, errors.Errorf("vote: voter key must be %d bytes, got %d", cryptography.PubKeySize, len(v.Voter))
	}
	if len(v.Signature) != cryptography.SigSize {
		return nil, errors.Errorf("vote: signature must be %d bytes, got %d", cryptography.SigSize, len(v.Signature))
	}
	w := codec.NewWriter(16 + 32 + cryptography.PubKeySize + cryptography.SigSize)
	w.WriteU64(v.Epoch)
	w.WriteU64(v.Height)
	w.WriteFixed(v.BlockHash[:])
	w.WriteFixed(v.Voter)
	w.WriteFixed(v.Signature)
	return w.Bytes(), nil
}

// DecodeVote parses the canonical encoding produced by EncodeVote.
func DecodeVote(data []byte, budget int) (*Vote, error) {
	r, err := codec.NewReader(data, budget)
	if err != nil {
		return nil, err
	}
	v, err := decodeVoteBody(r)
	if err != nil {
		return nil, err
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeVoteBody(r *codec.Reader) (*Vote, error) {
	epoch, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	height, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	hash, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	voter, err := r.ReadFixed(cryptography.PubKeySize)
	if err != nil {
		return nil, err
	}
	sig, err := r.ReadFixed(cryptography.SigSize)
	if err != nil {
		return nil, err
	}
	v := &Vote{
		Epoch:     epoch,
		Height:    height,
		Voter:     append([]byte(nil), voter...),
		Signature: append([]byte(nil), sig...),
	}
	copy(v.BlockHash[:], hash)
	return v, nil
}

// SignedVote pairs a voter's public key with its signature, in the order
// a Commit carries them.
type SignedVote struct {
	Voter     []byte
	Signature []byte
}

// Commit is the finality certificate for (epoch, height, block_hash):
// a quorum-sized, voter-ascending, deduplicated set of valid votes.
type Commit struct {
	Epoch      uint64
	Height     uint64
	BlockHash  cryptography.Hash32
	Signatures []SignedVote
}

// SortSignatures orders c.Signatures ascending by voter bytes, the order
// required by invariant #6.
func (c *Commit) SortSignatures() {
	sort.Slice(c.Signatures, func(i, j int) bool {
		return lessBytes(c.Signatures[i].Voter, c.Signatures[j].Voter)
	})
}

// Verify checks every structural and cryptographic requirement of a valid
// commit against validators: individually-valid signatures, voters drawn
// from validators with no duplicates, ascending voter order, and
// cardinality at least quorum.
func (c *Commit) Verify(validators *ValidatorSet, quorum int) error {
	if len(c.Signatures) < quorum {
		return ErrQuorumNotMet
	}
	seen := make(map[string]struct{}, len(c.Signatures))
	var prev []byte
	for i, sv := range c.Signatures {
		if !validators.Contains(sv.Voter) {
			return ErrUnknownValidator
		}
		key := string(sv.Voter)
		if _, dup := seen[key]; dup {
			return errors.New("commit: duplicate voter")
		}
		seen[key] = struct{}{}
		if i > 0 && !lessBytes(prev, sv.Voter) {
			return errors.New("commit: signatures not strictly ascending by voter")
		}
		prev = sv.Voter
		v := Vote{Epoch: c.Epoch, Height: c.Height, BlockHash: c.BlockHash, Voter: sv.Voter, Signature: sv.Signature}
		if !v.VerifySignature() {
			return ErrSignatureInvalid
		}
	}
	return nil
}

// EncodeCommit writes the canonical encoding of c.
func EncodeCommit(c *Commit) ([]byte, error) {
	w := codec.NewWriter(16 + 32 + 8 + len(c.Signatures)*(cryptography.PubKeySize+cryptography.SigSize))
	w.WriteU64(c.Epoch)
	w.WriteU64(c.Height)
	w.WriteFixed(c.BlockHash[:])
	w.WriteU64(uint64(len(c.Signatures)))
	for _, sv := range c.Signatures {
		if len(sv.Voter) != cryptography.PubKeySize {
			return nil, errors.Errorf("commit: voter key must be %d bytes, got %d", cryptography.PubKeySize, len(sv.Voter))
		}
		if len(sv.Signature) != cryptography.SigSize {
			return nil, errors.Errorf("commit: signature must be %d bytes, got %d", cryptography.SigSize, len(sv.Signature))
		}
		w.WriteFixed(sv.Voter)
		w.WriteFixed(sv.Signature)
	}
	return w.Bytes(), nil
}

// maxCommitSignatures bounds the declared signature count in DecodeCommit
// so a malicious length cannot drive an oversized allocation loop.
const maxCommitSignatures = 10000

// DecodeCommit parses the canonical encoding produced by EncodeCommit.
func DecodeCommit(data []byte, budget int) (*Commit, error) {
	r, err := codec.NewReader(data, budget)
	if err != nil {
		return nil, err
	}
	c, err := decodeCommitBody(r)
	if err != nil {
		return nil, err
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeCommitBody(r *codec.Reader) (*Commit, error) {
	epoch, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	height, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	hash, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	n, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	if n > maxCommitSignatures {
		return nil, codec.ErrOversize
	}
	sigs := make([]SignedVote, 0, n)
	for i := uint64(0); i < n; i++ {
		voter, err := r.ReadFixed(cryptography.PubKeySize)
		if err != nil {
			return nil, err
		}
		sig, err := r.ReadFixed(cryptography.SigSize)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, SignedVote{
			Voter:     append([]byte(nil), voter...),
			Signature: append([]byte(nil), sig...),
		})
	}
	c := &Commit{Epoch: epoch, Height: height, Signatures: sigs}
	copy(c.BlockHash[:], hash)
	return c, nil
}

func lessBytes(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
