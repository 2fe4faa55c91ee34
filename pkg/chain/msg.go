package chain

import "github.com/amunchain/amunchain/pkg/codec"

// ConsensusMsgKind tags the variant carried by a ConsensusMsg.
type ConsensusMsgKind uint8

const (
	KindProposal ConsensusMsgKind = 1
	KindVote     ConsensusMsgKind = 2
	KindCommit   ConsensusMsgKind = 3
)

// ConsensusMsg is the tagged union of every message type carried on the
// consensus gossip topic: Proposal(Block) | Vote(Vote) | Commit(Commit).
type ConsensusMsg struct {
	Kind     ConsensusMsgKind
	Proposal *Block
	Vote     *Vote
	Commit   *Commit
}

// Epoch returns the epoch field of whichever variant m wraps.
func (m *ConsensusMsg) Epoch() uint64 {
	switch m.Kind {
	case KindProposal:
		return m.Proposal.Epoch
	case KindVote:
		return m.Vote.Epoch
	case KindCommit:
		return m.Commit.Epoch
	default:
		return 0
	}
}

// EncodeConsensusMsg writes the canonical tag-then-body encoding of m.
func EncodeConsensusMsg(m *ConsensusMsg) ([]byte, error) {
	w := codec.NewWriter(256)
	w.WriteByte(byte(m.Kind))

	var body []byte
	var err error
	switch m.Kind {
	case KindProposal:
		body, err = EncodeBlock(m.Proposal)
	case KindVote:
		body, err = EncodeVote(m.Vote)
	case KindCommit:
		body, err = EncodeCommit(m.Commit)
	default:
		return nil, codec.ErrInvalidTag
	}
	if err != nil {
		return nil, err
	}
	w.WriteFixed(body)
	return w.Bytes(), nil
}

// DecodeConsensusMsg parses the encoding produced by EncodeConsensusMsg,
// enforcing budget on the whole frame and the tagged-union depth cap on
// entry to the variant body.
func DecodeConsensusMsg(data []byte, budget int) (*ConsensusMsg, error) {
	r, err := codec.NewReader(data, budget)
	if err != nil {
		return nil, err
	}
	tagByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if err := r.EnterUnion(); err != nil {
		return nil, err
	}
	defer r.ExitUnion()

	m := &ConsensusMsg{Kind: ConsensusMsgKind(tagByte)}
	switch m.Kind {
	case KindProposal:
		m.Proposal, err = decodeBlockBody(r)
	case KindVote:
		m.Vote, err = decodeVoteBody(r)
	case KindCommit:
		m.Commit, err = decodeCommitBody(r)
	default:
		return nil, codec.ErrInvalidTag
	}
	if err != nil {
		return nil, err
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return m, nil
}
