package node

import (
	"context"
	"time"

	"github.com/amunchain/amunchain/pkg/chain"
)

// maybePropose builds and gossips a Block for the next unfinalized
// height when this node is its round-robin designated proposer and
// hasn't already proposed for it. It also casts this node's own vote
// for the proposal locally, the same way an honest validator reacts to
// a proposal arriving over gossip.
func (n *Node) maybePropose() {
	height := n.gadget.LastFinalizedHeight() + 1
	pub := n.ks.PublicKey()

	designated := n.validators.ProposerAt(height)
	if designated == nil || string(designated) != string(pub) {
		return
	}

	n.proposedMu.Lock()
	if n.proposed[height] {
		n.proposedMu.Unlock()
		return
	}
	n.proposed[height] = true
	n.proposedMu.Unlock()

	parentHash, _ := n.gadget.FinalizedHash(height - 1) // zero hash at genesis (height 1)
	b := &chain.Block{
		Epoch:       1,
		Height:      height,
		ParentHash:  parentHash,
		PayloadRoot: n.store.Root(),
		Proposer:    pub,
		TimestampMs: nowMs(),
	}

	data, err := chain.EncodeConsensusMsg(&chain.ConsensusMsg{Kind: chain.KindProposal, Proposal: b})
	if err != nil {
		n.log.WithError(err).Error("encoding own proposal")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.transport.Publish(ctx, data); err != nil {
		n.log.WithError(err).Warn("publishing own proposal")
		return
	}

	n.handleProposal(ctx, "self", b, len(data), nowMs())
}

// castOwnVote signs and gossips this node's vote for a proposal it has
// already admitted into the Tide gadget (either its own, or one it just
// received and intends to endorse).
func (n *Node) castOwnVote(ctx context.Context, b *chain.Block) {
	if n.validators.IndexOf(n.ks.PublicKey()) < 0 {
		return // this node is not itself a validator, only a relay
	}

	hash, err := b.Hash()
	if err != nil {
		n.log.WithError(err).Error("hashing proposal for own vote")
		return
	}

	v := &chain.Vote{Epoch: b.Epoch, Height: b.Height, BlockHash: hash, Voter: n.ks.PublicKey()}
	v.Sign(n.ks.PrivateKey())

	data, err := chain.EncodeConsensusMsg(&chain.ConsensusMsg{Kind: chain.KindVote, Vote: v})
	if err != nil {
		n.log.WithError(err).Error("encoding own vote")
		return
	}
	if err := n.transport.Publish(ctx, data); err != nil {
		n.log.WithError(err).Warn("publishing own vote")
		return
	}

	n.handleVote(ctx, "self", v, nowMs())
}
