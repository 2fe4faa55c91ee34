package node

import (
	"context"

	"github.com/amunchain/amunchain/pkg/chain"
	"github.com/amunchain/amunchain/pkg/cryptography"
	"github.com/amunchain/amunchain/pkg/gossip"
	"github.com/amunchain/amunchain/pkg/peerscore"
	"github.com/amunchain/amunchain/pkg/replay"
	"github.com/amunchain/amunchain/pkg/tide"
)

// consensusLoop is the single goroutine that mutates the Tide gadget and
// the state store. It runs the admission pipeline from spec §4.5-§4.8
// (allowlist, rate limit, oversize, replay, decode) ahead of every
// dispatch into Tide, and applies or rebroadcasts whatever Tide decides.
func (n *Node) consensusLoop(ctx context.Context, frames <-chan gossip.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			n.handleFrame(ctx, f)
		}
	}
}

func (n *Node) handleFrame(ctx context.Context, f gossip.Frame) {
	n.metrics.MsgsIn.Inc()
	now := nowMs()

	peerKey, err := peerIDOf(f.From)
	if err != nil {
		peerKey = f.From.String()
	}

	if _, ok := n.allowlist[peerKey]; !ok {
		n.metrics.MsgsDroppedUnknownPeer.Inc()
		return
	}

	if n.scorer.IsBanned(peerKey, now) {
		return
	}
	switch n.scorer.Admit(peerKey, now) {
	case peerscore.Banned:
		return
	case peerscore.Throttle:
		n.metrics.MsgsDroppedRate.Inc()
		return
	}

	if len(f.Data) > gossip.DefaultMaxWireBytes {
		n.scorer.ReportOversize(peerKey, now)
		n.metrics.MsgsDroppedOversize.Inc()
		return
	}

	digest := cryptography.SHA256(f.Data)
	if n.replayC.Observe(digest) == replay.Replayed {
		n.metrics.MsgsDroppedReplay.Inc()
		return
	}

	msg, err := chain.DecodeConsensusMsg(f.Data, gossip.DefaultMaxWireBytes)
	if err != nil {
		n.scorer.ReportInvalid(peerKey, now)
		n.metrics.MsgsDroppedDecodeError.Inc()
		return
	}

	// Legacy drop: under require_epoch, a message carrying epoch == 0
	// predates epoch tagging and is silently dropped pre-validation, with
	// no scoring impact — it is neither malformed nor evidence of a
	// misbehaving peer, just a message this network no longer accepts.
	if n.cfg.Consensus().RequireEpoch && msg.Epoch() == 0 {
		n.metrics.MsgsDroppedLegacyEpoch.Inc()
		return
	}

	switch msg.Kind {
	case chain.KindProposal:
		n.handleProposal(ctx, peerKey, msg.Proposal, len(f.Data), now)
	case chain.KindVote:
		n.handleVote(ctx, peerKey, msg.Vote, now)
	case chain.KindCommit:
		n.handleCommit(peerKey, msg.Commit, now)
	}
}

func (n *Node) handleProposal(ctx context.Context, peerKey string, b *chain.Block, size int, now uint64) {
	fb, err := n.gadget.HandleProposal(b, size, now)
	if err != nil {
		n.reportConsensusError(peerKey, err, now)
		return
	}
	n.scorer.ReportValid(peerKey, now)
	n.castOwnVote(ctx, b)
	if fb != nil {
		n.finalize(ctx, fb, true)
	}
}

func (n *Node) handleVote(ctx context.Context, peerKey string, v *chain.Vote, now uint64) {
	fb, equivocated, err := n.gadget.HandleVote(v, true, now)
	if err != nil {
		if err == chain.ErrEquivocation && equivocated {
			n.scorer.ReportEquivocation(peerKey, now)
		} else {
			n.reportConsensusError(peerKey, err, now)
		}
		return
	}
	n.scorer.ReportValid(peerKey, now)
	n.metrics.VotesAccepted.Inc()
	if fb != nil {
		n.finalize(ctx, fb, true)
	}
}

func (n *Node) handleCommit(peerKey string, c *chain.Commit, now uint64) {
	fb, err := n.gadget.HandleCommit(c, now)
	if err != nil {
		if err == tide.ErrSafetyViolation {
			n.log.WithField("height", c.Height).Error("safety violation: commit conflicts with finalized block")
			return
		}
		n.reportConsensusError(peerKey, err, now)
		return
	}
	n.scorer.ReportValid(peerKey, now)
	if fb != nil {
		// The commit itself was already gossiped by its originator; do
		// not re-broadcast to avoid an amplification loop.
		n.finalize(context.Background(), fb, false)
	}
}

// reportConsensusError penalizes the peer when the failure indicates a
// malformed or dishonest message, and leaves reputation untouched for
// failures that are just timing (buffered votes, out-of-window slots).
func (n *Node) reportConsensusError(peerKey string, err error, now uint64) {
	switch err {
	case chain.ErrSignatureInvalid:
		n.scorer.ReportInvalid(peerKey, now)
		n.metrics.MsgsDroppedInvalidSig.Inc()
	case chain.ErrUnknownValidator, tide.ErrWrongProposer, tide.ErrBadParent, chain.ErrQuorumNotMet:
		n.scorer.ReportInvalid(peerKey, now)
	case chain.ErrEquivocation:
		n.scorer.ReportEquivocation(peerKey, now)
	default:
		// chain.ErrSlotOutOfWindow, chain.ErrDuplicateProposal, tide.ErrOversizeBlock: benign/no-op.
	}
}

// finalize applies a newly finalized height to the state store, updates
// metrics, and — if this node assembled the commit locally — broadcasts
// it so peers that only saw a quorum of votes converge on the same
// artifact.
func (n *Node) finalize(ctx context.Context, fb *tide.FinalizedBlock, broadcast bool) {
	if _, err := n.store.Commit(fb.Height); err != nil {
		n.log.WithError(err).WithField("height", fb.Height).Error("committing finalized height to state store")
		return
	}
	n.metrics.CommitsFinalized.Inc()
	n.metrics.FinalizedHeight.Set(float64(fb.Height))
	n.log.WithField("height", fb.Height).Info("finalized height")

	if broadcast {
		n.broadcastCommit(ctx, fb.Commit)
	}

	n.maybePropose()
}

func (n *Node) broadcastCommit(ctx context.Context, c *chain.Commit) {
	data, err := chain.EncodeConsensusMsg(&chain.ConsensusMsg{Kind: chain.KindCommit, Commit: c})
	if err != nil {
		n.log.WithError(err).Error("encoding commit for broadcast")
		return
	}
	if err := n.transport.Publish(ctx, data); err != nil {
		n.log.WithError(err).Warn("publishing commit")
	}
}
