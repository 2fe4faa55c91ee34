package tide

import (
	"github.com/amunchain/amunchain/pkg/chain"
	"github.com/amunchain/amunchain/pkg/cryptography"
)

// HandleProposal admits a Block as described in spec §4.9. On success it
// also attempts to promote any votes buffered for this slot, which may
// itself reach quorum and finalize the block.
func (g *Gadget) HandleProposal(b *chain.Block, encodedSize int, nowMs uint64) (*FinalizedBlock, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.withinWindow(b.Height) {
		return nil, chain.ErrSlotOutOfWindow
	}
	if g.cfg.RequireEpoch && b.Epoch != g.cfg.Epoch {
		return nil, chain.ErrSlotOutOfWindow
	}
	if g.cfg.MaxBlockBytes > 0 && encodedSize > g.cfg.MaxBlockBytes {
		return nil, ErrOversizeBlock
	}
	designated := g.cfg.Validators.ProposerAt(b.Height)
	if designated == nil || !equalBytes(designated, b.Proposer) {
		return nil, ErrWrongProposer
	}
	if parent, ok := g.finalized[b.Height-1]; ok && parent != b.ParentHash {
		return nil, ErrBadParent
	}

	hash, err := b.Hash()
	if err != nil {
		return nil, err
	}

	s := g.slotFor(b.Height)
	switch {
	case s.hasBlock && s.blockHash == hash:
		return nil, chain.ErrDuplicateProposal
	case s.hasBlock:
		// Equivocating proposer: record, raise its invalid counter, keep
		// the first-seen proposal authoritative for this slot. Never
		// crash or reject the slot outright.
		g.proposerInvalid[string(b.Proposer)]++
		return nil, chain.ErrEquivocation
	}

	s.proposal = b
	s.blockHash = hash
	s.hasBlock = true

	return g.promoteBuffered(s, nowMs), nil
}

// HandleVote admits a Vote as described in spec §4.9. If quorum is
// reached for block_hash as a result, a FinalizedBlock is returned for
// the caller to broadcast and apply; otherwise the second return is nil.
// fromGossip indicates whether a same-voter-twice equivocation should be
// penalized (peer score is the caller's responsibility, via the bool
// return for equivocation-by-gossip).
func (g *Gadget) HandleVote(v *chain.Vote, fromGossip bool, nowMs uint64) (*FinalizedBlock, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.cfg.Validators.Contains(v.Voter) {
		return nil, false, chain.ErrUnknownValidator
	}
	if !v.VerifySignature() {
		return nil, false, chain.ErrSignatureInvalid
	}
	if !g.withinWindow(v.Height) {
		return nil, false, chain.ErrSlotOutOfWindow
	}

	s := g.slotFor(v.Height)

	if existing, ok := s.votesByVoter[string(v.Voter)]; ok {
		if existing.BlockHash == v.BlockHash {
			return nil, false, nil // harmless duplicate delivery
		}
		// Equivocation: first vote stands, second is dropped.
		return nil, fromGossip, chain.ErrEquivocation
	}

	if !s.hasBlock || s.blockHash != v.BlockHash {
		g.bufferVote(s, v, nowMs)
		return nil, false, nil
	}

	fb, err := g.acceptVoteLocked(s, v)
	return fb, false, err
}

// bufferVote holds a vote for a proposal that has not arrived yet.
// promoteBuffered drops it once vote_buffer_ms has elapsed without the
// matching proposal showing up.
func (g *Gadget) bufferVote(s *slot, v *chain.Vote, nowMs uint64) {
	s.buffered = append(s.buffered, bufferedVote{vote: v, receivedMs: nowMs})
}

// promoteBuffered re-evaluates buffered votes once a proposal lands,
// dropping any whose buffering window has expired. Returns the finalized
// block if admitting a buffered vote reached quorum.
func (g *Gadget) promoteBuffered(s *slot, nowMs uint64) *FinalizedBlock {
	pending := s.buffered
	s.buffered = nil
	var result *FinalizedBlock
	for _, bv := range pending {
		if nowMs > bv.receivedMs+g.cfg.voteBufferMs() {
			continue // expired before the proposal arrived
		}
		if bv.vote.BlockHash != s.blockHash {
			continue // buffered for a hash that never materialized
		}
		if _, ok := s.votesByVoter[string(bv.vote.Voter)]; ok {
			continue
		}
		if fb, err := g.acceptVoteLocked(s, bv.vote); err == nil && fb != nil {
			result = fb
		}
	}
	return result
}

func (g *Gadget) acceptVoteLocked(s *slot, v *chain.Vote) (*FinalizedBlock, error) {
	s.votesByVoter[string(v.Voter)] = v
	set, ok := s.votesByHash[v.BlockHash]
	if !ok {
		set = make(map[string]struct{})
		s.votesByHash[v.BlockHash] = set
	}
	set[string(v.Voter)] = struct{}{}

	if s.committed || len(set) < g.cfg.Validators.Quorum() {
		return nil, nil
	}
	return g.finalizeLocked(s, v.BlockHash, set)
}

// HandleCommit admits an externally-constructed Commit as described in
// spec §4.9: a structurally and cryptographically valid commit is
// authoritative even without prior local votes or proposal. If it
// conflicts with an already-finalized hash at the same height it is a
// safety violation and is never applied.
func (g *Gadget) HandleCommit(c *chain.Commit, nowMs uint64) (*FinalizedBlock, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Commits for already-finalized heights are allowed through (handled
	// below as either a no-op or a safety violation); only commits for
	// heights beyond the tracked window are rejected outright.
	if c.Height > g.lastFinalized && !g.withinWindow(c.Height) {
		return nil, chain.ErrSlotOutOfWindow
	}
	if err := c.Verify(g.cfg.Validators, g.cfg.Validators.Quorum()); err != nil {
		return nil, err
	}

	if existing, ok := g.finalized[c.Height]; ok {
		if existing != c.BlockHash {
			g.log.WithFields(logSafetyFields(c.Height, existing, c.BlockHash)).Error("commit conflicts with finalized block")
			return nil, ErrSafetyViolation
		}
		return nil, nil // already finalized with this hash, nothing to do
	}

	s := g.slotFor(c.Height)
	return g.finalizeWithCommitLocked(s, c.BlockHash, c)
}

func (g *Gadget) finalizeLocked(s *slot, hash cryptography.Hash32, voters map[string]struct{}) (*FinalizedBlock, error) {
	sigs := make([]chain.SignedVote, 0, len(voters))
	for voterKey := range voters {
		v := s.votesByVoter[voterKey]
		sigs = append(sigs, chain.SignedVote{Voter: v.Voter, Signature: v.Signature})
	}
	commit := &chain.Commit{Epoch: s.epoch, Height: s.height, BlockHash: hash, Signatures: sigs}
	commit.SortSignatures()
	return g.finalizeWithCommitLocked(s, hash, commit)
}

func (g *Gadget) finalizeWithCommitLocked(s *slot, hash cryptography.Hash32, commit *chain.Commit) (*FinalizedBlock, error) {
	if existing, ok := g.finalized[s.height]; ok {
		if existing != hash {
			g.log.WithFields(logSafetyFields(s.height, existing, hash)).Error("commit conflicts with finalized block")
			return nil, ErrSafetyViolation
		}
		return nil, nil
	}

	s.committed = true
	g.finalized[s.height] = hash
	g.commits[s.height] = commit

	if s.height == g.lastFinalized+1 {
		g.lastFinalized = s.height
		g.advanceChain()
	}
	g.pruneBelow(g.lastFinalized)

	return &FinalizedBlock{Height: s.height, BlockHash: hash, Commit: commit}, nil
}

// advanceChain walks forward through any already-finalized heights that
// were decided out of order (e.g. via an authoritative Commit) so
// lastFinalized stays the contiguous frontier.
func (g *Gadget) advanceChain() {
	for {
		next := g.lastFinalized + 1
		if _, ok := g.finalized[next]; !ok {
			return
		}
		g.lastFinalized = next
	}
}

func (g *Gadget) pruneBelow(height uint64) {
	for h := range g.slots {
		if h <= height {
			delete(g.slots, h)
		}
	}
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func logSafetyFields(height uint64, finalized, conflicting cryptography.Hash32) map[string]interface{} {
	return map[string]interface{}{
		"height":      height,
		"finalized":   finalized,
		"conflicting": conflicting,
	}
}
