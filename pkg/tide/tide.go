// Package tide implements the finality gadget: a per-height slot state
// machine that admits Proposal/Vote/Commit messages, detects equivocation,
// and finalizes a block once a quorum of votes for its hash is observed.
// It is a single-phase vote-to-commit design — no prevote/precommit split
// and no view-change.
package tide

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/amunchain/amunchain/pkg/chain"
	"github.com/amunchain/amunchain/pkg/cryptography"
)

// DefaultWindow is H_max: the number of heights ahead of the last
// finalized height that are tracked concurrently.
const DefaultWindow = 128

// DefaultVoteBufferMs is how long an otherwise-valid vote for an
// as-yet-unseen proposal is held pending that proposal's arrival.
const DefaultVoteBufferMs = 2000

// DefaultProposalTimeoutMs is the default value for
// Config.ProposalTimeoutMs. The Gadget reads neither: it runs no per-slot
// timer, and a proposal inside the window is admitted whenever it
// arrives. Late votes/commits are accepted the same way; there is no
// view-change.
const DefaultProposalTimeoutMs = 4000

// Config parameterizes one Gadget instance.
type Config struct {
	Validators        *chain.ValidatorSet
	Epoch             uint64
	RequireEpoch      bool
	Window            uint64 // H_max; 0 means DefaultWindow
	VoteBufferMs      uint64 // 0 means DefaultVoteBufferMs
	ProposalTimeoutMs uint64 // carried in Config; not read by the Gadget
	MaxBlockBytes     int
}

func (c Config) window() uint64 {
	if c.Window == 0 {
		return DefaultWindow
	}
	return c.Window
}

func (c Config) voteBufferMs() uint64 {
	if c.VoteBufferMs == 0 {
		return DefaultVoteBufferMs
	}
	return c.VoteBufferMs
}

// FinalizedBlock is handed to Gadget's caller whenever a new height is
// finalized, so it can be broadcast and applied to state.
type FinalizedBlock struct {
	Height    uint64
	BlockHash cryptography.Hash32
	Commit    *chain.Commit
}

// Gadget is the Tide state machine. One Gadget tracks one validator set
// across a sliding window of heights; the caller is responsible for
// serializing all calls into it (per the single consensus-task model).
type Gadget struct {
	cfg Config
	log *logrus.Entry

	mu sync.Mutex

	lastFinalized uint64
	finalized     map[uint64]cryptography.Hash32 // height -> finalized block hash
	commits       map[uint64]*chain.Commit       // height -> finality certificate

	slots map[uint64]*slot // height -> slot state, pruned at and below lastFinalized

	proposerInvalid map[string]int // proposer pubkey bytes -> equivocation count
}

// slot is the per-(epoch,height) local state described by spec §4.9:
// at most one accepted proposal per height in v1 (equivocating proposals
// are recorded separately, not stored as alternates), one vote per voter,
// and a buffer of votes that arrived before their proposal.
type slot struct {
	epoch     uint64
	height    uint64
	proposal  *chain.Block
	blockHash cryptography.Hash32
	hasBlock  bool

	votesByVoter map[string]*chain.Vote                       // voter bytes -> accepted vote
	votesByHash  map[cryptography.Hash32]map[string]struct{}  // block_hash -> set of voters
	buffered     []bufferedVote

	committed bool
}

type bufferedVote struct {
	vote       *chain.Vote
	receivedMs uint64
}

func newSlot(epoch, height uint64) *slot {
	return &slot{
		epoch:        epoch,
		height:       height,
		votesByVoter: make(map[string]*chain.Vote),
		votesByHash:  make(map[cryptography.Hash32]map[string]struct{}),
	}
}

// New constructs a Gadget resuming from lastFinalized (0 if starting
// fresh).
func New(cfg Config, lastFinalized uint64, log *logrus.Logger) *Gadget {
	return &Gadget{
		cfg:             cfg,
		log:             log.WithField("component", "tide"),
		lastFinalized:   lastFinalized,
		finalized:       make(map[uint64]cryptography.Hash32),
		commits:         make(map[uint64]*chain.Commit),
		slots:           make(map[uint64]*slot),
		proposerInvalid: make(map[string]int),
	}
}

// LastFinalizedHeight returns the highest height with a finalized block.
func (g *Gadget) LastFinalizedHeight() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastFinalized
}

// FinalizedHash returns the finalized block hash at height, if any.
func (g *Gadget) FinalizedHash(height uint64) (cryptography.Hash32, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.finalized[height]
	return h, ok
}

// FinalizedCommit returns the finality certificate at height, if any.
func (g *Gadget) FinalizedCommit(height uint64) (*chain.Commit, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.commits[height]
	return c, ok
}

// ProposerInvalidCount returns how many distinct conflicting proposals a
// proposer has been observed to submit, across all tracked slots.
func (g *Gadget) ProposerInvalidCount(proposer []byte) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.proposerInvalid[string(proposer)]
}

func (g *Gadget) withinWindow(height uint64) bool {
	if height <= g.lastFinalized {
		return false
	}
	return height-g.lastFinalized <= g.cfg.window()
}

func (g *Gadget) slotFor(height uint64) *slot {
	s, ok := g.slots[height]
	if !ok {
		s = newSlot(g.cfg.Epoch, height)
		g.slots[height] = s
	}
	return s
}
