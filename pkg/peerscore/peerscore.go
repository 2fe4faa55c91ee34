// Package peerscore implements per-peer rate limiting and reputation
// scoring (C6): a token bucket admits or throttles inbound messages, and
// a reputation counter drives exponential-backoff bans.
package peerscore

import (
	"sync"
	"time"

	"github.com/jpillora/backoff"
)

// Defaults mirror spec §4.6 and §5.
const (
	DefaultMaxMsgPerSec   = 50
	DefaultMaxPeersPerIP  = 4
	ReputationCap         = 100
	BanThreshold          = -50
	BackoffMin            = 60 * time.Second
	BackoffMax            = 1 * time.Hour
	BackoffFactor         = 2
	InvalidMessagePenalty = 5
	ValidMessageReward    = 1
	ThrottlePenalty       = 1
	OversizeFramePenalty  = 10
	EquivocationPenalty   = 20
	QueueOverflowPenalty  = 2
)

// Decision is the outcome of Admit.
type Decision int

const (
	Allow Decision = iota
	Throttle
	Banned
)

type peerState struct {
	tokens       float64
	lastRefillMs uint64
	reputation   int32
	bannedUntil  uint64
	consecutive  int
	bo           *backoff.Backoff
}

// Scorer tracks token buckets and reputation for every known peer behind
// a single mutex with constant-time operations, so it is safe to share
// across every network I/O task per spec §5.
type Scorer struct {
	mu            sync.Mutex
	peers         map[string]*peerState
	maxMsgPerSec  float64
	ipConnections map[string]int
	maxPerIP      int
}

// NewScorer constructs a Scorer with the given token-bucket capacity and
// per-IP connection cap.
func NewScorer(maxMsgPerSec float64, maxPeersPerIP int) *Scorer {
	if maxMsgPerSec <= 0 {
		maxMsgPerSec = DefaultMaxMsgPerSec
	}
	if maxPeersPerIP <= 0 {
		maxPeersPerIP = DefaultMaxPeersPerIP
	}
	return &Scorer{
		peers:         make(map[string]*peerState),
		maxMsgPerSec:  maxMsgPerSec,
		ipConnections: make(map[string]int),
		maxPerIP:      maxPeersPerIP,
	}
}

func (s *Scorer) stateFor(peer string) *peerState {
	st, ok := s.peers[peer]
	if !ok {
		st = &peerState{
			tokens: s.maxMsgPerSec,
			bo:     &backoff.Backoff{Min: BackoffMin, Max: BackoffMax, Factor: BackoffFactor},
		}
		s.peers[peer] = st
	}
	return st
}

func (s *Scorer) refill(st *peerState, nowMs uint64) {
	elapsedSec := float64(nowMs-st.lastRefillMs) / 1000
	if elapsedSec <= 0 {
		return
	}
	st.tokens += elapsedSec * s.maxMsgPerSec
	if st.tokens > s.maxMsgPerSec {
		st.tokens = s.maxMsgPerSec
	}
	st.lastRefillMs = nowMs
}

// Admit consumes one token for peer at nowMs. An empty bucket returns
// Throttle and applies a -1 reputation tick; a peer inside its ban
// window returns Banned without touching the bucket.
func (s *Scorer) Admit(peer string, nowMs uint64) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateFor(peer)
	if nowMs < st.bannedUntil {
		return Banned
	}
	s.refill(st, nowMs)

	if st.tokens < 1 {
		s.adjustLocked(st, -ThrottlePenalty, nowMs)
		return Throttle
	}
	st.tokens--
	return Allow
}

// ReportValid applies the +1-capped-at-100 reputation reward for a
// message that passed full validation.
func (s *Scorer) ReportValid(peer string, nowMs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustLocked(s.stateFor(peer), ValidMessageReward, nowMs)
}

// ReportInvalid applies the -5 reputation penalty for a message that
// failed validation.
func (s *Scorer) ReportInvalid(peer string, nowMs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustLocked(s.stateFor(peer), -InvalidMessagePenalty, nowMs)
}

// ReportOversize applies the -10 penalty for an oversized frame.
func (s *Scorer) ReportOversize(peer string, nowMs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustLocked(s.stateFor(peer), -OversizeFramePenalty, nowMs)
}

// ReportEquivocation applies the -20 penalty for a second distinct vote
// delivered via gossip from an already-voted slot.
func (s *Scorer) ReportEquivocation(peer string, nowMs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustLocked(s.stateFor(peer), -EquivocationPenalty, nowMs)
}

// ReportQueueOverflow applies the -2 penalty when a bounded inbound
// queue drops the oldest message on behalf of peer.
func (s *Scorer) ReportQueueOverflow(peer string, nowMs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustLocked(s.stateFor(peer), -QueueOverflowPenalty, nowMs)
}

// adjustLocked applies delta to peer's reputation, capping at
// ReputationCap, and bans the peer once reputation drops below
// BanThreshold. Must be called with s.mu held.
func (s *Scorer) adjustLocked(st *peerState, delta int32, nowMs uint64) {
	st.reputation += delta
	if st.reputation > ReputationCap {
		st.reputation = ReputationCap
	}
	if st.reputation < BanThreshold {
		st.consecutive++
		st.bannedUntil = nowMs + uint64(st.bo.Duration().Milliseconds())
	}
}

// IsBanned reports whether peer is currently within its ban window.
func (s *Scorer) IsBanned(peer string, nowMs uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.peers[peer]
	return ok && nowMs < st.bannedUntil
}

// ResetOnCleanResume clears the consecutive-ban counter for peer once it
// has gone a full hour past its ban window without re-offending.
func (s *Scorer) ResetOnCleanResume(peer string, nowMs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.peers[peer]
	if !ok {
		return
	}
	if st.bannedUntil != 0 && nowMs >= st.bannedUntil+uint64(BackoffMax.Milliseconds()) {
		st.consecutive = 0
		st.bo.Reset()
	}
}

// Reputation returns peer's current reputation score.
func (s *Scorer) Reputation(peer string) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.peers[peer]
	if !ok {
		return 0
	}
	return st.reputation
}

// AdmitConnection enforces the per-IP connection cap, returning false
// when ip is already at capacity.
func (s *Scorer) AdmitConnection(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ipConnections[ip] >= s.maxPerIP {
		return false
	}
	s.ipConnections[ip]++
	return true
}

// ReleaseConnection releases one connection slot for ip.
func (s *Scorer) ReleaseConnection(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ipConnections[ip] > 0 {
		s.ipConnections[ip]--
	}
}
