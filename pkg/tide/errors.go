package tide

import "github.com/pkg/errors"

var (
	// ErrWrongProposer is returned when a proposal's proposer does not
	// match the round-robin designation for its slot.
	ErrWrongProposer = errors.New("tide: proposer does not match designated slot proposer")
	// ErrBadParent is returned when a proposal's parent_hash does not
	// match the already-decided block at height-1.
	ErrBadParent = errors.New("tide: parent_hash does not match decided block")
	// ErrOversizeBlock is returned when a proposal's encoded size
	// exceeds the configured bound.
	ErrOversizeBlock = errors.New("tide: block exceeds max encoded size")
	// ErrSafetyViolation marks a commit that conflicts with an
	// already-finalized block at the same height. It is never applied.
	ErrSafetyViolation = errors.New("tide: commit conflicts with finalized block (safety violation)")
)
