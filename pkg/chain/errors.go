package chain

import "github.com/pkg/errors"

// Sentinel errors forming the protocol-level error taxonomy. Codec-level
// errors (Truncated/TrailingBytes/Oversize/InvalidTag) are returned
// directly from pkg/codec and are not redefined here.
var (
	ErrSignatureInvalid  = errors.New("signature invalid")
	ErrQuorumNotMet      = errors.New("quorum not met")
	ErrUnknownValidator  = errors.New("unknown validator")
	ErrSlotOutOfWindow   = errors.New("slot out of window")
	ErrEquivocation      = errors.New("equivocation")
	ErrDuplicateProposal = errors.New("duplicate proposal")
)
