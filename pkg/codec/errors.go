package codec

import "github.com/pkg/errors"

// Error kinds per spec §4.1/§7. Each is a distinct sentinel so callers can
// use errors.Is without string matching.
var (
	ErrTruncated    = errors.New("codec: truncated input")
	ErrTrailingByte = errors.New("codec: trailing bytes after decoded value")
	ErrOversize     = errors.New("codec: value exceeds byte budget")
	ErrInvalidTag   = errors.New("codec: invalid tag")
	ErrInvalidUTF8  = errors.New("codec: invalid utf-8")
)
