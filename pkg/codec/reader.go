package codec

import "encoding/binary"

// maxUnionDepth bounds nested tagged-union decoding per spec §4.1.
const maxUnionDepth = 4

// Reader consumes canonical bytes under a hard byte budget, enforced before
// any sequence allocation, and tracks how many bytes remain unconsumed so
// callers can detect trailing bytes (spec invariant #3).
type Reader struct {
	b     []byte
	off   int
	depth int
}

// NewReader wraps b for decoding. budget additionally caps the total input
// size; a Reader never allocates more than len(b) regardless of budget.
func NewReader(b []byte, budget int) (*Reader, error) {
	if budget >= 0 && len(b) > budget {
		return nil, ErrOversize
	}
	return &Reader{b: b}, nil
}

// Remaining returns the number of unconsumed bytes.
func (r *Reader) Remaining() int {
	return len(r.b) - r.off
}

// Finish returns ErrTrailingByte if any bytes remain unconsumed. Every
// top-level Decode call must end with Finish per spec invariant #3.
func (r *Reader) Finish() error {
	if r.Remaining() != 0 {
		return ErrTrailingByte
	}
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrTruncated
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out, nil
}

// ReadByte consumes a single byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU32 consumes a fixed 4-byte little-endian u32.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 consumes a fixed 8-byte little-endian u64.
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadFixed consumes exactly n raw bytes with no length prefix.
func (r *Reader) ReadFixed(n int) ([]byte, error) {
	return r.take(n)
}

// ReadBytes consumes a u64 length prefix then that many bytes. The length
// is checked against remaining input *before* any copy is made, so a
// maliciously large declared length fails as Truncated rather than
// triggering a large allocation.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Remaining()) {
		return nil, ErrTruncated
	}
	return r.take(int(n))
}

// EnterUnion increments the tagged-union nesting depth, failing with
// ErrOversize once maxUnionDepth is exceeded. Callers pair every EnterUnion
// with ExitUnion around the body of a tagged-union decode.
func (r *Reader) EnterUnion() error {
	r.depth++
	if r.depth > maxUnionDepth {
		return ErrOversize
	}
	return nil
}

// ExitUnion decrements the tagged-union nesting depth.
func (r *Reader) ExitUnion() {
	r.depth--
}
