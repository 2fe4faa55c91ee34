package codec

import "encoding/binary"

// Writer accumulates canonical bytes. Every method is a pure function of
// its input — no padding, no alignment, fixed little-endian integers.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer with a pre-sized buffer.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated canonical encoding.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// WriteByte appends a single byte.
func (w *Writer) WriteByte(b byte) {
	w.buf = append(w.buf, b)
}

// WriteU32 appends a fixed 4-byte little-endian u32.
func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteU64 appends a fixed 8-byte little-endian u64.
func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteFixed appends raw bytes with no length prefix. Callers use this only
// for statically-sized fields (hashes, signatures, public keys) where the
// length is implied by the schema, never by the wire bytes.
func (w *Writer) WriteFixed(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteBytes appends a u64 length prefix followed by the bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteU64(uint64(len(b)))
	w.buf = append(w.buf, b...)
}
