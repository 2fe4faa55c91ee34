package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(0)
	w.WriteU64(42)
	w.WriteU32(7)
	w.WriteFixed([]byte{1, 2, 3, 4})
	w.WriteBytes([]byte("hello"))

	r, err := NewReader(w.Bytes(), 1<<20)
	require.NoError(t, err)

	u64, err := r.ReadU64()
	require.NoError(t, err)
	require.Equal(t, uint64(42), u64)

	u32, err := r.ReadU32()
	require.NoError(t, err)
	require.Equal(t, uint32(7), u32)

	fixed, err := r.ReadFixed(4)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, fixed)

	bs, err := r.ReadBytes()
	require.NoError(t, err)
	require.Equal(t, "hello", string(bs))

	require.NoError(t, r.Finish())
}

func TestTrailingBytesRejected(t *testing.T) {
	w := NewWriter(0)
	w.WriteU64(1)
	b := append(w.Bytes(), 0xFF)

	r, err := NewReader(b, 1<<20)
	require.NoError(t, err)
	_, err = r.ReadU64()
	require.NoError(t, err)
	require.ErrorIs(t, r.Finish(), ErrTrailingByte)
}

func TestTruncatedRejected(t *testing.T) {
	r, err := NewReader([]byte{1, 2, 3}, 1<<20)
	require.NoError(t, err)
	_, err = r.ReadU64()
	require.ErrorIs(t, err, ErrTruncated)
}

func TestOversizeBudgetRejectedBeforeAllocation(t *testing.T) {
	_, err := NewReader(make([]byte, 100), 10)
	require.ErrorIs(t, err, ErrOversize)
}

func TestReadBytesRejectsHugeDeclaredLength(t *testing.T) {
	w := NewWriter(0)
	w.WriteU64(1 << 40) // declared length far exceeds actual remaining bytes
	r, err := NewReader(w.Bytes(), 1<<20)
	require.NoError(t, err)
	_, err = r.ReadBytes()
	require.ErrorIs(t, err, ErrTruncated)
}

func TestUnionDepthCap(t *testing.T) {
	r, err := NewReader(nil, 0)
	require.NoError(t, err)
	for i := 0; i < maxUnionDepth; i++ {
		require.NoError(t, r.EnterUnion())
	}
	require.ErrorIs(t, r.EnterUnion(), ErrOversize)
}

func TestDeterministicEncoding(t *testing.T) {
	enc := func() []byte {
		w := NewWriter(0)
		w.WriteU64(123456789)
		w.WriteBytes([]byte("amunchain"))
		return w.Bytes()
	}
	require.Equal(t, enc(), enc())
}
