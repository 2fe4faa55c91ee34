package state

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestMerkleRootEmptyIsZero(t *testing.T) {
	require.Equal(t, [32]byte{}, merkleRoot(nil))
}

func TestMerkleProofVerifiesAndRejectsTamperedValue(t *testing.T) {
	pairs := []pair{
		{key: []byte("a"), value: []byte("1")},
		{key: []byte("b"), value: []byte("2")},
		{key: []byte("c"), value: []byte("3")},
	}
	root := merkleRoot(pairs)

	for i, p := range pairs {
		proof, ok := merkleProof(pairs, i)
		require.True(t, ok)
		require.True(t, VerifyProof(root, p.key, p.value, proof))
		require.False(t, VerifyProof(root, p.key, []byte("tampered"), proof))
	}
}

func TestMerkleRootDuplicatesOddLeaf(t *testing.T) {
	odd := []pair{
		{key: []byte("a"), value: []byte("1")},
		{key: []byte("b"), value: []byte("2")},
		{key: []byte("c"), value: []byte("3")},
	}
	even := append(append([]pair(nil), odd...), pair{key: []byte("c"), value: []byte("3")})
	// The odd last leaf is paired with itself, so three leaves give the
	// same root as those three plus a copy of the last one.
	require.Equal(t, merkleRoot(even), merkleRoot(odd))
}

func TestStoreCommitAndProveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testLogger())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put([]byte("alpha"), []byte("1")))
	require.NoError(t, s.Put([]byte("beta"), []byte("2")))

	root, err := s.Commit(1)
	require.NoError(t, err)
	require.NotEqual(t, [32]byte{}, root)

	proof, val, err := s.Prove([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), val)
	require.True(t, VerifyProof(root, []byte("alpha"), val, proof))
}

func TestStoreReopenAdoptsManifest(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	root, err := s.Commit(5)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(dir, testLogger())
	require.NoError(t, err)
	defer s2.Close()
	require.Equal(t, root, s2.Root())
	require.Equal(t, uint64(5), s2.Height())
}

func TestStoreGetMissingKey(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testLogger())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreGetSeesStagedWriteBeforeCommit(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testLogger())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put([]byte("k"), []byte("staged")))
	v, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("staged"), v)
}

// TestStoreUncommittedWriteInvisibleAfterRestart simulates a crash between
// a Put and the next Commit: closing the store without committing and
// reopening must show the last fully-committed state, not the staged one.
func TestStoreUncommittedWriteInvisibleAfterRestart(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("k"), []byte("v1")))
	root, err := s.Commit(1)
	require.NoError(t, err)

	require.NoError(t, s.Put([]byte("k"), []byte("v2")))
	require.NoError(t, s.Put([]byte("new"), []byte("uncommitted")))
	require.NoError(t, s.Close()) // no Commit after these staged writes

	s2, err := Open(dir, testLogger())
	require.NoError(t, err)
	defer s2.Close()

	require.Equal(t, root, s2.Root())
	require.Equal(t, uint64(1), s2.Height())

	v, err := s2.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	_, err = s2.Get([]byte("new"))
	require.ErrorIs(t, err, ErrNotFound)
}
