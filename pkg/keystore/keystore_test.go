package keystore

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateGeneratesUnencryptedKey(t *testing.T) {
	dir := t.TempDir()

	ks, err := LoadOrCreate(dir, "", 0)
	require.NoError(t, err)
	require.False(t, ks.encrypted)
	require.Len(t, ks.PublicKey(), ed25519.PublicKeySize)

	sig := ks.Sign([]byte("msg"))
	require.True(t, ed25519.Verify(ks.PublicKey(), []byte("msg"), sig))
}

func TestLoadOrCreatePersistsAcrossReloads(t *testing.T) {
	dir := t.TempDir()

	ks1, err := LoadOrCreate(dir, "", 0)
	require.NoError(t, err)

	ks2, err := LoadOrCreate(dir, "", 0)
	require.NoError(t, err)

	require.Equal(t, ks1.PublicKey(), ks2.PublicKey())
}

func TestEncryptedKeyRequiresPassphrase(t *testing.T) {
	dir := t.TempDir()

	ks1, err := LoadOrCreate(dir, "correct-horse", 0)
	require.NoError(t, err)
	require.True(t, ks1.encrypted)

	_, err = LoadOrCreate(dir, "", 0)
	require.ErrorIs(t, err, ErrKeyLocked)

	_, err = LoadOrCreate(dir, "wrong-passphrase", 0)
	require.Error(t, err)

	ks2, err := LoadOrCreate(dir, "correct-horse", 0)
	require.NoError(t, err)
	require.Equal(t, ks1.PublicKey(), ks2.PublicKey())
}

func TestPeekPublicKeyFailsOnEncryptedKey(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadOrCreate(dir, "secret", 0)
	require.NoError(t, err)

	_, err = PeekPublicKey(dir)
	require.ErrorIs(t, err, ErrKeyLocked)
}

func TestPeekPublicKeySucceedsOnUnencryptedKey(t *testing.T) {
	dir := t.TempDir()
	ks, err := LoadOrCreate(dir, "", 0)
	require.NoError(t, err)

	pub, err := PeekPublicKey(dir)
	require.NoError(t, err)
	require.Equal(t, ks.PublicKey(), pub)
}

func TestClampIters(t *testing.T) {
	require.Equal(t, defaultPBKDF2Iters, ClampIters(0))
	require.Equal(t, MinPBKDF2Iters, ClampIters(1))
	require.Equal(t, MaxPBKDF2Iters, ClampIters(100_000_000))
	require.Equal(t, 500_000, ClampIters(500_000))
}
