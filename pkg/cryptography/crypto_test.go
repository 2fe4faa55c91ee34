package cryptography

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func genKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub, priv
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv := genKey(t)
	msg := []byte("block proposal bytes")

	sig := Sign(priv, msg)
	require.True(t, Verify(pub, msg, sig))
	require.False(t, Verify(pub, []byte("tampered"), sig))
}

func TestVerifyMalformedLengthsNeverPanics(t *testing.T) {
	pub, priv := genKey(t)
	sig := Sign(priv, []byte("msg"))

	require.False(t, Verify(pub[:10], []byte("msg"), sig))
	require.False(t, Verify(pub, []byte("msg"), sig[:5]))
	require.False(t, Verify(nil, []byte("msg"), nil))
}

func TestDomainMessageSeparatesLabels(t *testing.T) {
	part := []byte{1, 2, 3}
	a := DomainMessage("amunchain/vote/v1", part)
	b := DomainMessage("amunchain/commit/v1", part)
	require.NotEqual(t, a, b)
}

func TestSignDomainVerifyDomain(t *testing.T) {
	pub, priv := genKey(t)
	height := []byte{0, 0, 0, 0, 0, 0, 0, 5}
	blockHash := SHA256([]byte("block-5"))

	sig := SignDomain(priv, "amunchain/vote/v1", height, blockHash[:])
	require.True(t, VerifyDomain(pub, "amunchain/vote/v1", sig, height, blockHash[:]))

	// A signature over one label must not verify under a different label.
	require.False(t, VerifyDomain(pub, "amunchain/commit/v1", sig, height, blockHash[:]))
}

func TestDomainHashIsStable(t *testing.T) {
	a := DomainHash("amunchain/block/v1", []byte("x"))
	b := DomainHash("amunchain/block/v1", []byte("x"))
	require.Equal(t, a, b)

	c := DomainHash("amunchain/block/v1", []byte("y"))
	require.NotEqual(t, a, c)
}

func TestPeerIDRoundTrip(t *testing.T) {
	pub, _ := genKey(t)
	id, err := EncodePeerID(pub)
	require.NoError(t, err)

	raw, err := DecodePeerID(id)
	require.NoError(t, err)
	require.Equal(t, []byte(pub), raw)
}

func TestPeerIDRejectsWrongLength(t *testing.T) {
	_, err := EncodePeerID([]byte{1, 2, 3})
	require.Error(t, err)
}
