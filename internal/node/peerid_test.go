package node

import (
	"crypto/rand"
	"testing"

	p2pcrypto "github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/stretchr/testify/require"

	"github.com/amunchain/amunchain/pkg/cryptography"
)

func TestPeerIDOfMatchesEncodePeerID(t *testing.T) {
	_, pub, err := p2pcrypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)

	id, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)

	got, err := peerIDOf(id)
	require.NoError(t, err)

	raw, err := pub.Raw()
	require.NoError(t, err)
	want, err := cryptography.EncodePeerID(raw)
	require.NoError(t, err)

	require.Equal(t, want, got)
}
