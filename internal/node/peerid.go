package node

import (
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/pkg/errors"

	"github.com/amunchain/amunchain/pkg/cryptography"
)

// peerIDOf recovers the multibase PeerId (C3: EncodePeerID over the raw
// Ed25519 public key) from a connected libp2p peer, so the allowlist and
// registry — which speak PeerIds, not libp2p's own multihash peer.ID —
// can be checked against gossip frames directly.
func peerIDOf(id peer.ID) (string, error) {
	pub, err := id.ExtractPublicKey()
	if err != nil {
		return "", errors.Wrap(err, "extracting public key from libp2p peer id")
	}
	raw, err := pub.Raw()
	if err != nil {
		return "", errors.Wrap(err, "extracting raw key bytes")
	}
	return cryptography.EncodePeerID(raw)
}
