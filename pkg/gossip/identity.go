package gossip

import (
	"github.com/libp2p/go-libp2p"
	p2pcrypto "github.com/libp2p/go-libp2p-core/crypto"
	"github.com/pkg/errors"

	"github.com/amunchain/amunchain/pkg/keystore"
)

// IdentityFromKeystore adapts the node's validator Ed25519 key (C3) into
// the libp2p.Option that gives the host the same identity used for
// consensus signing, so peer ids and validator pubkeys are one key.
func IdentityFromKeystore(ks *keystore.Keystore) (libp2p.Option, error) {
	priv, _, err := p2pcrypto.KeyPairFromStdKey(ks.PrivateKey())
	if err != nil {
		return nil, errors.Wrap(err, "adapting validator key to libp2p identity")
	}
	return libp2p.Identity(priv), nil
}
