package node

import (
	"context"
	"encoding/hex"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"

	"github.com/amunchain/amunchain/pkg/gossip"
)

// connectMultiaddr dials a single bootstrap peer given as a full
// multiaddr ending in its /p2p/<peer id> component.
func connectMultiaddr(ctx context.Context, t *gossip.Transport, addr string) error {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return errors.Wrap(err, "parsing bootstrap multiaddr")
	}
	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return errors.Wrap(err, "extracting peer info")
	}
	return t.Host().Connect(ctx, *info)
}

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
