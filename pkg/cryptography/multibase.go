package cryptography

import (
	"github.com/pkg/errors"

	"github.com/multiformats/go-multibase"
)

// EncodePeerID renders a raw 32-byte Ed25519 public key as a base58btc
// multibase string, the human-displayed peer identifier (spec §6,
// --print-peer-id).
func EncodePeerID(pub []byte) (string, error) {
	if len(pub) != PubKeySize {
		return "", errors.Errorf("peer id: want %d-byte pubkey, got %d", PubKeySize, len(pub))
	}
	return multibase.Encode(multibase.Base58BTC, pub)
}

// DecodePeerID parses a peer identifier produced by EncodePeerID back into
// its raw public key bytes.
func DecodePeerID(id string) ([]byte, error) {
	_, raw, err := multibase.Decode(id)
	if err != nil {
		return nil, errors.Wrap(err, "decoding peer id")
	}
	if len(raw) != PubKeySize {
		return nil, errors.Errorf("peer id: want %d-byte pubkey, got %d", PubKeySize, len(raw))
	}
	return raw, nil
}
