package cryptography

import "crypto/ed25519"

// PubKeySize and SigSize are the only valid Ed25519 key/signature lengths
// on the wire. Any other length is a verification failure, never a panic.
const (
	PubKeySize = ed25519.PublicKeySize
	SigSize    = ed25519.SignatureSize
)

// Sign signs msg with priv, which must be a 64-byte Ed25519 private key
// (seed+pubkey, as produced by ed25519.GenerateKey or parsed from PKCS#8).
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid Ed25519 signature over msg under
// pub. Any malformed input (wrong key or signature length) is treated as
// a failed verification rather than an error or panic, per spec §4.2.
func Verify(pub []byte, msg []byte, sig []byte) bool {
	if len(pub) != PubKeySize || len(sig) != SigSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// DomainMessage concatenates an ASCII domain-separation label with the
// canonical-encoded parts of a signed tuple, e.g. ("amunchain/vote/v1",
// epoch, height, block_hash) per spec §4.2. It is the exact byte string
// that gets signed — Ed25519 signs arbitrary-length messages directly, so
// no pre-hashing step is needed or wanted here.
func DomainMessage(label string, parts ...[]byte) []byte {
	n := len(label)
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	out = append(out, label...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// SignDomain signs a domain-separated message with priv.
func SignDomain(priv ed25519.PrivateKey, label string, parts ...[]byte) []byte {
	return Sign(priv, DomainMessage(label, parts...))
}

// VerifyDomain verifies a signature produced by SignDomain.
func VerifyDomain(pub []byte, label string, sig []byte, parts ...[]byte) bool {
	return Verify(pub, DomainMessage(label, parts...), sig)
}
