// Package registry implements the signed peer allowlist (C7): a TOML
// document naming the peers a node will accept connections from, signed
// by a pinned Ed25519 key and bound to a network string and validity
// window.
package registry

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/amunchain/amunchain/pkg/chain"
	"github.com/amunchain/amunchain/pkg/cryptography"
)

// ErrRegistryInvalid covers every structural/cryptographic/freshness
// failure of a peer registry document.
var ErrRegistryInvalid = errors.New("registry: invalid")

// ErrEmptyAllowlist is fatal at startup in production mode when both the
// explicit allowlist and the registry are empty or invalid.
var ErrEmptyAllowlist = errors.New("registry: empty allowlist in production mode")

// file is the on-disk TOML shape.
type file struct {
	Version      int      `toml:"version"`
	Network      string   `toml:"network"`
	IssuedAtMs   uint64   `toml:"issued_at_ms"`
	ExpiresAtMs  uint64   `toml:"expires_at_ms"`
	Peers        []string `toml:"peers"`
	SignatureHex string   `toml:"signature_hex"`
}

// Registry is the verified, deduplicated allowlist.
type Registry struct {
	Version     int
	Network     string
	IssuedAtMs  uint64
	ExpiresAtMs uint64
	Peers       []string // sorted, deduplicated multibase peer ids
}

// Policy governs what makes a loaded registry acceptable.
type Policy struct {
	NowMs            uint64
	ExpectedNetwork  string
	MinVersion       int
	MaxAgeMs         uint64
	GraceMs          uint64
	PinnedPubkey     []byte
}

// Load reads and verifies the registry TOML at path against policy.
func Load(path string, policy Policy) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading peer registry")
	}

	var f file
	if _, err := toml.Decode(string(raw), &f); err != nil {
		return nil, errors.Wrap(ErrRegistryInvalid, "parsing registry toml: "+err.Error())
	}

	peers := dedupeSorted(f.Peers)

	canon := CanonicalBytes(f.Version, f.Network, f.IssuedAtMs, f.ExpiresAtMs, peers)

	sig, err := decodeHexSig(f.SignatureHex)
	if err != nil {
		return nil, errors.Wrap(ErrRegistryInvalid, err.Error())
	}
	if !cryptography.VerifyDomain(policy.PinnedPubkey, chain.DomainRegistry, sig, canon) {
		return nil, errors.Wrap(ErrRegistryInvalid, "signature verification failed")
	}

	if f.Version < policy.MinVersion {
		return nil, errors.Wrap(ErrRegistryInvalid, "version below minimum")
	}
	if policy.ExpectedNetwork != "" && f.Network != policy.ExpectedNetwork {
		return nil, errors.Wrap(ErrRegistryInvalid, "network mismatch")
	}
	if policy.NowMs < f.IssuedAtMs || policy.NowMs > f.ExpiresAtMs+policy.GraceMs {
		return nil, errors.Wrap(ErrRegistryInvalid, "outside validity window")
	}
	if policy.MaxAgeMs != 0 && policy.NowMs-f.IssuedAtMs > policy.MaxAgeMs {
		return nil, errors.Wrap(ErrRegistryInvalid, "registry too old")
	}

	return &Registry{
		Version:     f.Version,
		Network:     f.Network,
		IssuedAtMs:  f.IssuedAtMs,
		ExpiresAtMs: f.ExpiresAtMs,
		Peers:       peers,
	}, nil
}

// CanonicalBytes builds the exact ASCII sequence signed over by a
// registry, per spec §4.7: a trailing newline after the final peer.
func CanonicalBytes(version int, network string, issuedAtMs, expiresAtMs uint64, sortedPeers []string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "v%d\n", version)
	fmt.Fprintf(&b, "network=%s\n", network)
	fmt.Fprintf(&b, "issued_at_ms=%d\n", issuedAtMs)
	fmt.Fprintf(&b, "expires_at_ms=%d\n", expiresAtMs)
	b.WriteString("peers\n")
	for _, p := range sortedPeers {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Sign produces signature_hex for a registry document under priv.
func Sign(priv interface {
	Sign(msg []byte) []byte
}, version int, network string, issuedAtMs, expiresAtMs uint64, peers []string) (string, []string) {
	sorted := dedupeSorted(peers)
	canon := CanonicalBytes(version, network, issuedAtMs, expiresAtMs, sorted)
	sig := priv.Sign(withDomain(canon))
	return encodeHex(sig), sorted
}

func withDomain(canon []byte) []byte {
	return cryptography.DomainMessage(chain.DomainRegistry, canon)
}

func dedupeSorted(peers []string) []string {
	seen := make(map[string]struct{}, len(peers))
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func decodeHexSig(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) != cryptography.SigSize*2 {
		return nil, errors.New("signature_hex has wrong length")
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.New("signature_hex is not valid hex")
	}
	return out, nil
}

func encodeHex(b []byte) string {
	return hex.EncodeToString(b)
}
