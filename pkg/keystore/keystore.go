// Package keystore loads and persists the validator's Ed25519 identity
// key, with optional passphrase-based encryption at rest.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"

	"crypto/sha256"

	"github.com/amunchain/amunchain/internal/ioutil"
)

// KeyFileName is the validator key's fixed filename under data_dir.
const KeyFileName = "validator.key"

var (
	// ErrKeyLocked is returned by PeekPublicKey, and by LoadOrCreate, when
	// the on-disk key is encrypted and no passphrase is available to unlock it.
	ErrKeyLocked = errors.New("keystore: key is passphrase-locked")
	// ErrInvalidKey is returned when the on-disk bytes do not parse as an
	// Ed25519 PKCS#8 key (after decryption, if encrypted).
	ErrInvalidKey = errors.New("keystore: invalid key encoding")
)

var magic = []byte("AMUNKEY1")

const (
	saltLen  = 16
	nonceLen = 12

	// MinPBKDF2Iters and MaxPBKDF2Iters bound AMUNCHAIN_PBKDF2_ITERS per
	// spec §4.3; out-of-range values are clamped, never rejected.
	MinPBKDF2Iters = 100_000
	MaxPBKDF2Iters = 10_000_000

	defaultPBKDF2Iters = 100_000
)

// ClampIters clamps an operator-supplied iteration count into the allowed
// range, applying the default when n is zero.
func ClampIters(n int) int {
	if n == 0 {
		return defaultPBKDF2Iters
	}
	if n < MinPBKDF2Iters {
		return MinPBKDF2Iters
	}
	if n > MaxPBKDF2Iters {
		return MaxPBKDF2Iters
	}
	return n
}

// Keystore holds the node's loaded validator identity.
type Keystore struct {
	priv      ed25519.PrivateKey
	pub       ed25519.PublicKey
	encrypted bool
}

// PublicKey returns the 32-byte Ed25519 public key.
func (k *Keystore) PublicKey() ed25519.PublicKey { return k.pub }

// PrivateKey returns the 64-byte Ed25519 private key for signing.
func (k *Keystore) PrivateKey() ed25519.PrivateKey { return k.priv }

// Sign signs msg with the loaded validator key.
func (k *Keystore) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// LoadOrCreate opens dataDir/validator.key, generating a fresh Ed25519
// key if none exists. If passphrase is non-empty, a freshly-generated key
// is written encrypted at rest; an existing encrypted key requires the
// same passphrase to decrypt.
func LoadOrCreate(dataDir string, passphrase string, pbkdf2Iters int) (*Keystore, error) {
	path := filepath.Join(dataDir, KeyFileName)

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return create(path, passphrase, pbkdf2Iters)
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading validator key")
	}
	return load(raw, passphrase, ClampIters(pbkdf2Iters))
}

func create(path string, passphrase string, pbkdf2Iters int) (*Keystore, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generating ed25519 key")
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling pkcs8")
	}

	onDisk := pkcs8
	encrypted := false
	if passphrase != "" {
		onDisk, err = encryptPKCS8([]byte(passphrase), pkcs8, ClampIters(pbkdf2Iters))
		if err != nil {
			return nil, err
		}
		encrypted = true
	}

	if err := ioutil.AtomicWrite(path, onDisk, 0600); err != nil {
		return nil, err
	}

	return &Keystore{priv: priv, pub: pub, encrypted: encrypted}, nil
}

func load(raw []byte, passphrase string, iters int) (*Keystore, error) {
	pkcs8 := raw
	encrypted := hasMagic(raw)
	if encrypted {
		if passphrase == "" {
			return nil, ErrKeyLocked
		}
		var err error
		pkcs8, err = decryptPKCS8([]byte(passphrase), raw, iters)
		if err != nil {
			return nil, err
		}
	}

	key, err := x509.ParsePKCS8PrivateKey(pkcs8)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidKey, err.Error())
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return &Keystore{priv: priv, pub: pub, encrypted: encrypted}, nil
}

func hasMagic(b []byte) bool {
	return len(b) >= len(magic) && string(b[:len(magic)]) == string(magic)
}

// PeekPublicKey reads dataDir/validator.key and returns its public key
// without requiring a passphrase, as used by --print-peer-id. It fails
// with ErrKeyLocked if the file is encrypted.
func PeekPublicKey(dataDir string) (ed25519.PublicKey, error) {
	path := filepath.Join(dataDir, KeyFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading validator key")
	}
	if hasMagic(raw) {
		return nil, ErrKeyLocked
	}
	key, err := x509.ParsePKCS8PrivateKey(raw)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidKey, err.Error())
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return pub, nil
}

func deriveAES256Key(passphrase, salt []byte, iters int) []byte {
	return pbkdf2.Key(passphrase, salt, iters, 32, sha256.New)
}

func encryptPKCS8(passphrase, plaintext []byte, iters int) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "generating salt")
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "generating nonce")
	}

	key := deriveAES256Key(passphrase, salt, iters)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "constructing aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "constructing gcm")
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(magic)+saltLen+nonceLen+len(ciphertext))
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func decryptPKCS8(passphrase, raw []byte, iters int) ([]byte, error) {
	min := len(magic) + saltLen + nonceLen
	if len(raw) < min {
		return nil, ErrInvalidKey
	}
	salt := raw[len(magic) : len(magic)+saltLen]
	nonce := raw[len(magic)+saltLen : min]
	ciphertext := raw[min:]

	key := deriveAES256Key(passphrase, salt, iters)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "constructing aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "constructing gcm")
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidKey, "decryption failed: wrong passphrase or corrupted key")
	}
	return plaintext, nil
}
