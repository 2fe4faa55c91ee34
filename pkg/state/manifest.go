package state

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/amunchain/amunchain/internal/ioutil"
	"github.com/amunchain/amunchain/pkg/codec"
	"github.com/amunchain/amunchain/pkg/cryptography"
)

// manifest is the small durable record of the last adopted commit:
// { root, height }, written write-temp-then-fsync-then-rename. It is only
// ever written after state.bin for the same commit has already landed, so
// a manifest on disk always names a state.bin that fully exists.
type manifest struct {
	Root   cryptography.Hash32
	Height uint64
}

func encodeManifest(m manifest) []byte {
	w := codec.NewWriter(40)
	w.WriteFixed(m.Root[:])
	w.WriteU64(m.Height)
	return w.Bytes()
}

func decodeManifest(b []byte) (manifest, error) {
	r, err := codec.NewReader(b, 1<<10)
	if err != nil {
		return manifest{}, err
	}
	root, err := r.ReadFixed(32)
	if err != nil {
		return manifest{}, err
	}
	height, err := r.ReadU64()
	if err != nil {
		return manifest{}, err
	}
	if err := r.Finish(); err != nil {
		return manifest{}, err
	}
	var m manifest
	copy(m.Root[:], root)
	m.Height = height
	return m, nil
}

func readManifest(dataDir string) (manifest, bool, error) {
	raw, err := os.ReadFile(filepath.Join(dataDir, manifestName))
	if errors.Is(err, os.ErrNotExist) {
		return manifest{}, false, nil
	}
	if err != nil {
		return manifest{}, false, errors.Wrap(err, "reading manifest")
	}
	m, err := decodeManifest(raw)
	if err != nil {
		return manifest{}, false, err
	}
	return m, true, nil
}

func writeManifest(dataDir string, m manifest) error {
	path := filepath.Join(dataDir, manifestName)
	return ioutil.AtomicWrite(path, encodeManifest(m), 0600)
}

// encodeStateBlob writes the canonical, count-prefixed encoding of the
// full committed keyspace, sorted ascending by key (the same order
// recomputeRoot feeds to merkleRoot). This is state.bin's on-disk shape:
// the authoritative snapshot a manifest's root is checked against.
func encodeStateBlob(pairs []pair) []byte {
	w := codec.NewWriter(8)
	w.WriteU64(uint64(len(pairs)))
	for _, p := range pairs {
		w.WriteBytes(p.key)
		w.WriteBytes(p.value)
	}
	return w.Bytes()
}

// maxStateBlobPairs bounds the declared pair count in decodeStateBlob. The
// count is also checked against the bytes left in the blob (every pair
// carries two u64 length prefixes), so a truncated/corrupt file cannot
// drive an oversized allocation loop.
const maxStateBlobPairs = 1 << 32

func decodeStateBlob(b []byte) ([]pair, error) {
	r, err := codec.NewReader(b, len(b))
	if err != nil {
		return nil, err
	}
	n, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	if n > maxStateBlobPairs || n > uint64(r.Remaining())/16 {
		return nil, codec.ErrOversize
	}
	pairs := make([]pair, 0, n)
	for i := uint64(0); i < n; i++ {
		key, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		value, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair{
			key:   append([]byte(nil), key...),
			value: append([]byte(nil), value...),
		})
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return pairs, nil
}

func readStateBlob(dataDir string) ([]pair, bool, error) {
	raw, err := os.ReadFile(filepath.Join(dataDir, blobName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "reading state blob")
	}
	pairs, err := decodeStateBlob(raw)
	if err != nil {
		return nil, false, errors.Wrap(ErrStateCorrupt, "decoding state blob: "+err.Error())
	}
	return pairs, true, nil
}

func writeStateBlob(dataDir string, pairs []pair) error {
	path := filepath.Join(dataDir, blobName)
	return ioutil.AtomicWrite(path, encodeStateBlob(pairs), 0600)
}
